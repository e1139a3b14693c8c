package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gymcore/access-service/internal/domain"
)

// MembershipOracle is the authoritative source of a subject's entitlement.
// Results must not be cached between validations.
type MembershipOracle interface {
	GetStatus(ctx context.Context, subjectID string) (*domain.MembershipReport, error)
}

type membershipOracle struct {
	pool *pgxpool.Pool
}

// NewMembershipOracle returns an oracle backed by the members and memberships tables.
func NewMembershipOracle(pool *pgxpool.Pool) MembershipOracle {
	return &membershipOracle{pool: pool}
}

// GetStatus returns domain.ErrMemberNotFound when the subject is unknown, is not a
// member id, or has no membership.
func (o *membershipOracle) GetStatus(ctx context.Context, subjectID string) (*domain.MembershipReport, error) {
	id, err := uuid.Parse(subjectID)
	if err != nil {
		return nil, domain.ErrMemberNotFound
	}

	const query = `
        SELECT m.id, m.name, m.email, ms.status, ms.expires_at, ms.plan_price
        FROM members m
        JOIN memberships ms ON ms.member_id = m.id
        WHERE m.id = $1`

	var report domain.MembershipReport
	if err := o.pool.QueryRow(ctx, query, id.String()).Scan(
		&report.Member.ID,
		&report.Member.Name,
		&report.Member.Email,
		&report.Membership.Status,
		&report.Membership.ExpiresAt,
		&report.Membership.PlanPrice,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	report.Membership.MemberID = report.Member.ID
	return &report, nil
}

type timeoutOracle struct {
	inner   MembershipOracle
	timeout time.Duration
}

// NewTimeoutOracle bounds every GetStatus call on inner by timeout.
func NewTimeoutOracle(inner MembershipOracle, timeout time.Duration) MembershipOracle {
	return &timeoutOracle{inner: inner, timeout: timeout}
}

func (o *timeoutOracle) GetStatus(ctx context.Context, subjectID string) (*domain.MembershipReport, error) {
	return QueryMembership(ctx, o.inner, subjectID, o.timeout)
}

// QueryMembership runs one membership query bounded by timeout. It returns when the
// deadline passes even if the oracle ignores cancellation; the query is not retried.
// A nil report without an error is treated as domain.ErrMemberNotFound.
func QueryMembership(ctx context.Context, oracle MembershipOracle, subjectID string, timeout time.Duration) (*domain.MembershipReport, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		report *domain.MembershipReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := oracle.GetStatus(ctx, subjectID)
		done <- result{report: report, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err == nil && res.report == nil {
		res.err = domain.ErrMemberNotFound
	}
	return res.report, res.err
}
