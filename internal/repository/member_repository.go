package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gymcore/access-service/internal/domain"
)

// MemberRepository defines persistence access for gym members.
type MemberRepository interface {
	Create(ctx context.Context, member *domain.Member, membership *domain.Membership) error
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	GetByEmail(ctx context.Context, email string) (*domain.Member, error)
}

type memberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository returns a Postgres-backed implementation.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepository{pool: pool}
}

// Create inserts the member and its initial membership in one transaction.
func (r *memberRepository) Create(ctx context.Context, member *domain.Member, membership *domain.Membership) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertMember = `
        INSERT INTO members (name, email, password_hash)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, insertMember,
		member.Name,
		member.Email,
		member.PasswordHash,
	).Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt); err != nil {
		return err
	}

	const insertMembership = `
        INSERT INTO memberships (member_id, status, expires_at, plan_price)
        VALUES ($1, $2, $3, $4)`
	membership.MemberID = member.ID
	if _, err := tx.Exec(ctx, insertMembership,
		membership.MemberID,
		membership.Status,
		membership.ExpiresAt,
		membership.PlanPrice,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	const query = `
        SELECT id, name, email, password_hash, created_at, updated_at
        FROM members WHERE id=$1`
	return r.scanOne(ctx, query, id)
}

func (r *memberRepository) GetByEmail(ctx context.Context, email string) (*domain.Member, error) {
	const query = `
        SELECT id, name, email, password_hash, created_at, updated_at
        FROM members WHERE email=$1`
	return r.scanOne(ctx, query, email)
}

func (r *memberRepository) scanOne(ctx context.Context, query string, arg string) (*domain.Member, error) {
	var member domain.Member
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&member.ID,
		&member.Name,
		&member.Email,
		&member.PasswordHash,
		&member.CreatedAt,
		&member.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}
