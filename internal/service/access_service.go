package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gymcore/access-service/internal/config"
	"github.com/gymcore/access-service/internal/credential"
	"github.com/gymcore/access-service/internal/domain"
	"github.com/gymcore/access-service/internal/events"
	"github.com/gymcore/access-service/internal/observability"
	"github.com/gymcore/access-service/internal/repository"
	apperrors "github.com/gymcore/access-service/pkg/util/errorutil"
)

// recordWriteTimeout bounds access log writes, which outlive a cancelled request.
const recordWriteTimeout = 5 * time.Second

// ValidateInput is one scan submitted by a reception station. StaffID is the
// authenticated operator; StationID is an optional device label.
type ValidateInput struct {
	Raw       string
	StationID string
	StaffID   string
}

// ManualEntryInput registers an entry without a credential.
type ManualEntryInput struct {
	MemberID     string
	Reason       domain.ManualEntryReason
	Notes        string
	AuthorizedBy string
}

// CredentialView is returned to a member's device.
type CredentialView struct {
	Credential      *domain.IssuedCredential
	QRCode          string
	RefreshInterval time.Duration
}

// AccessDependencies encapsulates collaborators of the access service.
type AccessDependencies struct {
	Codec      *credential.Codec
	Issuer     *credential.Issuer
	Oracle     repository.MembershipOracle
	Records    repository.AccessRecordRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// AccessOption customizes an AccessService.
type AccessOption func(*AccessService)

// WithAccessClock overrides the server clock used for expiry checks.
func WithAccessClock(now func() time.Time) AccessOption {
	return func(s *AccessService) { s.now = now }
}

// WithOracleTimeout overrides the configured membership query timeout.
func WithOracleTimeout(d time.Duration) AccessOption {
	return func(s *AccessService) { s.oracleTimeout = d }
}

// AccessService issues credentials and decides entry for presented ones.
type AccessService struct {
	codec         *credential.Codec
	issuer        *credential.Issuer
	oracle        repository.MembershipOracle
	records       repository.AccessRecordRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	window        time.Duration
	oracleTimeout time.Duration
	qrSize        int
	now           func() time.Time
}

// NewAccessService builds the service.
func NewAccessService(cfg config.AccessConfig, deps AccessDependencies, opts ...AccessOption) *AccessService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	window := cfg.ValidityWindow()
	if window <= 0 {
		window = domain.DefaultValidityWindow
	}
	s := &AccessService{
		codec:         deps.Codec,
		issuer:        deps.Issuer,
		oracle:        deps.Oracle,
		records:       deps.Records,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		metrics:       deps.Metrics,
		window:        window,
		oracleTimeout: cfg.OracleTimeout(),
		qrSize:        cfg.QRCodeSize,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueCredential mints a credential for the authenticated member and renders its QR code.
func (s *AccessService) IssueCredential(ctx context.Context, subjectID string) (*CredentialView, error) {
	issued, err := s.issuer.Issue(ctx, subjectID)
	if err != nil {
		if errors.Is(err, credential.ErrSubjectNotFound) {
			return nil, apperrors.NewDomainError("SUBJECT_NOT_FOUND", "subject is not a known member", http.StatusUnauthorized, nil)
		}
		return nil, apperrors.NewUnavailable("membership system unavailable", err)
	}

	qr, err := credential.RenderDataURL(issued.Encoded, s.qrSize)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.metrics.RecordIssued()
	s.logger.Debug("credential issued",
		zap.String("subject_id", subjectID),
		zap.Time("expires_at", issued.ExpiresAt))

	return &CredentialView{
		Credential:      issued,
		QRCode:          qr,
		RefreshInterval: s.issuer.Window(),
	}, nil
}

// Validate decides whether a presented credential grants entry. Checks run in a fixed
// order and stop at the first failure: decode, expiry, replay, membership. Exactly one
// record is appended per call. An error is returned only when the access log cannot be
// read or written; no grant is made in that case.
func (s *AccessService) Validate(ctx context.Context, in ValidateInput) (*domain.Decision, error) {
	rec := domain.ValidationRecord{
		ID:          uuid.NewString(),
		AttemptedAt: s.now().UTC(),
		Method:      domain.AccessMethodQR,
		StationID:   in.StationID,
		StaffID:     in.StaffID,
	}

	cred, err := s.codec.Decode(strings.TrimSpace(in.Raw))
	if err != nil {
		s.logger.Debug("credential rejected", zap.Error(err))
		return s.deny(ctx, rec, domain.ReasonInvalidCode, nil)
	}
	rec.SubjectID = cred.SubjectID
	rec.Nonce = cred.Nonce

	if rec.AttemptedAt.After(cred.ExpiresAt(s.window)) {
		return s.deny(ctx, rec, domain.ReasonCodeExpired, nil)
	}

	used, err := s.records.HasGrant(ctx, cred.Nonce)
	if err != nil {
		return nil, s.storageFailure("replay lookup", rec, err)
	}
	if used {
		return s.deny(ctx, rec, domain.ReasonCodeAlreadyUsed, nil)
	}

	report, err := s.queryOracle(ctx, cred.SubjectID)
	switch {
	case errors.Is(err, domain.ErrMemberNotFound):
		return s.deny(ctx, rec, domain.ReasonUnknownMember, nil)
	case err != nil:
		s.logger.Warn("membership oracle unavailable",
			zap.String("subject_id", cred.SubjectID),
			zap.Error(err))
		return s.deny(ctx, rec, domain.ReasonOracleUnavailable, nil)
	}

	if report.Membership.Status != domain.MembershipActive {
		return s.deny(ctx, rec, domain.DenialReasonForStatus(report.Membership.Status), report)
	}
	if !report.Membership.GrantsAccessAt(rec.AttemptedAt) {
		return s.deny(ctx, rec, domain.ReasonMembershipExpired, report)
	}

	return s.grant(ctx, rec, report)
}

// ManualEntry records an entry authorized by staff without a credential. The member must
// exist; membership state is reported to the caller but not enforced.
func (s *AccessService) ManualEntry(ctx context.Context, in ManualEntryInput) (*domain.Decision, error) {
	details := map[string]any{}
	if strings.TrimSpace(in.MemberID) == "" {
		details["memberId"] = "required"
	}
	if !in.Reason.Valid() {
		details["reason"] = "must be one of QR_NOT_WORKING, PHONE_DEAD, TECHNICAL_ISSUES, NEW_MEMBER_WITHOUT_QR, EMERGENCY, OTHER"
	}
	if in.Reason == domain.ManualReasonOther && strings.TrimSpace(in.Notes) == "" {
		details["notes"] = "required when reason is OTHER"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid manual entry", details)
	}

	report, err := s.queryOracle(ctx, in.MemberID)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return nil, apperrors.NewNotFound("member", map[string]any{"memberId": in.MemberID})
		}
		return nil, apperrors.NewUnavailable("membership system unavailable", err)
	}

	rec := domain.ValidationRecord{
		ID:           uuid.NewString(),
		SubjectID:    report.Member.ID,
		AttemptedAt:  s.now().UTC(),
		Outcome:      domain.AccessGranted,
		Method:       domain.AccessMethodManual,
		StaffID:      in.AuthorizedBy,
		ManualReason: in.Reason,
		Notes:        strings.TrimSpace(in.Notes),
	}
	if err := s.append(ctx, &rec); err != nil {
		return nil, s.storageFailure("manual entry", rec, err)
	}

	s.metrics.RecordValidation(string(domain.AccessGranted), "")
	s.logger.Info("manual entry",
		zap.String("record_id", rec.ID),
		zap.String("subject_id", rec.SubjectID),
		zap.String("authorized_by", in.AuthorizedBy),
		zap.String("reason", string(in.Reason)))
	s.publish(ctx, events.Event{
		Type:      events.EventManualEntry,
		SubjectID: rec.SubjectID,
		Actor:     events.Actor{Type: domain.SubjectTypeStaff, StaffID: in.AuthorizedBy},
		Payload: events.ManualEntryPayload{
			RecordID:         rec.ID,
			Reason:           rec.ManualReason,
			Notes:            rec.Notes,
			MembershipStatus: report.Membership.Status,
		},
	})

	return &domain.Decision{
		Access:  domain.AccessGranted,
		Subject: domain.NewSubjectView(report),
		Record:  rec,
	}, nil
}

// ListRecent returns the newest access log entries.
func (s *AccessService) ListRecent(ctx context.Context, limit int) ([]domain.ValidationRecord, error) {
	records, err := s.records.ListRecent(ctx, repository.RecordFilter{Limit: limit})
	if err != nil {
		return nil, apperrors.NewUnavailable("access log unavailable", err)
	}
	return records, nil
}

// Stats aggregates the access log since the given time.
func (s *AccessService) Stats(ctx context.Context, since time.Time) (domain.AccessStats, error) {
	stats, err := s.records.Stats(ctx, since)
	if err != nil {
		return stats, apperrors.NewUnavailable("access log unavailable", err)
	}
	return stats, nil
}

// queryOracle runs one bounded membership query and records its latency.
func (s *AccessService) queryOracle(ctx context.Context, subjectID string) (*domain.MembershipReport, error) {
	start := time.Now()
	report, err := repository.QueryMembership(ctx, s.oracle, subjectID, s.oracleTimeout)

	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrMemberNotFound):
		outcome = "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	s.metrics.ObserveOracle(outcome, time.Since(start))
	return report, err
}

func (s *AccessService) grant(ctx context.Context, rec domain.ValidationRecord, report *domain.MembershipReport) (*domain.Decision, error) {
	rec.Outcome = domain.AccessGranted
	err := s.append(ctx, &rec)
	if errors.Is(err, repository.ErrAlreadyGranted) {
		// a concurrent validator claimed the nonce between the replay check and this insert
		return s.deny(ctx, rec, domain.ReasonCodeAlreadyUsed, nil)
	}
	if err != nil {
		return nil, s.storageFailure("grant", rec, err)
	}
	return s.decide(ctx, rec, report), nil
}

func (s *AccessService) deny(ctx context.Context, rec domain.ValidationRecord, reason domain.DenialReason, report *domain.MembershipReport) (*domain.Decision, error) {
	rec.Outcome = domain.AccessDenied
	rec.Reason = reason
	if err := s.append(ctx, &rec); err != nil {
		return nil, s.storageFailure("deny", rec, err)
	}
	return s.decide(ctx, rec, report), nil
}

func (s *AccessService) decide(ctx context.Context, rec domain.ValidationRecord, report *domain.MembershipReport) *domain.Decision {
	decision := &domain.Decision{
		Access:  rec.Outcome,
		Reason:  rec.Reason,
		Subject: domain.NewSubjectView(report),
		Record:  rec,
	}

	s.metrics.RecordValidation(string(rec.Outcome), string(rec.Reason))
	s.logger.Info("access decision",
		zap.String("record_id", rec.ID),
		zap.String("subject_id", rec.SubjectID),
		zap.String("staff_id", rec.StaffID),
		zap.String("station_id", rec.StationID),
		zap.String("outcome", string(rec.Outcome)),
		zap.String("reason", string(rec.Reason)))

	eventType := events.EventAccessGranted
	if rec.Outcome == domain.AccessDenied {
		eventType = events.EventAccessDenied
	}
	payload := events.AccessDecisionPayload{
		RecordID:  rec.ID,
		Outcome:   rec.Outcome,
		Reason:    rec.Reason,
		StationID: rec.StationID,
		StaffID:   rec.StaffID,
	}
	if report != nil {
		payload.MembershipStatus = report.Membership.Status
	}
	s.publish(ctx, events.Event{
		Type:      eventType,
		SubjectID: rec.SubjectID,
		Actor:     events.Actor{Type: domain.SubjectTypeStaff, StaffID: rec.StaffID},
		Payload:   payload,
	})
	return decision
}

// append writes the record even if the request context is already cancelled.
func (s *AccessService) append(ctx context.Context, rec *domain.ValidationRecord) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordWriteTimeout)
	defer cancel()
	return s.records.Append(writeCtx, rec)
}

func (s *AccessService) storageFailure(op string, rec domain.ValidationRecord, err error) error {
	s.logger.Error("access log unavailable",
		zap.String("op", op),
		zap.String("record_id", rec.ID),
		zap.String("subject_id", rec.SubjectID),
		zap.Error(err))
	return apperrors.NewUnavailable("access log unavailable", err)
}

func (s *AccessService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.now().UTC()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
