package domain

import "time"

// AccessOutcome is the final state of a validation attempt.
type AccessOutcome string

const (
	AccessGranted AccessOutcome = "GRANTED"
	AccessDenied  AccessOutcome = "DENIED"
)

// DenialReason is the user-facing reason attached to a DENIED outcome.
type DenialReason string

const (
	ReasonInvalidCode              DenialReason = "INVALID_CODE"
	ReasonCodeExpired              DenialReason = "CODE_EXPIRED"
	ReasonCodeAlreadyUsed          DenialReason = "CODE_ALREADY_USED"
	ReasonUnknownMember            DenialReason = "UNKNOWN_MEMBER"
	ReasonMembershipExpired        DenialReason = "MEMBERSHIP_EXPIRED"
	ReasonMembershipSuspended      DenialReason = "MEMBERSHIP_SUSPENDED"
	ReasonMembershipPendingPayment DenialReason = "MEMBERSHIP_PENDING_PAYMENT"
	ReasonOracleUnavailable        DenialReason = "ORACLE_UNAVAILABLE"
)

// DenialReasonForStatus maps a non-active membership status to its denial reason.
func DenialReasonForStatus(status MembershipStatus) DenialReason {
	switch status {
	case MembershipSuspended:
		return ReasonMembershipSuspended
	case MembershipPendingPayment:
		return ReasonMembershipPendingPayment
	default:
		return ReasonMembershipExpired
	}
}

// AccessMethod tells how an entry was attempted.
type AccessMethod string

const (
	AccessMethodQR     AccessMethod = "QR"
	AccessMethodManual AccessMethod = "MANUAL"
)

// ManualEntryReason enumerates why reception let a member in without a code.
type ManualEntryReason string

const (
	ManualReasonQRNotWorking       ManualEntryReason = "QR_NOT_WORKING"
	ManualReasonPhoneDead          ManualEntryReason = "PHONE_DEAD"
	ManualReasonTechnicalIssues    ManualEntryReason = "TECHNICAL_ISSUES"
	ManualReasonNewMemberWithoutQR ManualEntryReason = "NEW_MEMBER_WITHOUT_QR"
	ManualReasonEmergency          ManualEntryReason = "EMERGENCY"
	ManualReasonOther              ManualEntryReason = "OTHER"
)

// Valid reports whether r is a known manual entry reason.
func (r ManualEntryReason) Valid() bool {
	switch r {
	case ManualReasonQRNotWorking, ManualReasonPhoneDead, ManualReasonTechnicalIssues,
		ManualReasonNewMemberWithoutQR, ManualReasonEmergency, ManualReasonOther:
		return true
	}
	return false
}

// ValidationRecord is one immutable access log entry.
type ValidationRecord struct {
	ID           string
	SubjectID    string
	Nonce        string
	AttemptedAt  time.Time
	Outcome      AccessOutcome
	Reason       DenialReason
	Method       AccessMethod
	StationID    string
	StaffID      string
	ManualReason ManualEntryReason
	Notes        string
}

// SubjectView is the member data shown to reception after a decision.
type SubjectView struct {
	ID               string
	Name             string
	Email            string
	MembershipStatus MembershipStatus
	ExpiresAt        *time.Time
}

// NewSubjectView builds the reception view of an oracle report.
func NewSubjectView(report *MembershipReport) *SubjectView {
	if report == nil {
		return nil
	}
	expiresAt := report.Membership.ExpiresAt
	return &SubjectView{
		ID:               report.Member.ID,
		Name:             report.Member.Name,
		Email:            report.Member.Email,
		MembershipStatus: report.Membership.Status,
		ExpiresAt:        &expiresAt,
	}
}

// Decision is the result of validating a presented credential.
type Decision struct {
	Access  AccessOutcome
	Reason  DenialReason
	Subject *SubjectView
	Record  ValidationRecord
}

// Granted reports whether the decision lets the member in.
func (d *Decision) Granted() bool {
	return d != nil && d.Access == AccessGranted
}

// AccessStats aggregates access log entries over a period.
type AccessStats struct {
	Since    time.Time
	Total    int64
	Granted  int64
	Denied   int64
	Manual   int64
	ByReason map[DenialReason]int64
}

// Add folds one record into the aggregate.
func (s *AccessStats) Add(rec ValidationRecord) {
	if s.ByReason == nil {
		s.ByReason = make(map[DenialReason]int64)
	}
	s.Total++
	if rec.Method == AccessMethodManual {
		s.Manual++
	}
	if rec.Outcome == AccessGranted {
		s.Granted++
		return
	}
	s.Denied++
	s.ByReason[rec.Reason]++
}
