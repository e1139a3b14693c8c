package dto

import (
	"time"

	"github.com/gymcore/access-service/internal/domain"
	"github.com/gymcore/access-service/internal/service"
)

// CredentialResponse is what a member's device renders and refreshes.
type CredentialResponse struct {
	EncodedCredential      string    `json:"encodedCredential"`
	IssuedAt               time.Time `json:"issuedAt"`
	ExpiresAt              time.Time `json:"expiresAt"`
	QRCode                 string    `json:"qrCode"`
	RefreshIntervalSeconds int       `json:"refreshIntervalSeconds"`
}

// ValidateRequest is one scan from a reception station. StationID only labels the
// device; the operator is taken from the session.
type ValidateRequest struct {
	RawCredentialString string `json:"rawCredentialString"`
	StationID           string `json:"stationId,omitempty"`
}

// ManualEntryRequest registers an entry without a code.
type ManualEntryRequest struct {
	MemberID string                   `json:"memberId"`
	Reason   domain.ManualEntryReason `json:"reason"`
	Notes    string                   `json:"notes,omitempty"`
}

// SubjectResponse is the member data shown after a decision. Name and email are empty
// when the subject could not be identified.
type SubjectResponse struct {
	ID               string                  `json:"id,omitempty"`
	Name             string                  `json:"name"`
	Email            string                  `json:"email"`
	MembershipStatus domain.MembershipStatus `json:"membershipStatus,omitempty"`
	ExpiresAt        *time.Time              `json:"expiresAt,omitempty"`
}

// DecisionResponse is returned for validations and manual entries.
type DecisionResponse struct {
	Access   domain.AccessOutcome `json:"access"`
	Reason   domain.DenialReason  `json:"reason,omitempty"`
	Subject  SubjectResponse      `json:"subject"`
	RecordID string               `json:"recordId"`
}

// RecordResponse is one access log entry.
type RecordResponse struct {
	ID           string                   `json:"id"`
	SubjectID    string                   `json:"subjectId,omitempty"`
	AttemptedAt  time.Time                `json:"attemptedAt"`
	Outcome      domain.AccessOutcome     `json:"outcome"`
	Reason       domain.DenialReason      `json:"reason,omitempty"`
	Method       domain.AccessMethod      `json:"method"`
	StationID    string                   `json:"stationId,omitempty"`
	StaffID      string                   `json:"staffId,omitempty"`
	ManualReason domain.ManualEntryReason `json:"manualReason,omitempty"`
	Notes        string                   `json:"notes,omitempty"`
}

// StatsResponse aggregates the access log.
type StatsResponse struct {
	Since    time.Time                     `json:"since"`
	Total    int64                         `json:"total"`
	Granted  int64                         `json:"granted"`
	Denied   int64                         `json:"denied"`
	Manual   int64                         `json:"manual"`
	ByReason map[domain.DenialReason]int64 `json:"byReason"`
}

// NewCredentialResponse maps an issued credential.
func NewCredentialResponse(view *service.CredentialView) CredentialResponse {
	return CredentialResponse{
		EncodedCredential:      view.Credential.Encoded,
		IssuedAt:               view.Credential.IssuedAt,
		ExpiresAt:              view.Credential.ExpiresAt,
		QRCode:                 view.QRCode,
		RefreshIntervalSeconds: int(view.RefreshInterval / time.Second),
	}
}

// NewDecisionResponse maps a validator or manual entry decision.
func NewDecisionResponse(decision *domain.Decision) DecisionResponse {
	resp := DecisionResponse{
		Access:   decision.Access,
		Reason:   decision.Reason,
		RecordID: decision.Record.ID,
	}
	if s := decision.Subject; s != nil {
		resp.Subject = SubjectResponse{
			ID:               s.ID,
			Name:             s.Name,
			Email:            s.Email,
			MembershipStatus: s.MembershipStatus,
			ExpiresAt:        s.ExpiresAt,
		}
	}
	return resp
}

// NewRecordResponses maps access log entries.
func NewRecordResponses(records []domain.ValidationRecord) []RecordResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, RecordResponse{
			ID:           rec.ID,
			SubjectID:    rec.SubjectID,
			AttemptedAt:  rec.AttemptedAt,
			Outcome:      rec.Outcome,
			Reason:       rec.Reason,
			Method:       rec.Method,
			StationID:    rec.StationID,
			StaffID:      rec.StaffID,
			ManualReason: rec.ManualReason,
			Notes:        rec.Notes,
		})
	}
	return out
}

// NewStatsResponse maps access statistics.
func NewStatsResponse(stats domain.AccessStats) StatsResponse {
	byReason := stats.ByReason
	if byReason == nil {
		byReason = map[domain.DenialReason]int64{}
	}
	return StatsResponse{
		Since:    stats.Since,
		Total:    stats.Total,
		Granted:  stats.Granted,
		Denied:   stats.Denied,
		Manual:   stats.Manual,
		ByReason: byReason,
	}
}
