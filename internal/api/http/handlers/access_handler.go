package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gymcore/access-service/internal/api/dto"
	"github.com/gymcore/access-service/internal/auth"
	"github.com/gymcore/access-service/internal/service"
	apperrors "github.com/gymcore/access-service/pkg/util/errorutil"
)

// AccessHandler exposes credential issuance, validation and the access log.
type AccessHandler struct {
	access *service.AccessService
	now    func() time.Time
}

// NewAccessHandler constructs handler.
func NewAccessHandler(accessService *service.AccessService) *AccessHandler {
	return &AccessHandler{access: accessService, now: time.Now}
}

// Credential handles GET /access/credential.
func (h *AccessHandler) Credential(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Member == nil {
		return apperrors.NewForbidden("member session required")
	}

	view, err := h.access.IssueCredential(c.UserContext(), principal.Member.ID)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(dto.NewCredentialResponse(view))
}

// Validate handles POST /access/validate. Both outcomes are returned with 200.
func (h *AccessHandler) Validate(c *fiber.Ctx) error {
	var req dto.ValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return apperrors.NewForbidden("staff session required")
	}

	decision, err := h.access.Validate(c.UserContext(), service.ValidateInput{
		Raw:       req.RawCredentialString,
		StationID: strings.TrimSpace(req.StationID),
		StaffID:   principal.Staff.ID,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewDecisionResponse(decision))
}

// ManualEntry handles POST /access/manual-entry.
func (h *AccessHandler) ManualEntry(c *fiber.Ctx) error {
	var req dto.ManualEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return apperrors.NewForbidden("staff session required")
	}

	decision, err := h.access.ManualEntry(c.UserContext(), service.ManualEntryInput{
		MemberID:     req.MemberID,
		Reason:       req.Reason,
		Notes:        req.Notes,
		AuthorizedBy: principal.Staff.ID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewDecisionResponse(decision))
}

// Records handles GET /access/records.
func (h *AccessHandler) Records(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return apperrors.NewValidationError("invalid limit", map[string]any{"limit": "must be positive"})
	}

	records, err := h.access.ListRecent(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRecordResponses(records)})
}

// Stats handles GET /access/stats. Without ?since= it covers the current day.
func (h *AccessHandler) Stats(c *fiber.Ctx) error {
	since := startOfDay(h.now())
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.NewValidationError("invalid since", map[string]any{"since": "must be an RFC3339 timestamp"})
		}
		since = parsed
	}

	stats, err := h.access.Stats(c.UserContext(), since)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatsResponse(stats)})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
