package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gymcore/access-service/internal/api/dto"
	"github.com/gymcore/access-service/internal/domain"
	"github.com/gymcore/access-service/internal/service"
)

// AuthHandler exposes registration and login endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// RegisterMember handles POST /auth/members/register.
func (h *AuthHandler) RegisterMember(c *fiber.Ctx) error {
	var req dto.MemberRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	member, session, err := h.auth.RegisterMember(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"member": dto.AccountResponse{ID: member.ID, Name: member.Name, Email: member.Email, Role: domain.RoleClient},
			"auth":   authResponse(session),
		},
	})
}

// LoginMember handles POST /auth/members/login.
func (h *AuthHandler) LoginMember(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	member, session, err := h.auth.LoginMember(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"member": dto.AccountResponse{ID: member.ID, Name: member.Name, Email: member.Email, Role: domain.RoleClient},
			"auth":   authResponse(session),
		},
	})
}

// LoginStaff handles POST /auth/staff/login.
func (h *AuthHandler) LoginStaff(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	staff, session, err := h.auth.LoginStaff(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"staff": dto.AccountResponse{ID: staff.ID, Name: staff.Name, Email: staff.Email, Role: staff.Role},
			"auth":  authResponse(session),
		},
	})
}

// CreateStaff handles POST /admin/staff.
func (h *AuthHandler) CreateStaff(c *fiber.Ctx) error {
	var req dto.StaffCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	staff, err := h.auth.CreateStaff(c.UserContext(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.AccountResponse{ID: staff.ID, Name: staff.Name, Email: staff.Email, Role: staff.Role},
	})
}

func authResponse(session *service.Session) dto.AuthResponse {
	return dto.AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, Role: session.Role}
}
