package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/service"
)

// AgentsHandler exposes auth endpoints for API agents.
type AgentsHandler struct {
	agents *service.AgentService
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(agentService *service.AgentService) *AgentsHandler {
	return &AgentsHandler{agents: agentService}
}

// Register handles POST /auth/agents/register.
func (h *AgentsHandler) Register(c *fiber.Ctx) error {
	var req dto.AgentRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return fiber.NewError(http.StatusBadRequest, "name, email, password required")
	}

	agent, token, exp, err := h.agents.Register(c.Context(), req.Name, req.Email, req.Password, domain.AgentRole(req.Role))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"agent": fiber.Map{
				"id":    agent.ID,
				"name":  agent.Name,
				"email": agent.Email,
				"role":  agent.Role,
			},
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Me handles GET /auth/agents/me.
func (h *AgentsHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	agent := principal.Agent
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"id":     agent.ID,
			"name":   agent.Name,
			"email":  agent.Email,
			"role":   agent.Role,
			"active": agent.Active,
		},
	})
}

// Login handles POST /auth/agents/login.
func (h *AgentsHandler) Login(c *fiber.Ctx) error {
	var req dto.AgentLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	agent, token, exp, err := h.agents.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"agent": fiber.Map{
				"id":    agent.ID,
				"name":  agent.Name,
				"email": agent.Email,
				"role":  agent.Role,
			},
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}
