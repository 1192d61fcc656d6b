package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/graph"
	"github.com/spec-kit/identity-service/internal/identity"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/repository"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// IdentityHandler exposes resolution, profile, link, and stats endpoints.
type IdentityHandler struct {
	resolver   *identity.Resolver
	assembler  *identity.ProfileAssembler
	store      graph.Store
	audit      repository.AuditLogRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
}

// NewIdentityHandler constructs handler. audit, dispatcher, and metrics may
// be nil.
func NewIdentityHandler(
	resolver *identity.Resolver,
	assembler *identity.ProfileAssembler,
	store graph.Store,
	audit repository.AuditLogRepository,
	dispatcher events.Dispatcher,
	metrics *observability.Metrics,
) *IdentityHandler {
	return &IdentityHandler{
		resolver:   resolver,
		assembler:  assembler,
		store:      store,
		audit:      audit,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// Resolve handles POST /identity/resolve.
func (h *IdentityHandler) Resolve(c *fiber.Ctx) error {
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.IsEmpty() {
		return apperrors.NewValidationError("at least one of identifier, email, name, address required", nil)
	}

	resolved, err := h.resolver.Resolve(c.Context(), identity.Query{
		Identifier: req.Identifier,
		Email:      req.Email,
		Name:       req.Name,
		Address:    req.Address,
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	if resolved == nil {
		return c.JSON(fiber.Map{"data": dto.ResolveResponse{Found: false}})
	}

	return c.JSON(fiber.Map{"data": dto.ResolveResponse{
		Found:       true,
		CanonicalID: resolved.ID,
		Email:       resolved.PrimaryEmail,
		Name:        resolved.PrimaryName,
	}})
}

// Profile handles POST /identity/profile.
func (h *IdentityHandler) Profile(c *fiber.Ctx) error {
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.IsEmpty() {
		return apperrors.NewValidationError("at least one of identifier, email, name, address required", nil)
	}

	profile, err := h.assembler.GetCompleteProfile(c.Context(), identity.Query{
		Identifier: req.Identifier,
		Email:      req.Email,
		Name:       req.Name,
		Address:    req.Address,
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	if profile == nil {
		return apperrors.NewNotFound("customer", nil)
	}
	return c.JSON(fiber.Map{"data": profile})
}

// ListLinks handles GET /identity/:id/links.
func (h *IdentityHandler) ListLinks(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.store.GetIdentity(c.Context(), id); err != nil {
		return apperrors.MapError(err)
	}

	links, err := h.store.ListLinks(c.Context(), id)
	if err != nil {
		return apperrors.MapError(err)
	}

	out := make([]domain.LinkedIdentifier, 0, len(links))
	for _, link := range links {
		out = append(out, domain.LinkedIdentifier{
			Type:       link.IDType,
			Value:      link.IDValue,
			Source:     link.Source,
			Confidence: link.Confidence,
			Verified:   link.Verified,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// AddLink handles POST /identity/:id/links.
func (h *IdentityHandler) AddLink(c *fiber.Ctx) error {
	id := c.Params("id")
	var req dto.AddLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.IDType == "" || req.IDValue == "" {
		return apperrors.NewValidationError("id_type and id_value required", nil)
	}

	idType := domain.IdentifierType(req.IDType)
	switch idType {
	case domain.IdentifierEcommerceID, domain.IdentifierTicketingID, domain.IdentifierEmail,
		domain.IdentifierEmailHash, domain.IdentifierNameHash, domain.IdentifierAddressHash:
	default:
		return apperrors.NewValidationError("unknown id_type", map[string]any{"id_type": req.IDType})
	}
	if idType.IsHashed() && len(req.IDValue) != 64 {
		return apperrors.NewValidationError("hashed identifier values must be 64-character hex digests",
			map[string]any{"id_type": req.IDType})
	}

	if _, err := h.store.GetIdentity(c.Context(), id); err != nil {
		return apperrors.MapError(err)
	}

	confidence := req.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = domain.ConfidenceExact
	}
	source := req.Source
	if source == "" {
		source = "manual"
	}

	err := h.store.Link(c.Context(), domain.IdentityLink{
		IDType:      idType,
		IDValue:     req.IDValue,
		CanonicalID: id,
		Source:      source,
		Confidence:  confidence,
		Verified:    req.Verified,
	})
	if err != nil {
		return apperrors.MapError(err)
	}

	performedBy := "manual"
	if principal, ok := auth.PrincipalFromContext(c); ok && principal.Agent != nil {
		performedBy = principal.Agent.ID
	}
	h.publish(c, events.Event{
		Type:        events.EventIdentityLinked,
		CanonicalID: id,
		PerformedBy: performedBy,
		Payload: events.IdentityLinkedPayload{
			IDType:     idType,
			Source:     source,
			Confidence: confidence,
			Verified:   req.Verified,
		},
	})
	return c.SendStatus(http.StatusCreated)
}

func (h *IdentityHandler) publish(c *fiber.Ctx, event events.Event) {
	if h.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	_ = h.dispatcher.Publish(c.Context(), event)
}

// Stats handles GET /identity/stats. Graph counts come from the store;
// resolution counters from the in-process metrics.
func (h *IdentityHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.Context())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"graph":       stats,
		"resolutions": h.metrics.ResolutionCounts(),
	}})
}

// ProfileByID handles GET /identity/:id/profile.
func (h *IdentityHandler) ProfileByID(c *fiber.Ctx) error {
	profile, err := h.assembler.GetProfileByID(c.Context(), c.Params("id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	if profile == nil {
		return apperrors.NewNotFound("customer", nil)
	}
	return c.JSON(fiber.Map{"data": profile})
}

// AuditLog handles GET /identity/:id/audit.
func (h *IdentityHandler) AuditLog(c *fiber.Ctx) error {
	if h.audit == nil {
		return apperrors.NewNotFound("audit log", nil)
	}
	id := c.Params("id")
	limit := c.QueryInt("limit", 50)

	entries, err := h.audit.ListByIdentity(c.Context(), id, limit)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": entries})
}
