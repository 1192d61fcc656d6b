// Package service coordinates agent account flows above the repositories.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

// AgentService coordinates registration and login flows for API agents.
type AgentService struct {
	agents     repository.AgentRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AgentDependencies encapsulates repo requirements for the agent service.
type AgentDependencies struct {
	AgentRepo repository.AgentRepository
}

// NewAgentService builds the service.
func NewAgentService(cfg config.Config, deps AgentDependencies) *AgentService {
	return &AgentService{
		agents:     deps.AgentRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Register creates a new agent account.
func (s *AgentService) Register(ctx context.Context, name, email, password string, role domain.AgentRole) (*domain.Agent, string, time.Time, error) {
	if _, err := s.agents.GetByEmail(ctx, email); err == nil {
		return nil, "", time.Time{}, errors.New("email already registered")
	} else if err != nil && err != pgx.ErrNoRows {
		return nil, "", time.Time{}, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	if role != domain.AgentRoleAdmin {
		role = domain.AgentRoleAgent
	}
	agent := &domain.Agent{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, "", time.Time{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(agent.ID, agent.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return agent, token, exp, nil
}

// Login authenticates an agent and returns a role-bearing token.
func (s *AgentService) Login(ctx context.Context, email, password string) (*domain.Agent, string, time.Time, error) {
	agent, err := s.agents.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if !agent.Active {
		return nil, "", time.Time{}, errors.New("agent inactive")
	}
	if err := auth.ComparePassword(agent.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, errors.New("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(agent.ID, agent.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return agent, token, exp, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AgentService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
