package domain

import "time"

// AgentRole enumerates access levels for API agents.
type AgentRole string

const (
	AgentRoleAdmin AgentRole = "ADMIN"
	AgentRoleAgent AgentRole = "AGENT"
)

// Agent is a support operator or service account calling the identity API.
type Agent struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         AgentRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
