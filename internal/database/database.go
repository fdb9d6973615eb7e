// Package database provides the data access layer for API keys and audit
// logs. Parsed events themselves are never persisted; the parse path is
// stateless apart from the in-memory result cache.
package database

import (
	"context"
	"time"

	"github.com/eventparse/chrono/internal/models"
)

// Store defines the interface for operational persistence.
type Store interface {
	// API Keys
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string, t time.Time) error
	DeleteAPIKey(ctx context.Context, id string) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)

	// Audit logs
	LogRequest(ctx context.Context, log *models.AuditLog) error
	GetAuditLogs(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)

	// Lifecycle
	Close() error
	Migrate() error
}
