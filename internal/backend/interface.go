package backend

import (
	"context"

	"worklog/internal/core"
	"worklog/internal/services"
)

// Store is everything the services and the CLI need from persistence.
type Store interface {
	core.RuleStore
	core.RateStore
	core.EntryReader
	core.ProjectReader

	SaveProject(ctx context.Context, p core.Project) error
	SaveEntries(ctx context.Context, entries []core.TimeEntry) error
	Ping(ctx context.Context) error
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional rule event publisher and a
// cleanup function releasing both.
type BackendResult struct {
	Store     Store
	Publisher services.RuleEventPublisher // nil when AMQP is not configured
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Rule change events, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
