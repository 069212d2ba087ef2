// Package pos implements the point-of-sale feature logic on top of the local
// store: catalog, contacts and ledgers, fees, users, sales, held carts,
// reports and backups. Every write that must reach the backend goes through
// a recorded store write so the record and its outbox entry commit together.
package pos

import (
	"fmt"
	"time"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
)

// ValidationError reports input rejected before anything was written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Service runs feature operations against a store.
type Service struct {
	store *db.DB
	now   func() time.Time
}

// New returns a Service over store.
func New(store *db.DB) *Service {
	return &Service{store: store, now: time.Now}
}

// Store returns the underlying store.
func (s *Service) Store() *db.DB {
	return s.store
}

func (s *Service) stamp() string {
	return models.FormatTime(s.now())
}

func cols(c ...models.Collection) []models.Collection {
	return c
}
