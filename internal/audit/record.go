package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/autobid/autobid-admin/internal/platform/db"
)

// ErrInvalidEntry is returned when a record misses a required field.
var ErrInvalidEntry = errors.New("audit: entry requires admin_id, action, resource_type and resource_id")

// Entry is an append-only record in admin_audit_log.
type Entry struct {
	AdminID      string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}

const insertEntrySQL = `INSERT INTO admin_audit_log (admin_id, action, resource_type, resource_id, details)
VALUES ($1, $2, $3, $4, $5)`

// Append writes e using q, which is either the pool or an open transaction.
func Append(ctx context.Context, q db.DBTX, e Entry) error {
	if strings.TrimSpace(e.AdminID) == "" || e.Action == "" || e.ResourceType == "" || e.ResourceID == "" {
		return ErrInvalidEntry
	}
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("audit: encode details: %w", err)
	}
	if _, err := q.Exec(ctx, insertEntrySQL, e.AdminID, e.Action, e.ResourceType, e.ResourceID, payload); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}
