// ABOUTME: Audit store interface and data types for dockgate persistence
// ABOUTME: Defines AuditEntry, AuditFilter and the actions the gateway records

package store

import (
	"context"
	"time"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditLoginSuccess     AuditAction = "login_success"
	AuditLoginFailed      AuditAction = "login_failed"
	AuditRegister         AuditAction = "register"
	AuditContainerRestart AuditAction = "container_restart"
	AuditContainerStop    AuditAction = "container_stop"
	AuditContainerRemove  AuditAction = "container_remove"
	AuditImagePull        AuditAction = "image_pull"
	AuditImageRemove      AuditAction = "image_remove"
)

// ValidAuditActions lists all valid audit actions.
var ValidAuditActions = []AuditAction{
	AuditLoginSuccess,
	AuditLoginFailed,
	AuditRegister,
	AuditContainerRestart,
	AuditContainerStop,
	AuditContainerRemove,
	AuditImagePull,
	AuditImageRemove,
}

// Valid reports whether a is one of ValidAuditActions.
func (a AuditAction) Valid() bool {
	for _, v := range ValidAuditActions {
		if a == v {
			return true
		}
	}
	return false
}

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID         string         `json:"id"`          // UUID v4
	Actor      string         `json:"actor"`       // username, or the attempted one for failed logins
	Action     AuditAction    `json:"action"`      // what was done
	TargetType string         `json:"target_type"` // "user", "container", "image"
	TargetID   string         `json:"target_id"`   // node-qualified for runtime resources
	RemoteAddr string         `json:"remote_addr,omitempty"`
	Timestamp  time.Time      `json:"ts"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since      *time.Time
	Until      *time.Time
	Actor      *string
	Action     *AuditAction
	TargetType *string
	TargetID   *string
	Limit      int // max results (default 100, max 1000)
}

// AuditStore is the persistence surface the gateway writes audit entries to.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

var _ AuditStore = (*SQLiteStore)(nil)
