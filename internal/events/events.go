package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// Event topic constants
const (
	TopicSoftDeleted = "tombstone.record.soft_deleted"
	TopicRestored    = "tombstone.record.restored"
	TopicPurged      = "tombstone.record.purged"

	// TopicAll matches every record event.
	TopicAll = "tombstone.record.>"
)

// RecordsChanged is published once per committed soft-delete operation.
// Keys are the requested roots; Affected is every record the commit touched.
type RecordsChanged struct {
	Keys     []model.Key `json:"keys"`
	Affected []model.Key `json:"affected"`
	TenantID string      `json:"tenant_id,omitempty"`
	At       time.Time   `json:"at"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
