// Package client provides a transport-agnostic interface for the tombstone
// service, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"encoding/json"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// Client is the interface that all tomb CLI commands use to communicate
// with the server. It is implemented by HTTPClient (default) and GRPCClient.
type Client interface {
	// Records
	CreateRecord(ctx context.Context, typ, id string, fields json.RawMessage) (*model.Record, error)
	GetRecord(ctx context.Context, key model.Key) (*model.Record, error)
	ListRecords(ctx context.Context, typ string, limit int) ([]*model.Record, error)
	UpdateFields(ctx context.Context, key model.Key, fields json.RawMessage, version int64) (*model.Record, error)

	// Soft delete
	SoftDelete(ctx context.Context, keys ...model.Key) (model.Result, error)
	ResetSoftDelete(ctx context.Context, keys ...model.Key) (model.Result, error)
	HardDeleteIfSoftDeleted(ctx context.Context, keys ...model.Key) (model.Result, error)
	ListSoftDeleted(ctx context.Context, typ string, limit int) ([]*model.Record, error)

	// Registry
	Relationships(ctx context.Context) ([]model.Relationship, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// Options configure a client connection.
type Options struct {
	// Token is sent as a Bearer token on every call when non-empty.
	Token string
	// TenantID scopes every call to one tenant when non-empty.
	TenantID string
}
