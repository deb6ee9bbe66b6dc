// Package api holds the request and response types shared by the HTTP and
// gRPC transports, and the hand-declared gRPC service they are served on.
package api

import (
	"encoding/json"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// KeysRequest names the roots of a soft-delete, reset or purge.
type KeysRequest struct {
	Keys []model.Key `json:"keys"`
}

// CreateRecordRequest holds parameters for creating a record. An empty ID
// is generated by the server.
type CreateRecordRequest struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Fields json.RawMessage `json:"fields,omitempty"`
}

// GetRecordRequest identifies a visible record.
type GetRecordRequest struct {
	Key model.Key `json:"key"`
}

// UpdateFieldsRequest replaces a record's fields. A non-zero Version must
// match the stored version.
type UpdateFieldsRequest struct {
	Key     model.Key       `json:"key"`
	Fields  json.RawMessage `json:"fields"`
	Version int64           `json:"version,omitempty"`
}

// ListRequest lists records of one type. Limit of zero means no limit.
type ListRequest struct {
	Type  string `json:"type"`
	Limit int    `json:"limit,omitempty"`
}

// ListResponse is the response from ListRecords and ListSoftDeleted.
type ListResponse struct {
	Records []*model.Record `json:"records"`
}

// RelationshipsRequest is the (empty) request for the registry dump.
type RelationshipsRequest struct{}

// RelationshipsResponse lists every registered cascade edge.
type RelationshipsResponse struct {
	Relationships []model.Relationship `json:"relationships"`
}

// HealthRequest is the (empty) health check request.
type HealthRequest struct{}

// HealthResponse reports service health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of a failed HTTP request that carries no Result.
type ErrorResponse struct {
	Error string `json:"error"`
}
