package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/alfredjeanlab/tombstone/internal/api"
	"github.com/alfredjeanlab/tombstone/internal/idgen"
	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/softdelete"
	"github.com/alfredjeanlab/tombstone/internal/store"
	"github.com/alfredjeanlab/tombstone/internal/tenancy"
)

// maxListLimit caps list responses that do not ask for a limit.
const maxListLimit = 1000

// Server serves the tombstone API over HTTP and gRPC. Both transports call
// the same methods; the gRPC service is Server itself.
type Server struct {
	svc    *softdelete.Service
	store  store.Store
	hub    *EventHub
	logger *slog.Logger
}

// Compile-time check that Server implements the gRPC service.
var _ api.TombstoneServer = (*Server)(nil)

// New returns a Server over svc and st. hub, when non-nil, backs the SSE
// event stream and should also be one of svc's publishers.
func New(svc *softdelete.Service, st store.Store, hub *EventHub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewEventHub()
	}
	return &Server{svc: svc, store: st, hub: hub, logger: logger}
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// CreateRecord creates a visible record in the caller's tenant.
func (s *Server) CreateRecord(ctx context.Context, req *api.CreateRecordRequest) (*model.Record, error) {
	id := req.ID
	if id == "" && req.Type != "" {
		var err error
		if id, err = idgen.ForType(req.Type); err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}
	}
	rec := &model.Record{
		Type:     req.Type,
		ID:       id,
		TenantID: tenancy.FromContext(ctx),
		Fields:   req.Fields,
	}
	if err := model.ValidateRecord(rec); err != nil {
		return nil, inputError(err.Error())
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetRecord returns a visible record of the caller's tenant.
func (s *Server) GetRecord(ctx context.Context, req *api.GetRecordRequest) (*model.Record, error) {
	if !req.Key.IsValid() {
		return nil, inputError("key is required")
	}
	return s.store.GetRecord(ctx, req.Key, tenancy.FromContext(ctx))
}

// ListRecords lists visible records of one type.
func (s *Server) ListRecords(ctx context.Context, req *api.ListRequest) (*api.ListResponse, error) {
	if req.Type == "" {
		return nil, inputError("type is required")
	}
	seq := s.store.QueryAll(ctx, model.RecordFilter{
		Type:     req.Type,
		TenantID: tenancy.FromContext(ctx),
		PageSize: s.svc.Options().PageSize,
	})
	return collect(seq, req.Limit)
}

// UpdateFields replaces the fields of a visible record.
func (s *Server) UpdateFields(ctx context.Context, req *api.UpdateFieldsRequest) (*model.Record, error) {
	if !req.Key.IsValid() {
		return nil, inputError("key is required")
	}
	if err := checkFields(req.Fields); err != nil {
		return nil, err
	}
	rec, err := s.store.GetRecord(ctx, req.Key, tenancy.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	if req.Version != 0 && req.Version != rec.Version {
		return nil, fmt.Errorf("update %s: %w", req.Key, store.ErrConflict)
	}
	rec.Fields = req.Fields
	if err := s.store.UpdateFields(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SoftDelete hides the requested records and their cascade.
func (s *Server) SoftDelete(ctx context.Context, req *api.KeysRequest) (*model.Result, error) {
	if err := checkKeys(req.Keys); err != nil {
		return nil, err
	}
	res := s.svc.SoftDelete(ctx, req.Keys...).Normalize()
	return &res, nil
}

// ResetSoftDelete restores directly soft-deleted records and their cascade.
func (s *Server) ResetSoftDelete(ctx context.Context, req *api.KeysRequest) (*model.Result, error) {
	if err := checkKeys(req.Keys); err != nil {
		return nil, err
	}
	res := s.svc.ResetSoftDelete(ctx, req.Keys...).Normalize()
	return &res, nil
}

// HardDeleteIfSoftDeleted purges soft-deleted records.
func (s *Server) HardDeleteIfSoftDeleted(ctx context.Context, req *api.KeysRequest) (*model.Result, error) {
	if err := checkKeys(req.Keys); err != nil {
		return nil, err
	}
	res := s.svc.HardDeleteIfSoftDeleted(ctx, req.Keys...).Normalize()
	return &res, nil
}

// ListSoftDeleted lists directly soft-deleted records of one type.
func (s *Server) ListSoftDeleted(ctx context.Context, req *api.ListRequest) (*api.ListResponse, error) {
	if req.Type == "" {
		return nil, inputError("type is required")
	}
	return collect(s.svc.ListSoftDeleted(ctx, req.Type), req.Limit)
}

// Relationships dumps the cascade registry.
func (s *Server) Relationships(_ context.Context, _ *api.RelationshipsRequest) (*api.RelationshipsResponse, error) {
	rels := s.svc.Registry().All()
	if rels == nil {
		rels = []model.Relationship{}
	}
	return &api.RelationshipsResponse{Relationships: rels}, nil
}

// Health returns the service health status.
func (s *Server) Health(_ context.Context, _ *api.HealthRequest) (*api.HealthResponse, error) {
	return &api.HealthResponse{Status: "ok"}, nil
}

func checkKeys(keys []model.Key) error {
	if len(keys) == 0 {
		return inputError("keys is required")
	}
	for _, k := range keys {
		if !k.IsValid() {
			return inputError(fmt.Sprintf("invalid key %q", k))
		}
	}
	return nil
}

// checkFields rejects fields that are not a JSON object.
func checkFields(fields json.RawMessage) error {
	if len(fields) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(fields, &m); err != nil || m == nil {
		return inputError("fields must be a JSON object")
	}
	return nil
}

// collect drains seq into a ListResponse, stopping after limit records
// (maxListLimit when limit is not positive).
func collect(seq iter.Seq2[*model.Record, error], limit int) (*api.ListResponse, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	out := &api.ListResponse{Records: []*model.Record{}}
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		out.Records = append(out.Records, rec)
		if len(out.Records) == limit {
			break
		}
	}
	return out, nil
}

// isInputError reports whether err is (or wraps) an inputError.
func isInputError(err error) bool {
	var ie inputError
	return errors.As(err, &ie)
}
