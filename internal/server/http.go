package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/tombstone/internal/api"
	"github.com/alfredjeanlab/tombstone/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header. X-Tenant-ID scopes every
// request to one tenant.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/records", s.handleCreateRecord)
	mux.HandleFunc("GET /v1/records/{type}", s.handleListRecords)
	mux.HandleFunc("GET /v1/records/{type}/{id...}", s.handleGetRecord)
	mux.HandleFunc("PATCH /v1/records/{type}/{id...}", s.handleUpdateFields)
	mux.HandleFunc("POST /v1/soft-delete", s.handleSoftDelete)
	mux.HandleFunc("POST /v1/soft-delete/reset", s.handleResetSoftDelete)
	mux.HandleFunc("POST /v1/soft-delete/purge", s.handleHardDelete)
	mux.HandleFunc("GET /v1/trash/{type}", s.handleListSoftDeleted)
	mux.HandleFunc("GET /v1/relationships", s.handleRelationships)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return AuthMiddleware(authToken, TenantMiddleware(mux))
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp, _ := s.Health(r.Context(), &api.HealthRequest{})
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateRecord handles POST /v1/records.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in api.CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec, err := s.CreateRecord(r.Context(), &in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleListRecords handles GET /v1/records/{type}.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ListRecords(r.Context(), &api.ListRequest{
		Type:  r.PathValue("type"),
		Limit: queryInt(r, "limit"),
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetRecord handles GET /v1/records/{type}/{id}.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.GetRecord(r.Context(), &api.GetRecordRequest{Key: pathKey(r)})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateFields handles PATCH /v1/records/{type}/{id}.
func (s *Server) handleUpdateFields(w http.ResponseWriter, r *http.Request) {
	var in api.UpdateFieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	in.Key = pathKey(r)
	rec, err := s.UpdateFields(r.Context(), &in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleSoftDelete handles POST /v1/soft-delete.
func (s *Server) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	s.handleKeys(w, r, s.SoftDelete)
}

// handleResetSoftDelete handles POST /v1/soft-delete/reset.
func (s *Server) handleResetSoftDelete(w http.ResponseWriter, r *http.Request) {
	s.handleKeys(w, r, s.ResetSoftDelete)
}

// handleHardDelete handles POST /v1/soft-delete/purge.
func (s *Server) handleHardDelete(w http.ResponseWriter, r *http.Request) {
	s.handleKeys(w, r, s.HardDeleteIfSoftDeleted)
}

// handleKeys decodes a KeysRequest, runs op, and writes the Result with the
// status resultStatus picks.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request, op func(context.Context, *api.KeysRequest) (*model.Result, error)) {
	var in api.KeysRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	res, err := op(r.Context(), &in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, resultStatus(*res), res)
}

// handleListSoftDeleted handles GET /v1/trash/{type}.
func (s *Server) handleListSoftDeleted(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ListSoftDeleted(r.Context(), &api.ListRequest{
		Type:  r.PathValue("type"),
		Limit: queryInt(r, "limit"),
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRelationships handles GET /v1/relationships.
func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	resp, _ := s.Relationships(r.Context(), &api.RelationshipsRequest{})
	writeJSON(w, http.StatusOK, resp)
}

// writeFailure writes err with the status httpStatus picks. Server errors
// are logged; their details are not sent to the client.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, code, "internal server error")
		return
	}
	writeError(w, code, err.Error())
}

// pathKey builds the record key from the {type} and {id} path values.
func pathKey(r *http.Request) model.Key {
	return model.NewKey(r.PathValue("type"), r.PathValue("id"))
}

// queryInt returns the named query parameter as an int, or 0.
func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}
