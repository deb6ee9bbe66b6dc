package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alfredjeanlab/tombstone/internal/api"
	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/registry"
	"github.com/alfredjeanlab/tombstone/internal/softdelete"
	"github.com/alfredjeanlab/tombstone/internal/store/memory"
)

func testRegistry() *registry.Registry {
	return registry.MustNew(
		model.Relationship{Principal: "company", Dependent: "quote", ForeignKey: "company_id"},
		model.Relationship{Principal: "quote", Dependent: "line_item", ForeignKey: "quote_id"},
	)
}

// newTestServer wires a Server over an in-memory store. The hub is the
// service's publisher, as in serve.
func newTestServer(opts ...softdelete.Options) (*Server, *memory.Store, http.Handler) {
	o := softdelete.DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	st := memory.New()
	hub := NewEventHub()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := softdelete.New(st, testRegistry(), o, softdelete.WithPublisher(hub), softdelete.WithLogger(logger))
	srv := New(svc, st, hub, logger)
	return srv, st, srv.NewHTTPHandler("")
}

// seedRecords creates company XYZ with quotes XYZ-1 and XYZ-2 in tenant
// acme and a company in tenant other.
func seedRecords(t *testing.T, st *memory.Store) {
	t.Helper()
	for _, r := range []*model.Record{
		{Type: "company", ID: "XYZ", TenantID: "acme", Fields: json.RawMessage(`{"name":"XYZ"}`)},
		{Type: "quote", ID: "XYZ-1", TenantID: "acme", Fields: json.RawMessage(`{"company_id":"XYZ"}`)},
		{Type: "quote", ID: "XYZ-2", TenantID: "acme", Fields: json.RawMessage(`{"company_id":"XYZ"}`)},
		{Type: "company", ID: "OTHER", TenantID: "other"},
	} {
		if err := st.CreateRecord(context.Background(), r); err != nil {
			t.Fatalf("seed %s: %v", r.Key(), err)
		}
	}
}

// doRequest runs one request against handler as tenant (empty = unscoped).
func doRequest(t *testing.T, handler http.Handler, method, path, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func keys(ss ...string) api.KeysRequest {
	req := api.KeysRequest{}
	for _, s := range ss {
		k, _ := model.ParseKey(s)
		req.Keys = append(req.Keys, k)
	}
	return req
}

func TestHTTP_Health(t *testing.T) {
	_, _, handler := newTestServer()
	rec := doRequest(t, handler, "GET", "/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody[api.HealthResponse](t, rec); got.Status != "ok" {
		t.Errorf("status = %q", got.Status)
	}
}

func TestHTTP_CreateAndGet(t *testing.T) {
	_, _, handler := newTestServer()

	rec := doRequest(t, handler, "POST", "/v1/records", "acme", api.CreateRecordRequest{
		Type:   "company",
		Fields: json.RawMessage(`{"name":"Acme"}`),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	created := decodeBody[model.Record](t, rec)
	if created.ID == "" || created.TenantID != "acme" || created.Version != 1 {
		t.Fatalf("created = %+v", created)
	}

	rec = doRequest(t, handler, "GET", "/v1/records/company/"+created.ID, "acme", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", rec.Code, rec.Body)
	}
	if got := decodeBody[model.Record](t, rec); got.ID != created.ID {
		t.Errorf("got %s, want %s", got.ID, created.ID)
	}

	rec = doRequest(t, handler, "GET", "/v1/records/company/"+created.ID, "other", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-tenant get status = %d, want 404", rec.Code)
	}
}

func TestHTTP_CreateErrors(t *testing.T) {
	_, st, handler := newTestServer()
	seedRecords(t, st)

	for _, tc := range []struct {
		name string
		body any
		want int
	}{
		{"MissingType", api.CreateRecordRequest{ID: "x"}, http.StatusBadRequest},
		{"SlashInType", api.CreateRecordRequest{Type: "a/b"}, http.StatusBadRequest},
		{"FieldsNotObject", api.CreateRecordRequest{Type: "company", Fields: json.RawMessage(`[1]`)}, http.StatusBadRequest},
		{"Duplicate", api.CreateRecordRequest{Type: "company", ID: "XYZ"}, http.StatusConflict},
		{"BadJSON", "not an object", http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, handler, "POST", "/v1/records", "acme", tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestHTTP_UpdateFields(t *testing.T) {
	_, st, handler := newTestServer()
	seedRecords(t, st)

	rec := doRequest(t, handler, "PATCH", "/v1/records/company/XYZ", "acme", api.UpdateFieldsRequest{
		Fields:  json.RawMessage(`{"name":"XYZ Ltd"}`),
		Version: 1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := decodeBody[model.Record](t, rec); got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}

	rec = doRequest(t, handler, "PATCH", "/v1/records/company/XYZ", "acme", api.UpdateFieldsRequest{
		Fields:  json.RawMessage(`{"name":"stale"}`),
		Version: 1,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("stale update status = %d, want 409", rec.Code)
	}
}

func TestHTTP_SoftDeleteHidesCascade(t *testing.T) {
	_, st, handler := newTestServer()
	seedRecords(t, st)

	rec := doRequest(t, handler, "POST", "/v1/soft-delete", "acme", keys("quote/XYZ-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("soft delete status = %d: %s", rec.Code, rec.Body)
	}
	res := decodeBody[model.Result](t, rec)
	if len(res.Affected) != 1 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}

	// The ordinary read hides it; the sibling quote stays visible.
	if rec := doRequest(t, handler, "GET", "/v1/records/quote/XYZ-1", "acme", nil); rec.Code != http.StatusNotFound {
		t.Errorf("hidden get status = %d, want 404", rec.Code)
	}
	list := decodeBody[api.ListResponse](t, doRequest(t, handler, "GET", "/v1/records/quote", "acme", nil))
	if len(list.Records) != 1 || list.Records[0].ID != "XYZ-2" {
		t.Errorf("visible quotes = %v", list.Records)
	}

	// Deleting the company cascades to XYZ-2 only.
	res = decodeBody[model.Result](t, doRequest(t, handler, "POST", "/v1/soft-delete", "acme", keys("company/XYZ")))
	if len(res.Affected) != 2 {
		t.Errorf("company cascade affected = %v", res.Affected)
	}

	trash := decodeBody[api.ListResponse](t, doRequest(t, handler, "GET", "/v1/trash/quote", "acme", nil))
	if len(trash.Records) != 1 || trash.Records[0].ID != "XYZ-1" {
		t.Errorf("quote trash = %v", trash.Records)
	}
}

func TestHTTP_ResultStatus(t *testing.T) {
	for _, tc := range []struct {
		name   string
		opts   softdelete.Options
		path   string
		body   api.KeysRequest
		want   int
		kind   model.ErrorKind
		nAffct int
	}{
		{"NotFound", softdelete.DefaultOptions(), "/v1/soft-delete", keys("company/NOPE"), http.StatusNotFound, model.KindEntityNotFound, 0},
		{"OtherTenant", softdelete.DefaultOptions(), "/v1/soft-delete", keys("company/OTHER"), http.StatusNotFound, model.KindEntityNotFound, 0},
		{"ResetVisible", softdelete.DefaultOptions(), "/v1/soft-delete/reset", keys("quote/XYZ-1"), http.StatusConflict, model.KindNotDirectlySoftDeleted, 0},
		{"PurgeVisible", softdelete.DefaultOptions(), "/v1/soft-delete/purge", keys("quote/XYZ-1"), http.StatusConflict, model.KindNotSoftDeleted, 0},
		{"PartialPurge", softdelete.Options{PageSize: 10}, "/v1/soft-delete/purge", keys("quote/XYZ-1", "quote/DELETED"), http.StatusMultiStatus, model.KindNotSoftDeleted, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, st, handler := newTestServer(tc.opts)
			seedRecords(t, st)
			deleted := &model.Record{Type: "quote", ID: "DELETED", TenantID: "acme", SoftDeleted: true, SoftDeleteLevel: 1}
			if err := st.CreateRecord(context.Background(), deleted); err != nil {
				t.Fatal(err)
			}

			rec := doRequest(t, handler, "POST", tc.path, "acme", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body)
			}
			res := decodeBody[model.Result](t, rec)
			if !res.HasKind(tc.kind) {
				t.Errorf("errors = %v, want kind %s", res.Errors, tc.kind)
			}
			if len(res.Affected) != tc.nAffct {
				t.Errorf("affected = %v, want %d", res.Affected, tc.nAffct)
			}
		})
	}
}

func TestHTTP_KeysValidation(t *testing.T) {
	_, _, handler := newTestServer()
	for _, tc := range []struct {
		name string
		body any
	}{
		{"NoKeys", api.KeysRequest{}},
		{"MalformedKey", map[string]any{"keys": []string{"no-slash"}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, handler, "POST", "/v1/soft-delete", "", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHTTP_RoundTrip(t *testing.T) {
	_, st, handler := newTestServer()
	seedRecords(t, st)

	doRequest(t, handler, "POST", "/v1/soft-delete", "acme", keys("company/XYZ"))
	rec := doRequest(t, handler, "POST", "/v1/soft-delete/reset", "acme", keys("company/XYZ"))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d: %s", rec.Code, rec.Body)
	}
	list := decodeBody[api.ListResponse](t, doRequest(t, handler, "GET", "/v1/records/quote", "acme", nil))
	if len(list.Records) != 2 {
		t.Errorf("visible quotes after reset = %d, want 2", len(list.Records))
	}
}

func TestHTTP_PurgeRemoves(t *testing.T) {
	_, st, handler := newTestServer()
	seedRecords(t, st)

	doRequest(t, handler, "POST", "/v1/soft-delete", "acme", keys("quote/XYZ-1"))
	rec := doRequest(t, handler, "POST", "/v1/soft-delete/purge", "acme", keys("quote/XYZ-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("purge status = %d: %s", rec.Code, rec.Body)
	}
	if _, err := st.LoadByKey(context.Background(), model.NewKey("quote", "XYZ-1")); err == nil {
		t.Error("purged record still loadable")
	}
}

func TestHTTP_Relationships(t *testing.T) {
	_, _, handler := newTestServer()
	got := decodeBody[api.RelationshipsResponse](t, doRequest(t, handler, "GET", "/v1/relationships", "", nil))
	if len(got.Relationships) != 2 {
		t.Errorf("relationships = %v", got.Relationships)
	}
}

func TestHTTP_ListLimit(t *testing.T) {
	_, st, handler := newTestServer()
	seedRecords(t, st)

	got := decodeBody[api.ListResponse](t, doRequest(t, handler, "GET", "/v1/records/quote?limit=1", "acme", nil))
	if len(got.Records) != 1 || got.Records[0].ID != "XYZ-1" {
		t.Errorf("limited list = %v", got.Records)
	}
	// Unscoped requests see every tenant.
	got = decodeBody[api.ListResponse](t, doRequest(t, handler, "GET", "/v1/records/company", "", nil))
	if len(got.Records) != 2 {
		t.Errorf("unscoped companies = %d, want 2", len(got.Records))
	}
}

func TestHTTP_Auth(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.NewHTTPHandler("secret")

	if rec := doRequest(t, handler, "GET", "/v1/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health without token = %d, want 200", rec.Code)
	}
	if rec := doRequest(t, handler, "GET", "/v1/relationships", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("relationships without token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/v1/relationships", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("relationships with token = %d, want 200", rec.Code)
	}
}

func TestResultStatus(t *testing.T) {
	nf := model.NewKeyError(model.KindEntityNotFound, model.NewKey("a", "1"), "gone")
	cyc := model.NewKeyError(model.KindCascadeCycleDetected, model.NewKey("a", "1"), "loop")
	internal := model.NewKeyError(model.KindInternal, model.Key{}, "boom")
	for _, tc := range []struct {
		name string
		res  model.Result
		want int
	}{
		{"OK", model.Result{Affected: []model.Key{model.NewKey("a", "1")}}, http.StatusOK},
		{"Empty", model.Result{}, http.StatusOK},
		{"NotFound", model.Failed(nf), http.StatusNotFound},
		{"Cycle", model.Failed(cyc), http.StatusUnprocessableEntity},
		{"Internal", model.Failed(internal), http.StatusInternalServerError},
		{"Partial", model.Result{Affected: []model.Key{model.NewKey("a", "2")}, Errors: []*model.KeyError{nf}}, http.StatusMultiStatus},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := resultStatus(tc.res); got != tc.want {
				t.Errorf("resultStatus = %d, want %d", got, tc.want)
			}
		})
	}
}
