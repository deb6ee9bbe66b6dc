// Package tenancy carries the caller's tenant through a request context.
package tenancy

import (
	"context"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// Header is the HTTP header, and lowercased the gRPC metadata key, naming
// the tenant of a request.
const Header = "X-Tenant-ID"

type ctxKey struct{}

// WithTenant returns a context scoped to tenantID. An empty ID removes any
// tenant scope.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// FromContext returns the tenant of ctx, or "" when the context is unscoped.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Allows reports whether rec is visible to the tenant of ctx. An unscoped
// context sees every tenant.
func Allows(ctx context.Context, rec *model.Record) bool {
	id := FromContext(ctx)
	return id == "" || rec.TenantID == id
}
