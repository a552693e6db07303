package domain

import (
	"context"

	"github.com/google/uuid"
)

// TenantContext identifies the tenant and user on whose behalf a core
// operation runs. It is passed explicitly into every operation rather than
// read from ambient request state.
type TenantContext struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// Valid reports whether the context carries a tenant.
func (t TenantContext) Valid() bool {
	return t.TenantID != uuid.Nil
}

type tenantCtxKey struct{}

// WithTenant attaches a TenantContext to a context.Context for transport
// through HTTP middleware. Core packages take TenantContext as an argument;
// this is only the handler-side carrier.
func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tc)
}

// TenantFromContext extracts the TenantContext placed by WithTenant.
func TenantFromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(tenantCtxKey{}).(TenantContext)
	return tc, ok
}
