package tenancy

import "context"

type ctxKey string

const tenantKey ctxKey = "xonebot.tenant_id"

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantIDFromContext extracts the tenant id if present.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(tenantKey)
	if val == nil {
		return "", false
	}
	tenantID, ok := val.(string)
	return tenantID, ok && tenantID != ""
}
