package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniversalEligible(t *testing.T) {
	cases := []struct {
		name   string
		tenant Tenant
		want   bool
	}{
		{"active universal only", Tenant{Active: true, RoutingMode: RoutingUniversalOnly}, true},
		{"active both", Tenant{Active: true, RoutingMode: RoutingBoth}, true},
		{"active custom only", Tenant{Active: true, RoutingMode: RoutingCustomOnly}, false},
		{"inactive universal", Tenant{Active: false, RoutingMode: RoutingUniversalOnly}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.tenant.UniversalEligible())
		})
	}
}

func TestTenantContext(t *testing.T) {
	ctx := context.Background()

	_, ok := TenantIDFromContext(ctx)
	require.False(t, ok, "expected no tenant id on empty context")

	ctx = WithTenantID(ctx, "cafe-1")
	id, ok := TenantIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "cafe-1", id)

	_, ok = TenantIDFromContext(WithTenantID(context.Background(), ""))
	assert.False(t, ok, "empty tenant id is treated as absent")
}
