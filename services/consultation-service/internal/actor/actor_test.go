package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDropsUnknownRoles(t *testing.T) {
	a := New("u1", "u1@example.com", []string{"Guru", "superuser", "guru", "admin"})
	assert.Equal(t, []Role{RoleGuru, RoleAdmin}, a.Roles)
	assert.True(t, a.HasAny(RoleService, RoleAdmin))
	assert.False(t, a.Has(RoleClient))
}

func TestNewDefaultsToClient(t *testing.T) {
	a := New("u1", "", nil)
	assert.Equal(t, []Role{RoleClient}, a.Roles)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithActor(context.Background(), New("u1", "", []string{"service"}))
	a, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", a.UserID)
	assert.True(t, a.Has(RoleService))
}
