package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
)

func TestActor_Can(t *testing.T) {
	type testCase struct {
		name  string
		actor auth.Actor
		perm  auth.Permission
		want  bool
	}

	tests := []testCase{
		{name: "BrokerCreates", actor: auth.Actor{Role: auth.RoleBroker}, perm: auth.PermProcedureCreate, want: true},
		{name: "AdminGrants", actor: auth.Actor{Role: auth.RoleAdmin}, perm: auth.PermProcedureGrantNotary, want: true},
		{name: "NotaryCannotCreate", actor: auth.Actor{Role: auth.RoleNotary}, perm: auth.PermProcedureCreate, want: false},
		{name: "NotaryUploads", actor: auth.Actor{Role: auth.RoleNotary}, perm: auth.PermNotaryUpload, want: true},
		{name: "BrokerCannotReject", actor: auth.Actor{Role: auth.RoleBroker}, perm: auth.PermNotaryReject, want: false},
		{name: "PlatformAdminAnything", actor: auth.Actor{PlatformAdmin: true}, perm: auth.PermNotaryReject, want: true},
		{name: "UnknownPermission", actor: auth.Actor{Role: auth.RoleAdmin}, perm: auth.Permission("x:y"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actor.Can(tt.perm))
		})
	}
}

func TestActor_ActorUID(t *testing.T) {
	assert.Equal(t, auth.SystemUID, auth.Actor{}.ActorUID())
	assert.Equal(t, "u1", auth.Actor{UID: "u1"}.ActorUID())
	assert.Equal(t, auth.SystemUID, auth.System("t1").ActorUID())
}

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	want := auth.Actor{TenantID: "tenant_demo", UID: "u_broker", Role: auth.RoleBroker}

	raw, err := issuer.Issue(want)
	require.NoError(t, err)

	got, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIssuer_Parse_Rejects(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	other := auth.NewIssuer("other", time.Hour)
	expired := auth.NewIssuer("secret", -time.Minute)

	foreign, err := other.Issue(auth.Actor{TenantID: "t", UID: "u"})
	require.NoError(t, err)

	stale, err := expired.Issue(auth.Actor{TenantID: "t", UID: "u"})
	require.NoError(t, err)

	noTenant, err := issuer.Issue(auth.Actor{UID: "u"})
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"Garbage":      "not-a-token",
		"WrongSecret":  foreign,
		"Expired":      stale,
		"MissingScope": noTenant,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(raw)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestContext(t *testing.T) {
	_, err := auth.FromContext(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoActor)

	a := auth.Actor{TenantID: "t", UID: "u", Role: auth.RoleAdmin}
	got, err := auth.FromContext(auth.WithActor(context.Background(), a))
	require.NoError(t, err)
	assert.Equal(t, a, got)
}
