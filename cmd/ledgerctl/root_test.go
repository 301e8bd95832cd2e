package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapstudio-backend/pkg/auth"
	"github.com/angelmondragon/snapstudio-backend/pkg/config"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SNAPSTUDIO_APP_ENV", "test")
	t.Setenv("SNAPSTUDIO_APP_PORT", "8080")
	t.Setenv("SNAPSTUDIO_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SNAPSTUDIO_JWT_SECRET", "ctl-secret")
	t.Setenv("SNAPSTUDIO_JWT_ISSUER", "snapstudio")
	t.Setenv("SNAPSTUDIO_USE_SQLITE", "true")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommandMintsParsableToken(t *testing.T) {
	setEnv(t)
	out, err := run(t, "token", "--sub", "worker-1", "--role", "service")
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(config.JWTConfig{Secret: "ctl-secret", Issuer: "snapstudio", ExpirationMinutes: 60}, string(bytes.TrimSpace([]byte(out))))
	require.NoError(t, err)
	assert.Equal(t, "worker-1", claims.UserID)
	assert.Equal(t, enums.RoleService, claims.Role)
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	setEnv(t)
	_, err := run(t, "token", "--sub", "x", "--role", "root")
	assert.Error(t, err)
}

func TestReconcileArgs(t *testing.T) {
	setEnv(t)
	_, err := run(t, "reconcile")
	assert.Error(t, err)

	_, err = run(t, "reconcile", "acct_1", "--all")
	assert.Error(t, err)
}

func TestDLQListRejectsUnknownReason(t *testing.T) {
	setEnv(t)
	_, err := run(t, "dlq", "list", "--reason", "timeout")
	assert.ErrorContains(t, err, "invalid outbox dlq error reason")
}
