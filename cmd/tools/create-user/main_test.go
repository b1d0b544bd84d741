package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vivpro-songs/internal/backend"
	"vivpro-songs/internal/config"
)

func envFrom(values map[string]string) config.LookupEnv {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestCreateUserWritesAccount(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "songs.db")
	env := envFrom(map[string]string{
		config.EnvPrefix + "SQLITE_PATH": dbPath,
		config.EnvPrefix + "BCRYPT_COST": "4",
		passwordEnv:                      "Secr3t!pass",
	})

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-username", "alice", "-name", "Alice"}, env, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	assert.Contains(t, stdout.String(), "User alice (Alice) created")

	cfg, err := config.Load(nil, env, nil)
	require.NoError(t, err)
	b, err := backend.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	user, ok, err := b.Repo.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", user.Name)
	assert.NotEqual(t, "Secr3t!pass", user.PasswordHash)

	err = run(context.Background(), []string{"-username", "alice"}, env, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestCreateUserPassesServerFlags(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "custom.db")
	args := []string{"-username", "bob", "-password", "Secr3t!pass", "--", "-sqlite-path", dbPath, "-bcrypt-cost", "4"}

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), args, envFrom(nil), &stdout, &bytes.Buffer{}))
	assert.FileExists(t, dbPath)
	assert.Contains(t, stdout.String(), "User bob (bob) created")
}

func TestCreateUserRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing username", args: []string{"-password", "Secr3t!pass"}, want: "-username is required"},
		{name: "weak password", args: []string{"-username", "carol", "-password", "short"}, want: "password"},
		{name: "bad username", args: []string{"-username", "no spaces", "-password", "Secr3t!pass"}, want: "username"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(context.Background(), tc.args, envFrom(nil), &bytes.Buffer{}, &bytes.Buffer{})
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.want), "error %q should mention %q", err, tc.want)
		})
	}
}
