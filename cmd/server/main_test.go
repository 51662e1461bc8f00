package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/fabtrack/internal/config"
	"github.com/rpggio/fabtrack/internal/domain/access"
)

func TestAPIKeys(t *testing.T) {
	keys := apiKeys([]config.APIKey{
		{Token: "t1", ActorID: "inspector-1", Permissions: []string{"wir.review", " wir.approve "}},
	})

	actor, err := keys.ResolveActor(t.Context(), "t1")
	require.NoError(t, err)
	require.Equal(t, "inspector-1", actor.ID)
	require.True(t, actor.Has(access.PermInspectionApprove))
	require.False(t, actor.Has(access.PermManifestCreate))

	_, err = keys.ResolveActor(t.Context(), "missing")
	require.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	require.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestEnsureDBDir(t *testing.T) {
	require.NoError(t, ensureDBDir(":memory:"))
	path := filepath.Join(t.TempDir(), "nested", "dir", "fabtrack.db")
	require.NoError(t, ensureDBDir(path))
	require.DirExists(t, filepath.Dir(path))
}
