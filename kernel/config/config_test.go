package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskplan/kernel/config"
)

func TestLoadDefaultsUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plan_id: demo\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.PlanID)
	require.Equal(t, time.Second, time.Duration(cfg.CyclePeriod))
	require.Equal(t, "inmem", cfg.Engine.Backend)
}

func TestLoadParsesDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "plan_id: demo\ncycle_period: 250ms\nqueue:\n  backend: redis\n  redis:\n    addr: localhost:6379\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, time.Duration(cfg.CyclePeriod))
	require.Equal(t, "redis", cfg.Queue.Backend)
	require.Equal(t, "localhost:6379", cfg.Queue.Redis.Addr)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cycle_period: not-a-duration\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
}
