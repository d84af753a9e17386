package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`database:
  global:
    url: file:%s
storage:
  root_dir: %s
usage:
  backend: sql
logging:
  level: error
`, filepath.Join(dir, "global.db"), filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlans(t *testing.T) {
	out, err := run(t, "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "case_comparison")
	assert.Contains(t, out, "unlimited")
}

func TestMigrate(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	// a second run finds nothing to apply
	_, err = run(t, "--config", cfg, "migrate")
	require.NoError(t, err)
}

func TestUsage_UnknownOrgIsBasic(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "usage", "--org", "ORG1")
	require.NoError(t, err)
	assert.Contains(t, out, "ORG1")
	assert.Contains(t, out, "basic")
}

func TestUsage_RequiresOrg(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "--config", cfg, "usage")
	assert.Error(t, err)
}

func TestReconcile_SingleUser(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "reconcile", "--email", "ann@halelaw.com")
	require.NoError(t, err)
	assert.Contains(t, out, "orphan blobs: 0")
	assert.Contains(t, out, "dangling metadata: 0")
}

func TestExpireTrials_NoneDue(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "expire-trials")
	require.NoError(t, err)
	assert.Contains(t, out, "expired 0 trial(s)")
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "migrate")
	assert.Error(t, err)
}
