package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-platform/semverx/internal/hotswap"
	"github.com/anvil-platform/semverx/internal/manifest"
)

const testManifest = `components:
  - name: db
    version: 1.stable.0.stable.0.stable
    payload: db-v1
  - name: cache
    version: 1.stable.0.stable.0.stable
    payload: cache-v1
    dependencies:
      - target: db
        constraint: ^1.0.0
        weight: 5
  - name: api
    version: 1.stable.0.stable.0.stable
    payload: api-v1
    dependencies:
      - target: db
        constraint: ^1.0.0
      - target: cache
        constraint: ^1.0.0
      - target: metrics
        optional: true
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func tempManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "components.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))
	return path
}

func TestParse(t *testing.T) {
	out, err := run(t, "parse", "2.stable.1.experimental.0.legacy-rc.1+build.7")
	require.NoError(t, err)
	assert.Contains(t, out, "canonical:  2.stable.1.experimental.0.legacy-rc.1+build.7")
	assert.Contains(t, out, "states:     stable/experimental/legacy")
	assert.Contains(t, out, "prerelease: rc.1")

	_, err = run(t, "parse", "1.bogus.0.stable.0.stable")
	require.Error(t, err)
}

func TestCompare(t *testing.T) {
	out, err := run(t, "compare", "1.stable.0.stable.0.stable-rc", "1.stable.0.stable.0.stable")
	require.NoError(t, err)
	assert.Equal(t, "-1\n", out)
}

func TestSatisfies(t *testing.T) {
	out, err := run(t, "satisfies", "1.stable.4.stable.0.stable", "^1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = run(t, "satisfies", "2.stable.0.stable.0.stable", "^1.2.0")
	require.Error(t, err)
	assert.Contains(t, out, "false")
}

func TestCanSwap(t *testing.T) {
	out, err := run(t, "can-swap", "1.stable.0.stable.0.stable", "2.stable.0.stable.0.stable")
	require.NoError(t, err)
	assert.Contains(t, out, "denied")

	out, err = run(t, "can-swap", "1.stable.0.stable.0.stable", "2.legacy.0.stable.0.stable")
	require.NoError(t, err)
	assert.Contains(t, out, "allowed")
}

func TestResolve(t *testing.T) {
	path := tempManifest(t)
	out, err := run(t, "--manifest", path, "resolve", "api")
	require.NoError(t, err)
	assert.Equal(t,
		"1. db@1.stable.0.stable.0.stable\n"+
			"2. cache@1.stable.0.stable.0.stable\n"+
			"3. api@1.stable.0.stable.0.stable\n"+
			"skipped optional api -> metrics (not registered)\n",
		out)

	// db@2 breaks both dependents.
	_, err = run(t, "--manifest", path, "resolve", "db", "--version", "2.stable.0.stable.0.stable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version conflict")
}

func TestResolve_ManifestFromEnv(t *testing.T) {
	t.Setenv("SEMVERX_MANIFEST", tempManifest(t))
	out, err := run(t, "resolve", "db")
	require.NoError(t, err)
	assert.Equal(t, "1. db@1.stable.0.stable.0.stable\n", out)
}

func TestResolve_NoManifest(t *testing.T) {
	t.Setenv("SEMVERX_MANIFEST", "")
	_, err := run(t, "resolve", "db")
	require.Error(t, err)
}

func TestPath(t *testing.T) {
	path := tempManifest(t)
	out, err := run(t, "--manifest", path, "path", "api", "db")
	require.NoError(t, err)
	assert.Equal(t, "api -> db\n", out)
}

func TestSwap(t *testing.T) {
	path := tempManifest(t)
	payload := filepath.Join(t.TempDir(), "db.bin")
	require.NoError(t, os.WriteFile(payload, []byte("db-v2"), 0o644))

	out, err := run(t, "--manifest", path, "swap", "db", "1.stable.1.stable.0.stable", "--payload-file", payload, "--write")
	require.NoError(t, err)
	assert.Contains(t, out, "Committed")

	m, err := manifest.Load(path)
	require.NoError(t, err)
	require.Len(t, m.Components, 3)
	assert.Equal(t, "1.stable.1.stable.0.stable", m.Components[0].Version)
	assert.Equal(t, "db-v2", m.Components[0].Payload)

	out, err = run(t, "--manifest", path, "swap", "db", "2.stable.0.stable.0.stable")
	require.ErrorIs(t, err, hotswap.ErrSwapRejected)
	assert.Contains(t, out, "Validating")
}

func TestHealth(t *testing.T) {
	out, err := run(t, "--manifest", tempManifest(t), "health")
	require.NoError(t, err)
	assert.Contains(t, out, "ok   db@1.stable.0.stable.0.stable\n")
	assert.Contains(t, out, "ok   api@1.stable.0.stable.0.stable\n")
	assert.Contains(t, out, "(ok)\n")
}

func TestHealth_ReportsUnresolvable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "components.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`components:
  - name: db
    version: 1.stable.0.stable.0.stable
    payload: db-v1
  - name: api
    version: 1.stable.0.stable.0.stable
    payload: api-v1
    dependencies:
      - target: db
        constraint: ^2.0.0
`), 0o644))

	out, err := run(t, "--manifest", path, "health")
	require.ErrorIs(t, err, errUnhealthy)
	assert.Contains(t, out, "ok   db@1.stable.0.stable.0.stable\n")
	assert.Contains(t, out, "FAIL api@1.stable.0.stable.0.stable: ")
	assert.Contains(t, out, "stress 1.00 (ok)\n")
}
