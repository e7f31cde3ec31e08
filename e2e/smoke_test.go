package e2e

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/anvil-platform/semverx/internal/registry"
	"github.com/anvil-platform/semverx/internal/transport"
)

const smokeManifest = `components:
  - name: db
    version: 1.stable.0.stable.0.stable
    payload: db-v1
  - name: api
    version: 1.stable.0.stable.0.stable
    payload: api-v1
    dependencies:
      - target: db
        constraint: ^1.0.0
`

func TestE2ESmoke_SwapCoreServer(t *testing.T) {
	if os.Getenv("SEMVERX_E2E") == "" {
		t.Skip("set SEMVERX_E2E=1 to run the process-level smoke test")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not found in PATH")
	}

	repoRoot := findRepoRoot(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	work := t.TempDir()
	manifestPath := filepath.Join(work, "components.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(smokeManifest), 0o644))

	// The CLI resolves straight from the manifest.
	out := runOrFail(t, ctx, repoRoot, nil, "go", "run", "./cmd/semverx", "--manifest", manifestPath, "resolve", "api")
	require.Contains(t, out, "1. db@1.stable.0.stable.0.stable")
	require.Contains(t, out, "2. api@1.stable.0.stable.0.stable")

	// Start the server with a persistent store seeded from the manifest.
	addr := fmt.Sprintf("127.0.0.1:%d", pickFreePort(t))
	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverCmd := exec.CommandContext(serverCtx, "go", "run", "./cmd/swapcore-server",
		"--listen", addr,
		"--manifest", manifestPath,
		"--store", filepath.Join(work, "store"),
	)
	serverCmd.Dir = repoRoot
	var serverOut bytes.Buffer
	serverCmd.Stdout = &serverOut
	serverCmd.Stderr = &serverOut
	require.NoError(t, serverCmd.Start(), "start server")
	t.Cleanup(func() {
		serverCancel()
		_ = serverCmd.Wait()
	})

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err, "dial %s", addr)
	defer conn.Close()

	// Poll health until the server (and its go run build) is up.
	health := healthpb.NewHealthClient(conn)
	deadline := time.Now().Add(2 * time.Minute)
	for {
		if time.Now().After(deadline) {
			t.Logf("server output:\n%s", serverOut.String())
			t.Fatalf("timeout waiting for %s to serve", addr)
		}
		hctx, hcancel := context.WithTimeout(ctx, 2*time.Second)
		resp, err := health.Check(hctx, &healthpb.HealthCheckRequest{Service: transport.ServiceName})
		hcancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			break
		}
		time.Sleep(time.Second)
	}

	c := transport.NewClient(conn)
	swap, err := c.Swap(ctx, &transport.SwapRequest{
		Name:     "db",
		Version:  "1.stable.1.stable.0.stable",
		Payload:  []byte("db-v2"),
		Checksum: registry.Checksum([]byte("db-v2")).String(),
	})
	require.NoError(t, err)
	require.Nil(t, swap.Error, "server output:\n%s", serverOut.String())
	require.Equal(t, "Committed", swap.Phase)

	resolved, err := c.Resolve(ctx, &transport.ResolveRequest{Name: "api"})
	require.NoError(t, err)
	require.Nil(t, resolved.Error)
	require.Len(t, resolved.Order, 2)
	assert.Equal(t, "db@1.stable.1.stable.0.stable", resolved.Order[0])

	breaking, err := c.Swap(ctx, &transport.SwapRequest{Name: "db", Version: "2.stable.0.stable.0.stable"})
	require.NoError(t, err)
	require.NotNil(t, breaking.Error)
	assert.Equal(t, transport.CodeSwapRejected, breaking.Error.Code)
}

func pickFreePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func findRepoRoot(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// e2e/smoke_test.go -> repo root
	return filepath.Clean(filepath.Join(filepath.Dir(file), ".."))
}

func runOrFail(t *testing.T, ctx context.Context, dir string, env []string, name string, args ...string) string {
	t.Helper()

	out, err := runOut(ctx, dir, env, name, args...)
	require.NoError(t, err, "%s %s failed:\n%s", name, strings.Join(args, " "), out)
	return out
}

func runOut(ctx context.Context, dir string, env []string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
