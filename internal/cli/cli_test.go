package cli

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/telelink/internal/config"
	"github.com/Dicklesworthstone/telelink/internal/errors"
	"github.com/Dicklesworthstone/telelink/internal/logging"
	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/wire"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func isolateHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "telelink dev")
}

func TestConfigCommand(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "telelink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target: 10.1.2.3\nhistory: 30\n"), 0o644))

	out, err := execute(t, "config", "--config", path, "--port", "9001")
	require.NoError(t, err)
	assert.Contains(t, out, "target: 10.1.2.3")
	assert.Contains(t, out, "port: 9001")
	assert.Contains(t, out, "history: 30")
	assert.Contains(t, out, "interval: 2s")
}

func TestConfigCommandRejectsInvalidFlags(t *testing.T) {
	isolateHome(t)
	_, err := execute(t, "config", "--port", "0")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestReceiveFailsWhenPortTaken(t *testing.T) {
	isolateHome(t)
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	port := strconv.Itoa(occupied.Addr().(*net.TCPAddr).Port)

	out, err := execute(t, "receive", "--listen", "127.0.0.1", "--port", port, "--log-level", "ERROR")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNetwork))
	assert.NotContains(t, out, "[OFFLINE]", "nothing renders after a bind failure")
}

func TestSendRejectsMissingDiskPath(t *testing.T) {
	isolateHome(t)
	missing := filepath.Join(t.TempDir(), "not-mounted")

	_, err := execute(t, "send", "--disk-path", missing, "--log-level", "ERROR")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSensor))
	assert.Contains(t, err.Error(), missing)
}

func TestLocalRejectsMissingDiskPath(t *testing.T) {
	cfg := config.Default()
	cfg.DiskPath = filepath.Join(t.TempDir(), "not-mounted")

	err := runLocal(context.Background(), cfg, logging.Discard(), false, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSensor))
}

func TestNewCollectorLogsProviderOrder(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.GPU.Enabled = false
	cfg.Audio.Enabled = true

	newCollector(cfg, logging.New(&buf, slog.LevelDebug))
	out := buf.String()
	assert.Contains(t, out, "temperature providers")
	assert.Contains(t, out, "sysfs-thermal")
	assert.Contains(t, out, "audio providers")
}

func TestSendStreamsSnapshots(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.Default()
	cfg.Target = "127.0.0.1"
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.Interval = 50 * time.Millisecond
	cfg.GPU.Enabled = false
	cfg.Audio.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runSend(ctx, cfg, logging.Discard()) }()

	require.NoError(t, ln.(*net.TCPListener).SetDeadline(time.Now().Add(5*time.Second)))
	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	reader := bufio.NewReader(conn)
	for range 2 {
		line, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		snap, err := wire.Decode(line)
		require.NoError(t, err)
		assert.Equal(t, model.NotAvailable, snap.GPU.Name)
		assert.False(t, snap.Audio.Available)
		assert.GreaterOrEqual(t, snap.CPU.Cores, 1)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("send did not stop after cancel")
	}
}

func TestReceiveRendersPlainLines(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.RenderInterval = 20 * time.Millisecond
	cfg.ReadTimeout = 50 * time.Millisecond

	out := &lockedBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runReceive(ctx, cfg, logging.Discard(), false, out) }()

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("[OFFLINE] waiting for first snapshot"))
	}, 5*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", cfg.ListenAddr())
	require.NoError(t, err)
	defer conn.Close()

	snap := model.Zero()
	snap.Timestamp = time.Now().UTC()
	snap.CPU.Usage = 42
	line, err := wire.Encode(snap)
	require.NoError(t, err)
	_, err = conn.Write(line)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("[FRESH] seq=1"))
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "cpu=42.0%")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not stop after cancel")
	}
}
