package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/dergo/internal/capture"
	"github.com/Faultbox/dergo/internal/config"
	"github.com/Faultbox/dergo/internal/network"
	"github.com/Faultbox/dergo/internal/session"
)

// lampScene is a glTF file with a single point light and no buffers.
const lampScene = `{
  "asset": {"version": "2.0"},
  "extensionsUsed": ["KHR_lights_punctual"],
  "extensions": {"KHR_lights_punctual": {"lights": [{"type": "point", "intensity": 5}]}},
  "nodes": [{"name": "Lamp", "translation": [0, 3, 0], "extensions": {"KHR_lights_punctual": {"light": 0}}}],
  "scenes": [{"nodes": [0]}],
  "scene": 0
}`

func TestExportThenDump(t *testing.T) {
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "lamp.gltf")
	require.NoError(t, os.WriteFile(scenePath, []byte(lampScene), 0o644))
	out := filepath.Join(dir, "lamp.drgc")

	a := &app{cfg: config.Default()}
	n, err := a.runExport(context.Background(), scenePath, out, true)
	require.NoError(t, err)
	// Reset, WorldParams, Light, Render.
	assert.Equal(t, 4, n)

	var buf bytes.Buffer
	require.NoError(t, dump(context.Background(), &buf, out))
	text := buf.String()
	assert.Contains(t, text, "Reset")
	assert.Contains(t, text, `light 1 "Lamp" point energy=5`)
	assert.Contains(t, text, "Render")
	assert.Contains(t, text, "protocol v2")
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "lamp.gltf")
	require.NoError(t, os.WriteFile(scenePath, []byte(lampScene), 0o644))
	out := filepath.Join(dir, "lamp.drgc")
	a := &app{cfg: config.Default()}
	_, err := a.runExport(context.Background(), scenePath, out, false)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- nil
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		got <- b
	}()

	var buf bytes.Buffer
	addr := ln.Addr().String()
	require.NoError(t, replay(context.Background(), &buf, out, network.New(), addr))

	// The renderer sees the frames without the capture header.
	frames := data[len(capture.Magic)+1:]
	select {
	case b := <-got:
		assert.Equal(t, frames, b)
	case <-time.After(5 * time.Second):
		t.Fatal("renderer received nothing")
	}
	assert.Equal(t, fmt.Sprintf("replayed 3 frames (%d bytes) to %s\n", len(frames), addr), buf.String())
}

func TestReplayUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	path := filepath.Join(t.TempDir(), "empty.drgc")
	require.NoError(t, os.WriteFile(path, []byte(capture.Magic+"\x02"), 0o644))
	var buf bytes.Buffer
	assert.Error(t, replay(context.Background(), &buf, path, network.New(), addr))
	assert.Empty(t, buf.String())
}

func TestDumpMissingFile(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, dump(context.Background(), &buf, filepath.Join(t.TempDir(), "none.drgc")))
}

type fixedStatus session.Status

func (s fixedStatus) Status() session.Status { return session.Status(s) }

func TestRouter(t *testing.T) {
	tests := []struct {
		name   string
		status session.Status
		path   string
		code   int
		body   string
	}{
		{"healthy", session.StatusConnected, "/healthz", http.StatusOK, "connected"},
		{"disconnected", session.StatusDisconnected, "/healthz", http.StatusServiceUnavailable, "disconnected"},
		{"failed", session.StatusFailed, "/healthz", http.StatusServiceUnavailable, "failed"},
		{"metrics", session.StatusConnected, "/metrics", http.StatusOK, ""},
		{"unknown", session.StatusConnected, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(fixedStatus(tt.status), prometheus.NewRegistry())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := versionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", buf.String())
}

func TestConfigCommand(t *testing.T) {
	a := &app{cfg: config.Default()}
	a.cfg.Renderer.Address = "box:1"

	t.Run("print", func(t *testing.T) {
		var buf bytes.Buffer
		cmd := a.configCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, buf.String(), "address: box:1")
	})

	t.Run("write", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.yaml")
		var buf bytes.Buffer
		cmd := a.configCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--write", path})
		require.NoError(t, cmd.Execute())
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "address: box:1")
	})
}
