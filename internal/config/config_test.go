package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "stun:stun.l.google.com:19302", cfg.STUNServer)
	assert.Equal(t, 20*time.Second, cfg.Signaller.PingPeriod)
	assert.Equal(t, "raw", cfg.Downstream.Audio)
	assert.False(t, cfg.Filter.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
audio_codecs: [OPUS]
turn_servers: ["turn://u:p@relay:3478"]
meta:
  room: lobby
signaller:
  url: ws://signal.test/ws
  ping_period: 5s
downstream:
  video: encoded
filter:
  enabled: true
`), 0o600))
	t.Setenv("RTCSUB_PORT", "9100")
	t.Setenv("RTCSUB_SIGNALLER_URI", "wss://room.test/1")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, []string{"OPUS"}, cfg.AudioCodecs)
	assert.Equal(t, []string{"turn://u:p@relay:3478"}, cfg.TURNServers)
	assert.Equal(t, "lobby", cfg.Meta["room"])
	assert.Equal(t, "ws://signal.test/ws", cfg.Signaller.URL)
	assert.Equal(t, "wss://room.test/1", cfg.Signaller.URI)
	assert.Equal(t, 5*time.Second, cfg.Signaller.PingPeriod)
	assert.Equal(t, "encoded", cfg.Downstream.Video)
	assert.True(t, cfg.Filter.Enabled)
}

func TestLoadRejectsUnknownDownstream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("downstream:\n  audio: decoded\n"), 0o600))
	_, err := LoadFile(path)
	assert.Error(t, err)
}
