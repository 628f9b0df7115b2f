package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/accessterm/cardid-go/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, name := range []string{EnvReader, EnvTimeout, EnvPANKey, EnvScanAllSFI, EnvLogLevel, EnvPulse} {
		t.Setenv(name, "")
	}

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.Equal(t, relay.DefaultPulse, c.Pulse)
	assert.Equal(t, "info", c.LogLevel)
	assert.False(t, c.ScanAllSFI)
}

func TestLoadFile(t *testing.T) {
	// registered so the values godotenv sets are cleaned up
	for _, name := range []string{EnvReader, EnvTimeout, EnvPANKey, EnvScanAllSFI, EnvLogLevel} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	t.Setenv(EnvReader, "ACS ACR122U")

	path := filepath.Join(t.TempDir(), ".env")
	content := "CARDID_READER=from file\nCARDID_TIMEOUT=5s\nCARDID_PAN_KEY=secret\nCARDID_SCAN_ALL_SFI=true\nCARDID_LOG_LEVEL=DEBUG\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ACS ACR122U", c.Reader)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, "secret", c.PANKey)
	assert.True(t, c.ScanAllSFI)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv(EnvTimeout, "soon")

	_, err := Load()
	assert.Error(t, err)
}
