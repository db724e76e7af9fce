package mrpc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidateRejectsUndersizedClientPool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClientPacketPoolSize = cfg.MaxConversations
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsOutOfRangeConversations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConversations = 0
	assert.Error(t, cfg.Validate())

	cfg.MaxConversations = 300
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigYAMLAppliesOverridesOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mrpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_conversations: 16\n"), 0o644))

	cfg, err := LoadConfigYAML(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.MaxConversations)
	assert.Equal(t, 512, cfg.ClientPacketPoolSize)
}
