package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsync/config"
)

func TestNewFred_APIKeyResolution(t *testing.T) {
	prev := config.AppConfig
	t.Cleanup(func() { config.AppConfig = prev })

	config.AppConfig = nil
	_, err := NewFred(nil)
	assert.Error(t, err, "no key anywhere must be rejected")

	config.AppConfig = &config.Config{FredAPIKey: "env-key"}
	source, err := NewFred(nil)
	require.NoError(t, err)
	assert.Equal(t, "env-key", source.(*Fred).apiKey)

	// the per-task key wins over the environment setting
	source, err = NewFred(map[string]string{"api_key": "task-key"})
	require.NoError(t, err)
	assert.Equal(t, "task-key", source.(*Fred).apiKey)
}
