package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup("info", false, &buf))

	log := Component("training")
	log.Info().Str("agent", "sac").Msg("episode")
	log.Debug().Msg("dropped below level")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "training", line["component"])
	assert.Equal(t, "sac", line["agent"])
	assert.Equal(t, "episode", line["message"])
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Setup("loud", false, &bytes.Buffer{}))
}
