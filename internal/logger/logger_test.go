package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmitsJSONWithServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:       "debug",
		Environment: "production",
		ServiceName: "be-hr-approvals",
		Version:     "1.2.3",
		Output:      &buf,
	})

	log.Component("registry").Info().Str("policy_id", "p-1").Msg("Policy activated")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "be-hr-approvals", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "p-1", entry["policy_id"])
	assert.Equal(t, "Policy activated", entry["message"])
}

func TestNewFallsBackToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "chatty", Output: &buf})

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}
