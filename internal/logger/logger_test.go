package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSONWritesComponentField(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	})

	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "debug", Format: "json"}, &buf))

	l := WithComponent("invoices")
	l.Info().Str("id", "inv-1").Msg("invoice created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "invoices", entry["component"])
	assert.Equal(t, "inv-1", entry["id"])
	assert.Equal(t, "info", entry["level"])
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Setup(Config{Level: "loud"}, &bytes.Buffer{}))
}
