package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestGetForComponent(t *testing.T) {
	prevLogger, prevLevel := Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	InitializeWithWriter("info", &buf)

	l := GetForComponent("pool_fetcher")
	l.Debug().Msg("hidden")
	l.Info().Int("pools", 3).Msg("Fetched pools")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "pool_fetcher", line["component"])
	assert.Equal(t, float64(3), line["pools"])
	assert.Equal(t, "Fetched pools", line["message"])
	assert.Contains(t, line, "time")
	assert.Contains(t, line, "caller")
}
