package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("prod", &buf)
	log.Debug("hidden")
	log.Info("visible", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "visible", line["msg"])
	assert.Equal(t, "v", line["k"])
}

func TestNew_LocalWritesDebugText(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("local", &buf)
	log.Debug("debug line")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "debug line")
}
