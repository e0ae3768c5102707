package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "info", "json"))

	log.Debug("hidden")
	log.WithField("report_id", "abc").Info("report stored")

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	assert.Equal(t, "report stored", m["message"])
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "abc", m["fields"].(map[string]interface{})["report_id"])
}

func TestSetup_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "debug", "text"))

	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestSetup_Rejects(t *testing.T) {
	assert.Error(t, Setup(&bytes.Buffer{}, "loud", "text"))
	assert.Error(t, Setup(&bytes.Buffer{}, "info", "xml"))
}
