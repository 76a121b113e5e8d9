package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestSetupInvalidLogLevel(t *testing.T) {
	_, err := Setup(Config{}, nil)
	require.ErrorContains(t, err, "Invalid log level")

	_, err = Setup(Config{LogLevel: "LOUD"}, nil)
	require.Error(t, err)
}

func TestSetupErrorAlias(t *testing.T) {
	for _, level := range []string{"ERR", "error"} {
		var buf bytes.Buffer
		logger, err := Setup(Config{LogLevel: level}, &buf)
		require.NoError(t, err)
		require.Equal(t, hclog.Error, logger.GetLevel())

		logger.Warn("skipped")
		require.Empty(t, buf.String())
		logger.Error("kept")
		require.Contains(t, buf.String(), "kept")
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Config{LogLevel: "INFO", LogJSON: true, Name: "boxmux"}, &buf)
	require.NoError(t, err)

	logger.Info("connection accepted", "conn_id", "c1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "connection accepted", entry["@message"])
	require.Equal(t, "boxmux", entry["@module"])
	require.Equal(t, "c1", entry["conn_id"])
}
