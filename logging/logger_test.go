package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestConfigureLevelFromEnv(t *testing.T) {
	t.Setenv("WAREHOUSE_LOG_LEVEL", "warn")
	var buf bytes.Buffer
	Configure(Profile{App: "test", Level: "debug", JSON: true, Out: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	dl := NewDeviceLogger(5)
	dl.LogPeerJoin("device-6")
	dl.LogDropped(300, errors.New("too big"))

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "DROPPED", got[0]["event"])
	assert.Equal(t, 5.0, got[0]["device"])
	assert.Equal(t, "test", got[0]["app"])
}

func TestDeviceLoggerEvents(t *testing.T) {
	t.Setenv("WAREHOUSE_LOG_LEVEL", "")
	var buf bytes.Buffer
	Configure(Profile{App: "test", Level: "debug", JSON: true, Out: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	dl := NewDeviceLogger(2)
	dl.LogRound(3, 4, 120)
	dl.LogHandoff("applied", 9, "goods-1")
	dl.LogRisk(true)
	dl.LogCollected(logset.FromEntries(logset.Entry{Type: 1, Logger: 9}), func(uint8) string { return "pallet_loaded" })
	dl.LogPeerLeave("device-9")
	dl.LogError("save", errors.New("disk full"))
	dl.LogMetrics("rounds", time.Second, 10)

	got := lines(t, &buf)
	require.Len(t, got, 7)
	events := make([]string, len(got))
	for i, m := range got {
		events[i] = m["event"].(string)
	}
	assert.Equal(t, []string{"ROUND", "HANDOFF", "RISK", "COLLECTED", "PEER_LEAVE", "ERROR", "METRICS"}, events)
	assert.Equal(t, "applied", got[1]["stage"])
	assert.Equal(t, 9.0, got[1]["peer"])
	assert.Equal(t, "warn", got[2]["level"])
	assert.Equal(t, "pallet_loaded", got[3]["type"])
	assert.Equal(t, 10.0, got[6]["per_sec"])
}
