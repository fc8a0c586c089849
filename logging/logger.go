package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
)

// Profile selects how the process logs
type Profile struct {
	App     string
	Level   string
	NoColor bool
	JSON    bool
	Out     io.Writer
}

// Configure sets up the global logger once per process.
// WAREHOUSE_LOG_LEVEL and WAREHOUSE_LOG_NOCOLOR override the profile.
func Configure(p Profile) zerolog.Logger {
	if v := os.Getenv("WAREHOUSE_LOG_LEVEL"); v != "" {
		p.Level = v
	}
	if v := os.Getenv("WAREHOUSE_LOG_NOCOLOR"); v != "" && v != "0" && !strings.EqualFold(v, "false") {
		p.NoColor = true
	}
	if p.Out == nil {
		p.Out = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(p.Level))
	if err != nil || p.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := p.Out
	if !p.JSON {
		out = zerolog.ConsoleWriter{
			Out:        p.Out,
			NoColor:    p.NoColor,
			TimeFormat: time.RFC3339,
		}
	}
	logger := zerolog.New(out).With().Timestamp().Str("app", p.App).Logger()
	log.Logger = logger
	return logger
}

// DeviceLogger logs the events of one device
type DeviceLogger struct {
	id     aggregate.DeviceID
	logger zerolog.Logger
}

// NewDeviceLogger creates a logger tagged with the device id
func NewDeviceLogger(id aggregate.DeviceID) *DeviceLogger {
	return &DeviceLogger{
		id:     id,
		logger: log.With().Uint32("device", uint32(id)).Logger(),
	}
}

// LogRound records the outcome of a round
func (l *DeviceLogger) LogRound(round uint64, neighbors int, exportSize int) {
	l.logger.Debug().
		Str("event", "ROUND").
		Uint64("round", round).
		Int("neighbors", neighbors).
		Int("export_bytes", exportSize).
		Msg("round done")
}

// LogHandoff records a step of a hand-off with peer: "applied" on the pallet,
// "acknowledged" on the wearable
func (l *DeviceLogger) LogHandoff(stage string, peer aggregate.DeviceID, goods string) {
	l.logger.Info().
		Str("event", "HANDOFF").
		Str("stage", stage).
		Uint32("peer", uint32(peer)).
		Str("goods", goods).
		Msg("hand-off")
}

// LogRisk records entering or leaving a collision risk
func (l *DeviceLogger) LogRisk(atRisk bool) {
	ev := l.logger.Info()
	if atRisk {
		ev = l.logger.Warn()
	}
	ev.Str("event", "RISK").Bool("at_risk", atRisk).Msg("collision risk changed")
}

// LogCollected records logs delivered to this device
func (l *DeviceLogger) LogCollected(logs logset.Set, name func(uint8) string) {
	for _, e := range logs {
		l.logger.Info().
			Str("event", "COLLECTED").
			Str("type", name(e.Type)).
			Uint32("logger", uint32(e.Logger)).
			Uint8("time", e.Time).
			Uint32("content", e.Content).
			Msg("log collected")
	}
}

// LogPeerJoin records a new neighbor
func (l *DeviceLogger) LogPeerJoin(peer string) {
	l.logger.Info().Str("event", "PEER_JOIN").Str("peer", peer).Msg("peer joined")
}

// LogPeerLeave records a neighbor leaving
func (l *DeviceLogger) LogPeerLeave(peer string) {
	l.logger.Info().Str("event", "PEER_LEAVE").Str("peer", peer).Msg("peer left")
}

// LogDropped records an export that was not sent
func (l *DeviceLogger) LogDropped(size int, err error) {
	l.logger.Warn().Str("event", "DROPPED").Int("bytes", size).Err(err).Msg("export dropped")
}

// LogError records a failed operation
func (l *DeviceLogger) LogError(operation string, err error) {
	l.logger.Error().Str("event", "ERROR").Str("operation", operation).Err(err).Msg("operation failed")
}

// LogMetrics records a periodic summary
func (l *DeviceLogger) LogMetrics(operation string, duration time.Duration, count int) {
	rate := 0.0
	if duration > 0 {
		rate = float64(count) / duration.Seconds()
	}
	l.logger.Info().
		Str("event", "METRICS").
		Str("operation", operation).
		Dur("duration", duration).
		Int("count", count).
		Float64("per_sec", rate).
		Msg("metrics")
}
