package protocol

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// Radio sends a round export to the neighbors in reach
type Radio interface {
	Broadcast(msg aggregate.Message) error
}

// Neighborhood provides the latest message of every neighbor still in reach
type Neighborhood interface {
	Snapshot(now time.Time) []aggregate.Message
}

// LoopConfig schedules the rounds of a live device
type LoopConfig struct {
	Period time.Duration
	// Jitter spreads each period uniformly in [Period-Jitter, Period+Jitter]
	Jitter time.Duration
}

// RoundLoop runs the rounds of a device on its own jittered schedule.
// There is no barrier with other devices: each round uses whatever the
// neighborhood holds at that moment.
type RoundLoop struct {
	device   *aggregate.Device
	program  aggregate.Program
	radio    Radio
	nbrs     Neighborhood
	position func() aggregate.Vec3
	config   LoopConfig

	// OnRound is called after every round with its export and send error
	OnRound func(exp aggregate.Export, err error)

	rounds     uint64
	sendErrors uint64
	rng        *rand.Rand

	running bool
	stopCh  chan struct{}
	mutex   sync.RWMutex
}

// NewRoundLoop creates the round loop of a device
func NewRoundLoop(device *aggregate.Device, program aggregate.Program, radio Radio, nbrs Neighborhood, position func() aggregate.Vec3, config LoopConfig) *RoundLoop {
	if config.Period <= 0 {
		config.Period = time.Second
	}
	if config.Jitter < 0 || config.Jitter >= config.Period {
		config.Jitter = 0
	}
	return &RoundLoop{
		device:   device,
		program:  program,
		radio:    radio,
		nbrs:     nbrs,
		position: position,
		config:   config,
		rng:      rand.New(rand.NewSource(int64(device.ID()) + time.Now().UnixNano())),
		stopCh:   make(chan struct{}),
	}
}

// Start starts the loop in the background
func (rl *RoundLoop) Start() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if rl.running {
		return
	}

	rl.running = true
	log.Info().
		Str("component", "rounds").
		Uint32("device", uint32(rl.device.ID())).
		Dur("period", rl.config.Period).
		Msg("round loop started")

	go rl.loop()
}

// Stop stops the loop
func (rl *RoundLoop) Stop() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if !rl.running {
		return
	}

	rl.running = false
	close(rl.stopCh)
	log.Info().
		Str("component", "rounds").
		Uint32("device", uint32(rl.device.ID())).
		Msg("round loop stopped")
}

func (rl *RoundLoop) loop() {
	for {
		select {
		case <-time.After(rl.nextInterval()):
			rl.RunOnce(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RoundLoop) nextInterval() time.Duration {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if rl.config.Jitter == 0 {
		return rl.config.Period
	}
	spread := rl.rng.Int63n(int64(2*rl.config.Jitter) + 1)
	return rl.config.Period - rl.config.Jitter + time.Duration(spread)
}

// RunOnce executes a single round at the given time and broadcasts its export
func (rl *RoundLoop) RunOnce(now time.Time) aggregate.Export {
	pos := rl.position()
	exp := rl.device.Round(now, pos, rl.nbrs.Snapshot(now), rl.program)

	err := rl.radio.Broadcast(aggregate.Message{
		From:     rl.device.ID(),
		Position: pos,
		Export:   exp,
		Received: now,
	})

	rl.mutex.Lock()
	rl.rounds++
	if err != nil {
		rl.sendErrors++
	}
	rl.mutex.Unlock()

	if err != nil {
		log.Warn().
			Str("component", "rounds").
			Uint32("device", uint32(rl.device.ID())).
			Err(err).
			Msg("export not sent")
	}
	if rl.OnRound != nil {
		rl.OnRound(exp, err)
	}
	return exp
}

// GetStats returns statistics of the loop
func (rl *RoundLoop) GetStats() map[string]interface{} {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	return map[string]interface{}{
		"device_id":   rl.device.ID(),
		"running":     rl.running,
		"rounds":      rl.rounds,
		"send_errors": rl.sendErrors,
		"period_ms":   rl.config.Period.Milliseconds(),
	}
}
