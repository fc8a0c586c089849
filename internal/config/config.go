package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/heitortanoue/warehouse-swarm/pkg/sim"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
	"github.com/heitortanoue/warehouse-swarm/pkg/warehouse"
)

// HardwareMessageLimit is the largest export the wearable radios can carry
const HardwareMessageLimit = 224

// Config is the configuration of a warehouse process, either a simulation or
// a single live device.
type Config struct {
	Mode string `toml:"mode"` // "sim" or "node"

	Device     DeviceConfig     `toml:"device"`
	Round      RoundConfig      `toml:"round"`
	Radio      RadioConfig      `toml:"radio"`
	Routing    RoutingConfig    `toml:"routing"`
	Warehouse  WarehouseConfig  `toml:"warehouse"`
	Collection CollectionConfig `toml:"collection"`
	Sim        SimConfig        `toml:"sim"`
	Persist    PersistConfig    `toml:"persist"`
	API        APIConfig        `toml:"api"`
	Log        LogConfig        `toml:"log"`
}

// DeviceConfig identifies a live device
type DeviceConfig struct {
	ID   uint32 `toml:"id"`
	Type string `toml:"type"` // "pallet" or "wearable"
	// Position is fixed for live devices; positioning hardware is not wired
	Position [3]float64 `toml:"position"`
}

// RoundConfig schedules rounds
type RoundConfig struct {
	Period time.Duration `toml:"period"`
	Jitter time.Duration `toml:"jitter"`
	Retain time.Duration `toml:"retain"` // how long a neighbor message stays valid
}

// RadioConfig selects and tunes the transport of a live device
type RadioConfig struct {
	Transport  string   `toml:"transport"` // "swim" or "udp"
	BindAddr   string   `toml:"bind_addr"`
	Port       int      `toml:"port"`
	Seeds      []string `toml:"seeds"` // swim members to join
	Peers      []string `toml:"peers"` // udp destinations
	MaxSenders int      `toml:"max_senders"`
	// MaxMessageSize drops larger exports; 0 only measures them
	MaxMessageSize int `toml:"max_message_size"`
}

type RoutingConfig struct {
	Distortion float64 `toml:"distortion"`
}

type WarehouseConfig struct {
	HandoffRange    float64       `toml:"handoff_range"`
	CollisionRadius float64       `toml:"collision_radius"`
	CollisionSpeed  float64       `toml:"collision_speed"`
	SearchRange     float64       `toml:"search_range"`
	GridStep        float64       `toml:"grid_step"`
	MaxAdjacent     int           `toml:"max_adjacent"`
	Quantum         time.Duration `toml:"quantum"`
}

type CollectionConfig struct {
	MaxCollected int `toml:"max_collected"`
}

// SimConfig describes the simulated warehouse
type SimConfig struct {
	Seed           int64         `toml:"seed"`
	Duration       time.Duration `toml:"duration"`
	Pallets        int           `toml:"pallets"`
	EmptyPallets   int           `toml:"empty_pallets"`
	Wearables      int           `toml:"wearables"`
	ScheduleShape  float64       `toml:"schedule_shape"`
	CommRange      float64       `toml:"comm_range"`
	Radial         bool          `toml:"radial"`
	RadialHalf     float64       `toml:"radial_half"`
	Workload       bool          `toml:"workload"`
	ActionChance   float64       `toml:"action_chance"`
	MaxMessageSize int           `toml:"max_message_size"`
	ReportEvery    time.Duration `toml:"report_every"`
}

type PersistConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	Record  string `toml:"record"`
}

type APIConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type LogConfig struct {
	Level   string `toml:"level"`
	NoColor bool   `toml:"no_color"`
	JSON    bool   `toml:"json"`
}

// DefaultConfig returns the configuration of the reference warehouse
func DefaultConfig() *Config {
	params := warehouse.DefaultParams()
	sc := sim.DefaultConfig()
	return &Config{
		Mode:   "sim",
		Device: DeviceConfig{ID: 1, Type: "wearable"},
		Round: RoundConfig{
			Period: time.Second,
			Jitter: 100 * time.Millisecond,
			Retain: 3 * time.Second,
		},
		Radio: RadioConfig{
			Transport:  "swim",
			BindAddr:   "0.0.0.0",
			Port:       7946,
			MaxSenders: 1000,
		},
		Routing: RoutingConfig{Distortion: params.Distortion},
		Warehouse: WarehouseConfig{
			HandoffRange:    params.HandoffRange,
			CollisionRadius: params.CollisionRadius,
			CollisionSpeed:  params.CollisionSpeed,
			SearchRange:     params.SearchRange,
			GridStep:        params.GridStep,
			MaxAdjacent:     params.MaxAdjacent,
			Quantum:         params.Quantum,
		},
		Collection: CollectionConfig{MaxCollected: sc.MaxCollected},
		Sim: SimConfig{
			Seed:          sc.Seed,
			Duration:      300 * time.Second,
			Pallets:       sc.Pallets,
			EmptyPallets:  sc.EmptyPallets,
			Wearables:     sc.Wearables,
			ScheduleShape: sc.Schedule.Shape,
			CommRange:     sc.CommRange,
			RadialHalf:    sc.RadialHalf,
			Workload:      sc.Workload,
			ActionChance:  sc.ActionChance,
			ReportEvery:   30 * time.Second,
		},
		Persist: PersistConfig{Dir: "data", Record: "device"},
		API:     APIConfig{Enabled: true, Port: 8080},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads a TOML file over the defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the process misbehave
func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case "sim", "node":
	default:
		errs = append(errs, fmt.Errorf("mode %q: want sim or node", c.Mode))
	}
	if _, err := c.DeviceType(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Radio.Transport) {
	case "swim", "udp":
	default:
		errs = append(errs, fmt.Errorf("radio transport %q: want swim or udp", c.Radio.Transport))
	}
	if c.Round.Period <= 0 {
		errs = append(errs, errors.New("round period must be positive"))
	}
	if c.Round.Jitter < 0 || c.Round.Jitter >= c.Round.Period {
		errs = append(errs, errors.New("round jitter must be in [0, period)"))
	}
	if c.Warehouse.Quantum <= 0 {
		errs = append(errs, errors.New("log quantum must be positive"))
	}
	if c.Mode == "sim" && c.Sim.Duration <= 0 {
		errs = append(errs, errors.New("sim duration must be positive"))
	}
	if c.Sim.Radial && (c.Sim.RadialHalf <= 0.5 || c.Sim.RadialHalf >= 1) {
		errs = append(errs, errors.New("radial half must be in (0.5, 1)"))
	}
	return errors.Join(errs...)
}

// DeviceType parses the configured device type
func (c *Config) DeviceType() (state.DeviceType, error) {
	switch strings.ToLower(c.Device.Type) {
	case "pallet":
		return state.Pallet, nil
	case "wearable":
		return state.Wearable, nil
	}
	return 0, fmt.Errorf("device type %q: want pallet or wearable", c.Device.Type)
}

// Params returns the parameters of the warehouse program
func (c *Config) Params() warehouse.Params {
	return warehouse.Params{
		Distortion:      c.Routing.Distortion,
		HandoffRange:    c.Warehouse.HandoffRange,
		CollisionRadius: c.Warehouse.CollisionRadius,
		CollisionSpeed:  c.Warehouse.CollisionSpeed,
		SearchRange:     c.Warehouse.SearchRange,
		GridStep:        c.Warehouse.GridStep,
		MaxAdjacent:     c.Warehouse.MaxAdjacent,
		Quantum:         c.Warehouse.Quantum,
	}
}

// SimulationConfig returns the description of the simulated warehouse
func (c *Config) SimulationConfig() sim.Config {
	return sim.Config{
		Seed:         c.Sim.Seed,
		Pallets:      c.Sim.Pallets,
		EmptyPallets: c.Sim.EmptyPallets,
		Wearables:    c.Sim.Wearables,
		Schedule:     sim.Schedule{Period: c.Round.Period, Shape: c.Sim.ScheduleShape},
		Retain:       c.Round.Retain,
		CommRange:    c.Sim.CommRange,
		Radial:       c.Sim.Radial,
		RadialHalf:   c.Sim.RadialHalf,
		MaxSize:      c.Sim.MaxMessageSize,
		Workload:     c.Sim.Workload,
		ActionChance: c.Sim.ActionChance,
		MaxCollected: c.Collection.MaxCollected,
		Params:       c.Params(),
	}
}
