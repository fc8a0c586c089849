package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/heitortanoue/warehouse-swarm/internal/config"
	"github.com/heitortanoue/warehouse-swarm/logging"
	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/api"
	"github.com/heitortanoue/warehouse-swarm/pkg/network"
	"github.com/heitortanoue/warehouse-swarm/pkg/persist"
	"github.com/heitortanoue/warehouse-swarm/pkg/protocol"
	"github.com/heitortanoue/warehouse-swarm/pkg/sim"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
	"github.com/heitortanoue/warehouse-swarm/pkg/telemetry"
	"github.com/heitortanoue/warehouse-swarm/pkg/warehouse"
	"github.com/heitortanoue/warehouse-swarm/pkg/wire"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		mode       = flag.String("mode", "", "sim or node")
		deviceID   = flag.Uint("id", 0, "Device id (node mode)")
		deviceType = flag.String("type", "", "pallet or wearable (node mode)")
		transport  = flag.String("transport", "", "swim or udp (node mode)")
		bindAddr   = flag.String("bind", "", "Bind address of the radio")
		radioPort  = flag.Int("port", 0, "Port of the radio")
		seeds      = flag.String("seeds", "", "Comma separated swim members to join")
		peers      = flag.String("peers", "", "Comma separated udp peers")
		apiPort    = flag.Int("api-port", 0, "HTTP status port")
		noAPI      = flag.Bool("no-api", false, "Disable the HTTP status surface")
		duration   = flag.Duration("duration", 0, "Simulated time (sim mode)")
		seed       = flag.Int64("seed", 0, "Random seed (sim mode)")
		logLevel   = flag.String("log-level", "", "Log level")
		showUsage  = flag.Bool("help", false, "Show usage help")
	)
	flag.Parse()

	if *showUsage {
		printUsage()
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// flags given explicitly win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "id":
			cfg.Device.ID = uint32(*deviceID)
		case "type":
			cfg.Device.Type = *deviceType
		case "transport":
			cfg.Radio.Transport = *transport
		case "bind":
			cfg.Radio.BindAddr = *bindAddr
		case "port":
			cfg.Radio.Port = *radioPort
		case "seeds":
			cfg.Radio.Seeds = splitList(*seeds)
		case "peers":
			cfg.Radio.Peers = splitList(*peers)
		case "api-port":
			cfg.API.Port = *apiPort
		case "no-api":
			cfg.API.Enabled = !*noAPI
		case "duration":
			cfg.Sim.Duration = *duration
		case "seed":
			cfg.Sim.Seed = *seed
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logging.Configure(logging.Profile{
		App:     "warehouse-" + cfg.Mode,
		Level:   cfg.Log.Level,
		NoColor: cfg.Log.NoColor,
		JSON:    cfg.Log.JSON,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var err error
	if cfg.Mode == "sim" {
		err = runSim(cfg, sigCh)
	} else {
		err = runNode(cfg, sigCh)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func startAPI(cfg *config.Config, source api.Source, g prometheus.Gatherer) *api.Server {
	if !cfg.API.Enabled {
		return nil
	}
	srv := api.NewServer(source, g, cfg.API.Port)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Str("component", "api").Err(err).Msg("server failed")
		}
	}()
	return srv
}

func stopAPI(srv *api.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Warn().Str("component", "api").Err(err).Msg("shutdown failed")
	}
}

func runSim(cfg *config.Config, sigCh <-chan os.Signal) error {
	swarm := sim.New(cfg.SimulationConfig(), prometheus.DefaultRegisterer)
	srv := startAPI(cfg, swarm, nil)
	defer stopAPI(srv)

	every := cfg.Sim.ReportEvery
	if every <= 0 {
		every = cfg.Sim.Duration
	}
	start := time.Now()
	for at := every; ; at += every {
		if at > cfg.Sim.Duration {
			at = cfg.Sim.Duration
		}
		rounds := swarm.Run(at)
		stats := swarm.GetStats()
		log.Info().
			Str("component", "sim").
			Dur("sim_time", swarm.Now()).
			Int("rounds", rounds).
			Interface("delivery", stats["delivery"]).
			Interface("medium", stats["medium"]).
			Msg("progress")

		select {
		case <-sigCh:
			log.Info().Str("component", "sim").Msg("interrupted")
			return nil
		default:
		}
		if at >= cfg.Sim.Duration {
			break
		}
	}

	log.Info().
		Str("component", "sim").
		Str("run", swarm.RunID().String()).
		Dur("wall", time.Since(start)).
		Interface("stats", swarm.GetStats()).
		Msg("simulation finished")
	return nil
}

// radio is a transport of a live device
type radio interface {
	protocol.Radio
	SetObserver(network.SizeObserver)
	GetStats() map[string]interface{}
}

func newRadio(cfg *config.Config, id aggregate.DeviceID, table *network.NeighborTable) (radio, func(), error) {
	if strings.ToLower(cfg.Radio.Transport) == "udp" {
		r, err := network.NewUDPServer(id, table, network.UDPConfig{
			Port:       cfg.Radio.Port,
			Peers:      cfg.Radio.Peers,
			MaxSenders: cfg.Radio.MaxSenders,
			MaxSize:    cfg.Radio.MaxMessageSize,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := r.Start(); err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Stop() }, nil
	}

	r, err := network.NewSwimRadio(id, table, network.SwimConfig{
		NodeName:   fmt.Sprintf("device-%d", id),
		BindAddr:   cfg.Radio.BindAddr,
		BindPort:   cfg.Radio.Port,
		Seeds:      cfg.Radio.Seeds,
		MaxSenders: cfg.Radio.MaxSenders,
		MaxSize:    cfg.Radio.MaxMessageSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return r, func() {
		if err := r.Leave(time.Second); err != nil {
			log.Warn().Str("component", "swim").Err(err).Msg("leave failed")
		}
	}, nil
}

func runNode(cfg *config.Config, sigCh <-chan os.Signal) error {
	id := aggregate.DeviceID(cfg.Device.ID)
	typ, err := cfg.DeviceType()
	if err != nil {
		return err
	}
	st := state.NewDeviceState(id, typ, cfg.Collection.MaxCollected)
	dl := logging.NewDeviceLogger(id)

	var store *persist.Store
	if cfg.Persist.Enabled {
		if store, err = persist.NewStore(cfg.Persist.Dir); err != nil {
			return err
		}
		data, err := store.Load(cfg.Persist.Record)
		switch {
		case err == nil:
			if err := st.RestoreRecord(data); err != nil {
				dl.LogError("restore", err)
			}
		case errors.Is(err, persist.ErrNotFound):
		default:
			// a corrupt record reads as empty
			dl.LogError("load", err)
		}
	}

	table := network.NewNeighborTable(id, cfg.Round.Retain)
	rd, stopRadio, err := newRadio(cfg, id, table)
	if err != nil {
		return err
	}
	defer stopRadio()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	rd.SetObserver(metrics)
	params := cfg.Params()
	tracker := telemetry.NewDeliveryTracker(metrics, 0, params.Quantum, warehouse.LogTypeName)

	atRisk := false
	program := warehouse.Program(st, params, func(_ aggregate.DeviceID, res warehouse.Result) {
		metrics.ObserveRound()
		tracker.Created(res.NewLogs)
		if typ == state.Wearable {
			dl.LogCollected(tracker.Delivered(res.Collected, res.Clock), warehouse.LogTypeName)
		}
		if res.AtRisk != atRisk {
			atRisk = res.AtRisk
			dl.LogRisk(atRisk)
		}
	})

	pos := aggregate.Vec3(cfg.Device.Position)
	device := aggregate.NewDevice(id)
	loop := protocol.NewRoundLoop(device, program, rd, table, func() aggregate.Vec3 { return pos },
		protocol.LoopConfig{Period: cfg.Round.Period, Jitter: cfg.Round.Jitter})
	loop.OnRound = func(exp aggregate.Export, err error) {
		size, _ := wire.Size(exp)
		dl.LogRound(device.Rounds(), table.Count(), size)
		if errors.Is(err, network.ErrOversized) {
			dl.LogDropped(size, err)
		}
	}

	srv := startAPI(cfg, api.Device{St: st, Stats: func() map[string]interface{} {
		return map[string]interface{}{
			"state":     st.GetStats(),
			"rounds":    loop.GetStats(),
			"radio":     rd.GetStats(),
			"neighbors": table.GetStats(),
			"delivery":  tracker.GetStats(),
		}
	}}, nil)
	defer stopAPI(srv)

	log.Info().
		Str("component", "node").
		Uint32("device", uint32(id)).
		Stringer("type", typ).
		Str("transport", cfg.Radio.Transport).
		Int("port", cfg.Radio.Port).
		Dur("period", cfg.Round.Period).
		Msg("starting")
	started := time.Now()
	loop.Start()

	<-sigCh
	log.Info().Str("component", "node").Msg("shutdown signal received")
	loop.Stop()
	dl.LogMetrics("rounds", time.Since(started), int(device.Rounds()))

	if store != nil {
		if err := store.Save(cfg.Persist.Record, st.MarshalRecord()); err != nil {
			dl.LogError("save", err)
		}
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `
=== Warehouse Swarm ===

USAGE:
  %s [options]

MODES:
  sim    run a simulated warehouse in simulated time
  node   run one live device over swim or udp

OPTIONS:
`, os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENDPOINTS:
  GET /health      liveness and device count
  GET /state       summary of every device
  GET /state/:id   full state of a device
  GET /stats       process statistics
  GET /metrics     prometheus metrics

ENVIRONMENT:
  WAREHOUSE_LOG_LEVEL     overrides the log level
  WAREHOUSE_LOG_NOCOLOR   disables colored console output
`)
}
