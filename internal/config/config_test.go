package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitortanoue/warehouse-swarm/pkg/state"
	"github.com/heitortanoue/warehouse-swarm/pkg/warehouse"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, warehouse.DefaultParams(), cfg.Params())
	assert.Equal(t, 0, cfg.Sim.MaxMessageSize)

	sc := cfg.SimulationConfig()
	assert.Equal(t, time.Second, sc.Schedule.Period)
	assert.Equal(t, cfg.Params(), sc.Params)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.toml")
	data := `
mode = "node"

[device]
id = 7
type = "pallet"

[round]
period = "500ms"
jitter = "50ms"

[radio]
transport = "udp"
peers = ["10.0.0.2:7000"]
max_message_size = 224

[routing]
distortion = 25.0

[warehouse]
quantum = "200ms"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node", cfg.Mode)
	assert.Equal(t, uint32(7), cfg.Device.ID)
	typ, err := cfg.DeviceType()
	require.NoError(t, err)
	assert.Equal(t, state.Pallet, typ)
	assert.Equal(t, 500*time.Millisecond, cfg.Round.Period)
	assert.Equal(t, 3*time.Second, cfg.Round.Retain, "unset keys keep their default")
	assert.Equal(t, []string{"10.0.0.2:7000"}, cfg.Radio.Peers)
	assert.Equal(t, HardwareMessageLimit, cfg.Radio.MaxMessageSize)
	assert.Equal(t, 25.0, cfg.Params().Distortion)
	assert.Equal(t, 200*time.Millisecond, cfg.Params().Quantum)
	assert.Equal(t, 100.0, cfg.Params().HandoffRange)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"mode":      `mode = "batch"`,
		"type":      "[device]\ntype = \"forklift\"",
		"transport": "[radio]\ntransport = \"tcp\"",
		"jitter":    "[round]\nperiod = \"1s\"\njitter = \"2s\"",
		"syntax":    `mode = `,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}
