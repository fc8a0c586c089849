package network

import (
	"fmt"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/rs/zerolog/log"
	"github.com/tinylib/msgp/msgp"

	"github.com/heitortanoue/warehouse-swarm/logging"
	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// SwimConfig configures a radio over a SWIM membership
type SwimConfig struct {
	NodeName   string   // unique member name, e.g. "device-7"
	BindAddr   string   // e.g. "0.0.0.0"
	BindPort   int      // SWIM port, 7946 by default
	Seeds      []string // members to join on start
	MaxSenders int
	MaxSize    int // 0 disables the ceiling
}

// SwimRadio uses a memberlist cluster as the neighborhood. Exports travel as
// best-effort user messages to every live member, and a member that leaves
// the cluster is removed from the neighbor table at once.
type SwimRadio struct {
	*receiver
	ml     *memberlist.Memberlist
	name   string
	logger *logging.DeviceLogger
}

// swimDelegate receives user messages and advertises the device id as metadata
type swimDelegate struct {
	radio *SwimRadio
}

func (d *swimDelegate) NodeMeta(limit int) []byte {
	return msgp.AppendUint32(nil, uint32(d.radio.self))
}

func (d *swimDelegate) NotifyMsg(b []byte) {
	data := make([]byte, len(b))
	copy(data, b)
	if err := d.radio.accept(data, time.Now()); err != nil {
		log.Debug().Str("component", "swim").Err(err).Msg("dropped frame")
	}
}

func (d *swimDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *swimDelegate) LocalState(join bool) []byte                { return nil }
func (d *swimDelegate) MergeRemoteState(buf []byte, join bool)     {}

// swimEvents keeps the neighbor table in step with cluster membership
type swimEvents struct {
	radio *SwimRadio
}

func (e *swimEvents) NotifyJoin(n *memberlist.Node) {
	if n.Name != e.radio.name {
		e.radio.logger.LogPeerJoin(n.Name)
	}
}

func (e *swimEvents) NotifyLeave(n *memberlist.Node) {
	e.radio.logger.LogPeerLeave(n.Name)
	if id, ok := memberDevice(n); ok {
		e.radio.table.Remove(id)
		e.radio.window.Forget(id)
	}
}

func (e *swimEvents) NotifyUpdate(n *memberlist.Node) {
	log.Debug().Str("component", "swim").Str("node", n.Name).Msg("member updated")
}

func memberDevice(n *memberlist.Node) (aggregate.DeviceID, bool) {
	id, _, err := msgp.ReadUint32Bytes(n.Meta)
	if err != nil {
		return 0, false
	}
	return aggregate.DeviceID(id), true
}

// NewSwimRadio creates the memberlist and joins the seeds
func NewSwimRadio(self aggregate.DeviceID, table *NeighborTable, config SwimConfig) (*SwimRadio, error) {
	r := &SwimRadio{
		receiver: newReceiver(self, table, config.MaxSenders, config.MaxSize),
		name:     config.NodeName,
		logger:   logging.NewDeviceLogger(self),
	}

	cfg := memberlist.DefaultLANConfig()
	cfg.Name = config.NodeName
	cfg.BindAddr = config.BindAddr
	cfg.BindPort = config.BindPort
	cfg.Delegate = &swimDelegate{radio: r}
	cfg.Events = &swimEvents{radio: r}
	cfg.PushPullInterval = 30 * time.Second
	cfg.ProbeTimeout = time.Second
	cfg.ProbeInterval = 5 * time.Second

	ml, err := memberlist.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	r.ml = ml

	seeds := make([]string, 0, len(config.Seeds))
	for _, seed := range config.Seeds {
		if seed != config.NodeName {
			seeds = append(seeds, seed)
		}
	}
	if len(seeds) > 0 {
		n, err := ml.Join(seeds)
		if err != nil {
			log.Warn().Str("component", "swim").Strs("seeds", seeds).Err(err).Msg("join failed")
		} else {
			log.Info().Str("component", "swim").Int("joined", n).Msg("joined cluster")
		}
	}
	return r, nil
}

// SetObserver registers the observer of export sizes
func (r *SwimRadio) SetObserver(o SizeObserver) {
	r.observer = o
}

// Broadcast sends the export of a round to every live member
func (r *SwimRadio) Broadcast(msg aggregate.Message) error {
	data, err := r.frame(msg)
	if err != nil {
		return err
	}
	var firstErr error
	for _, member := range r.ml.Members() {
		if member.Name == r.name {
			continue
		}
		if err := r.ml.SendBestEffort(member, data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send to %s: %w", member.Name, err)
		}
	}
	return firstErr
}

// NumMembers returns the number of live members, this one included
func (r *SwimRadio) NumMembers() int {
	return r.ml.NumMembers()
}

// Leave announces departure and shuts the memberlist down
func (r *SwimRadio) Leave(timeout time.Duration) error {
	if err := r.ml.Leave(timeout); err != nil {
		return fmt.Errorf("leave cluster: %w", err)
	}
	return r.ml.Shutdown()
}

// GetStats returns statistics of the radio
func (r *SwimRadio) GetStats() map[string]interface{} {
	stats := r.stats()
	stats["swim_members"] = r.ml.NumMembers()
	stats["swim_node"] = r.name
	return stats
}
