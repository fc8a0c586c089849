package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

const maxDatagram = 64 * 1024

// UDPConfig configures a UDP radio
type UDPConfig struct {
	Port       int
	Peers      []string // host:port of the devices in reach, or a broadcast address
	MaxSenders int
	MaxSize    int // 0 disables the ceiling
}

// UDPServer is a radio sending every round export as one datagram to a fixed
// peer list and feeding received frames into the neighbor table.
type UDPServer struct {
	*receiver
	conn    *net.UDPConn
	peers   []*net.UDPAddr
	port    int
	running bool
	mutex   sync.RWMutex
}

// NewUDPServer creates a UDP radio for a device
func NewUDPServer(self aggregate.DeviceID, table *NeighborTable, config UDPConfig) (*UDPServer, error) {
	peers := make([]*net.UDPAddr, 0, len(config.Peers))
	for _, p := range config.Peers {
		addr, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			return nil, fmt.Errorf("resolve peer %q: %w", p, err)
		}
		peers = append(peers, addr)
	}
	return &UDPServer{
		receiver: newReceiver(self, table, config.MaxSenders, config.MaxSize),
		peers:    peers,
		port:     config.Port,
	}, nil
}

// SetObserver registers the observer of export sizes
func (s *UDPServer) SetObserver(o SizeObserver) {
	s.observer = o
}

// Start binds the socket and starts reading frames
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen UDP: %w", err)
	}

	s.mutex.Lock()
	s.conn = conn
	s.running = true
	s.mutex.Unlock()

	log.Info().Str("component", "udp").Int("port", s.port).Int("peers", len(s.peers)).Msg("radio started")
	go s.handleIncomingPackets(conn)
	return nil
}

// Stop closes the socket
func (s *UDPServer) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.running = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *UDPServer) isRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

func (s *UDPServer) handleIncomingPackets(conn *net.UDPConn) {
	buffer := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if !s.isRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Str("component", "udp").Err(err).Msg("read failed")
			continue
		}
		data := make([]byte, n)
		copy(data, buffer[:n])
		if err := s.accept(data, time.Now()); err != nil {
			log.Debug().Str("component", "udp").Str("from", addr.String()).Err(err).Msg("dropped frame")
		}
	}
}

// LocalAddr returns the bound address, or nil before Start
func (s *UDPServer) LocalAddr() *net.UDPAddr {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Broadcast sends the export of a round to every peer
func (s *UDPServer) Broadcast(msg aggregate.Message) error {
	s.mutex.RLock()
	conn := s.conn
	s.mutex.RUnlock()
	if conn == nil {
		return errors.New("UDP radio not started")
	}

	data, err := s.frame(msg)
	if err != nil {
		return err
	}
	var firstErr error
	for _, peer := range s.peers {
		if _, err := conn.WriteToUDP(data, peer); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send to %s: %w", peer, err)
		}
	}
	return firstErr
}

// GetStats returns statistics of the radio
func (s *UDPServer) GetStats() map[string]interface{} {
	stats := s.stats()
	stats["udp_port"] = s.port
	stats["running"] = s.isRunning()
	stats["peers"] = len(s.peers)
	return stats
}
