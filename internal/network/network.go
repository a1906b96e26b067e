// Package network is the ENet transport between the core and the race server
// relay.
package network

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/codecat/go-enet"
)

var (
	ErrNotStarted = errors.New("server not started")
	ErrNoRelay    = errors.New("no relay connected")
)

// DisconnectReasonFull is sent to relays connecting past max_relays.
const DisconnectReasonFull uint32 = 1

type Server struct {
	host     enet.Host
	port     uint16
	maxPeers int
	logger   *slog.Logger

	// relays in connection order, the first one owns the race session
	relays []enet.Peer
}

type Event struct {
	Type      EventType
	Peer      enet.Peer
	Data      []byte
	ChannelID uint8
}

type EventType int

const (
	EventTypeNone EventType = iota
	EventTypeConnect
	EventTypeDisconnect
	EventTypeReceive
)

func NewServer(port int, maxPeers int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPeers <= 0 {
		return nil, fmt.Errorf("max peers must be positive, got %d", maxPeers)
	}

	return &Server{
		port:     uint16(port),
		maxPeers: maxPeers,
		logger:   logger,
	}, nil
}

func (s *Server) Start() error {
	address := enet.NewListenAddress(s.port)

	var err error
	// one spare slot so an extra relay can be told it is not welcome
	s.host, err = enet.NewHost(address, uint64(s.maxPeers+1), 1, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to create ENet host: %w", err)
	}

	if err := s.host.CompressWithRangeCoder(); err != nil {
		return fmt.Errorf("failed to setup range coder compression: %w", err)
	}

	s.logger.Info("relay listener started", "port", s.port, "max_relays", s.maxPeers)
	return nil
}

func (s *Server) Stop() {
	if s.host == nil {
		return
	}
	for _, peer := range s.relays {
		peer.DisconnectNow(0)
	}
	s.relays = nil
	s.host.Destroy()
	s.host = nil
	s.logger.Info("relay listener stopped")
}

// Service polls the host once. Connections beyond the relay limit are refused
// here and surface as EventTypeNone.
func (s *Server) Service(timeout time.Duration) (*Event, error) {
	if s.host == nil {
		return nil, ErrNotStarted
	}

	enetEvent := s.host.Service(uint32(timeout.Milliseconds()))
	if enetEvent == nil || enetEvent.GetType() == enet.EventNone {
		return &Event{Type: EventTypeNone}, nil
	}

	event := &Event{
		Peer: enetEvent.GetPeer(),
	}

	switch enetEvent.GetType() {
	case enet.EventConnect:
		if len(s.relays) >= s.maxPeers {
			s.logger.Warn("relay limit reached, refusing connection", "peer", event.Peer.GetAddress())
			event.Peer.DisconnectNow(DisconnectReasonFull)
			return &Event{Type: EventTypeNone}, nil
		}
		s.relays = append(s.relays, event.Peer)
		event.Type = EventTypeConnect
		s.logger.Info("relay connected", "peer", event.Peer.GetAddress(), "relays", len(s.relays))

	case enet.EventDisconnect:
		idx := slices.Index(s.relays, event.Peer)
		if idx < 0 {
			return &Event{Type: EventTypeNone}, nil
		}
		s.relays = slices.Delete(s.relays, idx, idx+1)
		event.Type = EventTypeDisconnect
		s.logger.Info("relay disconnected", "peer", event.Peer.GetAddress(), "relays", len(s.relays))

	case enet.EventReceive:
		event.Type = EventTypeReceive
		packet := enetEvent.GetPacket()
		if packet != nil {
			event.Data = slices.Clone(packet.GetData())
			event.ChannelID = enetEvent.GetChannelID()
			packet.Destroy()
		}
	}

	return event, nil
}

// Primary reports whether peer is the relay that owns the race session.
func (s *Server) Primary(peer enet.Peer) bool {
	return len(s.relays) > 0 && s.relays[0] == peer
}

// Connected reports whether a relay is attached.
func (s *Server) Connected() bool {
	return len(s.relays) > 0
}

// Send delivers data reliably to the primary relay.
func (s *Server) Send(data []byte) error {
	if s.host == nil {
		return ErrNotStarted
	}
	if len(s.relays) == 0 {
		return ErrNoRelay
	}
	return s.SendPacket(s.relays[0], data, true)
}

func (s *Server) SendPacket(peer enet.Peer, data []byte, reliable bool) error {
	if peer == nil {
		return fmt.Errorf("peer is nil")
	}

	flags := enet.PacketFlagUnsequenced
	if reliable {
		flags = enet.PacketFlagReliable
	}

	packet, err := enet.NewPacket(data, flags)
	if err != nil {
		return fmt.Errorf("failed to create packet: %w", err)
	}

	if err := peer.SendPacket(packet, 0); err != nil {
		return fmt.Errorf("failed to send packet: %w", err)
	}

	return nil
}

// Broadcast sends data to every attached relay.
func (s *Server) Broadcast(data []byte, reliable bool) error {
	if s.host == nil {
		return ErrNotStarted
	}
	if len(s.relays) == 0 {
		return ErrNoRelay
	}

	flags := enet.PacketFlagUnsequenced
	if reliable {
		flags = enet.PacketFlagReliable
	}

	if err := s.host.BroadcastBytes(data, 0, flags); err != nil {
		return fmt.Errorf("failed to broadcast: %w", err)
	}

	return nil
}
