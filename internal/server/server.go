// Package server owns the event loop that ties the relay connection to the
// competition. Everything that touches the competition runs on that loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codecat/go-enet"

	"github.com/siohaza/nightcup/internal/callbacks"
	"github.com/siohaza/nightcup/internal/competition"
	"github.com/siohaza/nightcup/internal/mapban"
	"github.com/siohaza/nightcup/internal/network"
	"github.com/siohaza/nightcup/internal/player"
	"github.com/siohaza/nightcup/internal/protocol"
	"github.com/siohaza/nightcup/internal/standings"
	"github.com/siohaza/nightcup/pkg/config"
	"github.com/siohaza/nightcup/pkg/lua"
)

var ErrStopped = errors.New("server stopped")

const (
	tickRate = 10 * time.Millisecond
	// eventBudget caps the packets handled per tick so posted tasks still run
	// under a packet flood.
	eventBudget = 100
	// startDelay separates the start announcement from the TA countdown.
	startDelay = 3 * time.Second
)

// transport is the part of network.Server the loop needs.
type transport interface {
	Start() error
	Stop()
	Service(timeout time.Duration) (*network.Event, error)
	Send(data []byte) error
	Broadcast(data []byte, reliable bool) error
	Primary(peer enet.Peer) bool
	Connected() bool
}

type Server struct {
	config    *config.Config
	transport transport
	logger    *slog.Logger
	startTime time.Time

	players  *player.Manager
	events   *callbacks.Dispatcher
	adapter  *callbacks.Adapter
	relay    *relay
	comp     *competition.Competition
	settings *competition.Settings

	luaCommands *lua.CommandManager
	luaAPI      *lua.API
	match       *mapban.Match

	tasks     chan func()
	backlog   []protocol.Packet
	nextID    uint32
	connected atomic.Bool
	stopped   chan struct{}
	stopOnce  atomic.Bool
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	net, err := network.NewServer(cfg.Server.Port, cfg.Server.MaxRelays, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create network server: %w", err)
	}

	return newServer(cfg, net, logger), nil
}

func newServer(cfg *config.Config, tr transport, logger *slog.Logger) *Server {
	s := &Server{
		config:    cfg,
		transport: tr,
		logger:    logger,
		players:   player.NewManager(cfg.Server.MaxSpectators),
		events:    callbacks.NewDispatcher(),
		tasks:     make(chan func(), 64),
		stopped:   make(chan struct{}),
	}

	s.adapter = callbacks.NewAdapter(s.players, s.events, logger)
	s.relay = &relay{s: s}
	s.settings = competition.NewSettings(cfg.Competition, cfg.Server.ChatPrefix)
	s.comp = competition.New(competition.Config{
		Control:   s.relay,
		Directory: s.players,
		Chat:      s.relay,
		Presenter: s.relay,
		Events:    s.events,
		Scheduler: loopScheduler{s: s},
		Logger:    logger.With("component", "competition"),
		Settings:  s.settings,
		Layout: standings.Layout{
			TopEntries:  cfg.Standings.TopEntries,
			Slots:       cfg.Standings.Slots(),
			Performance: cfg.Standings.PerformanceMode,
		},
		Whitelist:      cfg.Competition.Whitelist,
		TAScript:       cfg.Competition.TAScript,
		KOScript:       cfg.Competition.KOScript,
		RestoreDelay:   time.Duration(cfg.Competition.RestoreDelay) * time.Second,
		StartDelay:     startDelay,
		CommandTimeout: cfg.Server.CommandTimeout(),
	})

	s.luaCommands = lua.NewCommandManager(logger)
	s.luaAPI = lua.NewAPI(controller{s: s})
	s.luaAPI.SetCommandManager(s.luaCommands)

	return s
}

func (s *Server) Start() error {
	if err := s.luaCommands.LoadCommands(s.config.Server.CommandsDir, s.luaAPI); err != nil {
		s.logger.Warn("failed to load lua commands", "error", err)
	}

	if err := s.transport.Start(); err != nil {
		return fmt.Errorf("failed to start network: %w", err)
	}

	s.startTime = time.Now()
	s.logger.Info("server started", "name", s.config.Server.Name)
	return nil
}

// Run drives the loop until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("server context cancelled, exiting run loop")
			return nil

		case <-s.stopped:
			return nil

		case task := <-s.tasks:
			task()
			s.drainBacklog()

		case <-ticker.C:
			s.handleNetworkEvents()
		}
	}
}

// Stop shuts the transport down. Call it once Run has returned.
func (s *Server) Stop() {
	if !s.stopOnce.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("stopping server")

	close(s.stopped)
	if s.match != nil {
		s.match.Cancel()
	}
	s.transport.Stop()

	s.logger.Info("server stopped", "uptime", time.Since(s.startTime).Round(time.Second))
}

// Do runs fn on the loop and waits for it. It must not be called from the
// loop itself.
func (s *Server) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}

	select {
	case s.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// post queues fn for the loop without waiting. Safe from any goroutine,
// including the loop.
func (s *Server) post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.stopped:
	default:
		go func() {
			select {
			case s.tasks <- fn:
			case <-s.stopped:
			}
		}()
	}
}

// Connected reports whether a relay is attached. Safe from any goroutine.
func (s *Server) Connected() bool {
	return s.connected.Load()
}

func (s *Server) handleNetworkEvents() {
	for i := 0; i < eventBudget; i++ {
		event, err := s.transport.Service(0)
		if err != nil {
			s.logger.Error("network service error", "error", err)
			return
		}

		if event.Type == network.EventTypeNone {
			break
		}

		if pkt := s.handleEvent(event); pkt != nil {
			s.handlePacket(pkt)
		}
		s.drainBacklog()
	}
}

// handleEvent applies connection changes and decodes received data. It
// returns the packet to handle, if any.
func (s *Server) handleEvent(event *network.Event) protocol.Packet {
	switch event.Type {
	case network.EventTypeConnect:
		s.handleConnect(event.Peer)

	case network.EventTypeDisconnect:
		s.handleDisconnect(event.Peer)

	case network.EventTypeReceive:
		if !s.transport.Primary(event.Peer) {
			return nil
		}
		pkt, err := protocol.Decode(event.Data)
		if err != nil {
			s.logger.Warn("dropping malformed packet", "error", err, "size", len(event.Data))
			return nil
		}
		return pkt
	}
	return nil
}

func (s *Server) handleConnect(peer enet.Peer) {
	if !s.transport.Primary(peer) {
		s.logger.Info("observer relay attached")
		return
	}
	s.connected.Store(true)
	s.logger.Info("relay attached, waiting for hello")
}

func (s *Server) handleDisconnect(peer enet.Peer) {
	if s.transport.Connected() {
		return
	}
	s.connected.Store(false)
	s.players.Clear()
	s.logger.Warn("relay detached, player directory cleared", "phase", s.comp.Phase())
}

func (s *Server) drainBacklog() {
	for len(s.backlog) > 0 {
		pkt := s.backlog[0]
		s.backlog = s.backlog[1:]
		s.handlePacket(pkt)
	}
}

func (s *Server) handlePacket(pkt protocol.Packet) {
	if s.adapter.Handle(pkt) {
		return
	}

	switch p := pkt.(type) {
	case *protocol.PacketHello:
		s.logger.Info("relay hello", "server", p.ServerName, "version", p.Version)

	case *protocol.PacketChat:
		s.handleChatMessage(p)

	case *protocol.PacketStandingsAction:
		if err := s.comp.HandleStandingsAction(p.Login, p.Action); err != nil {
			s.logger.Debug("standings action rejected", "login", p.Login, "action", p.Action, "error", err)
		}

	case *protocol.PacketReply:
		s.logger.Debug("stale reply", "id", p.ID)

	default:
		s.logger.Debug("unhandled packet", "type", pkt.Type())
	}
}

func (s *Server) handleChatMessage(p *protocol.PacketChat) {
	message := strings.TrimSpace(p.Message)
	if message == "" {
		return
	}

	s.logger.Info("chat message", "login", p.Login, "message", message)
	s.handleCommand(p.Login, message)
}
