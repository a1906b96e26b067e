package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/siohaza/nightcup/internal/network"
	"github.com/siohaza/nightcup/internal/protocol"
	"github.com/siohaza/nightcup/internal/session"
	"github.com/siohaza/nightcup/internal/standings"
)

// replyPoll is how long a pending call blocks in one Service round.
const replyPoll = 5 * time.Millisecond

// FaultError is a fault reported by the race server for a call.
type FaultError struct {
	Method string
	Fault  string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Fault)
}

// relay is the race session as reached through the relay connection. It
// implements session.Control, session.Multicaller, session.Chat and
// standings.Presenter. Methods must run on the loop.
type relay struct {
	s *Server
}

// call sends pkt and services the host until the matching reply arrives.
// Event packets received meanwhile are queued for the loop.
func (r *relay) call(ctx context.Context, method string, build func(id uint32) protocol.Packet) ([]byte, error) {
	s := r.s
	if !s.connected.Load() {
		return nil, session.ErrUnavailable
	}

	s.nextID++
	id := s.nextID

	data, err := protocol.Marshal(build(id))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	if err := s.transport.Send(data); err != nil {
		return nil, fmt.Errorf("send %s: %w: %v", method, session.ErrUnavailable, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("waiting for %s reply: %w", method, err)
		}

		event, err := s.transport.Service(replyPoll)
		if err != nil {
			return nil, fmt.Errorf("service while waiting for %s: %w", method, err)
		}
		if event.Type == network.EventTypeNone {
			continue
		}

		pkt := s.handleEvent(event)
		if !s.connected.Load() {
			return nil, fmt.Errorf("%s: %w", method, session.ErrUnavailable)
		}
		if pkt == nil {
			continue
		}

		reply, ok := pkt.(*protocol.PacketReply)
		if !ok {
			s.backlog = append(s.backlog, pkt)
			continue
		}
		if reply.ID != id {
			s.logger.Debug("stale reply", "id", reply.ID, "waiting", id)
			continue
		}
		if reply.Fault != "" {
			return nil, &FaultError{Method: method, Fault: reply.Fault}
		}
		return reply.Result, nil
	}
}

func (r *relay) invoke(ctx context.Context, method string, params ...any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	return r.call(ctx, method, func(id uint32) protocol.Packet {
		return &protocol.PacketCall{ID: id, Method: method, Params: encoded}
	})
}

func (r *relay) exec(ctx context.Context, method string, params ...any) error {
	_, err := r.invoke(ctx, method, params...)
	return err
}

func (r *relay) SetScript(ctx context.Context, name string) error {
	return r.exec(ctx, "SetScriptName", name)
}

func (r *relay) CurrentScript(ctx context.Context) (string, error) {
	result, err := r.invoke(ctx, "GetScriptName")
	if err != nil {
		return "", err
	}
	var names struct {
		CurrentValue string
		NextValue    string
	}
	if err := json.Unmarshal(result, &names); err != nil {
		return "", fmt.Errorf("decode GetScriptName result: %w", err)
	}
	return names.CurrentValue, nil
}

func (r *relay) Settings(ctx context.Context) (session.Settings, error) {
	result, err := r.invoke(ctx, "GetModeScriptSettings")
	if err != nil {
		return nil, err
	}
	settings := make(session.Settings)
	if err := json.Unmarshal(result, &settings); err != nil {
		return nil, fmt.Errorf("decode GetModeScriptSettings result: %w", err)
	}
	return settings, nil
}

func (r *relay) UpdateSettings(ctx context.Context, settings session.Settings) error {
	return r.exec(ctx, "SetModeScriptSettings", settings)
}

func (r *relay) RestartMap(ctx context.Context) error {
	return r.exec(ctx, "RestartMap")
}

func (r *relay) NextMap(ctx context.Context) error {
	return r.exec(ctx, "NextMap")
}

func (r *relay) ForceSpectator(ctx context.Context, login string, mode session.SpectatorMode) error {
	return r.exec(ctx, "ForceSpectator", login, int(mode))
}

func (r *relay) ForceSpectatorTarget(ctx context.Context, login, target string, camera int) error {
	return r.exec(ctx, "ForceSpectatorTarget", login, target, camera)
}

func (r *relay) Kick(ctx context.Context, login string) error {
	return r.exec(ctx, "Kick", login)
}

func (r *relay) Multicall(ctx context.Context, calls ...session.Call) error {
	entries := make([]protocol.MulticallEntry, len(calls))
	for i, c := range calls {
		params := c.Params
		if params == nil {
			params = []any{}
		}
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", c.Method, err)
		}
		entries[i] = protocol.MulticallEntry{Method: c.Method, Params: encoded}
	}

	_, err := r.call(ctx, "system.multicall", func(id uint32) protocol.Packet {
		return &protocol.PacketMulticall{ID: id, Calls: entries}
	})
	return err
}

func (r *relay) send(pkt protocol.Packet) error {
	data, err := protocol.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", pkt.Type(), err)
	}
	if err := r.s.transport.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", pkt.Type(), err)
	}
	return nil
}

// broadcast sends pkt to every attached relay so observers mirror the
// widgets.
func (r *relay) broadcast(pkt protocol.Packet) error {
	data, err := protocol.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", pkt.Type(), err)
	}
	if err := r.s.transport.Broadcast(data, true); err != nil {
		return fmt.Errorf("broadcast %s: %w", pkt.Type(), err)
	}
	return nil
}

func (r *relay) Send(message string, recipients ...string) error {
	return r.send(&protocol.PacketChatSend{Recipients: recipients, Message: message})
}

func (r *relay) Present(viewer string, view standings.View) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode standings for %s: %w", viewer, err)
	}
	return r.broadcast(&protocol.PacketStandings{Viewer: viewer, View: data})
}

func (r *relay) Countdown(title string) error {
	return r.broadcast(&protocol.PacketTimer{Title: title})
}

func (r *relay) ClearCountdown() error {
	return r.broadcast(&protocol.PacketTimer{})
}

func (r *relay) Clear() error {
	return r.broadcast(&protocol.PacketStandings{})
}
