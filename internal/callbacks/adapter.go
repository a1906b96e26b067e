package callbacks

import (
	"log/slog"

	"github.com/siohaza/nightcup/internal/player"
	"github.com/siohaza/nightcup/internal/protocol"
)

// Adapter turns relay packets into events. It keeps the player directory in
// step with connects, disconnects and spectator changes.
type Adapter struct {
	players    *player.Manager
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewAdapter(players *player.Manager, dispatcher *Dispatcher, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		players:    players,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Handle dispatches the event carried by p and reports whether p was a race
// event at all.
func (a *Adapter) Handle(p protocol.Packet) bool {
	switch pkt := p.(type) {
	case *protocol.PacketMapStart:
		a.dispatcher.Dispatch(Event{Kind: KindMapStart, MapUID: pkt.MapUID})

	case *protocol.PacketMapBegin:
		a.dispatcher.Dispatch(Event{Kind: KindMapBegin, MapUID: pkt.MapUID})

	case *protocol.PacketRoundStart:
		a.dispatcher.Dispatch(Event{Kind: KindRoundStart, Count: int(pkt.Count), Time: pkt.Time})

	case *protocol.PacketRoundEnd:
		a.dispatcher.Dispatch(Event{Kind: KindRoundEnd, Count: int(pkt.Count), Time: pkt.Time})

	case *protocol.PacketWaypoint:
		a.dispatcher.Dispatch(Event{
			Kind:       KindCheckpoint,
			Login:      pkt.Login,
			Nickname:   a.players.Nickname(pkt.Login),
			RaceTime:   pkt.RaceTime,
			Checkpoint: int(pkt.CheckpointInRace),
		})

	case *protocol.PacketStartLine:
		a.dispatcher.Dispatch(Event{
			Kind:     KindStartLine,
			Login:    pkt.Login,
			Nickname: a.players.Nickname(pkt.Login),
		})

	case *protocol.PacketFinish:
		a.dispatcher.Dispatch(Event{
			Kind:        KindFinish,
			Login:       pkt.Login,
			Nickname:    a.players.Nickname(pkt.Login),
			RaceTime:    pkt.RaceTime,
			Checkpoint:  int(pkt.CheckpointInRace),
			Checkpoints: pkt.Checkpoints,
			EndOfRace:   pkt.IsEndRace,
		})

	case *protocol.PacketPlayerConnect:
		a.players.Add(player.Player{
			Login:     pkt.Login,
			Nickname:  pkt.Nickname,
			Spectator: pkt.Spectator,
		})
		a.logger.Info("player connected", "login", pkt.Login, "spectator", pkt.Spectator)
		a.dispatcher.Dispatch(Event{Kind: KindPlayerConnect, Login: pkt.Login, Nickname: pkt.Nickname})

	case *protocol.PacketPlayerDisconnect:
		nickname := a.players.Nickname(pkt.Login)
		a.logger.Info("player disconnected", "login", pkt.Login)
		a.dispatcher.Dispatch(Event{Kind: KindPlayerDisconnect, Login: pkt.Login, Nickname: nickname})
		a.players.Remove(pkt.Login)

	case *protocol.PacketPlayerInfo:
		was, ok := a.players.SetSpectator(pkt.Login, pkt.Spectator, pkt.Target)
		if !ok {
			a.logger.Debug("player info for unknown player", "login", pkt.Login)
			return true
		}
		if pkt.Spectator && !was {
			a.dispatcher.Dispatch(Event{
				Kind:     KindPlayerEnterSpectator,
				Login:    pkt.Login,
				Nickname: a.players.Nickname(pkt.Login),
			})
		}

	default:
		return false
	}

	return true
}
