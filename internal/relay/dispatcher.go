package relay

import (
	"fmt"
	"log/slog"

	"github.com/Tyrowin/roomrelay/internal/pool"
	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/room"
)

// Dispatcher applies decoded envelopes to a Registry and fans the results
// out to connected peers.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher returns a dispatcher over reg.
func NewDispatcher(reg *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: reg, logger: logger}
}

// Dispatch handles one envelope sent by sender. raw is the frame exactly as
// it was read; broadcasts forward it untouched.
//
// An error wrapping protocol.ErrMalformedValue means the frame was unusable
// and the sender should be disconnected. A *pool.BroadcastError lists the
// peers that could not be reached; state changes have still been applied.
func (d *Dispatcher) Dispatch(sender pool.Peer, env protocol.Envelope, raw []byte) error {
	d.logger.Debug("dispatching envelope",
		"conn", sender.ID(), "type", env.Type, "room", env.Room, "participant", env.Participant)

	rooms := d.registry.Rooms()

	switch env.Type {
	case protocol.TypeRequest:
		return d.replyAllInfos(sender)

	case protocol.TypeClear:
		rooms.Clear()
		return d.forward(sender, raw)

	case protocol.TypeRoomsToShow:
		names, err := protocol.DecodeRoomNames(env.Value)
		if err != nil {
			return err
		}
		for _, name := range names {
			rooms.Get(name).Show()
		}
		return nil

	case protocol.TypeRequestRoomProps:
		rm, err := d.registry.Bind(sender, env.Room)
		if err != nil {
			return err
		}
		return d.replyRoomProps(sender, rm)

	case protocol.TypeRoomProp:
		prop, err := protocol.DecodeProperty(env.Value)
		if err != nil {
			return err
		}
		rm := rooms.Get(env.Room)
		rm.SetProperty(prop.Key, prop.Value)
		_, err = rm.Subscribers().BroadcastAll(raw)
		return err

	case protocol.TypeUpdateParticipant:
		rooms.Get(env.Room).SetParticipant(env.Participant, env.Value)
		return d.forward(sender, raw)

	case protocol.TypeUpdateContents:
		rooms.Get(env.Room).SetContent(env.Participant, env.Value)
		return d.forward(sender, raw)

	case protocol.TypeRemoveParticipant:
		rooms.Get(env.Room).RemoveParticipant(env.Participant)
		return d.forward(sender, raw)

	default:
		return d.forward(sender, raw)
	}
}

// forward relays the original frame to the general pool, minus the sender.
func (d *Dispatcher) forward(sender pool.Peer, raw []byte) error {
	_, err := d.registry.General().Broadcast(sender, raw)
	return err
}

func (d *Dispatcher) replyAllInfos(sender pool.Peer) error {
	env, err := protocol.NewAllInfos(d.registry.Rooms().Snapshot(room.Visible))
	if err != nil {
		return err
	}
	return d.reply(sender, env)
}

func (d *Dispatcher) replyRoomProps(sender pool.Peer, rm *room.Room) error {
	env, err := protocol.NewRoomProps(rm.Name(), rm.Properties())
	if err != nil {
		return err
	}
	return d.reply(sender, env)
}

func (d *Dispatcher) reply(sender pool.Peer, env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("reply %s: %w", env.Type, err)
	}
	return pool.Unicast(sender, frame)
}
