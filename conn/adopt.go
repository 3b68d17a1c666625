package conn

import (
	"github.com/connkit/wsconn/transport"
)

// TransferInfo describes a live transport being handed to a new owner:
// the handle itself, the lifecycle status it was in, and the streams
// open on it. It is produced by the previous owner (typically from a
// Snapshot taken before it went away) and consumed by Owner.Adopt.
type TransferInfo struct {
	Handle        transport.Handle
	Status        Status
	ActiveStreams map[string]transport.StreamKind
}

// liveRank orders statuses by how far along a live transport is.
// Statuses without a live transport all rank below Connecting, so an
// owner sitting in Disconnected or Reconnecting can still move forward
// by adopting an established handle.
func liveRank(s Status) int {
	switch s {
	case Connecting:
		return 1
	case Connected:
		return 2
	case WebSocketConnected:
		return 3
	default:
		return 0
	}
}

// handleAdopt applies the ownership-transfer protocol inside the owner
// loop. Validation happens before any mutation so a rejected transfer
// leaves the state byte-for-byte unchanged.
//
// Rules:
//   - a nil handle or a non-live status fails fast with
//     ErrInvalidTransfer;
//   - the adopter assigns its own generation boundary, so stragglers
//     addressed to the previous owner's generation stay discardable;
//   - a monitor already held on the same handle is reused, never
//     duplicated;
//   - transferred streams merge only into an empty stream set — streams
//     the adopter opened on its own are never clobbered;
//   - status copies from the transfer unless the adopter is already
//     further along.
func (o *Owner) handleAdopt(info TransferInfo) error {
	if o.state.Status == Closed {
		return ErrClosed
	}
	if info.Handle == nil || liveRank(info.Status) == 0 {
		return ErrInvalidTransfer
	}

	// A pending retry or an unconfirmed dial belongs to the superseded
	// transport.
	o.retry.cancel()
	if o.pending != info.Handle {
		o.releasePending()
	}
	o.pending = nil

	// An existing different handle is released; exactly one live
	// transport per owner.
	if o.state.Handle != nil && o.state.Handle != info.Handle {
		if o.state.mon != nil {
			o.state.mon.release()
			o.state.mon = nil
		}
		o.tr.Close(o.state.Handle)
	}

	o.state.Generation++
	gen := o.state.Generation
	o.state.Handle = info.Handle

	if o.state.mon == nil || o.state.mon.handle != info.Handle {
		if o.state.mon != nil {
			o.state.mon.release()
		}
		o.state.mon = o.watch(info.Handle)
	}

	if len(o.state.ActiveStreams) == 0 {
		for id, kind := range info.ActiveStreams {
			o.state.ActiveStreams[id] = kind
		}
	}

	if liveRank(info.Status) > liveRank(o.state.Status) {
		o.state.Status = info.Status
	}

	go o.pump(info.Handle, gen)

	o.logger.Info("adopted transport", "gen", gen, "status", o.state.Status.String(),
		"streams", len(o.state.ActiveStreams))
	return nil
}
