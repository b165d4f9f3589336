package push

import (
	"ever_greater/internal/domain"
	"ever_greater/internal/metrics"
)

// Frame is the server→client wire format. Exactly one field is set per frame.
type Frame struct {
	Count         *int64      `json:"count,omitempty"`         // Global ticket count
	UserUpdate    *UserUpdate `json:"user_update,omitempty"`   // Partial per-user fields
	Authenticated *bool       `json:"authenticated,omitempty"` // Bind acknowledgement
}

// UserUpdate carries the per-user fields that changed. Nil fields are omitted
// so clients can merge partial updates.
type UserUpdate struct {
	Supplies           *int64 `json:"supplies,omitempty"`
	Money              *int64 `json:"money,omitempty"`
	TicketsContributed *int64 `json:"tickets_contributed,omitempty"`
	Gold               *int64 `json:"gold,omitempty"`
	Autoprinters       *int64 `json:"autoprinters,omitempty"`
}

// Snapshot builds an update carrying all of a user's economy fields.
func Snapshot(u *domain.User) UserUpdate {
	supplies, money, tickets := u.PrinterSupplies, u.Money, u.TicketsContributed
	gold, autoprinters := u.Gold, u.Autoprinters
	return UserUpdate{
		Supplies:           &supplies,
		Money:              &money,
		TicketsContributed: &tickets,
		Gold:               &gold,
		Autoprinters:       &autoprinters,
	}
}

// CountFrame wraps a counter value for delivery.
func CountFrame(count int64) Frame {
	return Frame{Count: &count}
}

// AuthenticatedFrame acknowledges a successful channel bind.
func AuthenticatedFrame() Frame {
	ok := true
	return Frame{Authenticated: &ok}
}

// Dispatcher fans frames out to registry channels. It never blocks on or
// retries a failing connection: a write error drops the channel.
type Dispatcher struct {
	reg *Registry
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// BroadcastCount sends the global count to every open channel, bound or not.
func (d *Dispatcher) BroadcastCount(count int64) {
	frame := CountFrame(count)
	for id, c := range d.reg.snapshot(0, true) {
		if err := c.send(frame); err != nil {
			d.reg.Remove(id)
		}
	}
	metrics.CountBroadcasts.Inc()
}

// SendUserUpdate sends a partial update to every channel bound to the user:
// zero, one, or many (multi-tab).
func (d *Dispatcher) SendUserUpdate(userID uint, update UserUpdate) {
	if userID == 0 {
		return
	}
	frame := Frame{UserUpdate: &update}
	for id, c := range d.reg.snapshot(userID, false) {
		if err := c.send(frame); err != nil {
			d.reg.Remove(id)
		}
	}
}
