package device

import (
	"sort"

	"github.com/rapiduino/rapiduino-go/pkg/pin"
)

// Pin and component ownership states, as recorded in protocol logs.
const (
	PinFree  = "FREE"
	PinOwned = "OWNED"

	ComponentRegistered   = "REGISTERED"
	ComponentDeregistered = "DEREGISTERED"
)

// registry maps pin IDs to the token that owns them. A pin appears at most
// once. It is guarded by the Device mutex.
type registry struct {
	owners map[int]Token
}

func newRegistry() registry {
	return registry{owners: make(map[int]Token)}
}

func (r registry) owner(id int) (Token, bool) {
	t, ok := r.owners[id]
	return t, ok
}

// pinsOf returns the pins owned by t in ascending order.
func (r registry) pinsOf(t Token) []int {
	var ids []int
	for id, owner := range r.owners {
		if owner == t {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

func (r registry) components() int {
	seen := make(map[Token]struct{})
	for _, t := range r.owners {
		seen[t] = struct{}{}
	}
	return len(seen)
}

// Register claims every pin in reqs for token. Either all pins are claimed
// or none is. For each pin in order the checks are: not already owned
// (including twice in reqs), exists on the board, not reserved, has the
// PWM and analog capabilities requested. A token that already owns pins
// fails with ErrComponentAlreadyRegistered; deregister it first.
// An empty reqs is a successful no-op.
func (d *Device) Register(token Token, reqs ...pin.Requirement) error {
	const op = "register"
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if token == "" {
		return &ComponentError{Token: token, Err: ErrEmptyToken}
	}
	if len(reqs) == 0 {
		return nil
	}

	if err := d.checkClaims(op, reqs); err != nil {
		d.logError(op, err)
		return err
	}

	if owned := d.registry.pinsOf(token); len(owned) > 0 {
		err := &ComponentError{Token: token, Pins: owned, Err: ErrComponentAlreadyRegistered}
		d.logError(op, err)
		return err
	}

	ids := make([]int, 0, len(reqs))
	for _, req := range reqs {
		d.registry.owners[req.ID] = token
		ids = append(ids, req.ID)
		d.logPinState(req.ID, PinFree, PinOwned, token)
	}
	d.logComponentState(token, ComponentDeregistered, ComponentRegistered, ids)
	d.observeRegistry()
	return nil
}

func (d *Device) checkClaims(op string, reqs []pin.Requirement) error {
	batch := make(map[int]struct{}, len(reqs))
	for _, req := range reqs {
		if owner, ok := d.registry.owner(req.ID); ok {
			return &OwnershipError{Op: op, Pin: req.ID, Owner: owner, Err: ErrPinAlreadyRegistered}
		}
		if _, dup := batch[req.ID]; dup {
			return &PinError{Op: op, Pin: req.ID, Err: ErrPinAlreadyRegistered}
		}
		batch[req.ID] = struct{}{}

		if req.ID < 0 || req.ID >= len(d.pins) {
			return &PinError{Op: op, Pin: req.ID, Err: ErrPinDoesNotExist}
		}
		p := d.pins[req.ID]
		if p.Reserved {
			return &PinError{Op: op, Pin: req.ID, Err: ErrReservedPin}
		}
		missingPWM, missingAnalog := p.Satisfies(req)
		if missingPWM {
			return &PinError{Op: op, Pin: req.ID, Err: ErrNotPwmPin}
		}
		if missingAnalog {
			return &PinError{Op: op, Pin: req.ID, Err: ErrNotAnalogPin}
		}
	}
	return nil
}

// RegisterPins is Register for components without capability requirements.
func (d *Device) RegisterPins(token Token, ids ...int) error {
	reqs := make([]pin.Requirement, len(ids))
	for i, id := range ids {
		reqs[i] = pin.Requirement{ID: id}
	}
	return d.Register(token, reqs...)
}

// Deregister frees every pin owned by token and returns their IDs.
// A token that owns nothing is a no-op.
func (d *Device) Deregister(token Token) []int {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := d.registry.pinsOf(token)
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		delete(d.registry.owners, id)
		d.logPinState(id, PinOwned, PinFree, token)
	}
	d.logComponentState(token, ComponentRegistered, ComponentDeregistered, ids)
	d.observeRegistry()
	return ids
}

// Owner returns the token that owns pin id, if any.
func (d *Device) Owner(id int) (Token, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.owner(id)
}

// OwnedBy returns the pins owned by token in ascending order.
func (d *Device) OwnedBy(token Token) []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.pinsOf(token)
}

// Registered returns a snapshot of the registry.
func (d *Device) Registered() map[int]Token {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int]Token, len(d.registry.owners))
	for id, t := range d.registry.owners {
		out[id] = t
	}
	return out
}

func (d *Device) observeRegistry() {
	if d.opts.observer != nil {
		d.opts.observer.ObserveRegistry(len(d.registry.owners), d.registry.components())
	}
}
