// Package state is the hub's in-memory database: the device registry, the
// media catalog, the transcode queue and the relay-session registry.
//
// A State has exactly one mutator, the hub loop goroutine. It carries no locks.
package state

import (
	"context"
	"encoding/json"
	"sort"

	"mediahub/internal/queue"
	"mediahub/internal/wire"
)

// RelaySession is an attached cast-control relay for one device address.
type RelaySession interface {
	Addr() string
	Communicate(ctx context.Context, msg *wire.Message) (json.RawMessage, error)
}

// State is the single mutable aggregate owned by the hub loop.
type State struct {
	devices map[string]wire.Device
	movies  []json.RawMessage
	tv      []json.RawMessage
	jobs    *queue.Queue
	relays  map[string]RelaySession
}

// New returns an empty State.
func New() *State {
	return &State{
		devices: make(map[string]wire.Device),
		jobs:    queue.New(),
		relays:  make(map[string]RelaySession),
	}
}

// UpsertDevice stores d under its address, replacing any earlier report
// wholesale. Devices without an address are ignored.
func (s *State) UpsertDevice(d wire.Device) bool {
	addr := d.Address()
	if addr == "" {
		return false
	}
	stored := make(wire.Device, len(d))
	for k, v := range d {
		stored[k] = v
	}
	s.devices[addr] = stored
	return true
}

// Device returns the device registered under addr.
func (s *State) Device(addr string) (wire.Device, bool) {
	d, ok := s.devices[addr]
	return d, ok
}

// Devices returns every known device ordered by address.
func (s *State) Devices() []wire.Device {
	addrs := make([]string, 0, len(s.devices))
	for addr := range s.devices {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	out := make([]wire.Device, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, s.devices[addr])
	}
	return out
}

// ReplaceCatalog swaps both catalog sequences in one step.
func (s *State) ReplaceCatalog(movies, tv []json.RawMessage) {
	s.movies = append([]json.RawMessage(nil), movies...)
	s.tv = append([]json.RawMessage(nil), tv...)
}

// Movies returns the movie catalog. The slice is never mutated in place.
func (s *State) Movies() []json.RawMessage {
	return s.movies
}

// TV returns the series catalog. The slice is never mutated in place.
func (s *State) TV() []json.RawMessage {
	return s.tv
}

// Jobs exposes the transcode queue.
func (s *State) Jobs() *queue.Queue {
	return s.jobs
}

// AttachRelay registers sess for its device address, replacing any prior
// session. The replaced session is returned so the caller can close it.
func (s *State) AttachRelay(sess RelaySession) RelaySession {
	prev := s.relays[sess.Addr()]
	s.relays[sess.Addr()] = sess
	return prev
}

// DetachRelay removes sess if it is still the registered session for its
// address.
func (s *State) DetachRelay(sess RelaySession) bool {
	if cur, ok := s.relays[sess.Addr()]; ok && cur == sess {
		delete(s.relays, sess.Addr())
		return true
	}
	return false
}

// RelaySession returns the session registered for addr.
func (s *State) RelaySession(addr string) (RelaySession, bool) {
	sess, ok := s.relays[addr]
	return sess, ok
}

// Summary reports the size of every collection.
func (s *State) Summary() wire.Summary {
	return wire.Summary{
		Devices:       len(s.devices),
		Movies:        len(s.movies),
		TV:            len(s.tv),
		PendingJobs:   s.jobs.Len(),
		InFlightJobs:  s.jobs.InFlightLen(),
		RelaySessions: len(s.relays),
	}
}
