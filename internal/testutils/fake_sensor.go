//go:build test

package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/protocol"
)

// FakeWrite is one recorded characteristic write.
type FakeWrite struct {
	UUID string
	Data []byte
}

// FakeLink is an in-memory device.Link. Tests push notifications with Notify and
// simulate link loss with Drop.
type FakeLink struct {
	// FailSubscribe makes Subscribe fail for this characteristic UUID.
	FailSubscribe string
	// WriteErr is returned by every Write when set.
	WriteErr error

	mu           sync.Mutex
	handlers     map[string]func([]byte)
	subscribed   []string
	unsubscribed []string
	writes       []FakeWrite
	closes       int

	disconnected chan struct{}
	dropOnce     sync.Once
}

func NewFakeLink() *FakeLink {
	return &FakeLink{
		handlers:     make(map[string]func([]byte)),
		disconnected: make(chan struct{}),
	}
}

func (l *FakeLink) Subscribe(uuid string, handler func(data []byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailSubscribe != "" && protocol.SameUUID(uuid, l.FailSubscribe) {
		return errors.New("att: write not permitted")
	}
	l.handlers[protocol.NormalizeUUID(uuid)] = handler
	l.subscribed = append(l.subscribed, uuid)
	return nil
}

func (l *FakeLink) Unsubscribe(uuid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, protocol.NormalizeUUID(uuid))
	l.unsubscribed = append(l.unsubscribed, uuid)
	return nil
}

func (l *FakeLink) Write(uuid string, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.WriteErr != nil {
		return l.WriteErr
	}
	l.writes = append(l.writes, FakeWrite{UUID: uuid, Data: append([]byte(nil), data...)})
	return nil
}

func (l *FakeLink) Disconnected() <-chan struct{} {
	return l.disconnected
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	l.closes++
	l.mu.Unlock()
	l.Drop()
	return nil
}

// Notify delivers data to the handler subscribed on uuid. It reports false when
// nothing is subscribed.
func (l *FakeLink) Notify(uuid string, data []byte) bool {
	l.mu.Lock()
	h := l.handlers[protocol.NormalizeUUID(uuid)]
	l.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Drop simulates the peripheral going away.
func (l *FakeLink) Drop() {
	l.dropOnce.Do(func() { close(l.disconnected) })
}

func (l *FakeLink) Subscribed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.subscribed...)
}

func (l *FakeLink) Unsubscribed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.unsubscribed...)
}

func (l *FakeLink) Writes() []FakeWrite {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FakeWrite(nil), l.writes...)
}

// WritesTo returns the payloads written to uuid, in order.
func (l *FakeLink) WritesTo(uuid string) [][]byte {
	var out [][]byte
	for _, w := range l.Writes() {
		if protocol.SameUUID(w.UUID, uuid) {
			out = append(out, w.Data)
		}
	}
	return out
}

func (l *FakeLink) CloseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// FakeRadio is an in-memory device.Radio. Every Scan replays Advertisements in
// order and then waits for ctx, like a real scan window.
type FakeRadio struct {
	mu             sync.Mutex
	advertisements []device.Advertisement
	scanErr        error
	dialErr        error
	dialGate       chan struct{}
	scans          int
	dials          []string
	links          []*FakeLink
	nextLink       func() *FakeLink
}

func NewFakeRadio(ads ...device.Advertisement) *FakeRadio {
	return &FakeRadio{advertisements: ads, nextLink: NewFakeLink}
}

// SetAdvertisements replaces what the next scans report.
func (r *FakeRadio) SetAdvertisements(ads ...device.Advertisement) {
	r.mu.Lock()
	r.advertisements = ads
	r.mu.Unlock()
}

// FailScan makes every Scan return err after replaying advertisements.
func (r *FakeRadio) FailScan(err error) {
	r.mu.Lock()
	r.scanErr = err
	r.mu.Unlock()
}

// FailDial makes every Dial return err.
func (r *FakeRadio) FailDial(err error) {
	r.mu.Lock()
	r.dialErr = err
	r.mu.Unlock()
}

// HoldDials blocks Dial until the returned release func is called.
func (r *FakeRadio) HoldDials() (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.dialGate = gate
	r.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// WithLinkFactory customises the links returned by Dial.
func (r *FakeRadio) WithLinkFactory(fn func() *FakeLink) *FakeRadio {
	r.mu.Lock()
	r.nextLink = fn
	r.mu.Unlock()
	return r
}

func (r *FakeRadio) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	r.mu.Lock()
	ads := append([]device.Advertisement(nil), r.advertisements...)
	scanErr := r.scanErr
	r.scans++
	r.mu.Unlock()

	for _, adv := range ads {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(adv)
	}
	if scanErr != nil {
		return scanErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (r *FakeRadio) Dial(ctx context.Context, address string) (device.Link, error) {
	r.mu.Lock()
	r.dials = append(r.dials, address)
	gate := r.dialGate
	dialErr := r.dialErr
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}

	r.mu.Lock()
	link := r.nextLink()
	r.links = append(r.links, link)
	r.mu.Unlock()
	return link, nil
}

func (r *FakeRadio) ScanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

// Dials returns every address dialed, in order.
func (r *FakeRadio) Dials() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dials...)
}

// LastLink returns the most recently dialed link, or nil.
func (r *FakeRadio) LastLink() *FakeLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.links) == 0 {
		return nil
	}
	return r.links[len(r.links)-1]
}
