// Package bridge owns the asynchronous message channel into the embedded
// player surface: outbound fire-and-forget commands, normalization of the
// inbound frames and the scoped lifecycle of one surface attachment.
package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/courseloop/playback-gateway/internal/infrastructure/uuid"
	"go.uber.org/zap"
)

// ErrDetached the attachment has already been released
var ErrDetached = errors.New("attachment is detached")

const eventBufferSize = 64

// Attachment scoped resources of one playback surface binding: the position
// poll timer, the inbound listener and the channel itself. Detach releases
// all three exactly once, in that order, and is safe to call repeatedly —
// leaked timers and listeners from a previous lesson are how cross-talk
// between stale and current channels happens.
type Attachment struct {
	id     string
	source string

	mu       sync.Mutex
	channel  Channel
	detached bool
	loading  bool

	events   chan Event
	poll     *time.Ticker
	pollDone chan struct{}

	detachOnce sync.Once
	logger     *zap.Logger
}

func newAttachment(id, source string, pollInterval time.Duration, logger *zap.Logger) *Attachment {
	att := &Attachment{
		id:       id,
		source:   source,
		loading:  true,
		events:   make(chan Event, eventBufferSize),
		poll:     time.NewTicker(pollInterval),
		pollDone: make(chan struct{}),
		logger:   logger.With(zap.String("bridge.attachment", id)),
	}
	go att.pollLoop()
	return att
}

// ID attachment handle identifier
func (att *Attachment) ID() string {
	return att.id
}

// Source lesson media reference the surface was mounted with
func (att *Attachment) Source() string {
	return att.source
}

// IsLoading true until the surface has emitted its first frame. Callers time
// this out and show a fallback affordance, the surface may never load at all.
func (att *Attachment) IsLoading() bool {
	att.mu.Lock()
	defer att.mu.Unlock()
	return att.loading
}

// Events normalized inbound event stream, closed on detach. The stream is
// lossy under backpressure to match the channel's no-delivery-guarantee
// contract.
func (att *Attachment) Events() <-chan Event {
	return att.events
}

// BindChannel connect the surface's channel to this attachment. A rebind
// closes the previous channel first, the surface element owns exactly one
// live conduit.
func (att *Attachment) BindChannel(ch Channel) error {
	att.mu.Lock()
	defer att.mu.Unlock()
	if att.detached {
		return ErrDetached
	}
	if att.channel != nil {
		att.channel.Close()
	}
	att.channel = ch
	return nil
}

// Command fire-and-forget, no result is returned and none is guaranteed to
// take effect. The caller treats it as "probably eventually true" and waits
// for a confirming event, never assumes success.
func (att *Attachment) Command(cmd Command) {
	att.mu.Lock()
	ch := att.channel
	detached := att.detached
	att.mu.Unlock()
	if detached || ch == nil {
		return
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		att.logger.Error("Failed to encode player command", zap.String("bridge.command", cmd.Func), zap.Error(err))
		return
	}
	if err := ch.Send(payload); err != nil {
		att.logger.Debug("Player command dropped", zap.String("bridge.command", cmd.Func), zap.Error(err))
	}
}

// Ingest parse one raw inbound frame and publish it to subscribers. Frames
// arriving after detach belong to a stale channel and are dropped.
func (att *Attachment) Ingest(payload []byte) {
	event, ok := ParseMessage(payload)
	if !ok {
		att.logger.Debug("Unrecognized surface frame dropped", zap.ByteString("bridge.frame", payload))
		return
	}

	att.mu.Lock()
	defer att.mu.Unlock()
	if att.detached {
		return
	}
	att.loading = false
	select {
	case att.events <- event:
	default:
		att.logger.Debug("Event buffer full, frame dropped", zap.String("bridge.event", event.Kind.String()))
	}
}

// Detach release the attachment: stop the poll timer, remove the listener,
// close the channel, in that order. Idempotent, a second call is a no-op.
func (att *Attachment) Detach() {
	att.detachOnce.Do(func() {
		att.poll.Stop()
		close(att.pollDone)

		att.mu.Lock()
		att.detached = true
		close(att.events)
		ch := att.channel
		att.channel = nil
		att.mu.Unlock()

		if ch != nil {
			ch.Close()
		}
		att.logger.Debug("Attachment detached")
	})
}

func (att *Attachment) pollLoop() {
	for {
		select {
		case <-att.poll.C:
			att.Command(pollTimeCommand())
		case <-att.pollDone:
			return
		}
	}
}

// Bridge per-slot attachment registry. A UI slot holds at most one live
// attachment, attaching over an existing one force-detaches it first instead
// of failing, a lifecycle mistake must not break playback.
type Bridge struct {
	mu       sync.Mutex
	slots    map[string]*Attachment
	byHandle map[string]*Attachment

	idGen        uuid.Generator
	pollInterval time.Duration
	logger       *zap.Logger
}

// New create a Bridge
func New(idGen uuid.Generator, pollInterval time.Duration, logger *zap.Logger) *Bridge {
	return &Bridge{
		slots:        make(map[string]*Attachment),
		byHandle:     make(map[string]*Attachment),
		idGen:        idGen,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Attach mount a surface attachment for the slot, force-detaching any stale
// one left behind
func (b *Bridge) Attach(slot, source string) (*Attachment, error) {
	id, err := b.idGen.Generate()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if stale, ok := b.slots[slot]; ok {
		b.logger.Warn("Attach over a live attachment, forcing detach",
			zap.String("bridge.slot", slot),
			zap.String("bridge.attachment", stale.ID()),
		)
		delete(b.byHandle, stale.ID())
		stale.Detach()
	}

	att := newAttachment(id, source, b.pollInterval, b.logger)
	b.slots[slot] = att
	b.byHandle[id] = att
	return att, nil
}

// Detach release the slot's attachment, reports whether one existed
func (b *Bridge) Detach(slot string) bool {
	b.mu.Lock()
	att, ok := b.slots[slot]
	if ok {
		delete(b.slots, slot)
		delete(b.byHandle, att.ID())
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	att.Detach()
	return true
}

// Get current attachment for a slot
func (b *Bridge) Get(slot string) (*Attachment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	att, ok := b.slots[slot]
	return att, ok
}

// ByHandle look up an attachment by its handle identifier
func (b *Bridge) ByHandle(handle string) (*Attachment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	att, ok := b.byHandle[handle]
	return att, ok
}
