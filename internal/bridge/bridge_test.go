package bridge

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	closed int
}

func (ch *fakeChannel) Send(payload []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.sent = append(ch.sent, payload)
	return nil
}

func (ch *fakeChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.closed++
	return nil
}

func (ch *fakeChannel) sentFuncs() []string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	var funcs []string
	for _, payload := range ch.sent {
		var envelope struct {
			Func string `json:"func"`
		}
		json.Unmarshal(payload, &envelope)
		funcs = append(funcs, envelope.Func)
	}
	return funcs
}

func (ch *fakeChannel) closeCount() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

type seqGenerator struct{ n int }

func (g *seqGenerator) Generate() (string, error) {
	g.n++
	return fmt.Sprintf("handle-%d", g.n), nil
}

func newTestBridge() *Bridge {
	return New(&seqGenerator{}, time.Hour, zap.NewNop())
}

func TestBridge_AttachAndCommand(t *testing.T) {
	b := newTestBridge()
	att, err := b.Attach("slot", "https://media/lesson-1")
	require.NoError(t, err)
	assert.Equal(t, "https://media/lesson-1", att.Source())
	assert.True(t, att.IsLoading())

	ch := &fakeChannel{}
	require.NoError(t, att.BindChannel(ch))

	att.Command(Command{Func: FuncPlay})
	assert.Equal(t, []string{FuncPlay}, ch.sentFuncs())

	got, ok := b.ByHandle(att.ID())
	require.True(t, ok)
	assert.Same(t, att, got)
}

func TestBridge_CommandWithoutChannelIsDropped(t *testing.T) {
	b := newTestBridge()
	att, err := b.Attach("slot", "src")
	require.NoError(t, err)

	// no channel bound yet, must not panic or block
	att.Command(Command{Func: FuncPlay})
}

func TestBridge_IngestPublishesEvents(t *testing.T) {
	b := newTestBridge()
	att, err := b.Attach("slot", "src")
	require.NoError(t, err)

	att.Ingest([]byte(`{"event":"onStateChange","info":1}`))
	assert.False(t, att.IsLoading())

	select {
	case ev := <-att.Events():
		assert.Equal(t, EventPlaying, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestBridge_DetachIsIdempotent(t *testing.T) {
	b := newTestBridge()
	att, err := b.Attach("slot", "src")
	require.NoError(t, err)
	ch := &fakeChannel{}
	require.NoError(t, att.BindChannel(ch))

	assert.True(t, b.Detach("slot"))
	assert.False(t, b.Detach("slot"))
	assert.Equal(t, 1, ch.closeCount())

	// event stream is closed exactly once
	_, open := <-att.Events()
	assert.False(t, open)

	// frames arriving on the stale channel are dropped silently
	att.Ingest([]byte(`{"event":"onStateChange","info":1}`))
	// sends after detach are dropped
	att.Command(Command{Func: FuncPlay})
	assert.Empty(t, ch.sentFuncs())
}

func TestBridge_BindAfterDetachFails(t *testing.T) {
	b := newTestBridge()
	att, err := b.Attach("slot", "src")
	require.NoError(t, err)
	b.Detach("slot")

	assert.Equal(t, ErrDetached, att.BindChannel(&fakeChannel{}))
}

func TestBridge_AttachOverLiveAttachmentForcesDetach(t *testing.T) {
	b := newTestBridge()
	stale, err := b.Attach("slot", "old")
	require.NoError(t, err)

	fresh, err := b.Attach("slot", "new")
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID(), fresh.ID())

	_, open := <-stale.Events()
	assert.False(t, open, "stale attachment must be detached")

	_, ok := b.ByHandle(stale.ID())
	assert.False(t, ok)
	got, ok := b.Get("slot")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestBridge_RebindClosesPreviousChannel(t *testing.T) {
	b := newTestBridge()
	att, err := b.Attach("slot", "src")
	require.NoError(t, err)

	first := &fakeChannel{}
	second := &fakeChannel{}
	require.NoError(t, att.BindChannel(first))
	require.NoError(t, att.BindChannel(second))
	assert.Equal(t, 1, first.closeCount())

	att.Command(Command{Func: FuncPause})
	assert.Empty(t, first.sentFuncs())
	assert.Equal(t, []string{FuncPause}, second.sentFuncs())
}

func TestBridge_PollRequestsCurrentTime(t *testing.T) {
	b := New(&seqGenerator{}, 10*time.Millisecond, zap.NewNop())
	att, err := b.Attach("slot", "src")
	require.NoError(t, err)
	defer b.Detach("slot")

	ch := &fakeChannel{}
	require.NoError(t, att.BindChannel(ch))

	assert.Eventually(t, func() bool {
		for _, fn := range ch.sentFuncs() {
			if fn == funcPollTime {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
