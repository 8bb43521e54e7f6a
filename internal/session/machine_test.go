package session

import (
	"testing"
	"time"

	"github.com/courseloop/playback-gateway/internal/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = MachineConfig{
	ConfirmWindow: 3 * time.Second,
	LoadTimeout:   10 * time.Second,
}

func readyMachine(now time.Time) *Machine {
	m := NewMachine(testConfig)
	m.Start(now)
	m.Observe(bridge.Event{Kind: bridge.EventCued}, now)
	return m
}

func TestMachine_StartsLoading(t *testing.T) {
	now := time.Now()
	m := NewMachine(testConfig)
	assert.Equal(t, StateUninitialized, m.State())

	m.Start(now)
	assert.Equal(t, StateLoading, m.State())
	assert.True(t, m.Session().IsLoading)
}

func TestMachine_LoadTimeoutIsTerminal(t *testing.T) {
	now := time.Now()
	m := NewMachine(testConfig)
	m.Start(now)

	assert.Nil(t, m.Tick(now.Add(testConfig.LoadTimeout+time.Second)))
	assert.Equal(t, StateError, m.State())
	assert.Equal(t, ErrSurfaceLoadTimeout, m.Err())

	// terminal, neither intents nor events move it
	assert.False(t, m.Intent(bridge.Command{Func: bridge.FuncPlay}, now))
	m.Observe(bridge.Event{Kind: bridge.EventPlaying}, now)
	assert.Equal(t, StateError, m.State())
}

func TestMachine_FirstFrameExitsLoading(t *testing.T) {
	now := time.Now()
	m := NewMachine(testConfig)
	m.Start(now)

	m.Observe(bridge.Event{Kind: bridge.EventTime, Seconds: 0}, now)
	assert.Equal(t, StateReady, m.State())
	assert.False(t, m.Session().IsLoading)

	// past the original deadline, no error once loading finished
	assert.Nil(t, m.Tick(now.Add(time.Minute)))
	assert.Equal(t, StateReady, m.State())
}

func TestMachine_OptimisticPlay(t *testing.T) {
	now := time.Now()
	m := readyMachine(now)

	forward := m.Intent(bridge.Command{Func: bridge.FuncPlay}, now)
	assert.True(t, forward)
	assert.Equal(t, StatePlaying, m.State())
	assert.True(t, m.Session().IsPlaying)
}

func TestMachine_EventsWinOverStaleIntent(t *testing.T) {
	now := time.Now()
	m := readyMachine(now)
	m.Intent(bridge.Command{Func: bridge.FuncPlay}, now)

	// surface reports it is actually paused, optimism is rolled back
	m.Observe(bridge.Event{Kind: bridge.EventPaused}, now.Add(time.Second))
	assert.Equal(t, StateReady, m.State())
	assert.False(t, m.Session().IsPlaying)
}

func TestMachine_ConfirmReissueThenSoftError(t *testing.T) {
	now := time.Now()
	m := readyMachine(now)
	m.Intent(bridge.Command{Func: bridge.FuncPlay}, now)

	// first expiry re-issues the command once
	reissue := m.Tick(now.Add(testConfig.ConfirmWindow + time.Second))
	require.NotNil(t, reissue)
	assert.Equal(t, bridge.FuncPlay, reissue.Func)
	assert.Empty(t, m.Session().SoftError)

	// second expiry surfaces a soft error and gives up
	assert.Nil(t, m.Tick(now.Add(2*testConfig.ConfirmWindow+2*time.Second)))
	assert.NotEmpty(t, m.Session().SoftError)
	assert.Equal(t, StatePlaying, m.State(), "optimistic state stands, unconfirmed")

	// no further re-issue
	assert.Nil(t, m.Tick(now.Add(time.Hour)))
}

func TestMachine_ConfirmClearsPending(t *testing.T) {
	now := time.Now()
	m := readyMachine(now)
	m.Intent(bridge.Command{Func: bridge.FuncPlay}, now)

	m.Observe(bridge.Event{Kind: bridge.EventPlaying}, now.Add(time.Second))
	assert.Nil(t, m.Tick(now.Add(time.Hour)))
	assert.Empty(t, m.Session().SoftError)
}

func TestMachine_EndedOnlyThroughEndedEvent(t *testing.T) {
	now := time.Now()
	m := readyMachine(now)
	m.Intent(bridge.Command{Func: bridge.FuncPlay}, now)

	// position reaching the end of the media does not imply completion
	m.Observe(bridge.Event{Kind: bridge.EventTime, Seconds: 300, Duration: 300}, now)
	assert.Equal(t, StatePlaying, m.State())

	m.Observe(bridge.Event{Kind: bridge.EventEnded}, now)
	assert.Equal(t, StateEnded, m.State())

	// Ended is sticky
	m.Observe(bridge.Event{Kind: bridge.EventPlaying}, now)
	assert.Equal(t, StateEnded, m.State())
	m.Intent(bridge.Command{Func: bridge.FuncPlay}, now)
	assert.Equal(t, StateEnded, m.State())
}

func TestMachine_SeekOverlay(t *testing.T) {
	now := time.Now()
	m := readyMachine(now)
	m.Intent(bridge.Command{Func: bridge.FuncPlay}, now)
	m.Observe(bridge.Event{Kind: bridge.EventPlaying}, now)

	forward := m.Intent(bridge.Command{Func: bridge.FuncSeekTo, Args: []interface{}{120.0}}, now)
	assert.True(t, forward)
	assert.True(t, m.Seeking())
	assert.Equal(t, 120.0, m.Session().CurrentTime)

	// polled position far from the target keeps the overlay up
	m.Observe(bridge.Event{Kind: bridge.EventTime, Seconds: 30}, now)
	assert.True(t, m.Seeking())

	// position near the target confirms the seek
	m.Observe(bridge.Event{Kind: bridge.EventTime, Seconds: 119.2}, now)
	assert.False(t, m.Seeking())
}

func TestMachine_TimeEventUpdatesPosition(t *testing.T) {
	now := time.Now()
	m := readyMachine(now)

	m.Observe(bridge.Event{Kind: bridge.EventTime, Seconds: 12.5, Duration: 300}, now)
	session := m.Session()
	assert.Equal(t, 12.5, session.CurrentTime)
	assert.Equal(t, 300.0, session.Duration)
}

func TestMachine_PlayingAndTimeEventsInEitherOrder(t *testing.T) {
	now := time.Now()

	// playing first, position second
	m := readyMachine(now)
	m.Observe(bridge.Event{Kind: bridge.EventPlaying}, now)
	m.Observe(bridge.Event{Kind: bridge.EventTime, Seconds: 42.0}, now)
	assert.Equal(t, StatePlaying, m.State())
	assert.Equal(t, 42.0, m.Session().CurrentTime)

	// position first, playing second
	m = readyMachine(now)
	m.Observe(bridge.Event{Kind: bridge.EventTime, Seconds: 42.0}, now)
	m.Observe(bridge.Event{Kind: bridge.EventPlaying}, now)
	assert.Equal(t, StatePlaying, m.State())
	assert.Equal(t, 42.0, m.Session().CurrentTime)
}

func TestMachine_FullscreenIsLocalOnly(t *testing.T) {
	now := time.Now()
	m := readyMachine(now)

	forward := m.Intent(bridge.Command{Func: bridge.FuncFullscreen}, now)
	assert.False(t, forward, "fullscreen must not cross the message channel")
	assert.True(t, m.Session().IsFullscreen)

	forward = m.Intent(bridge.Command{Func: bridge.FuncExitFullscreen}, now)
	assert.False(t, forward)
	assert.False(t, m.Session().IsFullscreen)
}

func TestMachine_VolumeAndRateIntents(t *testing.T) {
	now := time.Now()
	m := readyMachine(now)

	assert.True(t, m.Intent(bridge.Command{Func: bridge.FuncSetVolume, Args: []interface{}{40.0}}, now))
	assert.True(t, m.Intent(bridge.Command{Func: bridge.FuncMute}, now))
	assert.True(t, m.Intent(bridge.Command{Func: bridge.FuncSetPlaybackRate, Args: []interface{}{1.5}}, now))

	session := m.Session()
	assert.Equal(t, 40.0, session.Volume)
	assert.True(t, session.Muted)
	assert.Equal(t, 1.5, session.PlaybackRate)
}
