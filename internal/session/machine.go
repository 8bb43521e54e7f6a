// Package session keeps the authoritative local representation of what the
// player is doing. Intents from the learner are applied optimistically and
// reconciled against whatever the embedded surface eventually confirms.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/courseloop/playback-gateway/internal/bridge"
)

// ErrSurfaceLoadTimeout the surface never finished loading within the bound
var ErrSurfaceLoadTimeout = errors.New("player surface failed to load in time")

// tolerance between a polled position and a seek target before the seek
// overlay is considered confirmed, the poll runs at roughly 1 Hz
const seekConfirmTolerance = 2.0

const defaultVolume = 100

// PlayerSession ephemeral per-attachment playback state, never persisted
type PlayerSession struct {
	CurrentTime  float64 `json:"current_time"`
	Duration     float64 `json:"duration"`
	Volume       float64 `json:"volume"`
	Muted        bool    `json:"muted"`
	PlaybackRate float64 `json:"playback_rate"`
	IsFullscreen bool    `json:"is_fullscreen"`
	IsLoading    bool    `json:"is_loading"`
	IsPlaying    bool    `json:"is_playing"`
	SoftError    string  `json:"soft_error,omitempty"`
}

// MachineConfig bounds on how long optimism is allowed to live
type MachineConfig struct {
	// ConfirmWindow wait for the surface to confirm a command before
	// re-issuing it once, a second miss surfaces a soft error
	ConfirmWindow time.Duration
	// LoadTimeout wait for the surface to emit anything at all before the
	// attachment is declared broken
	LoadTimeout time.Duration
}

type pendingConfirm struct {
	confirm  bridge.EventKind
	command  bridge.Command
	deadline time.Time
	reissued bool
}

// Machine playback state machine for one attachment. Not safe for concurrent
// use, the owner serializes access.
type Machine struct {
	cfg MachineConfig

	state      State
	seeking    bool
	seekOrigin State
	seekTarget float64

	session PlayerSession
	pending *pendingConfirm

	loadDeadline time.Time
	err          error
}

// NewMachine create a machine in the Uninitialized state
func NewMachine(cfg MachineConfig) *Machine {
	return &Machine{
		cfg:   cfg,
		state: StateUninitialized,
		session: PlayerSession{
			Volume:       defaultVolume,
			PlaybackRate: 1,
		},
	}
}

// State current playback state
func (m *Machine) State() State {
	return m.state
}

// Seeking whether the transient seek overlay is active
func (m *Machine) Seeking() bool {
	return m.seeking
}

// Err terminal error, set once the machine enters StateError
func (m *Machine) Err() error {
	return m.err
}

// Session snapshot of the ephemeral playback state
func (m *Machine) Session() PlayerSession {
	return m.session
}

// Start surface mounted, begin waiting for it to load
func (m *Machine) Start(now time.Time) {
	if m.state != StateUninitialized {
		return
	}
	m.state = StateLoading
	m.session.IsLoading = true
	m.loadDeadline = now.Add(m.cfg.LoadTimeout)
}

// Intent apply a learner command optimistically. Reports whether the command
// should be forwarded over the message channel: fullscreen never crosses it
// and nothing is forwarded once the attachment is in a terminal error.
func (m *Machine) Intent(cmd bridge.Command, now time.Time) bool {
	if m.state == StateError {
		return false
	}

	switch cmd.Func {
	case bridge.FuncPlay:
		if m.state == StateReady {
			m.state = StatePlaying
			m.session.IsPlaying = true
			m.await(bridge.EventPlaying, cmd, now)
		}
		return true
	case bridge.FuncPause:
		if m.state == StatePlaying {
			m.state = StateReady
			m.session.IsPlaying = false
			m.await(bridge.EventPaused, cmd, now)
		}
		return true
	case bridge.FuncSeekTo:
		if m.state == StatePlaying || m.state == StateReady {
			seconds, _ := cmd.Args[0].(float64)
			m.seeking = true
			m.seekOrigin = m.state
			m.seekTarget = seconds
			m.session.CurrentTime = seconds
		}
		return true
	case bridge.FuncSetVolume:
		volume, _ := cmd.Args[0].(float64)
		m.session.Volume = volume
		return true
	case bridge.FuncMute:
		m.session.Muted = true
		return true
	case bridge.FuncUnmute:
		m.session.Muted = false
		return true
	case bridge.FuncSetPlaybackRate:
		rate, _ := cmd.Args[0].(float64)
		m.session.PlaybackRate = rate
		return true
	case bridge.FuncFullscreen:
		m.session.IsFullscreen = true
		return false
	case bridge.FuncExitFullscreen:
		m.session.IsFullscreen = false
		return false
	}
	return false
}

// Observe reconcile against a surface event. Events are authoritative,
// intents are provisional: whatever arrived last wins over stale optimism.
func (m *Machine) Observe(ev bridge.Event, now time.Time) {
	if m.state == StateError || m.state == StateEnded {
		return
	}

	switch ev.Kind {
	case bridge.EventPlaying:
		m.exitLoading()
		m.state = StatePlaying
		m.session.IsPlaying = true
	case bridge.EventPaused:
		m.exitLoading()
		m.state = StateReady
		m.session.IsPlaying = false
	case bridge.EventEnded:
		// the only path into Ended, polled positions never infer completion
		m.exitLoading()
		m.state = StateEnded
		m.session.IsPlaying = false
		m.seeking = false
		m.pending = nil
	case bridge.EventCued:
		m.exitLoading()
		if m.state == StateLoading {
			m.state = StateReady
		}
	case bridge.EventBuffering:
		m.session.IsLoading = true
	case bridge.EventUnstarted:
		// surface alive but nothing cued yet
		m.exitLoading()
	case bridge.EventTime:
		m.exitLoading()
		m.session.CurrentTime = ev.Seconds
		if ev.Duration > 0 {
			m.session.Duration = ev.Duration
		}
		if m.state == StateLoading {
			m.state = StateReady
		}
		if m.seeking && abs(ev.Seconds-m.seekTarget) <= seekConfirmTolerance {
			m.seeking = false
		}
	}

	if m.pending != nil && m.pending.confirm == ev.Kind {
		m.pending = nil
	}
}

// Tick advance the machine's deadlines. Returns a command to re-issue when a
// pending one missed its confirmation window for the first time.
func (m *Machine) Tick(now time.Time) *bridge.Command {
	if m.state == StateLoading && now.After(m.loadDeadline) {
		m.state = StateError
		m.err = ErrSurfaceLoadTimeout
		m.session.IsLoading = false
		m.pending = nil
		return nil
	}

	if m.pending == nil || now.Before(m.pending.deadline) {
		return nil
	}
	if !m.pending.reissued {
		m.pending.reissued = true
		m.pending.deadline = now.Add(m.cfg.ConfirmWindow)
		reissue := m.pending.command
		return &reissue
	}
	// a single retry only, after that the optimism stands unconfirmed
	m.session.SoftError = fmt.Sprintf("player did not confirm %s", m.pending.command.Func)
	m.pending = nil
	return nil
}

func (m *Machine) await(confirm bridge.EventKind, cmd bridge.Command, now time.Time) {
	m.pending = &pendingConfirm{
		confirm:  confirm,
		command:  cmd,
		deadline: now.Add(m.cfg.ConfirmWindow),
	}
}

func (m *Machine) exitLoading() {
	if m.state == StateLoading || m.session.IsLoading {
		m.session.IsLoading = false
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
