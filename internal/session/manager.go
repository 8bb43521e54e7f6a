package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/courseloop/playback-gateway/internal/bridge"
	"github.com/courseloop/playback-gateway/internal/lesson"
	"github.com/courseloop/playback-gateway/internal/progress"
	"go.uber.org/zap"
)

// ErrNoSession the learner has no live playback session
var ErrNoSession = errors.New("no active playback session")

// cadence at which machine deadlines are checked
const tickInterval = 500 * time.Millisecond

// Snapshot read-only view of one live session, served over the state endpoint
type Snapshot struct {
	Handle   string        `json:"handle"`
	LessonID string        `json:"lesson_id"`
	CourseID string        `json:"course_id"`
	State    string        `json:"state"`
	Seeking  bool          `json:"seeking"`
	Session  PlayerSession `json:"session"`
}

// runtime one learner's live attachment plus its state machine. The event
// loop goroutine is the single writer of the machine, HTTP handlers touch it
// only under mu.
type runtime struct {
	mu      sync.Mutex
	att     *bridge.Attachment
	machine *Machine
	lesson  *lesson.LessonModel
	userID  string
	done    chan struct{}
}

// Manager owns every live playback session, one per learner
type Manager struct {
	Bridge        *bridge.Bridge
	LessonUseCase lesson.LessonUseCase
	Recorder      *progress.Recorder

	cfg    MachineConfig
	logger *zap.Logger

	mu       sync.Mutex
	runtimes map[string]*runtime
}

// NewManager create a Manager
func NewManager(
	Bridge *bridge.Bridge,
	LessonUseCase lesson.LessonUseCase,
	Recorder *progress.Recorder,
	cfg MachineConfig,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		Bridge:        Bridge,
		LessonUseCase: LessonUseCase,
		Recorder:      Recorder,
		cfg:           cfg,
		logger:        logger,
		runtimes:      make(map[string]*runtime),
	}
}

// Attach start a playback session for the lesson, replacing any session the
// learner already has. Returns the attachment handle the surface must present
// when it connects its channel.
func (mgr *Manager) Attach(ctx context.Context, userID, lessonID string) (*Snapshot, error) {
	l, err := mgr.LessonUseCase.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	att, err := mgr.Bridge.Attach(userID, l.SourceURL)
	if err != nil {
		return nil, err
	}

	machine := NewMachine(mgr.cfg)
	machine.Start(time.Now())

	rt := &runtime{
		att:     att,
		machine: machine,
		lesson:  l,
		userID:  userID,
		done:    make(chan struct{}),
	}

	mgr.mu.Lock()
	if prev, ok := mgr.runtimes[userID]; ok {
		close(prev.done)
	}
	mgr.runtimes[userID] = rt
	mgr.mu.Unlock()

	go mgr.run(rt)

	mgr.logger.Info("Playback session attached",
		zap.String("user.id", userID),
		zap.String("lesson.id", lessonID),
		zap.String("bridge.attachment", att.ID()),
	)
	return mgr.snapshot(rt), nil
}

// Detach end the learner's session and release its attachment. Idempotent, a
// second detach reports false.
func (mgr *Manager) Detach(userID string) bool {
	mgr.mu.Lock()
	rt, ok := mgr.runtimes[userID]
	if ok {
		delete(mgr.runtimes, userID)
	}
	mgr.mu.Unlock()

	if !ok {
		return false
	}
	close(rt.done)
	mgr.Bridge.Detach(userID)
	mgr.logger.Info("Playback session detached", zap.String("user.id", userID))
	return true
}

// Dispatch apply a learner intent to the session and forward it to the
// surface when the machine allows it
func (mgr *Manager) Dispatch(userID, fn string, args []interface{}) error {
	rt, ok := mgr.get(userID)
	if !ok {
		return ErrNoSession
	}

	cmd, err := bridge.BuildCommand(fn, args)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	forward := rt.machine.Intent(cmd, time.Now())
	rt.mu.Unlock()

	if forward {
		rt.att.Command(cmd)
	}
	return nil
}

// State snapshot of the learner's live session
func (mgr *Manager) State(userID string) (*Snapshot, error) {
	rt, ok := mgr.get(userID)
	if !ok {
		return nil, ErrNoSession
	}
	return mgr.snapshot(rt), nil
}

// BindSurface connect an inbound surface channel to the attachment the handle
// names. The caller pumps the channel's frames into the returned attachment.
func (mgr *Manager) BindSurface(handle string, ch bridge.Channel) (*bridge.Attachment, error) {
	att, ok := mgr.Bridge.ByHandle(handle)
	if !ok {
		return nil, ErrNoSession
	}
	if err := att.BindChannel(ch); err != nil {
		return nil, err
	}
	return att, nil
}

func (mgr *Manager) get(userID string) (*runtime, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	rt, ok := mgr.runtimes[userID]
	return rt, ok
}

func (mgr *Manager) snapshot(rt *runtime) *Snapshot {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return &Snapshot{
		Handle:   rt.att.ID(),
		LessonID: rt.lesson.ID,
		CourseID: rt.lesson.CourseID,
		State:    rt.machine.State().String(),
		Seeking:  rt.machine.Seeking(),
		Session:  rt.machine.Session(),
	}
}

// run per-session event loop, the only goroutine that advances the machine
// from surface events and deadline ticks
func (mgr *Manager) run(rt *runtime) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	logger := mgr.logger.With(
		zap.String("user.id", rt.userID),
		zap.String("lesson.id", rt.lesson.ID),
	)

	for {
		select {
		case ev, ok := <-rt.att.Events():
			if !ok {
				return
			}
			rt.mu.Lock()
			prev := rt.machine.State()
			rt.machine.Observe(ev, time.Now())
			cur := rt.machine.State()
			position := rt.machine.Session().CurrentTime
			rt.mu.Unlock()

			if prev != StateEnded && cur == StateEnded {
				// fires once per session, Ended is terminal
				go mgr.Recorder.RecordCompletion(context.Background(), rt.userID, rt.lesson, position)
			}
		case <-ticker.C:
			rt.mu.Lock()
			prev := rt.machine.State()
			cmd := rt.machine.Tick(time.Now())
			cur := rt.machine.State()
			machineErr := rt.machine.Err()
			rt.mu.Unlock()

			if cmd != nil {
				logger.Debug("Re-issuing unconfirmed command", zap.String("bridge.command", cmd.Func))
				rt.att.Command(*cmd)
			}
			if prev != StateError && cur == StateError {
				logger.Warn("Playback session entered error state", zap.Error(machineErr))
			}
		case <-rt.done:
			return
		}
	}
}
