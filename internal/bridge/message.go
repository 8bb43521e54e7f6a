package bridge

import (
	"encoding/json"
	"fmt"
)

// Command function names accepted by the embedded player surface. The
// fullscreen pair never crosses the message channel: fullscreen belongs to
// the embedding page, so those commands only touch local session state.
const (
	FuncPlay            = "playVideo"
	FuncPause           = "pauseVideo"
	FuncSeekTo          = "seekTo"
	FuncSetVolume       = "setVolume"
	FuncMute            = "mute"
	FuncUnmute          = "unMute"
	FuncSetPlaybackRate = "setPlaybackRate"
	FuncFullscreen      = "requestFullscreen"
	FuncExitFullscreen  = "exitFullscreen"

	funcPollTime = "getCurrentTime"
)

// Raw playback state codes emitted by the surface in onStateChange messages
const (
	codeUnstarted = -1
	codeEnded     = 0
	codePlaying   = 1
	codePaused    = 2
	codeBuffering = 3
	codeCued      = 5
)

// Command one outbound instruction for the embedded surface, delivery is
// fire-and-forget and never acknowledged
type Command struct {
	Func string
	Args []interface{}
}

type commandEnvelope struct {
	Event string        `json:"event"`
	Func  string        `json:"func"`
	Args  []interface{} `json:"args"`
}

// MarshalJSON encode the command in the surface's wire shape
func (c Command) MarshalJSON() ([]byte, error) {
	args := c.Args
	if args == nil {
		args = []interface{}{}
	}
	return json.Marshal(commandEnvelope{Event: "command", Func: c.Func, Args: args})
}

// BuildCommand validate a function name and its arguments against the closed
// command set and return the wire command
func BuildCommand(fn string, args []interface{}) (Command, error) {
	switch fn {
	case FuncPlay, FuncPause, FuncMute, FuncUnmute, FuncFullscreen, FuncExitFullscreen:
		return Command{Func: fn}, nil
	case FuncSeekTo:
		seconds, err := numberArg(fn, args)
		if err != nil {
			return Command{}, err
		}
		if seconds < 0 {
			return Command{}, fmt.Errorf("%s: seconds must not be negative", fn)
		}
		return Command{Func: fn, Args: []interface{}{seconds}}, nil
	case FuncSetVolume:
		volume, err := numberArg(fn, args)
		if err != nil {
			return Command{}, err
		}
		if volume < 0 || volume > 100 {
			return Command{}, fmt.Errorf("%s: volume must be within 0..100", fn)
		}
		return Command{Func: fn, Args: []interface{}{volume}}, nil
	case FuncSetPlaybackRate:
		rate, err := numberArg(fn, args)
		if err != nil {
			return Command{}, err
		}
		if rate <= 0 {
			return Command{}, fmt.Errorf("%s: rate must be positive", fn)
		}
		return Command{Func: fn, Args: []interface{}{rate}}, nil
	}
	return Command{}, fmt.Errorf("unknown player command: %s", fn)
}

func numberArg(fn string, args []interface{}) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s: expect exactly one argument", fn)
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	}
	return 0, fmt.Errorf("%s: argument must be a number", fn)
}

func pollTimeCommand() Command {
	return Command{Func: funcPollTime}
}

// EventKind closed vocabulary of normalized surface events
type EventKind int

const (
	EventUnstarted EventKind = iota
	EventEnded
	EventPlaying
	EventPaused
	EventBuffering
	EventCued
	EventTime
)

func (k EventKind) String() string {
	switch k {
	case EventUnstarted:
		return "unstarted"
	case EventEnded:
		return "ended"
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventBuffering:
		return "buffering"
	case EventCued:
		return "cued"
	case EventTime:
		return "time"
	}
	return "unknown"
}

// Event one normalized inbound surface message
type Event struct {
	Kind EventKind
	// Seconds current playback position, only meaningful for EventTime
	Seconds float64
	// Duration media length when the surface includes it, 0 otherwise
	Duration float64
}

type rawMessage struct {
	Event string          `json:"event"`
	Info  json.RawMessage `json:"info"`
}

type infoDelivery struct {
	CurrentTime *float64 `json:"currentTime"`
	Duration    float64  `json:"duration"`
}

// ParseMessage normalize a raw inbound frame into an Event. The reported ok
// is false for frames outside the known vocabulary, which are dropped rather
// than treated as errors: the channel is untrusted for completeness and shape.
func ParseMessage(payload []byte) (Event, bool) {
	var raw rawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, false
	}
	switch raw.Event {
	case "onStateChange":
		var code int
		if err := json.Unmarshal(raw.Info, &code); err != nil {
			return Event{}, false
		}
		return stateCodeEvent(code)
	case "infoDelivery":
		var info infoDelivery
		if err := json.Unmarshal(raw.Info, &info); err != nil {
			return Event{}, false
		}
		if info.CurrentTime == nil {
			return Event{}, false
		}
		return Event{Kind: EventTime, Seconds: *info.CurrentTime, Duration: info.Duration}, true
	}
	return Event{}, false
}

func stateCodeEvent(code int) (Event, bool) {
	switch code {
	case codeUnstarted:
		return Event{Kind: EventUnstarted}, true
	case codeEnded:
		return Event{Kind: EventEnded}, true
	case codePlaying:
		return Event{Kind: EventPlaying}, true
	case codePaused:
		return Event{Kind: EventPaused}, true
	case codeBuffering:
		return Event{Kind: EventBuffering}, true
	case codeCued:
		return Event{Kind: EventCued}, true
	}
	return Event{}, false
}
