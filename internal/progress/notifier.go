package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/courseloop/playback-gateway/internal/infrastructure/driver"
)

// Notifier fire-and-forget learner notification capability, never required
// for pipeline correctness
type Notifier interface {
	NotifyLessonCompleted(userID, lessonTitle string) error
}

// KVNotifier publish notifications over the KV store's fan-out channel, the
// web client holds the subscription
type KVNotifier struct {
	KVStore driver.KeyValueDB
}

var _ Notifier = &KVNotifier{}

// NewKVNotifier create a KVNotifier
func NewKVNotifier(kv driver.KeyValueDB) *KVNotifier {
	return &KVNotifier{KVStore: kv}
}

type notification struct {
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// NotifyLessonCompleted implement Notifier. Learners who revoked the
// notification permission hold an opt-out key, publishing to them is skipped.
func (n *KVNotifier) NotifyLessonCompleted(userID, lessonTitle string) error {
	if optedOut, err := n.KVStore.Exists("notify:optout:" + userID); err == nil && optedOut {
		return nil
	}
	payload, err := json.Marshal(notification{
		Kind:      "lesson_completed",
		Title:     "Lesson completed",
		Body:      fmt.Sprintf("You finished %q. Keep it up!", lessonTitle),
		Timestamp: time.Now().Unix() * 1e3, // milliseconds
	})
	if err != nil {
		return err
	}
	return n.KVStore.Publish("notify:"+userID, string(payload))
}
