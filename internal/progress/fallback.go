package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/courseloop/playback-gateway/internal/infrastructure/driver"
)

// ContinuitySummary best-effort local copy of a learner's course progress,
// kept so the UI can show continuity when the remote store is unreachable.
// Never reconciled back into the remote store.
type ContinuitySummary struct {
	CourseID   string   `json:"course_id"`
	Completed  []string `json:"completed"`
	TotalCount int      `json:"total_count"`
	Percent    int      `json:"percent"`
	UpdatedAt  int64    `json:"updated_at"`
}

// FallbackStore continuity summaries in the client-scoped KV store,
// last-write-wins, the only concurrent writer is the same learner's session
type FallbackStore struct {
	KVStore driver.KeyValueDB
	TTL     time.Duration
}

// NewFallbackStore create a FallbackStore
func NewFallbackStore(kv driver.KeyValueDB, ttl time.Duration) *FallbackStore {
	return &FallbackStore{KVStore: kv, TTL: ttl}
}

func summaryKey(userID, courseID string) string {
	return fmt.Sprintf("progress:%s:%s", userID, courseID)
}

// RecordCompletion merge a lesson completion into the local summary and
// recompute its percentage from the local completed set, so the summary
// reflects the new completion even when every remote write failed
func (fs *FallbackStore) RecordCompletion(userID, courseID, lessonID string, totalCount int, now time.Time) (*ContinuitySummary, error) {
	summary, err := fs.Load(userID, courseID)
	if err != nil || summary == nil {
		summary = &ContinuitySummary{CourseID: courseID}
	}

	for _, id := range summary.Completed {
		if id == lessonID {
			lessonID = ""
			break
		}
	}
	if lessonID != "" {
		summary.Completed = append(summary.Completed, lessonID)
	}
	summary.TotalCount = totalCount
	summary.Percent = Percent(len(summary.Completed), totalCount)
	summary.UpdatedAt = now.Unix() * 1e3 // milliseconds

	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	if err := fs.KVStore.SetEX(summaryKey(userID, courseID), string(payload), fs.TTL); err != nil {
		return nil, err
	}
	return summary, nil
}

// Load read the local summary, nil when none was written yet
func (fs *FallbackStore) Load(userID, courseID string) (*ContinuitySummary, error) {
	value, err := fs.KVStore.Get(summaryKey(userID, courseID))
	if err != nil {
		return nil, err
	}
	summary := new(ContinuitySummary)
	if err := json.Unmarshal([]byte(value), summary); err != nil {
		return nil, err
	}
	return summary, nil
}
