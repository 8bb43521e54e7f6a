package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RewardsClient best-effort remote call awarding a fixed experience-point
// increment for a completion, failures are logged by the caller and never
// surfaced to the learner
type RewardsClient interface {
	AwardCompletionXP(ctx context.Context, userID, lessonID string) error
}

// HTTPRewardsClient RewardsClient over the platform rewards endpoint
type HTTPRewardsClient struct {
	baseURL string
	xp      int
	client  *http.Client
}

var _ RewardsClient = &HTTPRewardsClient{}

// NewHTTPRewardsClient create a rewards client, xp is the fixed increment
// granted per completed lesson
func NewHTTPRewardsClient(baseURL string, xp int) *HTTPRewardsClient {
	return &HTTPRewardsClient{
		baseURL: baseURL,
		xp:      xp,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type xpGrant struct {
	UserID   string `json:"user_id"`
	LessonID string `json:"lesson_id"`
	Source   string `json:"source"`
	Amount   int    `json:"amount"`
}

// AwardCompletionXP implement RewardsClient
func (rc *HTTPRewardsClient) AwardCompletionXP(ctx context.Context, userID, lessonID string) error {
	payload, err := json.Marshal(xpGrant{
		UserID:   userID,
		LessonID: lessonID,
		Source:   "lesson_completed",
		Amount:   rc.xp,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.baseURL+"/v1/xp", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := rc.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("rewards service responded with %d", res.StatusCode)
	}
	return nil
}
