package avatar

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	MaxScriptRunes = 500

	submitAttempts  = 3
	initialPoll     = time.Second
	steadyPollLimit = 3 * time.Second
	maxPollBackoff  = 10 * time.Second
)

// Job is one talk submission.
type Job struct {
	SourceURL string
	VoiceID   string
	Text      string
}

// Remote is the render service contract the Renderer depends on.
type Remote interface {
	Submit(ctx context.Context, job Job) (string, error)
	Wait(ctx context.Context, talkID string) (string, error)
	Download(ctx context.Context, resultURL string, w io.Writer) (int64, error)
}

// Client speaks the talks API: POST /talks, GET /talks/{id}, then a plain GET
// of result_url.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Log     *logrus.Logger

	// sleep is replaced in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(baseURL, apiKey string, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		Log:     log,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// authHeader accepts either a raw "user:pass" pair or an already encoded key.
func (c *Client) authHeader() string {
	if strings.Contains(c.APIKey, ":") {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.APIKey))
	}
	return "Basic " + c.APIKey
}

type talkRequest struct {
	SourceURL string     `json:"source_url"`
	Script    talkScript `json:"script"`
}

type talkScript struct {
	Type     string       `json:"type"`
	Provider talkProvider `json:"provider"`
	Input    string       `json:"input"`
}

type talkProvider struct {
	Type    string `json:"type"`
	VoiceID string `json:"voice_id"`
}

type talkStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
	Error     *struct {
		Kind        string `json:"kind"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

// Truncate limits text to MaxScriptRunes runes.
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= MaxScriptRunes {
		return text
	}
	return string(r[:MaxScriptRunes])
}

func (c *Client) Submit(ctx context.Context, job Job) (string, error) {
	body, err := json.Marshal(talkRequest{
		SourceURL: job.SourceURL,
		Script: talkScript{
			Type:     "text",
			Provider: talkProvider{Type: "microsoft", VoiceID: job.VoiceID},
			Input:    Truncate(job.Text),
		},
	})
	if err != nil {
		return "", renderErr(ReasonRemote, err)
	}

	for attempt := 1; ; attempt++ {
		talkID, wait, retry, err := c.submitOnce(ctx, body)
		if err == nil {
			return talkID, nil
		}
		if !retry || attempt == submitAttempts {
			return "", err
		}
		c.Log.WithError(err).WithField("attempt", attempt).Warn("avatar submit retry")
		if err := c.sleep(ctx, backoffFor(attempt, wait)); err != nil {
			return "", renderErr(ReasonDeadline, err)
		}
	}
}

// submitOnce posts the talk. retry reports a transient failure (5xx, 429 or
// a network error); wait is the server's Retry-After.
func (c *Client) submitOnce(ctx context.Context, body []byte) (string, time.Duration, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/talks", bytes.NewReader(body))
	if err != nil {
		return "", 0, false, renderErr(ReasonRemote, err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, false, renderErr(ReasonDeadline, ctx.Err())
		}
		return "", 0, true, renderErr(ReasonTransient, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	wait := retryAfter(resp.Header.Get("Retry-After"))

	if err := classify(resp.StatusCode, b); err != nil {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return "", wait, retry, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", wait, false, renderErr(ReasonRemote, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	var st talkStatus
	if err := json.Unmarshal(b, &st); err != nil || st.ID == "" {
		return "", wait, false, renderErr(ReasonRemote, errors.New("submit response has no talk id"))
	}
	return st.ID, wait, false, nil
}

func classify(status int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return renderErr(ReasonAuth, fmt.Errorf("status %d: %s", status, snippet))
	case status == http.StatusPaymentRequired || status == http.StatusTooManyRequests:
		return renderErr(ReasonQuota, fmt.Errorf("status %d: %s", status, snippet))
	case status >= 500:
		return renderErr(ReasonTransient, fmt.Errorf("status %d: %s", status, snippet))
	case status >= 400:
		return renderErr(ReasonRemote, fmt.Errorf("status %d: %s", status, snippet))
	}
	return nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func backoffFor(attempt int, serverWait time.Duration) time.Duration {
	d := initialPoll << (attempt - 1)
	if d > maxPollBackoff {
		d = maxPollBackoff
	}
	if serverWait > d {
		d = serverWait
	}
	return d
}

// Wait polls the talk until it is done and returns its result_url. Polling
// starts at one second, grows to the steady cadence and backs off further on
// transient errors, never beyond ten seconds.
func (c *Client) Wait(ctx context.Context, talkID string) (string, error) {
	interval := initialPoll
	log := c.Log.WithField("talk_id", talkID)
	for {
		if err := c.sleep(ctx, interval); err != nil {
			return "", renderErr(ReasonDeadline, err)
		}
		st, wait, err := c.status(ctx, talkID)
		switch {
		case err != nil:
			var re *RenderError
			if errors.As(err, &re) && re.Reason != ReasonTransient {
				return "", err
			}
			if ctx.Err() != nil {
				return "", renderErr(ReasonDeadline, ctx.Err())
			}
			log.WithError(err).Debug("avatar poll failed, backing off")
			interval *= 2
			if wait > interval {
				interval = wait
			}
			if interval > maxPollBackoff {
				interval = maxPollBackoff
			}
			continue
		case st.Status == "done":
			if st.ResultURL == "" {
				return "", renderErr(ReasonEmpty, errors.New("talk done without result_url"))
			}
			return st.ResultURL, nil
		case st.Status == "error" || st.Status == "rejected":
			msg := "talk failed"
			if st.Error != nil && st.Error.Description != "" {
				msg = st.Error.Description
			}
			return "", renderErr(ReasonRemote, errors.New(msg))
		}
		if interval < steadyPollLimit {
			interval += time.Second
		}
	}
}

func (c *Client) status(ctx context.Context, talkID string) (talkStatus, time.Duration, error) {
	var st talkStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/talks/"+talkID, nil)
	if err != nil {
		return st, 0, renderErr(ReasonRemote, err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return st, 0, renderErr(ReasonTransient, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	wait := retryAfter(resp.Header.Get("Retry-After"))
	if resp.StatusCode == http.StatusTooManyRequests {
		// rate limited while polling: slow down and keep waiting
		return st, wait, renderErr(ReasonTransient, classify(resp.StatusCode, b))
	}
	if err := classify(resp.StatusCode, b); err != nil {
		return st, wait, err
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, wait, renderErr(ReasonTransient, fmt.Errorf("decode status: %w", err))
	}
	return st, wait, nil
}

func (c *Client) Download(ctx context.Context, resultURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return 0, renderErr(ReasonRemote, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, renderErr(ReasonDeadline, ctx.Err())
		}
		return 0, renderErr(ReasonTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, renderErr(ReasonRemote, fmt.Errorf("download status %d", resp.StatusCode))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, renderErr(ReasonTransient, err)
	}
	return n, nil
}
