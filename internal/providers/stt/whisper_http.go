package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yoockh/veriview/internal/models"
)

// WhisperHTTP talks to a whisper sidecar running next to the service.
type WhisperHTTP struct {
	baseURL  string
	language string
	c        *http.Client
}

func NewWhisperHTTP(baseURL, language string) *WhisperHTTP {
	return &WhisperHTTP{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		c:        &http.Client{Timeout: 120 * time.Second},
	}
}

type whisperSegment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	AvgLogprob *float64 `json:"avg_logprob"`
}

type whisperResp struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

func (w *WhisperHTTP) Name() string { return "whisper-http" }

func (w *WhisperHTTP) Close() error { return nil }

// Ping checks the sidecar health endpoint.
func (w *WhisperHTTP) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := w.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("asr health %s", resp.Status)
	}
	return nil
}

func (w *WhisperHTTP) Transcribe(ctx context.Context, audioPath string) (models.Transcript, error) {
	var b bytes.Buffer
	mw := multipart.NewWriter(&b)

	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return models.Transcript{}, err
	}
	fd, err := os.Open(audioPath)
	if err != nil {
		return models.Transcript{}, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return models.Transcript{}, err
	}
	if err := mw.WriteField("language", w.language); err != nil {
		return models.Transcript{}, err
	}
	if err = mw.Close(); err != nil {
		return models.Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/transcribe", &b)
	if err != nil {
		return models.Transcript{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.c.Do(req)
	if err != nil {
		return models.Transcript{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return models.Transcript{}, fmt.Errorf("asr %s: %s", resp.Status, string(body))
	}

	var out whisperResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Transcript{}, fmt.Errorf("asr decode: %w", err)
	}

	segs := make([]models.Segment, 0, len(out.Segments))
	for _, s := range out.Segments {
		segs = append(segs, models.Segment{Text: s.Text, Start: s.Start, End: s.End, AvgLogprob: s.AvgLogprob})
	}
	// some sidecars only return the joined text
	if len(segs) == 0 && strings.TrimSpace(out.Text) != "" {
		segs = append(segs, models.Segment{Text: out.Text})
	}
	return Assemble(segs, w.language), nil
}
