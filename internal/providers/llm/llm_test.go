package llm

import (
	"context"
	"errors"
	"testing"
)

type scripted struct {
	chunks []string
	err    error
}

func (s scripted) Close() error { return nil }

func (s scripted) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, len(s.chunks))
	errs := make(chan error, 1)
	for _, c := range s.chunks {
		out <- c
	}
	close(out)
	if s.err != nil {
		errs <- s.err
	}
	close(errs)
	return out, errs
}

func TestCollect(t *testing.T) {
	got, err := Collect(context.Background(), scripted{chunks: []string{"  상대측 ", "주장에 ", "반박합니다. "}}, "p")
	if err != nil {
		t.Fatal(err)
	}
	if got != "상대측 주장에 반박합니다." {
		t.Errorf("unexpected text %q", got)
	}

	boom := errors.New("quota")
	if _, err := Collect(context.Background(), scripted{chunks: []string{"partial"}, err: boom}, "p"); !errors.Is(err, boom) {
		t.Errorf("expected stream error, got %v", err)
	}
	if _, err := Collect(context.Background(), scripted{chunks: []string{"  "}}, "p"); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("expected ErrEmptyAnswer, got %v", err)
	}
}
