// Package events carries session state transitions and turn results to
// websocket subscribers and downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/yoockh/veriview/internal/models"
)

const (
	TypeSessionStarted = "session.started"
	TypeTurnScored     = "turn.scored"
	TypeTurnDegraded   = "turn.degraded"
	TypeRenderReady    = "render.ready"
	TypeRenderFailed   = "render.failed"
	TypeSessionClosed  = "session.closed"
)

type Event struct {
	Type      string             `json:"type"`
	SessionID string             `json:"session_id"`
	Kind      models.SessionKind `json:"kind"`
	Phase     string             `json:"phase,omitempty"`
	Data      any                `json:"data,omitempty"`
	At        time.Time          `json:"at"`
}

func New(typ string, kind models.SessionKind, sessionID, phase string, data any) Event {
	return Event{Type: typ, SessionID: sessionID, Kind: kind, Phase: phase, Data: data, At: time.Now().UTC()}
}

func (e Event) Encode() ([]byte, error) { return json.Marshal(e) }

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber streams encoded events for one session. The returned cancel
// func releases the subscription and closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan []byte, func(), error)
}

// Bus is what the websocket handler needs.
type Bus interface {
	Publisher
	Subscriber
}

// StatusChannel is the pub/sub channel for one session.
func StatusChannel(sessionID string) string { return "session:" + sessionID + ":status" }

// Fanout publishes to every target and joins the failures.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops everything.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
