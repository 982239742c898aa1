package avatar

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonAuth      Reason = "auth"
	ReasonQuota     Reason = "quota"
	ReasonDeadline  Reason = "deadline"
	ReasonEmpty     Reason = "empty"
	ReasonTransient Reason = "transient"
	ReasonRemote    Reason = "remote"
	ReasonDisabled  Reason = "disabled"
)

// RenderError is a terminal render failure. Text carries the utterance so the
// caller can fall back to a text-only turn.
type RenderError struct {
	Reason Reason
	Text   string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("avatar render failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("avatar render failed (%s)", e.Reason)
}

func (e *RenderError) Unwrap() error { return e.Err }

func AsRenderError(err error) (*RenderError, bool) {
	var re *RenderError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func renderErr(reason Reason, err error) *RenderError {
	return &RenderError{Reason: reason, Err: err}
}
