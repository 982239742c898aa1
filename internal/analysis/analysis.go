// Package analysis selects analyzer variants at process start and exposes
// them behind capability interfaces.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/providers/stt"
	"github.com/yoockh/veriview/internal/utils"
)

// Analyzer selection policies.
const (
	PolicyNative = "native"
	PolicyStub   = "stub"
	PolicyAuto   = "auto"
)

type ProsodyAnalyzer interface {
	Name() string
	Analyze(ctx context.Context, audioPath string) (models.ProsodyVector, bool)
}

type FaceAnalyzer interface {
	Name() string
	Analyze(ctx context.Context, framesDir string, frames []string) (models.FaceVector, bool)
}

type availability interface {
	Available() bool
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Candidates are the variants offered to the supervisor. A nil native entry
// means the native variant was not configured.
type Candidates struct {
	Prosody     ProsodyAnalyzer
	ProsodyStub ProsodyAnalyzer
	Face        FaceAnalyzer
	FaceStub    FaceAnalyzer
	ASR         stt.Provider
	ASRStub     stt.Provider
}

// ComponentStatus is reported by /health.
type ComponentStatus struct {
	Variant string `json:"variant"`
	Demoted bool   `json:"demoted"`
	Reason  string `json:"reason,omitempty"`
}

// Supervisor owns the process-wide analyzer instances.
type Supervisor struct {
	policy string
	log    *logrus.Logger

	prosody ProsodyAnalyzer
	face    FaceAnalyzer
	asr     stt.Provider

	mu     sync.RWMutex
	status map[string]ComponentStatus
}

// Load resolves each component according to policy. Under the native policy
// an unusable native variant fails startup with ErrAnalyzerUnavailable; under
// auto it is demoted to the stub and the demotion is logged once.
func Load(ctx context.Context, policy string, c Candidates, log *logrus.Logger) (*Supervisor, error) {
	const op = "Analysis.Load"
	if log == nil {
		log = logrus.New()
	}
	s := &Supervisor{policy: policy, log: log, status: make(map[string]ComponentStatus, 3)}

	switch policy {
	case PolicyNative, PolicyStub, PolicyAuto:
	default:
		return nil, utils.E(utils.CodeInvalidArgument, op, fmt.Sprintf("unknown analyzer policy %q", policy), utils.ErrConfig)
	}

	var err error
	if s.prosody, err = pick(s, "prosody", c.Prosody, c.ProsodyStub, func() error {
		return usable(ctx, c.Prosody)
	}); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "prosody analyzer unavailable", err)
	}
	if s.face, err = pick(s, "face", c.Face, c.FaceStub, func() error {
		return usable(ctx, c.Face)
	}); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "face analyzer unavailable", err)
	}
	if s.asr, err = pick(s, "asr", c.ASR, c.ASRStub, func() error {
		return usable(ctx, c.ASR)
	}); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "speech recognizer unavailable", err)
	}
	return s, nil
}

type named interface{ Name() string }

func pick[T named](s *Supervisor, component string, native, stub T, check func() error) (T, error) {
	var zero T
	nativeSet := any(native) != nil
	if s.policy == PolicyStub || !nativeSet {
		if !nativeSet && s.policy == PolicyNative {
			return zero, fmt.Errorf("%w: %s has no native variant configured", utils.ErrAnalyzerUnavailable, component)
		}
		s.set(component, ComponentStatus{Variant: stub.Name(), Demoted: s.policy == PolicyAuto && !nativeSet, Reason: reasonFor(nativeSet)})
		return stub, nil
	}
	if err := check(); err != nil {
		if s.policy == PolicyNative {
			return zero, fmt.Errorf("%w: %s: %v", utils.ErrAnalyzerUnavailable, component, err)
		}
		s.log.WithFields(logrus.Fields{
			"component": component,
			"native":    native.Name(),
			"stub":      stub.Name(),
		}).WithError(err).Warn("analyzer unavailable, demoted to stub")
		s.set(component, ComponentStatus{Variant: stub.Name(), Demoted: true, Reason: err.Error()})
		return stub, nil
	}
	s.set(component, ComponentStatus{Variant: native.Name()})
	return native, nil
}

func reasonFor(nativeSet bool) string {
	if nativeSet {
		return ""
	}
	return "not configured"
}

func usable(ctx context.Context, v any) error {
	if a, ok := v.(availability); ok && !a.Available() {
		return fmt.Errorf("binary not found")
	}
	if p, ok := v.(pinger); ok {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.Ping(pctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) set(component string, st ComponentStatus) {
	s.mu.Lock()
	s.status[component] = st
	s.mu.Unlock()
}

func (s *Supervisor) Prosody() ProsodyAnalyzer { return s.prosody }
func (s *Supervisor) Face() FaceAnalyzer       { return s.face }
func (s *Supervisor) ASR() stt.Provider        { return s.asr }
func (s *Supervisor) Policy() string           { return s.policy }

// Status returns a copy of per-component selection results.
func (s *Supervisor) Status() map[string]ComponentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ComponentStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// Demoted lists components running their stub because the native one failed.
func (s *Supervisor) Demoted() []string {
	var out []string
	for k, v := range s.Status() {
		if v.Demoted {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Supervisor) Close() error {
	if s.asr != nil {
		return s.asr.Close()
	}
	return nil
}
