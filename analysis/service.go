package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	cb "github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/deepshield/deepshield-api/models"
	"github.com/deepshield/deepshield-api/moderation"
)

// Detector names accepted by the analyze route
const (
	DetectorSafeSearch  = "safesearch"
	DetectorKeywords    = "keywords"
	DetectorDeepfake    = "deepfake"
	DetectorFakeAccount = "fake_account"
	detectorFaceMatch   = "face_match"
)

// Ingester records flagged verdicts
type Ingester interface {
	Ingest(ctx context.Context, sub moderation.Submission, verdict models.Verdict) (*models.ContentFlag, error)
}

type detector struct {
	analyzer Analyzer
	breaker  *cb.CircuitBreaker
}

// Service runs analyzers under a deadline and a per detector circuit
// breaker. Analyzer failures never reach the stores: a flag is written only
// once a verdict has come back.
type Service struct {
	timeout  time.Duration
	ingester Ingester

	mu        sync.RWMutex
	detectors map[string]*detector
	faces     FaceMatcher
	faceCB    *cb.CircuitBreaker
}

// NewService returns a Service that gives each analyzer call timeout to
// finish. A non positive timeout leaves the caller's deadline alone.
func NewService(timeout time.Duration, ingester Ingester) *Service {
	return &Service{
		timeout:   timeout,
		ingester:  ingester,
		detectors: map[string]*detector{},
	}
}

func newBreaker(name string) *cb.CircuitBreaker {
	return cb.NewCircuitBreaker(cb.Settings{
		Name:        "analyzer-" + name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to cb.State) {
			zap.S().Warnw("analyzer circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
		// rejecting the caller's media says nothing about detector health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnsupportedMedia)
		},
	})
}

// Register makes a under name available to Analyze, replacing any previous
// analyzer with that name
func (s *Service) Register(name string, a Analyzer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectors[name] = &detector{analyzer: a, breaker: newBreaker(name)}
}

// SetFaceMatcher makes m available to MatchFaces
func (s *Service) SetFaceMatcher(m FaceMatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faces = m
	s.faceCB = newBreaker(detectorFaceMatch)
}

// Detectors lists the registered detector names
func (s *Service) Detectors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.detectors))
	for name := range s.detectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Analyze runs the named detector over m. Timeouts, transport failures and
// open circuits are reported as moderation.ErrUpstreamUnavailable; unknown
// detectors and unreadable media as moderation.ErrValidation.
func (s *Service) Analyze(ctx context.Context, name string, m Media) (models.Verdict, error) {
	s.mu.RLock()
	d, ok := s.detectors[name]
	s.mu.RUnlock()
	if !ok {
		return models.Verdict{}, fmt.Errorf("%w: unknown detector %q", moderation.ErrValidation, name)
	}

	result, err := s.call(ctx, name, d.breaker, func(ctx context.Context) (interface{}, error) {
		return d.analyzer.Analyze(ctx, m)
	})
	if err != nil {
		return models.Verdict{}, err
	}

	verdict := result.(models.Verdict)
	if verdict.SubjectType == "" {
		verdict.SubjectType = m.SubjectType
	}
	AnalyzerCalls.WithLabelValues(name, outcome(verdict)).Inc()
	return verdict, nil
}

// MatchFaces compares an id image with a selfie. It returns nil without an
// error when no face matcher is configured.
func (s *Service) MatchFaces(ctx context.Context, idImage, selfie Media) (*models.FaceMatch, error) {
	s.mu.RLock()
	faces, breaker := s.faces, s.faceCB
	s.mu.RUnlock()
	if faces == nil {
		return nil, nil
	}

	result, err := s.call(ctx, detectorFaceMatch, breaker, func(ctx context.Context) (interface{}, error) {
		return faces.MatchFaces(ctx, idImage, selfie)
	})
	if err != nil {
		return nil, err
	}
	match := result.(models.FaceMatch)
	outcome := "mismatch"
	if match.Verified {
		outcome = "match"
	}
	AnalyzerCalls.WithLabelValues(detectorFaceMatch, outcome).Inc()
	return &match, nil
}

// call runs fn under the service timeout and breaker. Timeouts, transport
// failures and open circuits are reported as
// moderation.ErrUpstreamUnavailable; unreadable media as
// moderation.ErrValidation.
func (s *Service) call(ctx context.Context, name string, breaker *cb.CircuitBreaker, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := breaker.Execute(func() (interface{}, error) {
		return fn(callCtx)
	})
	AnalyzerLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, ErrUnsupportedMedia):
		AnalyzerCalls.WithLabelValues(name, "unsupported").Inc()
		return nil, fmt.Errorf("%w: %w", moderation.ErrValidation, err)
	default:
		failure := "error"
		if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
			failure = "circuit_open"
		} else if errors.Is(err, context.DeadlineExceeded) {
			failure = "timeout"
		}
		AnalyzerCalls.WithLabelValues(name, failure).Inc()
		zap.S().Warnw("analyzer call failed",
			"detector", name,
			"outcome", failure,
			"error", err)
		return nil, fmt.Errorf("analyzer %s: %w: %w", name, moderation.ErrUpstreamUnavailable, err)
	}
}

// AnalyzeAndIngest analyzes m and, when the verdict is flagged, records it
// through the ingester
func (s *Service) AnalyzeAndIngest(ctx context.Context, name string, m Media, sub moderation.Submission) (models.AnalysisResponse, error) {
	verdict, err := s.Analyze(ctx, name, m)
	if err != nil {
		return models.AnalysisResponse{}, err
	}
	if sub.SubjectType == "" {
		sub.SubjectType = verdict.SubjectType
	}
	flag, err := s.ingester.Ingest(ctx, sub, verdict)
	if err != nil {
		return models.AnalysisResponse{}, err
	}
	return models.AnalysisResponse{Verdict: verdict, Flag: flag}, nil
}

func outcome(v models.Verdict) string {
	if v.Flagged {
		return "flagged"
	}
	return "clean"
}
