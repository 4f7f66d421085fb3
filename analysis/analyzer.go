// Package analysis produces verdicts for submitted media and hands flagged
// verdicts to the moderation workflow. Scoring lives in external services;
// this package only adapts their responses.
package analysis

import (
	"context"
	"errors"

	"github.com/deepshield/deepshield-api/models"
)

// ErrUnsupportedMedia is returned by an analyzer asked to score media it
// cannot read, such as text sent to an image classifier
var ErrUnsupportedMedia = errors.New("unsupported media")

// Media is one piece of submitted content
type Media struct {
	SubjectType models.SubjectType
	Filename    string
	ContentType string
	Data        []byte
	Text        string
	// Language is an ISO 639-1 hint for text analyzers; empty means unknown
	Language string
}

// Analyzer scores media. A returned error means no verdict was reached.
type Analyzer interface {
	Analyze(ctx context.Context, m Media) (models.Verdict, error)
}

// AnalyzerFunc adapts a function to Analyzer
type AnalyzerFunc func(ctx context.Context, m Media) (models.Verdict, error)

// Analyze calls f
func (f AnalyzerFunc) Analyze(ctx context.Context, m Media) (models.Verdict, error) {
	return f(ctx, m)
}
