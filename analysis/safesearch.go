package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/deepshield/deepshield-api/models"
)

var likelihoodScore = map[string]float64{
	"VERY_UNLIKELY": 0.05,
	"UNLIKELY":      0.25,
	"POSSIBLE":      0.5,
	"LIKELY":        0.75,
	"VERY_LIKELY":   0.95,
}

func isUnsafeLikelyOrHigher(l string) bool {
	return l == "LIKELY" || l == "VERY_LIKELY"
}

// SafeSearchAnalyzer scores images with Google Vision SAFE_SEARCH_DETECTION
type SafeSearchAnalyzer struct {
	svc *vision.Service
}

// NewSafeSearchAnalyzer creates the Vision client. With no options it uses
// Application Default Credentials.
func NewSafeSearchAnalyzer(ctx context.Context, opts ...option.ClientOption) (*SafeSearchAnalyzer, error) {
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithScopes(vision.CloudPlatformScope)}
	}
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &SafeSearchAnalyzer{svc: svc}, nil
}

// Analyze sends the image bytes inline and flags adult, violent or racy
// content rated LIKELY or higher
func (s *SafeSearchAnalyzer) Analyze(ctx context.Context, m Media) (models.Verdict, error) {
	if len(m.Data) == 0 || (m.ContentType != "" && !strings.HasPrefix(m.ContentType, "image/")) {
		return models.Verdict{}, ErrUnsupportedMedia
	}

	req := &vision.AnnotateImageRequest{
		Image: &vision.Image{
			Content: base64.StdEncoding.EncodeToString(m.Data),
		},
		Features: []*vision.Feature{
			{Type: "SAFE_SEARCH_DETECTION"},
		},
	}
	resp, err := s.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{req},
	}).Context(ctx).Do()
	if err != nil {
		return models.Verdict{}, err
	}

	verdict := models.Verdict{SubjectType: models.SubjectImage, Classification: "safe"}
	if len(resp.Responses) == 0 {
		return verdict, nil
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return models.Verdict{}, fmt.Errorf("vision: %s (code %d)", r.Error.Message, r.Error.Code)
	}
	ss := r.SafeSearchAnnotation
	if ss == nil {
		return verdict, nil
	}

	categories := []struct {
		name       string
		likelihood string
	}{
		{"adult", ss.Adult},
		{"violence", ss.Violence},
		{"racy", ss.Racy},
	}
	worst := ""
	for _, c := range categories {
		score := likelihoodScore[c.likelihood]
		if score > verdict.Score {
			verdict.Score = score
			worst = c.name
		}
		if isUnsafeLikelyOrHigher(c.likelihood) {
			verdict.Flagged = true
			verdict.Reasons = append(verdict.Reasons, c.name+": "+c.likelihood)
		}
	}
	if verdict.Flagged {
		verdict.Classification = worst
	}
	return verdict, nil
}
