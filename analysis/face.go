package analysis

import (
	"context"
	"net/http"

	"github.com/deepshield/deepshield-api/models"
)

// FaceMatcher compares the face on an identity document with a selfie
type FaceMatcher interface {
	MatchFaces(ctx context.Context, idImage, selfie Media) (models.FaceMatch, error)
}

// FaceMatcherFunc adapts a function to FaceMatcher
type FaceMatcherFunc func(ctx context.Context, idImage, selfie Media) (models.FaceMatch, error)

// MatchFaces calls f
func (f FaceMatcherFunc) MatchFaces(ctx context.Context, idImage, selfie Media) (models.FaceMatch, error) {
	return f(ctx, idImage, selfie)
}

// RemoteFaceMatcher posts both images to an HTTP face verification service
type RemoteFaceMatcher struct {
	URL    string
	Client *http.Client
}

type faceResult struct {
	Verified   bool    `json:"verified"`
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

// NewRemoteFaceMatcher returns a matcher for the verifier at url
func NewRemoteFaceMatcher(url string) *RemoteFaceMatcher {
	return &RemoteFaceMatcher{URL: url, Client: http.DefaultClient}
}

func (r *RemoteFaceMatcher) MatchFaces(ctx context.Context, idImage, selfie Media) (models.FaceMatch, error) {
	if len(idImage.Data) == 0 || len(selfie.Data) == 0 {
		return models.FaceMatch{}, ErrUnsupportedMedia
	}
	files := []formFile{
		{field: "file1", name: idImage.Filename, data: idImage.Data},
		{field: "file2", name: selfie.Filename, data: selfie.Data},
	}
	var res faceResult
	if err := postForm(ctx, r.Client, r.URL, files, nil, &res); err != nil {
		return models.FaceMatch{}, err
	}
	return models.FaceMatch{
		Verified:   res.Verified || res.Match,
		Confidence: res.Confidence,
		Error:      res.Error,
	}, nil
}
