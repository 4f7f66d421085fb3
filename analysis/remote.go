package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/deepshield/deepshield-api/models"
)

// RemoteAnalyzer posts media to an HTTP detector service, such as the
// deepfake or fake account models, and adapts its JSON answer
type RemoteAnalyzer struct {
	URL         string
	SubjectType models.SubjectType
	// Label is the classification reported when the detector flags media
	Label  string
	Client *http.Client
}

type remoteResult struct {
	IsDeepfake            bool     `json:"is_deepfake"`
	IsFake                bool     `json:"is_fake"`
	Confidence            float64  `json:"confidence"`
	ManipulationScore     float64  `json:"manipulation_score"`
	FacialInconsistencies []string `json:"facial_inconsistencies"`
	Reasons               []string `json:"reasons"`
	Error                 string   `json:"error"`
}

// NewRemoteAnalyzer returns an analyzer for the detector at url
func NewRemoteAnalyzer(url string, subject models.SubjectType, label string) *RemoteAnalyzer {
	return &RemoteAnalyzer{URL: url, SubjectType: subject, Label: label, Client: http.DefaultClient}
}

func (r *RemoteAnalyzer) Analyze(ctx context.Context, m Media) (models.Verdict, error) {
	if len(m.Data) == 0 && m.Text == "" {
		return models.Verdict{}, ErrUnsupportedMedia
	}

	var files []formFile
	if len(m.Data) > 0 {
		files = append(files, formFile{field: "file", name: m.Filename, data: m.Data})
	}
	var fields map[string]string
	if m.Text != "" {
		fields = map[string]string{"text": m.Text}
	}

	var res remoteResult
	if err := postForm(ctx, r.Client, r.URL, files, fields, &res); err != nil {
		return models.Verdict{}, err
	}
	return r.verdict(res), nil
}

type formFile struct {
	field string
	name  string
	data  []byte
}

// postForm sends files and fields as one multipart request to url and
// decodes the JSON answer into out. A 400 or 415 answer is reported as
// ErrUnsupportedMedia.
func postForm(ctx context.Context, client *http.Client, url string, files []formFile, fields map[string]string, out interface{}) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, f := range files {
		name := f.name
		if name == "" {
			name = "upload"
		}
		fw, err := mw.CreateFormFile(f.field, name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(f.data); err != nil {
			return err
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnsupportedMediaType:
		return fmt.Errorf("%w: detector answered %d", ErrUnsupportedMedia, resp.StatusCode)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("detector answered %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode detector response: %w", err)
	}
	return nil
}

func (r *RemoteAnalyzer) verdict(res remoteResult) models.Verdict {
	v := models.Verdict{
		SubjectType:    r.SubjectType,
		Flagged:        res.IsDeepfake || res.IsFake,
		Score:          res.ManipulationScore,
		Classification: "authentic",
	}
	if v.Score == 0 && v.Flagged {
		v.Score = res.Confidence
	}
	switch {
	case v.Flagged:
		v.Classification = r.Label
		v.Reasons = append(append(v.Reasons, res.FacialInconsistencies...), res.Reasons...)
		if len(v.Reasons) == 0 {
			v.Reasons = []string{r.Label}
		}
	case res.Error != "":
		// the detector ran but could not decide, e.g. no face in frame
		v.Classification = "inconclusive"
		v.Reasons = []string{res.Error}
	}
	return v
}
