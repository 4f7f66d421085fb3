package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/deepshield/deepshield-api/analysis"
	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/features"
	"github.com/deepshield/deepshield-api/media"
	"github.com/deepshield/deepshield-api/models"
	"github.com/deepshield/deepshield-api/moderation"
)

// detectorFeature names the flag gating each detector
var detectorFeature = map[string]string{
	analysis.DetectorSafeSearch:  features.ContentFiltering,
	analysis.DetectorKeywords:    features.ContentFiltering,
	analysis.DetectorDeepfake:    features.DeepfakeDetection,
	analysis.DetectorFakeAccount: features.FakeAccountDetection,
}

// Content runs uploads through the analyzers and exposes the flagged item queue
type Content struct {
	WF             *moderation.Workflow
	IDB            databases.FlaggedItemDatabase
	Analysis       *analysis.Service
	Media          media.Store
	Features       *features.Flags
	MaxUploadBytes int64
}

type upload struct {
	detector    string
	subjectType models.SubjectType
	language    string
	filename    string
	contentType string
	data        []byte
	text        string
}

// readUpload parses a multipart body carrying either a file or a text field
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return upload{}, invalidRequest(fmt.Sprintf("upload exceeds %d bytes", maxBytes))
		}
		return upload{}, invalidRequest("expected a multipart form")
	}

	u := upload{
		detector:    r.FormValue("detector"),
		subjectType: models.SubjectType(r.FormValue("subjectType")),
		language:    r.FormValue("language"),
		text:        strings.TrimSpace(r.FormValue("text")),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return upload{}, invalidRequest("unreadable file")
	default:
		defer file.Close()
		if u.data, err = readPart(file); err != nil {
			return upload{}, err
		}
		u.filename = header.Filename
		u.contentType = header.Header.Get("Content-Type")
		if u.contentType == "" || u.contentType == "application/octet-stream" {
			u.contentType = http.DetectContentType(u.data)
		}
	}

	if len(u.data) == 0 && u.text == "" {
		return upload{}, invalidRequest("a file or text is required")
	}
	return u, nil
}

func readPart(f multipart.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, invalidRequest("unreadable file")
	}
	if len(data) == 0 {
		return nil, invalidRequest("file is empty")
	}
	return data, nil
}

// subject picks the subject type from the form, the detector and the media
func (u upload) subject() models.SubjectType {
	switch u.subjectType {
	case models.SubjectImage, models.SubjectVideo, models.SubjectAccount, models.SubjectText:
		return u.subjectType
	}
	switch {
	case u.detector == analysis.DetectorFakeAccount:
		return models.SubjectAccount
	case len(u.data) == 0:
		return models.SubjectText
	case strings.HasPrefix(u.contentType, "video/"):
		return models.SubjectVideo
	case strings.HasPrefix(u.contentType, "image/"):
		return models.SubjectImage
	default:
		return models.SubjectText
	}
}

// defaultDetector is used when the form names none
func (u upload) defaultDetector() string {
	switch u.subject() {
	case models.SubjectImage:
		return analysis.DetectorSafeSearch
	case models.SubjectVideo:
		return analysis.DetectorDeepfake
	case models.SubjectAccount:
		return analysis.DetectorFakeAccount
	default:
		return analysis.DetectorKeywords
	}
}

// AnalyzeHandler runs one detector over an upload and records a flag when
// the verdict calls for one
func (c Content) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := actor(r)

	u, err := readUpload(w, r, c.MaxUploadBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u.detector == "" {
		u.detector = u.defaultDetector()
	}
	if flag, ok := detectorFeature[u.detector]; ok {
		if err := c.Features.Require(ctx, flag, caller.ID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	subjectType := u.subject()
	sub := moderation.Submission{SubjectType: subjectType, OwnerID: caller.ID}
	m := analysis.Media{
		SubjectType: subjectType,
		Filename:    u.filename,
		ContentType: u.contentType,
		Data:        u.data,
		Text:        u.text,
		Language:    u.language,
	}

	if len(u.data) > 0 {
		sub.ContentHash = media.ContentHash(u.data)
		ref, err := c.Media.Put(ctx, media.FolderContent, media.Object{
			Name:        u.filename,
			ContentType: u.contentType,
			Data:        u.data,
		})
		if err != nil {
			writeError(w, r, fmt.Errorf("store upload: %w: %w", moderation.ErrUpstreamUnavailable, err))
			return
		}
		sub.SubjectRef = ref
		sub.Snippet = ref
	} else {
		sub.ContentHash = media.ContentHash([]byte(u.text))
		sub.SubjectRef = "sha256:" + sub.ContentHash
		sub.Snippet = u.text
	}

	res, err := c.Analysis.AnalyzeAndIngest(ctx, u.detector, m, sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListFlaggedHandler returns the flagged item queue, optionally by status
func (c Content) ListFlaggedHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := c.WF.Authorize(r.Context(), actor(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := parseList(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := bson.M{}
	if v := r.URL.Query().Get("status"); v != "" {
		if !moderation.ItemMachine.Valid(models.FlagStatus(v)) {
			writeError(w, r, invalidRequest(fmt.Sprintf("unknown item status %q", v)))
			return
		}
		filter["status"] = v
	}

	items, err := databases.Collect(c.IDB.Find(r.Context(), filter, p.findOptions()))
	if err != nil {
		writeError(w, r, storeError("list flagged items", err))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// UpdateItemStatusHandler moves a flagged item through its review states
func (c Content) UpdateItemStatusHandler(w http.ResponseWriter, r *http.Request) {
	var body models.UpdateStatusRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := c.WF.SetItemStatus(r.Context(), mux.Vars(r)["id"], body.Status, actor(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
