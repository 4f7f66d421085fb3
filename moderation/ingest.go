package moderation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/deepshield/deepshield-api/models"
)

// snippetLength caps the content excerpt shown in the reviewer queue
const snippetLength = 280

// Submission describes analysed content independent of the verdict
type Submission struct {
	SubjectType models.SubjectType
	SubjectRef  string
	OwnerID     string
	ContentHash string
	// Snippet is shown to reviewers. For media it is usually the stored URL.
	Snippet string
}

// SeverityFor buckets a risk score when the analyzer did not rank it
func SeverityFor(score float64) models.Severity {
	switch {
	case score >= 0.9:
		return models.SeverityCritical
	case score >= 0.75:
		return models.SeverityHigh
	case score >= 0.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Ingest records a flagged verdict as a pending ContentFlag and its
// FlaggedItem. It returns a nil flag when the verdict is clean.
func (w *Workflow) Ingest(ctx context.Context, sub Submission, verdict models.Verdict) (*models.ContentFlag, error) {
	if !verdict.Flagged {
		return nil, nil
	}

	subjectType := verdict.SubjectType
	if subjectType == "" {
		subjectType = sub.SubjectType
	}
	severity := verdict.Severity
	if severity == "" {
		severity = SeverityFor(verdict.Score)
	}
	reason := strings.Join(verdict.Reasons, "; ")
	if reason == "" {
		reason = verdict.Classification
	}

	now := w.now()
	flag := models.ContentFlag{
		ID:             w.newID(),
		SubjectType:    subjectType,
		SubjectRef:     sub.SubjectRef,
		OwnerID:        sub.OwnerID,
		Reason:         reason,
		Severity:       severity,
		Score:          verdict.Score,
		Classification: verdict.Classification,
		ContentHash:    sub.ContentHash,
		Status:         models.StatusPending,
		CreatedAt:      now,
	}
	if err := w.FDB.InsertOne(ctx, flag); err != nil {
		return nil, upstream("insert flag", err)
	}
	FlagsCreated.WithLabelValues(string(flag.SubjectType), string(flag.Severity)).Inc()

	item := models.FlaggedItem{
		ID:        w.newID(),
		FlagID:    flag.ID,
		Type:      subjectType,
		Content:   truncate(sub.Snippet, snippetLength),
		Reason:    reason,
		Status:    models.StatusPending,
		Timestamp: now,
	}
	if err := w.IDB.InsertOne(ctx, item); err != nil {
		// the flag is the record of truth; a missing queue entry is recoverable
		zap.S().Errorw("failed to insert flagged item",
			"flagId", flag.ID,
			"error", err)
	}

	w.publish(ctx, models.Event{
		Type:     models.EventFlagCreated,
		RecordID: flag.ID,
		OwnerID:  flag.OwnerID,
		To:       string(models.StatusPending),
		Reason:   reason,
	})
	return &flag, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
