package moderation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/models"
)

const dateOfBirthLayout = "2006-01-02"

var idTypes = map[string]bool{
	models.IDTypePassport:       true,
	models.IDTypeNationalID:     true,
	models.IDTypeDriversLicense: true,
}

// ValidateKYC checks the identity fields of a submission. Image refs are
// checked separately by SubmitKYC since they only exist after upload.
func ValidateKYC(req models.KYCRequest, now time.Time) error {
	if strings.TrimSpace(req.UserID) == "" {
		return validation("userId is required")
	}
	if strings.TrimSpace(req.FullName) == "" {
		return validation("fullName is required")
	}
	dob, err := time.Parse(dateOfBirthLayout, req.DateOfBirth)
	if err != nil {
		return validation("dateOfBirth must be YYYY-MM-DD")
	}
	if dob.After(now) {
		return validation("dateOfBirth is in the future")
	}
	if !idTypes[req.IDType] {
		return validation("idType must be one of passport, national_id, drivers_license")
	}
	if strings.TrimSpace(req.IDNumber) == "" {
		return validation("idNumber is required")
	}
	return nil
}

// CheckKYCEligible reports whether userID may open a new KYC request. It lets
// callers fail fast before uploading identity images; SubmitKYC checks again.
func (w *Workflow) CheckKYCEligible(ctx context.Context, userID string) error {
	user, err := w.UDB.FindOne(ctx, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return upstream("load user", err)
	}
	if user.IsVerified {
		return duplicate("user is already verified")
	}

	_, err = w.KDB.FindPendingByUser(ctx, userID)
	if err == nil {
		return duplicate("a kyc request is already pending")
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return upstream("load pending kyc", err)
	}
	return nil
}

// SubmitKYC stores a new pending KYC request for its user
func (w *Workflow) SubmitKYC(ctx context.Context, req models.KYCRequest) (*models.KYCRequest, error) {
	now := w.now()
	if err := ValidateKYC(req, now); err != nil {
		return nil, err
	}
	if req.IDImageRef == "" || req.SelfieImageRef == "" {
		return nil, validation("idImage and selfieImage are required")
	}
	if err := w.CheckKYCEligible(ctx, req.UserID); err != nil {
		return nil, err
	}

	req.ID = w.newID()
	req.Status = models.KYCPending
	req.CreatedAt = now
	req.RejectionReason = ""
	req.ReviewedBy = ""
	req.ReviewedAt = nil

	err := w.KDB.InsertOne(ctx, req)
	if errors.Is(err, databases.ErrDuplicate) {
		// the partial unique index on pending requests caught a concurrent submit
		return nil, duplicate("a kyc request is already pending")
	}
	if err != nil {
		return nil, upstream("insert kyc", err)
	}

	w.publish(ctx, models.Event{
		Type:     models.EventKYCSubmitted,
		RecordID: req.ID,
		OwnerID:  req.UserID,
		To:       string(models.KYCPending),
	})
	return &req, nil
}

// RejectKYC closes a pending KYC request with a reason the user can see
func (w *Workflow) RejectKYC(ctx context.Context, kycID, actorID, reason string) (req *models.KYCRequest, err error) {
	defer func() { Transitions.WithLabelValues("kyc", string(models.KYCRejected), result(err)).Inc() }()

	if _, err = w.Authorize(ctx, actorID); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validation("reason is required")
	}

	current, err := w.KDB.FindOne(ctx, kycID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, upstream("load kyc", err)
	}
	if current.Status != models.KYCPending {
		return nil, invalid("kyc %s -> %s", current.Status, models.KYCRejected)
	}

	req, err = w.KDB.CompareAndSetStatus(ctx, kycID, models.KYCPending, models.KYCReview{
		Status:          models.KYCRejected,
		RejectionReason: reason,
		ReviewedBy:      actorID,
		ReviewedAt:      w.now(),
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		// pending is the only state with outgoing edges, so losing the race
		// means the request was already closed
		return nil, invalid("kyc request %s is no longer pending", kycID)
	}
	if err != nil {
		return nil, upstream("reject kyc", err)
	}

	w.publish(ctx, models.Event{
		Type:     models.EventKYCRejected,
		RecordID: req.ID,
		OwnerID:  req.UserID,
		ActorID:  actorID,
		From:     string(models.KYCPending),
		To:       string(models.KYCRejected),
		Reason:   reason,
	})
	return req, nil
}
