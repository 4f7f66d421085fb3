package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/deepshield/deepshield-api/analysis"
	"github.com/deepshield/deepshield-api/api"
	"github.com/deepshield/deepshield-api/config"
	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/features"
	"github.com/deepshield/deepshield-api/media"
	"github.com/deepshield/deepshield-api/models"
	"github.com/deepshield/deepshield-api/moderation"
)

const minPasswordLength = 8

// User handles accounts, tokens and KYC submissions for end users
type User struct {
	UDB            databases.UserDatabase
	Auth           *api.Auth
	WF             *moderation.Workflow
	Analysis       *analysis.Service
	Media          media.Store
	Features       *features.Flags
	Config         config.Config
	MaxUploadBytes int64
	Now            func() time.Time
}

func (u User) now() time.Time {
	if u.Now == nil {
		return time.Now().UTC()
	}
	return u.Now()
}

// RegisterHandler creates an account. Emails listed in ADMIN_EMAILS are
// given the admin role.
func (u User) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var body models.RegisterRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, r, invalidRequest("a valid email is required"))
		return
	}
	if len(body.Password) < minPasswordLength {
		writeError(w, r, invalidRequest("password must be at least 8 characters"))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     strings.TrimSpace(body.Username),
		FullName:     strings.TrimSpace(body.FullName),
		PasswordHash: string(hashedPassword),
		Role:         models.RoleUser,
		CreatedAt:    u.now(),
	}
	if u.Config.IsAdminEmail(email) {
		user.Role = models.RoleAdmin
	}

	err = u.UDB.InsertOne(r.Context(), user)
	if errors.Is(err, databases.ErrDuplicate) {
		writeError(w, r, fmt.Errorf("%w: email is already registered", moderation.ErrDuplicateSubmission))
		return
	}
	if err != nil {
		writeError(w, r, storeError("insert user", err))
		return
	}

	zap.S().Infow("user registered", "userId", user.ID, "role", user.Role)
	writeJSON(w, http.StatusCreated, user)
}

// TokenHandler exchanges an email and password for a bearer token
func (u User) TokenHandler(w http.ResponseWriter, r *http.Request) {
	var body models.TokenRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := u.Auth.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, expires, err := u.Auth.IssueToken(*user)
	if err != nil {
		config.ErrorStatus("failed to issue token", http.StatusInternalServerError, w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(expires.Sub(u.Auth.Now()).Seconds()),
		User:      *user,
	})
}

// MeHandler returns the caller's account
func (u User) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := u.UDB.FindOne(r.Context(), actor(r).ID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		writeError(w, r, moderation.ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, r, storeError("load user", err))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SubmitKYCHandler accepts identity details and two images for review.
// Eligibility is checked before anything is uploaded. When a face matcher
// is configured its score is attached to the request for the reviewer.
func (u User) SubmitKYCHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := actor(r)
	if err := u.Features.Require(ctx, features.KYC, caller.ID); err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, u.MaxUploadBytes)
	if err := r.ParseMultipartForm(u.MaxUploadBytes); err != nil {
		writeError(w, r, invalidRequest("expected a multipart form within the upload limit"))
		return
	}

	req := models.KYCRequest{
		UserID:      caller.ID,
		FullName:    strings.TrimSpace(r.FormValue("fullName")),
		DateOfBirth: strings.TrimSpace(r.FormValue("dateOfBirth")),
		IDType:      strings.TrimSpace(r.FormValue("idType")),
		IDNumber:    strings.TrimSpace(r.FormValue("idNumber")),
	}
	if err := moderation.ValidateKYC(req, u.now()); err != nil {
		writeError(w, r, err)
		return
	}

	idImage, err := formImage(r, "idImage")
	if err != nil {
		writeError(w, r, err)
		return
	}
	selfie, err := formImage(r, "selfieImage")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := u.WF.CheckKYCEligible(ctx, caller.ID); err != nil {
		writeError(w, r, err)
		return
	}

	req.FaceMatch = u.matchFaces(r, idImage, selfie)

	if req.IDImageRef, err = u.Media.Put(ctx, media.FolderKYC, idImage); err != nil {
		writeError(w, r, storeError("store id image", err))
		return
	}
	if req.SelfieImageRef, err = u.Media.Put(ctx, media.FolderKYC, selfie); err != nil {
		writeError(w, r, storeError("store selfie image", err))
		return
	}

	saved, err := u.WF.SubmitKYC(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.KYCReceipt{
		ID:        saved.ID,
		Status:    saved.Status,
		CreatedAt: saved.CreatedAt,
	})
}

// matchFaces scores the selfie against the id image. The score only informs
// the reviewer, so a failed comparison is logged and the request goes on
// without one.
func (u User) matchFaces(r *http.Request, idImage, selfie media.Object) *models.FaceMatch {
	if u.Analysis == nil {
		return nil
	}
	toMedia := func(o media.Object) analysis.Media {
		return analysis.Media{SubjectType: models.SubjectImage, Filename: o.Name, ContentType: o.ContentType, Data: o.Data}
	}
	match, err := u.Analysis.MatchFaces(r.Context(), toMedia(idImage), toMedia(selfie))
	if err != nil {
		zap.S().Warnw("face match failed, kyc request left for manual review",
			"userId", actor(r).ID,
			"error", err)
		return nil
	}
	return match
}

// formImage reads a required image part from a parsed multipart form
func formImage(r *http.Request, field string) (media.Object, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return media.Object{}, invalidRequest(field + " is required")
	}
	defer file.Close()

	data, err := readPart(file)
	if err != nil {
		return media.Object{}, err
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return media.Object{}, invalidRequest(field + " must be an image")
	}
	return media.Object{Name: header.Filename, ContentType: contentType, Data: data}, nil
}
