package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepshield/deepshield-api/analysis"
	"github.com/deepshield/deepshield-api/media"
	"github.com/deepshield/deepshield-api/models"
)

func TestRegisterHandler(t *testing.T) {
	f := newFixture(t, allFeatures())

	rr := f.doJSON(t, http.MethodPost, "/api/v1/users/register", "", models.RegisterRequest{
		Email:    " New.User@Example.com ",
		Username: "newbie",
		Password: password,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	user := decode[models.User](t, rr)
	assert.Equal(t, "new.user@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.False(t, user.IsVerified)
	assert.NotContains(t, rr.Body.String(), password)

	stored, err := f.users.FindByEmail(context.Background(), "new.user@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, password, stored.PasswordHash)

	rr = f.doJSON(t, http.MethodPost, "/api/v1/users/register", "", models.RegisterRequest{Email: "boss@deepshield.ai", Password: password})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, models.RoleAdmin, decode[models.User](t, rr).Role)

	tests := []struct {
		name string
		body interface{}
		code int
		err  string
	}{
		{"duplicate email", models.RegisterRequest{Email: "jane@example.com", Password: password}, http.StatusConflict, "DUPLICATE_SUBMISSION"},
		{"bad email", models.RegisterRequest{Email: "jane", Password: password}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"short password", models.RegisterRequest{Email: "short@example.com", Password: "abc"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed", []string{"nope"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.doJSON(t, http.MethodPost, "/api/v1/users/register", "", tt.body)
			assert.Equal(t, tt.code, rr.Code)
			assert.Equal(t, tt.err, errorCode(t, rr))
		})
	}
}

func TestTokenHandler(t *testing.T) {
	f := newFixture(t, allFeatures())

	rr := f.doJSON(t, http.MethodPost, "/api/v1/auth/token", "", models.TokenRequest{Email: "JANE@example.com", Password: password})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[models.TokenResponse](t, rr)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.InDelta(t, 3600, res.ExpiresIn, 5)
	assert.Equal(t, "user-1", res.User.ID)

	rr = f.do(t, http.MethodGet, "/api/v1/users/me", res.Token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jane@example.com", decode[models.User](t, rr).Email)

	for _, body := range []models.TokenRequest{
		{Email: "jane@example.com", Password: "wrong-password"},
		{Email: "nobody@example.com", Password: password},
	} {
		rr := f.doJSON(t, http.MethodPost, "/api/v1/auth/token", "", body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "UNAUTHENTICATED", errorCode(t, rr))
	}
}

func kycForm() map[string]string {
	return map[string]string{
		"fullName":    "Jane Doe",
		"dateOfBirth": "1990-04-01",
		"idType":      models.IDTypePassport,
		"idNumber":    "X1234567",
	}
}

func TestSubmitKYCHandler(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "user-1")
	images := map[string][]byte{"idImage": pngBytes, "selfieImage": pngBytes}

	body, ct := multipartBody(t, kycForm(), images)
	rr := f.do(t, http.MethodPost, "/api/v1/users/kyc", token, body, ct)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	receipt := decode[models.KYCReceipt](t, rr)
	assert.Equal(t, models.KYCPending, receipt.Status)
	assert.NotEmpty(t, receipt.ID)

	require.Equal(t, 2, f.media.count())
	for _, p := range f.media.puts {
		assert.Equal(t, media.FolderKYC, p.folder)
	}
	stored, err := f.kyc.FindOne(context.Background(), receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.NotEmpty(t, stored.IDImageRef)
	assert.NotEmpty(t, stored.SelfieImageRef)

	// a second request while one is pending is refused before any upload
	body, ct = multipartBody(t, kycForm(), images)
	rr = f.do(t, http.MethodPost, "/api/v1/users/kyc", token, body, ct)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "DUPLICATE_SUBMISSION", errorCode(t, rr))
	assert.Equal(t, 2, f.media.count())
}

func TestSubmitKYCHandler_Rejects(t *testing.T) {
	images := map[string][]byte{"idImage": pngBytes, "selfieImage": pngBytes}
	withField := func(k, v string) map[string]string {
		form := kycForm()
		form[k] = v
		return form
	}

	tests := []struct {
		name   string
		fields map[string]string
		files  map[string][]byte
		code   int
		err    string
	}{
		{"future birthday", withField("dateOfBirth", "2999-01-01"), images, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad id type", withField("idType", "library_card"), images, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing selfie", kycForm(), map[string][]byte{"idImage": pngBytes}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not an image", kycForm(), map[string][]byte{"idImage": []byte("plain text"), "selfieImage": pngBytes}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, allFeatures())
			body, ct := multipartBody(t, tt.fields, tt.files)
			rr := f.do(t, http.MethodPost, "/api/v1/users/kyc", f.token(t, "user-1"), body, ct)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
			assert.Equal(t, tt.err, errorCode(t, rr))
			assert.Zero(t, f.media.count())
		})
	}
}

func TestSubmitKYCHandler_VerifiedUser(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "user-1")
	adminToken := f.token(t, "admin-1")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/admin/users/user-1/verify", adminToken, nil, "").Code)

	body, ct := multipartBody(t, kycForm(), map[string][]byte{"idImage": pngBytes, "selfieImage": pngBytes})
	rr := f.do(t, http.MethodPost, "/api/v1/users/kyc", token, body, ct)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Zero(t, f.media.count())
}

func TestSubmitKYCHandler_FeatureDisabled(t *testing.T) {
	feats := allFeatures()
	feats.KYC = false
	f := newFixture(t, feats)

	body, ct := multipartBody(t, kycForm(), map[string][]byte{"idImage": pngBytes, "selfieImage": pngBytes})
	rr := f.do(t, http.MethodPost, "/api/v1/users/kyc", f.token(t, "user-1"), body, ct)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "FEATURE_DISABLED", errorCode(t, rr))
}

func TestSubmitKYCHandler_FaceMatch(t *testing.T) {
	tests := []struct {
		name    string
		matcher analysis.FaceMatcherFunc
		want    *models.FaceMatch
	}{
		{
			name: "score attached",
			matcher: func(_ context.Context, id, selfie analysis.Media) (models.FaceMatch, error) {
				if len(id.Data) == 0 || len(selfie.Data) == 0 {
					return models.FaceMatch{}, errors.New("missing image")
				}
				return models.FaceMatch{Verified: true, Confidence: 0.95}, nil
			},
			want: &models.FaceMatch{Verified: true, Confidence: 0.95},
		},
		{
			name: "matcher down",
			matcher: func(context.Context, analysis.Media, analysis.Media) (models.FaceMatch, error) {
				return models.FaceMatch{}, errors.New("connection refused")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, allFeatures())
			f.server.Analysis.SetFaceMatcher(tt.matcher)

			body, ct := multipartBody(t, kycForm(), map[string][]byte{"idImage": pngBytes, "selfieImage": pngBytes})
			rr := f.do(t, http.MethodPost, "/api/v1/users/kyc", f.token(t, "user-1"), body, ct)
			require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

			stored, err := f.kyc.FindOne(context.Background(), decode[models.KYCReceipt](t, rr).ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.FaceMatch)
			assert.Equal(t, models.KYCPending, stored.Status)
		})
	}
}
