package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepshield/deepshield-api/models"
)

func seedFlag(t *testing.T, f *fixture, id string, status models.FlagStatus, at time.Time) {
	t.Helper()
	require.NoError(t, f.flags.InsertOne(context.Background(), models.ContentFlag{
		ID:          id,
		SubjectType: models.SubjectImage,
		OwnerID:     "user-1",
		Reason:      "adult: LIKELY",
		Severity:    models.SeverityHigh,
		Status:      status,
		CreatedAt:   at,
	}))
}

func TestUpdateFlagStatusHandler(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")
	seedFlag(t, f, "flag-1", models.StatusPending, time.Now())

	rr := f.doJSON(t, http.MethodPatch, "/api/v1/admin/flags/flag-1", token, models.UpdateStatusRequest{Status: models.StatusReviewing})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	flag := decode[models.ContentFlag](t, rr)
	assert.Equal(t, models.StatusReviewing, flag.Status)
	assert.Equal(t, "admin-1", flag.ReviewedBy)
	assert.NotNil(t, flag.ReviewedAt)

	rr = f.doJSON(t, http.MethodPatch, "/api/v1/admin/flags/flag-1", token, models.UpdateStatusRequest{Status: models.StatusResolved})
	require.Equal(t, http.StatusOK, rr.Code)

	tests := []struct {
		name string
		path string
		body interface{}
		code int
		err  string
	}{
		{"terminal", "/api/v1/admin/flags/flag-1", models.UpdateStatusRequest{Status: models.StatusDismissed}, http.StatusConflict, "INVALID_TRANSITION"},
		{"unknown status", "/api/v1/admin/flags/flag-1", models.UpdateStatusRequest{Status: "archived"}, http.StatusConflict, "INVALID_TRANSITION"},
		{"unknown flag", "/api/v1/admin/flags/missing", models.UpdateStatusRequest{Status: models.StatusReviewing}, http.StatusNotFound, "NOT_FOUND"},
		{"unknown flag and status", "/api/v1/admin/flags/missing", models.UpdateStatusRequest{Status: "bogus"}, http.StatusNotFound, "NOT_FOUND"},
		{"malformed body", "/api/v1/admin/flags/flag-1", "not an object", http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.doJSON(t, http.MethodPatch, tt.path, token, tt.body)
			assert.Equal(t, tt.code, rr.Code)
			assert.Equal(t, tt.err, errorCode(t, rr))
		})
	}

	stored, err := f.flags.FindOne(context.Background(), "flag-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, stored.Status)
}

func TestUpdateFlagStatusHandler_SlowSubscriber(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")
	seedFlag(t, f, "flag-1", models.StatusPending, time.Now())
	f.events.stall(t)

	body, err := json.Marshal(models.UpdateStatusRequest{Status: models.StatusReviewing})
	require.NoError(t, err)
	done := make(chan int, 1)
	go func() {
		rr := f.do(t, http.MethodPatch, "/api/v1/admin/flags/flag-1", token, bytes.NewReader(body), "application/json")
		done <- rr.Code
	}()

	select {
	case code := <-done:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("transition waited on event delivery")
	}
	assert.Zero(t, f.events.count())

	stored, err := f.flags.FindOne(context.Background(), "flag-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewing, stored.Status)
}

func TestUpdateFlagStatusHandler_PublishesEvent(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")
	seedFlag(t, f, "flag-1", models.StatusPending, time.Now())

	rr := f.doJSON(t, http.MethodPatch, "/api/v1/admin/flags/flag-1", token, models.UpdateStatusRequest{Status: models.StatusReviewing})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Eventually(t, func() bool { return f.events.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestListFlagsHandler(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedFlag(t, f, "flag-b", models.StatusPending, base.Add(time.Minute))
	seedFlag(t, f, "flag-a", models.StatusPending, base)
	seedFlag(t, f, "flag-c", models.StatusDismissed, base.Add(2*time.Minute))

	ids := func(flags []models.ContentFlag) []string {
		out := []string{}
		for _, fl := range flags {
			out = append(out, fl.ID)
		}
		return out
	}

	rr := f.do(t, http.MethodGet, "/api/v1/admin/flags", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"flag-a", "flag-b", "flag-c"}, ids(decode[[]models.ContentFlag](t, rr)))

	rr = f.do(t, http.MethodGet, "/api/v1/admin/flags?status=pending", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"flag-a", "flag-b"}, ids(decode[[]models.ContentFlag](t, rr)))

	rr = f.do(t, http.MethodGet, "/api/v1/admin/flags?limit=1&page=2", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"flag-b"}, ids(decode[[]models.ContentFlag](t, rr)))

	rr = f.do(t, http.MethodGet, "/api/v1/admin/flags?status=bogus", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/admin/flags?limit=-3", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListFlagsHandler_UnpagedByDefault(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		seedFlag(t, f, fmt.Sprintf("flag-%02d", i), models.StatusPending, base.Add(time.Duration(i)*time.Minute))
	}

	rr := f.do(t, http.MethodGet, "/api/v1/admin/flags", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	flags := decode[[]models.ContentFlag](t, rr)
	require.Len(t, flags, 60)
	assert.Equal(t, "flag-59", flags[59].ID)

	rr = f.do(t, http.MethodGet, "/api/v1/admin/flags?page=2", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	flags = decode[[]models.ContentFlag](t, rr)
	require.Len(t, flags, 10)
	assert.Equal(t, "flag-50", flags[0].ID)
}

func TestListUsersHandler(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")

	rr := f.do(t, http.MethodGet, "/api/v1/admin/users?role=admin", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	users := decode[[]models.User](t, rr)
	require.Len(t, users, 1)
	assert.Equal(t, "admin-1", users[0].ID)
	assert.NotContains(t, rr.Body.String(), "passwordHash")

	rr = f.do(t, http.MethodGet, "/api/v1/admin/users?verified=maybe", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListFlagsHandler_StoreFailure(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")

	f.flags.Err = assert.AnError
	rr := f.do(t, http.MethodGet, "/api/v1/admin/flags", token, nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", errorCode(t, rr))
}

func TestVerifyUserHandler(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")

	for i := 0; i < 2; i++ {
		rr := f.do(t, http.MethodPost, "/api/v1/admin/users/user-1/verify", token, nil, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		user := decode[models.User](t, rr)
		assert.True(t, user.IsVerified)
		assert.Equal(t, "admin-1", user.VerifiedBy)
	}

	rr := f.do(t, http.MethodPost, "/api/v1/admin/users/nobody/verify", token, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRejectKYCHandler(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")
	require.NoError(t, f.kyc.InsertOne(context.Background(), models.KYCRequest{
		ID:        "kyc-1",
		UserID:    "user-1",
		Status:    models.KYCPending,
		CreatedAt: time.Now(),
	}))

	rr := f.doJSON(t, http.MethodPost, "/api/v1/admin/kyc/kyc-1/reject", token, models.RejectKYCRequest{Reason: "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.doJSON(t, http.MethodPost, "/api/v1/admin/kyc/kyc-1/reject", token, models.RejectKYCRequest{Reason: "document is blurry"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	req := decode[models.KYCRequest](t, rr)
	assert.Equal(t, models.KYCRejected, req.Status)
	assert.Equal(t, "document is blurry", req.RejectionReason)

	rr = f.doJSON(t, http.MethodPost, "/api/v1/admin/kyc/kyc-1/reject", token, models.RejectKYCRequest{Reason: "again"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/admin/kyc?status=rejected", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.KYCRequest](t, rr), 1)
}

func TestStatsHandler(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")
	seedFlag(t, f, "flag-1", models.StatusPending, time.Now())
	seedFlag(t, f, "flag-2", models.StatusDismissed, time.Now())
	_, err := f.users.MarkVerified(context.Background(), "user-1", "admin-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, f.kyc.InsertOne(context.Background(), models.KYCRequest{ID: "kyc-1", UserID: "user-1", Status: models.KYCPending}))

	rr := f.do(t, http.MethodGet, "/api/v1/admin/stats", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.AdminStats{
		TotalUsers:    2,
		VerifiedUsers: 1,
		PendingKYC:    1,
		PendingFlags:  1,
		TotalFlags:    2,
	}, decode[models.AdminStats](t, rr))
}
