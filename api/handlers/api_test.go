package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/deepshield/deepshield-api/analysis"
	"github.com/deepshield/deepshield-api/api"
	"github.com/deepshield/deepshield-api/api/handlers"
	"github.com/deepshield/deepshield-api/config"
	"github.com/deepshield/deepshield-api/databases/memdb"
	"github.com/deepshield/deepshield-api/features"
	"github.com/deepshield/deepshield-api/media"
	"github.com/deepshield/deepshield-api/models"
	"github.com/deepshield/deepshield-api/moderation"
	"github.com/deepshield/deepshield-api/notifications"
)

const password = "correct-horse"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR fake image body")

type put struct {
	folder string
	obj    media.Object
}

type fakeMedia struct {
	mu   sync.Mutex
	puts []put
	err  error
}

func (m *fakeMedia) Put(_ context.Context, folder string, obj media.Object) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.puts = append(m.puts, put{folder: folder, obj: obj})
	return "https://cdn.example.com/" + folder + "/" + media.ContentHash(obj.Data), nil
}

func (m *fakeMedia) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.puts)
}

type fixture struct {
	server *handlers.Server
	h      http.Handler
	users  *memdb.Users
	flags  *memdb.Flags
	items  *memdb.Items
	kyc    *memdb.KYC
	media  *fakeMedia
	events *gatedPublisher
}

// gatedPublisher records events and can be made to stall until released
type gatedPublisher struct {
	mu     sync.Mutex
	events []models.Event
	gate   chan struct{}
}

func (p *gatedPublisher) Publish(_ context.Context, e models.Event) {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// stall blocks every publish until the test ends
func (p *gatedPublisher) stall(t *testing.T) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.gate = gate
	p.mu.Unlock()
	t.Cleanup(func() { close(gate) })
}

func (p *gatedPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func allFeatures() config.Features {
	return config.Features{DeepfakeDetection: true, FakeAccountDetection: true, ContentFiltering: true, KYC: true}
}

func newFixture(t *testing.T, feats config.Features) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	f := &fixture{
		users: memdb.NewUsers(
			models.User{ID: "admin-1", Email: "admin@deepshield.ai", Role: models.RoleAdmin, PasswordHash: string(hash)},
			models.User{ID: "user-1", Email: "jane@example.com", Role: models.RoleUser, PasswordHash: string(hash)},
		),
		flags: memdb.NewFlags(),
		items: memdb.NewItems(),
		kyc:   memdb.NewKYC(),
		media:  &fakeMedia{},
		events: &gatedPublisher{},
	}

	conf := config.Config{
		JWTSecret:       "test-secret",
		TokenTTL:        time.Hour,
		AdminEmails:     []string{"boss@deepshield.ai"},
		AllowedOrigins:  []string{"*"},
		AnalyzerTimeout: time.Second,
		RequestTimeout:  5 * time.Second,
		MaxUploadSizeMB: 1,
		Features:        feats,
	}
	flagClient, err := features.New(feats)
	require.NoError(t, err)

	hub := notifications.NewHub(conf.AllowedOrigins)
	wf := moderation.New(f.flags, f.items, f.users, f.kyc, notifications.Detached(hub, f.events))
	svc := analysis.NewService(conf.AnalyzerTimeout, wf)
	svc.Register(analysis.DetectorKeywords, analysis.NewKeywordAnalyzer(analysis.DefaultKeywords))
	svc.Register(analysis.DetectorSafeSearch, analysis.AnalyzerFunc(func(_ context.Context, m analysis.Media) (models.Verdict, error) {
		return models.Verdict{
			SubjectType:    models.SubjectImage,
			Score:          0.8,
			Classification: "adult",
			Flagged:        true,
			Reasons:        []string{"adult: LIKELY"},
		}, nil
	}))
	svc.Register(analysis.DetectorDeepfake, analysis.AnalyzerFunc(func(context.Context, analysis.Media) (models.Verdict, error) {
		return models.Verdict{}, errors.New("detector unreachable")
	}))

	f.server = &handlers.Server{
		Config: conf,
		Stores: handlers.Stores{
			Flags: f.flags,
			Items: f.items,
			Users: f.users,
			KYC:   f.kyc,
		},
		Workflow: wf,
		Analysis: svc,
		Media:    f.media,
		Features: flagClient,
		Auth:     api.NewAuth(f.users, conf.JWTSecret, conf.TokenTTL),
		Hub:      hub,
	}
	f.h = handlers.Routes(f.server)
	return f
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	user, err := f.users.FindOne(context.Background(), userID)
	require.NoError(t, err)
	token, _, err := f.server.Auth.IssueToken(*user)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return f.do(t, method, path, token, bytes.NewReader(b), "application/json")
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Code
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthCheckHandler(t *testing.T) {
	f := newFixture(t, allFeatures())
	rr := f.do(t, http.MethodGet, "/health", "", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.HealthCheckResponse{Alive: true}, decode[models.HealthCheckResponse](t, rr))
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, allFeatures())
	rr := f.do(t, http.MethodGet, "/metrics", "", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, allFeatures())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/admin/flags/abc", nil)
	req.Header.Set("Origin", "https://dashboard.deepshield.ai")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
}

func TestRoutes_Auth(t *testing.T) {
	f := newFixture(t, allFeatures())
	userToken := f.token(t, "user-1")
	adminToken := f.token(t, "admin-1")

	tests := []struct {
		name  string
		path  string
		token string
		code  int
	}{
		{"no token", "/api/v1/admin/flags", "", http.StatusUnauthorized},
		{"bad token", "/api/v1/admin/flags", "nope", http.StatusUnauthorized},
		{"user on admin route", "/api/v1/admin/flags", userToken, http.StatusForbidden},
		{"user on item queue", "/api/v1/content/flagged", userToken, http.StatusForbidden},
		{"admin", "/api/v1/admin/flags", adminToken, http.StatusOK},
		{"user route", "/api/v1/users/me", userToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodGet, tt.path, tt.token, nil, "")
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
		})
	}
}

func TestRoutes_DemotedAdminIsForbidden(t *testing.T) {
	f := newFixture(t, allFeatures())
	token := f.token(t, "admin-1")
	// warm the token cache while the role is still admin
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/admin/stats", token, nil, "").Code)

	_, err := f.users.SetRole(context.Background(), "admin-1", models.RoleUser)
	require.NoError(t, err)

	rr := f.do(t, http.MethodGet, "/api/v1/admin/stats", token, nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rr))
}
