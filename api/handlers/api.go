package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/deepshield/deepshield-api/analysis"
	"github.com/deepshield/deepshield-api/api"
	"github.com/deepshield/deepshield-api/config"
	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/features"
	"github.com/deepshield/deepshield-api/media"
	"github.com/deepshield/deepshield-api/models"
	"github.com/deepshield/deepshield-api/moderation"
	"github.com/deepshield/deepshield-api/notifications"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router   http.Handler
	Config   config.Config
	client   databases.ClientHelper
	dbHelper databases.DatabaseHelper
}

// Stores groups the collections the handlers read and write
type Stores struct {
	Flags databases.FlagDatabase
	Items databases.FlaggedItemDatabase
	Users databases.UserDatabase
	KYC   databases.KYCDatabase
}

// NewStores returns the mongo backed stores for db
func NewStores(db databases.DatabaseHelper) Stores {
	return Stores{
		Flags: databases.NewFlagDatabase(db),
		Items: databases.NewFlaggedItemDatabase(db),
		Users: databases.NewUserDatabase(db),
		KYC:   databases.NewKYCDatabase(db),
	}
}

// Server holds everything the routes need
type Server struct {
	Config   config.Config
	Stores   Stores
	Workflow *moderation.Workflow
	Analysis *analysis.Service
	Media    media.Store
	Features *features.Flags
	Auth     *api.Auth
	Hub      *notifications.Hub
	// DB is pinged by /health when set
	DB api.Pinger
}

// NewServer wires the workflow, analyzers, media store, notifications and
// authentication for conf over stores
func NewServer(ctx context.Context, conf config.Config, stores Stores) (*Server, error) {
	flags, err := features.New(conf.Features)
	if err != nil {
		return nil, err
	}
	store, err := media.New(conf.CloudinaryURL)
	if err != nil {
		return nil, err
	}

	hub := notifications.NewHub(conf.AllowedOrigins)
	publishers := []notifications.Publisher{hub}
	if conf.SendGridAPIKey != "" {
		publishers = append(publishers, notifications.NewEmailer(stores.Users, conf.SendGridAPIKey, conf.FromEmail))
	} else {
		zap.S().Info("SENDGRID_API_KEY not set, owner emails disabled")
	}

	events := notifications.Detached(publishers...)
	wf := moderation.New(stores.Flags, stores.Items, stores.Users, stores.KYC, events)
	svc := analysis.NewService(conf.AnalyzerTimeout, wf)
	registerAnalyzers(ctx, conf, svc)

	return &Server{
		Config:   conf,
		Stores:   stores,
		Workflow: wf,
		Analysis: svc,
		Media:    store,
		Features: flags,
		Auth:     api.NewAuth(stores.Users, conf.JWTSecret, conf.TokenTTL),
		Hub:      hub,
	}, nil
}

// registerAnalyzers adds every detector that can be built from conf.
// Detectors that cannot be configured stay unregistered and are rejected
// by the analyze route.
func registerAnalyzers(ctx context.Context, conf config.Config, svc *analysis.Service) {
	svc.Register(analysis.DetectorKeywords, analysis.NewKeywordAnalyzer(analysis.DefaultKeywords))

	safeSearch, err := analysis.NewSafeSearchAnalyzer(ctx)
	if err != nil {
		zap.S().Warnw("safesearch analyzer unavailable", "error", err)
	} else {
		svc.Register(analysis.DetectorSafeSearch, safeSearch)
	}

	if conf.DeepfakeAnalyzerURL == "" {
		zap.S().Info("DEEPFAKE_ANALYZER_URL not set, remote detectors disabled")
		return
	}
	base := strings.TrimRight(conf.DeepfakeAnalyzerURL, "/")
	svc.Register(analysis.DetectorDeepfake, analysis.NewRemoteAnalyzer(base+"/analyze/deepfake", models.SubjectVideo, "deepfake"))
	svc.Register(analysis.DetectorFakeAccount, analysis.NewRemoteAnalyzer(base+"/analyze/account", models.SubjectAccount, "fake_account"))
	svc.SetFaceMatcher(analysis.NewRemoteFaceMatcher(base + "/verify/face"))
}

// Routes creates a new mux router and all the routes. CORS wraps the router
// so preflight requests are answered before route matching.
func Routes(s *Server) http.Handler {
	maxUpload := s.Config.MaxUploadSizeMB << 20

	admin := Admin{
		WF:  s.Workflow,
		FDB: s.Stores.Flags,
		UDB: s.Stores.Users,
		KDB: s.Stores.KYC,
		Hub: s.Hub,
	}
	content := Content{
		WF:             s.Workflow,
		IDB:            s.Stores.Items,
		Analysis:       s.Analysis,
		Media:          s.Media,
		Features:       s.Features,
		MaxUploadBytes: maxUpload,
	}
	u := User{
		UDB:            s.Stores.Users,
		Auth:           s.Auth,
		WF:             s.Workflow,
		Analysis:       s.Analysis,
		Media:          s.Media,
		Features:       s.Features,
		Config:         s.Config,
		MaxUploadBytes: maxUpload,
	}

	r := mux.NewRouter()
	r.Use(api.MetricsMiddleware)
	r.Use(api.TimeoutMiddleware(s.Config.RequestTimeout))

	// healthchex
	r.HandleFunc("/health", api.HealthHandler(s.DB)).Methods("GET")
	r.Handle("/metrics", api.MetricsHandler()).Methods("GET")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	authed := func(h http.HandlerFunc) http.Handler { return s.Auth.Middleware(h) }
	adminOnly := func(h http.HandlerFunc) http.Handler { return s.Auth.Middleware(api.AdminOnly(h)) }

	apiCreate.Handle("/users/register", http.HandlerFunc(u.RegisterHandler)).Methods("POST")
	apiCreate.Handle("/auth/token", http.HandlerFunc(u.TokenHandler)).Methods("POST")
	apiCreate.Handle("/users/me", authed(u.MeHandler)).Methods("GET")
	apiCreate.Handle("/users/kyc", authed(u.SubmitKYCHandler)).Methods("POST")

	apiCreate.Handle("/content/analyze", authed(content.AnalyzeHandler)).Methods("POST")
	apiCreate.Handle("/content/flagged", adminOnly(content.ListFlaggedHandler)).Methods("GET")
	apiCreate.Handle("/content/{id}/status", adminOnly(content.UpdateItemStatusHandler)).Methods("PATCH")

	apiCreate.Handle("/admin/users", adminOnly(admin.ListUsersHandler)).Methods("GET")
	apiCreate.Handle("/admin/users/{id}/verify", adminOnly(admin.VerifyUserHandler)).Methods("POST")
	apiCreate.Handle("/admin/flags", adminOnly(admin.ListFlagsHandler)).Methods("GET")
	apiCreate.Handle("/admin/flags/{id}", adminOnly(admin.UpdateFlagStatusHandler)).Methods("PATCH")
	apiCreate.Handle("/admin/kyc", adminOnly(admin.ListKYCHandler)).Methods("GET")
	apiCreate.Handle("/admin/kyc/{id}/reject", adminOnly(admin.RejectKYCHandler)).Methods("POST")
	apiCreate.Handle("/admin/stats", adminOnly(admin.StatsHandler)).Methods("GET")
	apiCreate.Handle("/admin/ws", tokenFromQuery(adminOnly(admin.EventsHandler))).Methods("GET")

	return cors.Handler(cors.Options{
		AllowedOrigins:   s.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})(r)
}

// tokenFromQuery lets browsers, which cannot set headers on a websocket
// handshake, pass the bearer token as access_token
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("access_token"); token != "" && r.Header.Get("Authorization") == "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		next.ServeHTTP(w, r)
	})
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize(ctx context.Context) error {
	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(zap.Error(err)).Error("failed to create new client")
		return err
	}

	a.client = client
	a.dbHelper = databases.NewDatabase(&a.Config, client)
	if err := client.Connect(ctx); err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(zap.Error(err)).Error("failed to connect to database")
		return err
	}
	zap.S().Info("deepshield-api has connected to the database")

	if err := databases.EnsureIndexes(ctx, a.dbHelper); err != nil {
		zap.S().With(zap.Error(err)).Error("failed to create indexes")
		return err
	}

	s, err := NewServer(ctx, a.Config, NewStores(a.dbHelper))
	if err != nil {
		return err
	}
	s.DB = client

	// initialize api router
	a.Router = Routes(s)
	return nil
}

// Close disconnects from the database
func (a *App) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}
