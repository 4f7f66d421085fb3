package config

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Features toggles which user flows are reachable. They never change how
// the moderation workflow behaves.
type Features struct {
	DeepfakeDetection    bool
	FakeAccountDetection bool
	ContentFiltering     bool
	KYC                  bool
}

// Config holds the project config values
type Config struct {
	URL                 string
	DatabaseName        string
	BaseURL             string
	Port                string
	Env                 string
	JWTSecret           string
	TokenTTL            time.Duration
	AdminEmails         []string
	AllowedOrigins      []string
	AnalyzerTimeout     time.Duration
	RequestTimeout      time.Duration
	MaxUploadSizeMB     int64
	CloudinaryURL       string
	SendGridAPIKey      string
	FromEmail           string
	DeepfakeAnalyzerURL string
	Features            Features
}

// New sets up all config related services
func New() *Config {
	env := getEnv("ENV", "local")

	//setup zap logger and replace default logger
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		URL:                 os.Getenv("DB_URI"),
		DatabaseName:        getEnv("DB_NAME", "deepshield"),
		BaseURL:             os.Getenv("BASE_URL"),
		Port:                getEnv("PORT", "8080"),
		Env:                 env,
		JWTSecret:           os.Getenv("JWT_SECRET"),
		TokenTTL:            getDuration("TOKEN_TTL", 30*time.Minute),
		AdminEmails:         getList("ADMIN_EMAILS"),
		AllowedOrigins:      getListDefault("ALLOWED_ORIGINS", []string{"*"}),
		AnalyzerTimeout:     getDuration("ANALYZER_TIMEOUT", 30*time.Second),
		RequestTimeout:      getDuration("REQUEST_TIMEOUT", 60*time.Second),
		MaxUploadSizeMB:     int64(getInt("MAX_UPLOAD_SIZE_MB", 20)),
		CloudinaryURL:       os.Getenv("CLOUDINARY_URL"),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		FromEmail:           getEnv("FROM_EMAIL", "noreply@deepshield.ai"),
		DeepfakeAnalyzerURL: os.Getenv("DEEPFAKE_ANALYZER_URL"),
		Features: Features{
			DeepfakeDetection:    getBool("FEATURE_DEEPFAKE_DETECTION", true),
			FakeAccountDetection: getBool("FEATURE_FAKE_ACCOUNT_DETECTION", true),
			ContentFiltering:     getBool("FEATURE_CONTENT_FILTERING", true),
			KYC:                  getBool("FEATURE_KYC", true),
		},
	}
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range c.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(zap.Error(err)).Error(message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	body := map[string]interface{}{"success": false, "error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	_ = json.NewEncoder(w).Encode(body)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getList(key string) []string {
	return getListDefault(key, nil)
}

func getListDefault(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
