package models

// HealthCheckResponse is returned by the health route
type HealthCheckResponse struct {
	Alive    bool   `json:"alive"`
	Database string `json:"database,omitempty"`
}
