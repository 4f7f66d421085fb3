package models

// AdminStats is the dashboard summary returned to administrators
type AdminStats struct {
	TotalUsers    int64 `json:"totalUsers"`
	VerifiedUsers int64 `json:"verifiedUsers"`
	PendingKYC    int64 `json:"pendingKyc"`
	PendingFlags  int64 `json:"pendingFlags"`
	TotalFlags    int64 `json:"totalFlags"`
}
