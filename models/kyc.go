package models

import "time"

// KYCStatus is the review state of a KYC request
type KYCStatus string

// KYC review states
const (
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

// Accepted identity document types
const (
	IDTypePassport       = "passport"
	IDTypeNationalID     = "national_id"
	IDTypeDriversLicense = "drivers_license"
)

// KYCRequest holds the structure for the kyc_requests collection in mongo
type KYCRequest struct {
	ID              string     `json:"id" bson:"_id"`
	UserID          string     `json:"userId" bson:"userId"`
	FullName        string     `json:"fullName" bson:"fullName"`
	DateOfBirth     string     `json:"dateOfBirth" bson:"dateOfBirth"`
	IDType          string     `json:"idType" bson:"idType"`
	IDNumber        string     `json:"idNumber" bson:"idNumber"`
	IDImageRef      string     `json:"idImageRef" bson:"idImageRef"`
	SelfieImageRef  string     `json:"selfieImageRef" bson:"selfieImageRef"`
	FaceMatch       *FaceMatch `json:"faceMatch,omitempty" bson:"faceMatch,omitempty"`
	Status          KYCStatus  `json:"status" bson:"status"`
	RejectionReason string     `json:"rejectionReason,omitempty" bson:"rejectionReason,omitempty"`
	ReviewedBy      string     `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt" bson:"createdAt"`
}

// FaceMatch is the automated comparison of the id image with the selfie.
// It informs the reviewer and never decides a request on its own.
type FaceMatch struct {
	Verified   bool    `json:"verified" bson:"verified"`
	Confidence float64 `json:"confidence" bson:"confidence"`
	// Error is set when the verifier ran but could not compare, e.g. no face
	Error string `json:"error,omitempty" bson:"error,omitempty"`
}

// KYCReview is the stamp written when an administrator decides a request
type KYCReview struct {
	Status          KYCStatus
	RejectionReason string
	ReviewedBy      string
	ReviewedAt      time.Time
}

// KYCReceipt acknowledges an accepted submission
type KYCReceipt struct {
	ID        string    `json:"id"`
	Status    KYCStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// RejectKYCRequest is the body of the KYC reject route
type RejectKYCRequest struct {
	Reason string `json:"reason"`
}
