package models

import "time"

// SubjectType is the kind of thing a flag was raised against
type SubjectType string

// Subject types accepted by the analyzers
const (
	SubjectImage   SubjectType = "image"
	SubjectVideo   SubjectType = "video"
	SubjectAccount SubjectType = "account"
	SubjectText    SubjectType = "text"
)

// Severity ranks how urgent a flag is for reviewers
type Severity string

// Severity levels, lowest first
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// FlagStatus is the moderation state shared by ContentFlag and FlaggedItem
type FlagStatus string

// Moderation states. Dismissed is terminal for flags only, rejected for
// flagged items only.
const (
	StatusPending   FlagStatus = "pending"
	StatusReviewing FlagStatus = "reviewing"
	StatusResolved  FlagStatus = "resolved"
	StatusDismissed FlagStatus = "dismissed"
	StatusRejected  FlagStatus = "rejected"
)

// ContentFlag holds the structure for the content_flags collection in mongo.
// Records are never deleted; they are kept for audit.
type ContentFlag struct {
	ID             string      `json:"id" bson:"_id"`
	SubjectType    SubjectType `json:"subjectType" bson:"subjectType"`
	SubjectRef     string      `json:"subjectRef,omitempty" bson:"subjectRef,omitempty"`
	OwnerID        string      `json:"ownerId,omitempty" bson:"ownerId,omitempty"`
	Reason         string      `json:"reason" bson:"reason"`
	Severity       Severity    `json:"severity" bson:"severity"`
	Score          float64     `json:"score" bson:"score"`
	Classification string      `json:"classification,omitempty" bson:"classification,omitempty"`
	ContentHash    string      `json:"contentHash,omitempty" bson:"contentHash,omitempty"`
	Status         FlagStatus  `json:"status" bson:"status"`
	CreatedAt      time.Time   `json:"createdAt" bson:"createdAt"`
	ReviewedBy     string      `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time  `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
}

// FlaggedItem is the reviewer queue entry created alongside a ContentFlag,
// stored in the flagged_items collection. FlagID links the two but each has
// its own status; acting on an item never moves its flag.
type FlaggedItem struct {
	ID         string      `json:"id" bson:"_id"`
	FlagID     string      `json:"flagId" bson:"flagId"`
	Type       SubjectType `json:"type" bson:"type"`
	Content    string      `json:"content" bson:"content"`
	Reason     string      `json:"reason" bson:"reason"`
	Status     FlagStatus  `json:"status" bson:"status"`
	Timestamp  time.Time   `json:"timestamp" bson:"createdAt"`
	ReviewedBy string      `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewedAt *time.Time  `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
}

// Review is the audit stamp written with every status change
type Review struct {
	Status     FlagStatus
	ReviewedBy string
	ReviewedAt time.Time
}

// UpdateStatusRequest is the body of both flag status PATCH routes
type UpdateStatusRequest struct {
	Status FlagStatus `json:"status"`
}
