package models

import "time"

// Role is the trust level of an account
type Role string

// Account roles
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User holds the structure for the users collection in mongo
type User struct {
	ID           string     `json:"id" bson:"_id"`
	Email        string     `json:"email" bson:"email"`
	Username     string     `json:"username,omitempty" bson:"username,omitempty"`
	FullName     string     `json:"fullName,omitempty" bson:"fullName,omitempty"`
	PasswordHash string     `json:"-" bson:"passwordHash"`
	Role         Role       `json:"role" bson:"role"`
	IsVerified   bool       `json:"isVerified" bson:"isVerified"`
	VerifiedBy   string     `json:"verifiedBy,omitempty" bson:"verifiedBy,omitempty"`
	VerifiedAt   *time.Time `json:"verifiedAt,omitempty" bson:"verifiedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" bson:"createdAt"`
}

// IsAdmin reports whether the user may perform privileged transitions
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// RegisterRequest is the body of the register route
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

// TokenRequest is the body of the token route
type TokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a signed access token
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn int64  `json:"expiresIn"`
	User      User   `json:"user"`
}
