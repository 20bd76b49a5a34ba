package domain

import "time"

// User is an internal user account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is an internal authorization role.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SocialAccount links a User to an identity at a Provider.
// (ProviderID, OAuthUID) is unique.
type SocialAccount struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ProviderID string    `json:"provider_id"`
	OAuthUID   string    `json:"oauth_uid"`
	Token      string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
