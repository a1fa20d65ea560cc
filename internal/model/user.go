// Package model defines the data structures shared by every layer.
package model

import "time"

// User is an account created by the GitHub OAuth login.
//
// GitHubID is GitHub's numeric user id and is the same value stored as
// UserStatistics.ExternalID, which is how a logged-in user finds their own
// leaderboard record. ID is our own xid so primary keys are not tied to
// GitHub's numbering.
//
// AccessTokenSealed holds the user's GitHub OAuth token encrypted with
// auth.Sealer. It is never serialized to JSON.
type User struct {
	ID                string    `json:"id"        db:"id"`
	GitHubID          int64     `json:"githubId"  db:"github_id"`
	Login             string    `json:"login"     db:"login"`
	Email             string    `json:"email"     db:"email"`
	AvatarURL         string    `json:"avatarUrl" db:"avatar_url"`
	AccessTokenSealed string    `json:"-"         db:"access_token_sealed"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}
