package model

import "time"

// Stats is the aggregate GitHub activity of one user at LastUpdated.
//
// TotalCommits (committed + restricted contributions) and TotalContributions
// (the contribution calendar total, which also counts PRs, issues and reviews)
// come from different parts of the GitHub API and are kept apart on purpose.
type Stats struct {
	TotalRepositories  int       `json:"totalRepositories"`
	TotalStars         int       `json:"totalStars"`
	TotalForks         int       `json:"totalForks"`
	TotalWatchers      int       `json:"totalWatchers"`
	TotalCommits       int       `json:"totalCommits"`
	TotalContributions int       `json:"totalContributions"`
	CurrentStreak      int       `json:"currentStreak"`
	LongestStreak      int       `json:"longestStreak"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// Value returns the field the metric ranks by.
func (s Stats) Value(m Metric) int {
	switch m {
	case MetricCommits:
		return s.TotalCommits
	case MetricContributions:
		return s.TotalContributions
	case MetricStreak:
		return s.CurrentStreak
	default:
		return s.TotalStars
	}
}

// UserStatistics is the persisted leaderboard record, one per ExternalID.
type UserStatistics struct {
	ID          string    `json:"id"`
	ExternalID  int64     `json:"externalId"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	Stats       Stats     `json:"stats"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Position is a user's 1-based rank on one metric. Position 0 means the user
// has no record yet; Total is still filled in.
type Position struct {
	Position int `json:"position"`
	Total    int `json:"total"`
	Value    int `json:"value"`
}

// ContributionDay is one cell of the GitHub contribution calendar.
type ContributionDay struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}
