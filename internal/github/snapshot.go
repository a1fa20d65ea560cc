// Package github fetches user statistics from the GitHub GraphQL and REST
// APIs and classifies their failures.
package github

import (
	"context"

	"github.com/sakif/easgit/internal/model"
)

// Snapshot is the raw data of one statistics fetch. Aggregation happens in
// the service layer.
type Snapshot struct {
	ExternalID        int64
	Login             string
	Name              string
	AvatarURL         string
	TotalRepositories int
	Repositories      []RepoCounts

	CommitContributions     int
	RestrictedContributions int
	CalendarTotal           int
	Days                    []model.ContributionDay
}

// RepoCounts holds the counters of one owned, non-fork repository.
type RepoCounts struct {
	Stars    int
	Forks    int
	Watchers int
}

// Source fetches a snapshot for login using the given OAuth token.
type Source interface {
	FetchStats(ctx context.Context, login, token string) (*Snapshot, error)
}
