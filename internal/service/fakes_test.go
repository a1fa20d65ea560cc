package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/github"
	"github.com/sakif/easgit/internal/model"
	"github.com/sakif/easgit/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUserRepo is an in-memory repository.UserRepository.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	byGHID map[int64]*model.User

	upsertErr error
	listErr   error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:  make(map[string]*model.User),
		byGHID: make(map[int64]*model.User),
	}
}

func (f *fakeUserRepo) UpsertUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.byGHID[user.GitHubID]; ok {
		existing.Login = user.Login
		existing.Email = user.Email
		existing.AvatarURL = user.AvatarURL
		if user.AccessTokenSealed != "" {
			existing.AccessTokenSealed = user.AccessTokenSealed
		}
		*user = *existing
		return nil
	}
	user.ID = xid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	f.byGHID[user.GitHubID] = &copied
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByGitHubID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byGHID[id]
	if !ok {
		return nil, apperror.NotFound("user", fmt.Sprint(id))
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) ListWithTokens(_ context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.User{}
	for _, u := range f.byGHID {
		if u.AccessTokenSealed != "" {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GitHubID < out[j].GitHubID })
	return out, nil
}

// fakeStatsRepo is an in-memory repository.StatisticsRepository with the
// same ordering and identity rules as the SQL stores.
type fakeStatsRepo struct {
	mu      sync.Mutex
	records map[int64]model.UserStatistics
	upserts int

	upsertErr error
}

var _ repository.StatisticsRepository = (*fakeStatsRepo)(nil)

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{records: make(map[int64]model.UserStatistics)}
}

func (f *fakeStatsRepo) seed(recs ...model.UserStatistics) {
	for _, r := range recs {
		if r.ID == "" {
			r.ID = xid.New().String()
		}
		f.records[r.ExternalID] = r
	}
}

func (f *fakeStatsRepo) FindByExternalID(_ context.Context, id int64) (*model.UserStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, apperror.NotFound("user statistics", fmt.Sprint(id))
	}
	return &r, nil
}

func (f *fakeStatsRepo) FindByUsername(_ context.Context, name string) (*model.UserStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if strings.EqualFold(r.Username, name) {
			return &r, nil
		}
	}
	return nil, apperror.NotFound("user statistics", name)
}

func (f *fakeStatsRepo) Upsert(_ context.Context, rec *model.UserStatistics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for id, r := range f.records {
		if id != rec.ExternalID && strings.EqualFold(r.Username, rec.Username) {
			return apperror.Conflict("user statistics username", rec.Username)
		}
	}
	if existing, ok := f.records[rec.ExternalID]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.ID = xid.New().String()
		rec.CreatedAt = time.Now()
	}
	f.records[rec.ExternalID] = *rec
	f.upserts++
	return nil
}

func (f *fakeStatsRepo) CountGreaterThan(_ context.Context, metric model.Metric, value int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.Stats.Value(metric) > value {
			n++
		}
	}
	return n, nil
}

func (f *fakeStatsRepo) TopNByMetric(_ context.Context, metric model.Metric, limit int) ([]model.UserStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]model.UserStatistics, 0, len(f.records))
	for _, r := range f.records {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		vi, vj := all[i].Stats.Value(metric), all[j].Stats.Value(metric)
		if vi != vj {
			return vi > vj
		}
		return all[i].ExternalID < all[j].ExternalID
	})
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStatsRepo) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

// fakeSource returns snapshots by login, or err for every call.
type fakeSource struct {
	mu     sync.Mutex
	snaps  map[string]*github.Snapshot
	errs   map[string]error
	logins []string
	tokens []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		snaps: make(map[string]*github.Snapshot),
		errs:  make(map[string]error),
	}
}

func (f *fakeSource) FetchStats(ctx context.Context, login, token string) (*github.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, login)
	f.tokens = append(f.tokens, token)
	if err := f.errs[login]; err != nil {
		return nil, err
	}
	if s, ok := f.snaps[login]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", github.ErrUserNotFound, login)
}

// fakeSealer "encrypts" by prefixing, which keeps tests readable.
type fakeSealer struct{}

func (fakeSealer) Seal(token string) (string, error) { return "sealed:" + token, nil }

func (fakeSealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, "sealed:") {
		return "", fmt.Errorf("bad seal")
	}
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

// fakeProfiles serves one profile per token.
type fakeProfiles struct {
	profiles map[string]*github.Profile
	err      error
}

func (f *fakeProfiles) FetchProfile(_ context.Context, token string) (*github.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[token]
	if !ok {
		return nil, github.ErrUnauthorized
	}
	return p, nil
}
