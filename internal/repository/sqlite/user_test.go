package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/easgit/internal/apperror"
	"github.com/sakif/easgit/internal/model"
)

// createTestUser upserts a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, githubID int64, login, sealed string) *model.User {
	t.Helper()
	user := &model.User{
		GitHubID:          githubID,
		Login:             login,
		Email:             login + "@example.com",
		AvatarURL:         "https://avatars.githubusercontent.com/u/123",
		AccessTokenSealed: sealed,
	}
	if err := db.UpsertUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestUserUpsert_NewUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		GitHubID:  55555,
		Login:     "new_upsert_user",
		Email:     "new@example.com",
		AvatarURL: "https://example.com/new.png",
	}

	if err := db.UpsertUser(context.Background(), user); err != nil {
		t.Fatalf("UpsertUser() (new) error = %v", err)
	}

	if user.ID == "" {
		t.Error("UpsertUser() did not set user.ID for new user")
	}
	if user.CreatedAt.IsZero() {
		t.Error("UpsertUser() did not set user.CreatedAt for new user")
	}

	found, err := db.GetByGitHubID(context.Background(), 55555)
	if err != nil {
		t.Fatalf("GetByGitHubID() after UpsertUser: %v", err)
	}
	if found.Login != "new_upsert_user" {
		t.Errorf("Login = %q, want %q", found.Login, "new_upsert_user")
	}
}

func TestUserUpsert_ExistingUser_UpdatesProfile(t *testing.T) {
	db := newTestDB(t)

	first := createTestUser(t, db, 66666, "original_login", "sealed-1")
	originalID := first.ID

	second := &model.User{
		GitHubID:  66666,
		Login:     "updated_login",
		Email:     "new@example.com",
		AvatarURL: "https://example.com/new.png",
	}
	if err := db.UpsertUser(context.Background(), second); err != nil {
		t.Fatalf("UpsertUser() second login: %v", err)
	}

	if second.ID != originalID {
		t.Errorf("UpsertUser() changed user ID: got %q, want %q", second.ID, originalID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("UpsertUser() changed CreatedAt: got %v, want %v", second.CreatedAt, first.CreatedAt)
	}

	found, err := db.GetByGitHubID(context.Background(), 66666)
	if err != nil {
		t.Fatalf("GetByGitHubID() after second UpsertUser: %v", err)
	}
	if found.Login != "updated_login" {
		t.Errorf("Login after upsert = %q, want %q", found.Login, "updated_login")
	}
	// An upsert without a token must not wipe the stored one.
	if found.AccessTokenSealed != "sealed-1" {
		t.Errorf("AccessTokenSealed = %q, want %q", found.AccessTokenSealed, "sealed-1")
	}
}

func TestUserUpsert_ReplacesToken(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, 1, "octocat", "old")
	createTestUser(t, db, 1, "octocat", "new")

	found, err := db.GetByGitHubID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetByGitHubID() error = %v", err)
	}
	if found.AccessTokenSealed != "new" {
		t.Errorf("AccessTokenSealed = %q, want %q", found.AccessTokenSealed, "new")
	}
}

func TestUserGetByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, 111, "getbyid_user", "")

	found, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.GitHubID != 111 {
		t.Errorf("GitHubID = %d, want %d", found.GitHubID, 111)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetByGitHubID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByGitHubID(context.Background(), 999999999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByGitHubID() error = %v, want ErrNotFound", err)
	}
}

func TestListWithTokens(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, 30, "carol", "sealed-c")
	createTestUser(t, db, 10, "alice", "sealed-a")
	createTestUser(t, db, 20, "bob", "")

	users, err := db.ListWithTokens(context.Background())
	if err != nil {
		t.Fatalf("ListWithTokens() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}
	if users[0].Login != "alice" || users[1].Login != "carol" {
		t.Errorf("order = [%s %s], want [alice carol]", users[0].Login, users[1].Login)
	}
}
