package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/device"
	"github.com/trezcool/masomo-chat/core/user"
)

// NewIdentity returns an identity with a fresh ID holding the given roles.
func NewIdentity(username string, roles ...string) user.Identity {
	return user.Identity{
		ID:       uuid.NewString(),
		Username: username,
		Email:    username + "@test.cd",
		Roles:    roles,
	}
}

// CreateThread stores a direct (two members) or group thread between the given users.
func CreateThread(t *testing.T, repo chat.Repository, members ...user.Identity) chat.Thread {
	t.Helper()

	typ := chat.ThreadDirect
	if len(members) > 2 {
		typ = chat.ThreadGroup
	}
	thread := chat.Thread{
		ID:        uuid.NewString(),
		Title:     "test thread",
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
	for _, m := range members {
		role := ""
		if len(m.Roles) > 0 {
			role = m.Roles[0]
		}
		thread.Participants = append(thread.Participants, chat.Participant{UserID: m.ID, Role: role})
	}

	thread, err := repo.CreateThread(context.Background(), thread)
	if err != nil {
		t.Fatalf("CreateThread() failed: %v", err)
	}
	return thread
}

// ValidPushToken returns a unique token that passes the push adapter's sanity check.
func ValidPushToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ":APA91b" + strings.Repeat("x", 40)
}

// NewDeviceToken returns an active token, last updated at `at`, ready to be seeded.
func NewDeviceToken(userID string, platform device.Platform, token string, at time.Time) device.Token {
	return device.Token{
		ID:        uuid.NewString(),
		UserID:    userID,
		Platform:  platform,
		Token:     token,
		IsActive:  true,
		CreatedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}
}
