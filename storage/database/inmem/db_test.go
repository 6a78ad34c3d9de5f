package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/device"
)

func createThread(t *testing.T, repo chat.Repository, members ...string) chat.Thread {
	t.Helper()
	thread := chat.Thread{Type: chat.ThreadGroup, CreatedAt: time.Now().UTC()}
	for _, m := range members {
		thread.Participants = append(thread.Participants, chat.Participant{UserID: m})
	}
	thread, err := repo.CreateThread(context.Background(), thread)
	require.NoError(t, err)
	return thread
}

func TestMessageRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(Open())
	thread := createThread(t, repo, "teacher", "parent")
	other := createThread(t, repo, "teacher", "principal")
	assert.NotEmpty(t, thread.ID)

	_, err := repo.GetThread(ctx, "nope")
	assert.Equal(t, chat.ErrThreadNotFound, err)
	_, err = repo.CreateMessage(ctx, chat.Message{ThreadID: "nope"})
	assert.Equal(t, chat.ErrThreadNotFound, err)

	now := time.Now().UTC()
	first, err := repo.CreateMessage(ctx, chat.Message{ThreadID: thread.ID, SenderID: "teacher", Content: "one", ApprovalStatus: chat.StatusPending, Version: 1, CreatedAt: now})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	_, err = repo.CreateMessage(ctx, chat.Message{ThreadID: other.ID, SenderID: "teacher", Content: "elsewhere", Version: 1, CreatedAt: now})
	require.NoError(t, err)
	second, err := repo.CreateMessage(ctx, chat.Message{ThreadID: thread.ID, SenderID: "parent", Content: "two", Version: 1, CreatedAt: now})
	require.NoError(t, err)

	msgs, err := repo.ListThreadMessages(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)

	empty, err := repo.ListThreadMessages(ctx, "nope")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = repo.GetMessage(ctx, "nope")
	assert.Equal(t, chat.ErrNotFound, err)

	t.Run("compare and swap", func(t *testing.T) {
		approved, err := first.Approve("principal", time.Now())
		require.NoError(t, err)

		_, err = repo.UpdateMessage(ctx, approved, chat.StatusPending, first.Version+1)
		assert.Equal(t, chat.ErrStale, err, "wrong version")
		_, err = repo.UpdateMessage(ctx, approved, chat.StatusRejected, first.Version)
		assert.Equal(t, chat.ErrStale, err, "wrong status")

		stored, err := repo.UpdateMessage(ctx, approved, chat.StatusPending, first.Version)
		require.NoError(t, err)
		assert.Equal(t, chat.StatusApproved, stored.ApprovalStatus)

		_, err = repo.UpdateMessage(ctx, approved, chat.StatusPending, first.Version)
		assert.Equal(t, chat.ErrStale, err, "the same transition cannot be applied twice")

		_, err = repo.UpdateMessage(ctx, chat.Message{ID: "nope"}, chat.StatusPending, 1)
		assert.Equal(t, chat.ErrNotFound, err)
	})

	t.Run("stored values are copies", func(t *testing.T) {
		got, err := repo.GetMessage(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ApproverID)
		*got.ApproverID = "mallory"

		again, err := repo.GetMessage(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "principal", *again.ApproverID)

		th, err := repo.GetThread(ctx, thread.ID)
		require.NoError(t, err)
		th.Participants[0].UserID = "mallory"
		th, err = repo.GetThread(ctx, thread.ID)
		require.NoError(t, err)
		assert.Equal(t, "teacher", th.Participants[0].UserID)
	})
}

func TestDeviceTokenRepository(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repo := NewDeviceTokenRepository(db)

	at := func(minutesAgo int) time.Time { return time.Now().UTC().Add(-time.Duration(minutesAgo) * time.Minute) }
	tok := func(id, userID string, platform device.Platform, created time.Time) device.Token {
		return device.Token{ID: id, UserID: userID, Platform: platform, Token: "tok-" + id, IsActive: true, CreatedAt: created, UpdatedAt: created}
	}

	db.SeedDeviceTokens(
		tok("a1", "alice", device.PlatformAndroid, at(30)),
		tok("a2", "alice", device.PlatformAndroid, at(20)),
		tok("a3", "alice", device.PlatformWeb, at(10)),
		tok("b1", "bob", device.PlatformIOS, at(5)),
	)

	values := func(userID string) []string {
		toks, err := repo.ActiveTokens(ctx, userID)
		require.NoError(t, err)
		vs := make([]string, 0, len(toks))
		for _, tk := range toks {
			vs = append(vs, tk.Token)
		}
		return vs
	}

	assert.Equal(t, []string{"tok-a1", "tok-a2", "tok-a3"}, values("alice"), "oldest first")
	assert.Empty(t, values("nobody"))

	dups, err := repo.UsersWithDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, dups)

	t.Run("register replaces the platform's active tokens", func(t *testing.T) {
		_, err := repo.RegisterToken(ctx, tok("a4", "alice", device.PlatformAndroid, at(0)))
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-a3", "tok-a4"}, values("alice"))

		dups, err := repo.UsersWithDuplicates(ctx)
		require.NoError(t, err)
		assert.Empty(t, dups)
	})

	t.Run("register moves a known token", func(t *testing.T) {
		moved := tok("other-id", "bob", device.PlatformWeb, at(0))
		moved.Token = "tok-a3"
		stored, err := repo.RegisterToken(ctx, moved)
		require.NoError(t, err)
		assert.Equal(t, "a3", stored.ID, "the existing row is reused")
		assert.Equal(t, "bob", stored.UserID)
		assert.Equal(t, []string{"tok-a4"}, values("alice"))
		assert.ElementsMatch(t, []string{"tok-b1", "tok-a3"}, values("bob"))
	})

	t.Run("deactivate", func(t *testing.T) {
		n, err := repo.DeactivateUserToken(ctx, "alice", "tok-b1")
		require.NoError(t, err)
		assert.Zero(t, n, "other users' tokens are not touched")

		n, err = repo.DeactivateUserToken(ctx, "bob", "tok-b1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = repo.DeactivateUserToken(ctx, "bob", "tok-b1")
		require.NoError(t, err)
		assert.Equal(t, 1, n, "inactive rows still match")

		n, err = repo.DeactivateTokens(ctx, "tok-a3", "tok-b1", "unknown")
		require.NoError(t, err)
		assert.Equal(t, 1, n, "only active rows are counted")

		n, err = repo.DeactivateTokenIDs(ctx, "a4")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		assert.Empty(t, values("alice"))
		assert.Empty(t, values("bob"))
	})

	t.Run("mark used", func(t *testing.T) {
		db.SeedDeviceTokens(tok("c1", "carol", device.PlatformWeb, at(60)))
		used := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, repo.MarkUsed(ctx, used, "tok-c1", "unknown"))

		toks, err := repo.ActiveTokens(ctx, "carol")
		require.NoError(t, err)
		require.Len(t, toks, 1)
		require.NotNil(t, toks[0].LastUsedAt)
		assert.Equal(t, used, *toks[0].LastUsedAt)

		*toks[0].LastUsedAt = time.Time{}
		toks, err = repo.ActiveTokens(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, used, *toks[0].LastUsedAt, "stored values are copies")
	})
}
