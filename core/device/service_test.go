package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
	logsvc "github.com/trezcool/masomo-chat/services/logger"
	inmemdb "github.com/trezcool/masomo-chat/storage/database/inmem"
	"github.com/trezcool/masomo-chat/tests"
)

func setup() (*device.Service, *inmemdb.DB) {
	conf := core.NewTestConfig()
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)

	db := inmemdb.Open()
	return device.NewService(inmemdb.NewDeviceTokenRepository(db), validate, logsvc.NewDiscard(conf)), db
}

func activeValues(t *testing.T, svc *device.Service, userID string) []string {
	t.Helper()
	toks, err := svc.GetActiveTokens(context.Background(), userID)
	require.NoError(t, err)
	values := make([]string, 0, len(toks))
	for _, tok := range toks {
		values = append(values, tok.Token)
	}
	return values
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup()

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			nt   device.NewToken
		}{
			{name: "blank token", nt: device.NewToken{Token: "   ", Platform: device.PlatformAndroid}},
			{name: "missing platform", nt: device.NewToken{Token: testutil.ValidPushToken()}},
			{name: "unknown platform", nt: device.NewToken{Token: testutil.ValidPushToken(), Platform: "symbian"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Register(ctx, "alice", tt.nt)
				_, ok := err.(validator.ValidationErrors)
				assert.True(t, ok, "got %v", err)
			})
		}
	})

	t.Run("one active token per platform", func(t *testing.T) {
		first, second, web := testutil.ValidPushToken(), testutil.ValidPushToken(), testutil.ValidPushToken()

		tok, err := svc.Register(ctx, "bob", device.NewToken{Token: " " + first + " ", Platform: "Android"})
		require.NoError(t, err)
		assert.Equal(t, first, tok.Token)
		assert.Equal(t, device.PlatformAndroid, tok.Platform)
		assert.True(t, tok.IsActive)

		_, err = svc.Register(ctx, "bob", device.NewToken{Token: web, Platform: device.PlatformWeb})
		require.NoError(t, err)
		_, err = svc.Register(ctx, "bob", device.NewToken{Token: second, Platform: device.PlatformAndroid})
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{web, second}, activeValues(t, svc, "bob"))
	})

	t.Run("a known token moves to its new owner", func(t *testing.T) {
		shared := testutil.ValidPushToken()

		_, err := svc.Register(ctx, "carol", device.NewToken{Token: shared, Platform: device.PlatformIOS})
		require.NoError(t, err)
		tok, err := svc.Register(ctx, "dave", device.NewToken{
			Token:      shared,
			Platform:   device.PlatformIOS,
			DeviceInfo: map[string]string{"model": "iPhone"},
		})
		require.NoError(t, err)
		assert.Equal(t, "dave", tok.UserID)
		assert.Equal(t, "iPhone", tok.DeviceInfo["model"])

		assert.Empty(t, activeValues(t, svc, "carol"))
		assert.Equal(t, []string{shared}, activeValues(t, svc, "dave"))
	})
}

func TestService_Unregister(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup()
	value := testutil.ValidPushToken()
	_, err := svc.Register(ctx, "alice", device.NewToken{Token: value, Platform: device.PlatformWeb})
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  string
		token   string
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:  "blank token",
			token: " ",
			check: func(t *testing.T, err error) {
				_, ok := err.(*core.ValidationError)
				assert.True(t, ok, "got %v", err)
			},
		},
		{name: "someone else's token", userID: "mallory", token: value, wantErr: device.ErrNotFound},
		{name: "unknown token", userID: "alice", token: "nope", wantErr: device.ErrNotFound},
		{name: "own token", userID: "alice", token: value},
		{name: "already inactive", userID: "alice", token: value},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Unregister(ctx, tt.userID, tt.token)
			switch {
			case tt.check != nil:
				tt.check(t, err)
			default:
				assert.Equal(t, tt.wantErr, err)
			}
		})
	}
	assert.Empty(t, activeValues(t, svc, "alice"))
}

func TestService_Deactivate(t *testing.T) {
	ctx := context.Background()
	svc, db := setup()
	keep, drop := testutil.ValidPushToken(), testutil.ValidPushToken()
	db.SeedDeviceTokens(
		testutil.NewDeviceToken("alice", device.PlatformAndroid, keep, time.Now()),
		testutil.NewDeviceToken("alice", device.PlatformWeb, drop, time.Now()),
	)

	require.NoError(t, svc.Deactivate(ctx))
	require.NoError(t, svc.Deactivate(ctx, drop, "unknown"))
	require.NoError(t, svc.Deactivate(ctx, drop), "deactivating twice is a no-op")
	assert.Equal(t, []string{keep}, activeValues(t, svc, "alice"))
}

func TestService_MarkUsed(t *testing.T) {
	ctx := context.Background()
	svc, db := setup()
	value := testutil.ValidPushToken()
	db.SeedDeviceTokens(testutil.NewDeviceToken("alice", device.PlatformAndroid, value, time.Now().Add(-time.Hour)))

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.MarkUsed(ctx, nil, at))
	require.NoError(t, svc.MarkUsed(ctx, []string{value}, at))

	toks, err := svc.GetActiveTokens(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	require.NotNil(t, toks[0].LastUsedAt)
	assert.Equal(t, at, *toks[0].LastUsedAt)
}

func TestService_Cleanup(t *testing.T) {
	ctx := context.Background()
	svc, db := setup()

	now := time.Now()
	hourAgo, dayAgo := now.Add(-time.Hour), now.Add(-24*time.Hour)
	usedRecently := testutil.NewDeviceToken("alice", device.PlatformAndroid, "alice-old-but-used", dayAgo)
	recent := now.Add(-time.Minute)
	usedRecently.LastUsedAt = &recent

	db.SeedDeviceTokens(
		// alice: the most recently used android token wins, whatever its creation date
		usedRecently,
		testutil.NewDeviceToken("alice", device.PlatformAndroid, "alice-new", hourAgo),
		testutil.NewDeviceToken("alice", device.PlatformAndroid, "alice-older", dayAgo),
		testutil.NewDeviceToken("alice", device.PlatformWeb, "alice-web", dayAgo),
		// bob: one duplicate on web
		testutil.NewDeviceToken("bob", device.PlatformWeb, "bob-web-new", now),
		testutil.NewDeviceToken("bob", device.PlatformWeb, "bob-web-old", dayAgo),
		// carol: nothing to clean
		testutil.NewDeviceToken("carol", device.PlatformIOS, "carol-ios", now),
		testutil.NewDeviceToken("carol", device.PlatformAndroid, "carol-android", now),
	)

	n, err := svc.CleanupDuplicates(ctx, "carol")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.CleanupDuplicates(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"alice-old-but-used", "alice-web"}, activeValues(t, svc, "alice"))

	n, err = svc.CleanupAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"bob-web-new"}, activeValues(t, svc, "bob"))
	assert.ElementsMatch(t, []string{"carol-ios", "carol-android"}, activeValues(t, svc, "carol"))

	n, err = svc.CleanupAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "cleanup is idempotent")
}
