package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/masomo-chat/core/device"
)

type deviceTokenRepository struct {
	db *tokenTable
}

var _ device.Repository = (*deviceTokenRepository)(nil)

func NewDeviceTokenRepository(db *DB) device.Repository {
	return &deviceTokenRepository{db: db.tokens}
}

func copyToken(tok device.Token) device.Token {
	if tok.LastUsedAt != nil {
		at := *tok.LastUsedAt
		tok.LastUsedAt = &at
	}
	if tok.DeviceInfo != nil {
		info := make(map[string]string, len(tok.DeviceInfo))
		for k, v := range tok.DeviceInfo {
			info[k] = v
		}
		tok.DeviceInfo = info
	}
	return tok
}

func (repo *deviceTokenRepository) RegisterToken(_ context.Context, tok device.Token) (device.Token, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var existing *device.Token
	for _, t := range repo.db.table {
		if t.Token == tok.Token {
			existing = t
			continue
		}
		if t.UserID == tok.UserID && t.Platform == tok.Platform && t.IsActive {
			t.IsActive = false
			t.UpdatedAt = tok.UpdatedAt
		}
	}

	if existing != nil {
		existing.UserID = tok.UserID
		existing.Platform = tok.Platform
		existing.DeviceInfo = tok.DeviceInfo
		existing.IsActive = true
		existing.UpdatedAt = tok.UpdatedAt
		return copyToken(*existing), nil
	}
	stored := copyToken(tok)
	repo.db.table[tok.ID] = &stored
	return copyToken(stored), nil
}

func (repo *deviceTokenRepository) ActiveTokens(_ context.Context, userID string) ([]device.Token, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	toks := make([]device.Token, 0)
	for _, t := range repo.db.table {
		if t.UserID == userID && t.IsActive {
			toks = append(toks, copyToken(*t))
		}
	}
	sort.Slice(toks, func(i, j int) bool { return toks[i].CreatedAt.Before(toks[j].CreatedAt) })
	return toks, nil
}

func (repo *deviceTokenRepository) deactivate(match func(t *device.Token) bool) int {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	now := time.Now().UTC()
	var n int
	for _, t := range repo.db.table {
		if t.IsActive && match(t) {
			t.IsActive = false
			t.UpdatedAt = now
			n++
		}
	}
	return n
}

func (repo *deviceTokenRepository) DeactivateTokens(_ context.Context, tokens ...string) (int, error) {
	set := toSet(tokens)
	return repo.deactivate(func(t *device.Token) bool { _, ok := set[t.Token]; return ok }), nil
}

func (repo *deviceTokenRepository) DeactivateTokenIDs(_ context.Context, ids ...string) (int, error) {
	set := toSet(ids)
	return repo.deactivate(func(t *device.Token) bool { _, ok := set[t.ID]; return ok }), nil
}

func (repo *deviceTokenRepository) DeactivateUserToken(_ context.Context, userID, token string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, t := range repo.db.table {
		if t.UserID == userID && t.Token == token {
			if t.IsActive {
				t.IsActive = false
				t.UpdatedAt = time.Now().UTC()
			}
			n++
		}
	}
	return n, nil
}

func (repo *deviceTokenRepository) MarkUsed(_ context.Context, at time.Time, tokens ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	set := toSet(tokens)
	for _, t := range repo.db.table {
		if _, ok := set[t.Token]; ok {
			used := at
			t.LastUsedAt = &used
		}
	}
	return nil
}

func (repo *deviceTokenRepository) UsersWithDuplicates(_ context.Context) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	type key struct {
		userID   string
		platform device.Platform
	}
	counts := make(map[key]int)
	for _, t := range repo.db.table {
		if t.IsActive {
			counts[key{t.UserID, t.Platform}]++
		}
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for k, n := range counts {
		if _, ok := seen[k.userID]; n > 1 && !ok {
			seen[k.userID] = struct{}{}
			ids = append(ids, k.userID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SeedDeviceTokens stores tokens as they are, bypassing the one-active-token-per-platform rule.
// It is meant for reproducing legacy data in tests.
func (db *DB) SeedDeviceTokens(toks ...device.Token) {
	db.tokens.mutex.Lock()
	defer db.tokens.mutex.Unlock()
	for _, tok := range toks {
		stored := copyToken(tok)
		db.tokens.table[tok.ID] = &stored
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
