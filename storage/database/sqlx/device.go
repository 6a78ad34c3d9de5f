package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
)

const tokenColumns = `id, user_id, platform, token, device_info, is_active, last_used_at, created_at, updated_at`

type tokenRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Platform   string    `db:"platform"`
	Token      string    `db:"token"`
	DeviceInfo null.JSON `db:"device_info"`
	IsActive   bool      `db:"is_active"`
	LastUsedAt null.Time `db:"last_used_at"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type deviceTokenRepository struct {
	db core.DB
}

var _ device.Repository = (*deviceTokenRepository)(nil) // interface compliance check

func NewDeviceTokenRepository(db core.DB) *deviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

func (repo deviceTokenRepository) boil(tok device.Token) (tokenRow, error) {
	row := tokenRow{
		ID:         tok.ID,
		UserID:     tok.UserID,
		Platform:   string(tok.Platform),
		Token:      tok.Token,
		IsActive:   tok.IsActive,
		LastUsedAt: null.TimeFromPtr(tok.LastUsedAt),
		CreatedAt:  tok.CreatedAt.UTC(),
		UpdatedAt:  tok.UpdatedAt.UTC(),
	}
	if len(tok.DeviceInfo) > 0 {
		info, err := json.Marshal(tok.DeviceInfo)
		if err != nil {
			return tokenRow{}, errors.Wrap(err, "marshalling device info")
		}
		row.DeviceInfo = null.JSONFrom(info)
	}
	return row, nil
}

func (repo deviceTokenRepository) unboil(row tokenRow) device.Token {
	tok := device.Token{
		ID:        row.ID,
		UserID:    row.UserID,
		Platform:  device.Platform(row.Platform),
		Token:     row.Token,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.LastUsedAt.Valid {
		at := row.LastUsedAt.Time.UTC()
		tok.LastUsedAt = &at
	}
	if row.DeviceInfo.Valid {
		_ = row.DeviceInfo.Unmarshal(&tok.DeviceInfo)
	}
	return tok
}

func (repo deviceTokenRepository) unboilSlice(rows []tokenRow) []device.Token {
	toks := make([]device.Token, 0, len(rows))
	for _, row := range rows {
		toks = append(toks, repo.unboil(row))
	}
	return toks
}

func (repo deviceTokenRepository) RegisterToken(ctx context.Context, tok device.Token) (device.Token, error) {
	row, err := repo.boil(tok)
	if err != nil {
		return device.Token{}, err
	}

	var saved tokenRow
	err = withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE device_tokens SET is_active = false, updated_at = $1
			WHERE user_id = $2 AND platform = $3 AND token <> $4 AND is_active`,
			row.UpdatedAt, row.UserID, row.Platform, row.Token,
		)
		if err != nil {
			return errors.Wrap(err, "deactivating previous device tokens")
		}

		q, args, err := sqlx.Named(
			`INSERT INTO device_tokens (`+tokenColumns+`) VALUES (
				:id, :user_id, :platform, :token, :device_info, true, :last_used_at, :created_at, :updated_at
			)
			ON CONFLICT (token) DO UPDATE SET
				user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, device_info = EXCLUDED.device_info,
				is_active = true, updated_at = EXCLUDED.updated_at
			RETURNING `+tokenColumns,
			row,
		)
		if err != nil {
			return errors.Wrap(err, "binding device token upsert")
		}
		return errors.Wrap(tx.GetContext(ctx, &saved, tx.Rebind(q), args...), "upserting device token")
	})
	if err != nil {
		return device.Token{}, err
	}
	return repo.unboil(saved), nil
}

func (repo deviceTokenRepository) ActiveTokens(ctx context.Context, userID string) ([]device.Token, error) {
	var rows []tokenRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+tokenColumns+` FROM device_tokens WHERE user_id = $1 AND is_active ORDER BY created_at`, userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting active device tokens")
	}
	return repo.unboilSlice(rows), nil
}

func (repo deviceTokenRepository) exec(ctx context.Context, msg, query string, args ...interface{}) (int, error) {
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	return int(n), nil
}

func (repo deviceTokenRepository) DeactivateTokens(ctx context.Context, tokens ...string) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	return repo.exec(ctx, "deactivating device tokens",
		`UPDATE device_tokens SET is_active = false, updated_at = $1 WHERE token = ANY($2) AND is_active`,
		time.Now().UTC(), pq.Array(tokens),
	)
}

func (repo deviceTokenRepository) DeactivateTokenIDs(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return repo.exec(ctx, "deactivating device tokens by id",
		`UPDATE device_tokens SET is_active = false, updated_at = $1 WHERE id::text = ANY($2) AND is_active`,
		time.Now().UTC(), pq.Array(ids),
	)
}

func (repo deviceTokenRepository) DeactivateUserToken(ctx context.Context, userID, token string) (int, error) {
	return repo.exec(ctx, "deactivating user device token",
		`UPDATE device_tokens SET is_active = false, updated_at = $1 WHERE user_id = $2 AND token = $3`,
		time.Now().UTC(), userID, token,
	)
}

func (repo deviceTokenRepository) MarkUsed(ctx context.Context, at time.Time, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := repo.exec(ctx, "marking device tokens used",
		`UPDATE device_tokens SET last_used_at = $1 WHERE token = ANY($2)`,
		at.UTC(), pq.Array(tokens),
	)
	return err
}

func (repo deviceTokenRepository) UsersWithDuplicates(ctx context.Context) ([]string, error) {
	var ids []string
	err := repo.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT user_id FROM device_tokens
		WHERE is_active
		GROUP BY user_id, platform
		HAVING COUNT(*) > 1
		ORDER BY user_id`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting users with duplicate device tokens")
	}
	return ids, nil
}
