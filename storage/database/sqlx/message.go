package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/chat"
)

const messageColumns = `id, thread_id, sender_id, content, message_type, approval_status,
	rejection_reason, approved_by, approved_at, version, created_at, updated_at`

type (
	threadRow struct {
		ID        string    `db:"id"`
		Title     string    `db:"title"`
		Type      string    `db:"thread_type"`
		CreatedAt time.Time `db:"created_at"`
	}

	participantRow struct {
		ThreadID string `db:"thread_id"`
		UserID   string `db:"user_id"`
		Role     string `db:"role"`
	}

	messageRow struct {
		ID              string      `db:"id"`
		ThreadID        string      `db:"thread_id"`
		SenderID        string      `db:"sender_id"`
		Content         string      `db:"content"`
		Type            string      `db:"message_type"`
		ApprovalStatus  string      `db:"approval_status"`
		RejectionReason null.String `db:"rejection_reason"`
		ApprovedBy      null.String `db:"approved_by"`
		ApprovedAt      null.Time   `db:"approved_at"`
		Version         int         `db:"version"`
		CreatedAt       time.Time   `db:"created_at"`
		UpdatedAt       time.Time   `db:"updated_at"`
	}
)

type messageRepository struct {
	db core.DB
}

var _ chat.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db core.DB) *messageRepository {
	return &messageRepository{db: db}
}

func (repo messageRepository) boil(msg chat.Message) messageRow {
	return messageRow{
		ID:              msg.ID,
		ThreadID:        msg.ThreadID,
		SenderID:        msg.SenderID,
		Content:         msg.Content,
		Type:            string(msg.Type),
		ApprovalStatus:  string(msg.ApprovalStatus),
		RejectionReason: null.StringFromPtr(msg.RejectionReason),
		ApprovedBy:      null.StringFromPtr(msg.ApproverID),
		ApprovedAt:      null.TimeFromPtr(msg.ApprovedAt),
		Version:         msg.Version,
		CreatedAt:       msg.CreatedAt.UTC(),
		UpdatedAt:       msg.UpdatedAt.UTC(),
	}
}

func (repo messageRepository) unboil(row messageRow) chat.Message {
	msg := chat.Message{
		ID:              row.ID,
		ThreadID:        row.ThreadID,
		SenderID:        row.SenderID,
		Content:         row.Content,
		Type:            chat.MessageType(row.Type),
		ApprovalStatus:  chat.Status(row.ApprovalStatus),
		RejectionReason: row.RejectionReason.Ptr(),
		ApproverID:      row.ApprovedBy.Ptr(),
		Version:         row.Version,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.ApprovedAt.Valid {
		at := row.ApprovedAt.Time.UTC()
		msg.ApprovedAt = &at
	}
	return msg
}

// trapNoRowsErr maps psql "no rows" err to `notFound`
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo messageRepository) CreateThread(ctx context.Context, thread chat.Thread) (chat.Thread, error) {
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}

	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO threads (id, title, thread_type, created_at) VALUES ($1, $2, $3, $4)`,
			thread.ID, thread.Title, string(thread.Type), thread.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "inserting thread")
		}
		for _, p := range thread.Participants {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO thread_participants (thread_id, user_id, role) VALUES ($1, $2, $3)
				ON CONFLICT (thread_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
				thread.ID, p.UserID, p.Role,
			)
			if err != nil {
				return errors.Wrap(err, "inserting thread participant")
			}
		}
		return nil
	})
	if err != nil {
		return chat.Thread{}, err
	}
	return thread, nil
}

func (repo messageRepository) GetThread(ctx context.Context, id string) (chat.Thread, error) {
	if _, err := uuid.Parse(id); err != nil {
		return chat.Thread{}, chat.ErrThreadNotFound
	}

	var row threadRow
	err := repo.db.GetContext(ctx, &row, `SELECT id, title, thread_type, created_at FROM threads WHERE id = $1`, id)
	if err != nil {
		return chat.Thread{}, trapNoRowsErr(err, chat.ErrThreadNotFound, "selecting thread")
	}

	var parts []participantRow
	err = repo.db.SelectContext(ctx, &parts,
		`SELECT thread_id, user_id, role FROM thread_participants WHERE thread_id = $1 ORDER BY joined_at, user_id`, id,
	)
	if err != nil {
		return chat.Thread{}, errors.Wrap(err, "selecting thread participants")
	}

	thread := chat.Thread{
		ID:           row.ID,
		Title:        row.Title,
		Type:         chat.ThreadType(row.Type),
		CreatedAt:    row.CreatedAt.UTC(),
		Participants: make([]chat.Participant, 0, len(parts)),
	}
	for _, p := range parts {
		thread.Participants = append(thread.Participants, chat.Participant{UserID: p.UserID, Role: p.Role})
	}
	return thread, nil
}

func (repo messageRepository) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	q, args, err := sqlx.Named(
		`INSERT INTO messages (`+messageColumns+`) VALUES (
			:id, :thread_id, :sender_id, :content, :message_type, :approval_status,
			:rejection_reason, :approved_by, :approved_at, :version, :created_at, :updated_at
		) RETURNING `+messageColumns,
		repo.boil(msg),
	)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "binding message insert")
	}

	var row messageRow
	if err = repo.db.GetContext(ctx, &row, repo.db.Rebind(q), args...); err != nil {
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}
	return repo.unboil(row), nil
}

func (repo messageRepository) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	if _, err := uuid.Parse(id); err != nil {
		return chat.Message{}, chat.ErrNotFound
	}

	var row messageRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	if err != nil {
		return chat.Message{}, trapNoRowsErr(err, chat.ErrNotFound, "selecting message")
	}
	return repo.unboil(row), nil
}

// UpdateMessage is a compare-and-swap on (approval_status, version): a concurrent writer makes it match no row.
func (repo messageRepository) UpdateMessage(ctx context.Context, msg chat.Message, prevStatus chat.Status, prevVersion int) (chat.Message, error) {
	row := repo.boil(msg)

	var updated messageRow
	err := repo.db.GetContext(ctx, &updated,
		`UPDATE messages SET
			content = $1, approval_status = $2, rejection_reason = $3, approved_by = $4, approved_at = $5,
			version = $6, updated_at = $7
		WHERE id = $8 AND approval_status = $9 AND version = $10
		RETURNING `+messageColumns,
		row.Content, row.ApprovalStatus, row.RejectionReason, row.ApprovedBy, row.ApprovedAt,
		row.Version, row.UpdatedAt,
		row.ID, string(prevStatus), prevVersion,
	)
	if err != nil {
		return chat.Message{}, trapNoRowsErr(err, chat.ErrStale, "updating message")
	}
	return repo.unboil(updated), nil
}

func (repo messageRepository) ListThreadMessages(ctx context.Context, threadID string) ([]chat.Message, error) {
	if _, err := uuid.Parse(threadID); err != nil {
		return []chat.Message{}, nil
	}

	var rows []messageRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+messageColumns+` FROM messages WHERE thread_id = $1 ORDER BY created_at, id`, threadID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting thread messages")
	}

	msgs := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, repo.unboil(row))
	}
	return msgs, nil
}
