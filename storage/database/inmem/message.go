package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-chat/core/chat"
)

type messageRepository struct {
	db *chatTables
}

var _ chat.Repository = (*messageRepository)(nil)

func NewMessageRepository(db *DB) chat.Repository {
	return &messageRepository{db: db.chat}
}

func copyMessage(msg chat.Message) chat.Message {
	if msg.RejectionReason != nil {
		r := *msg.RejectionReason
		msg.RejectionReason = &r
	}
	if msg.ApproverID != nil {
		a := *msg.ApproverID
		msg.ApproverID = &a
	}
	if msg.ApprovedAt != nil {
		at := *msg.ApprovedAt
		msg.ApprovedAt = &at
	}
	return msg
}

func copyThread(t chat.Thread) chat.Thread {
	t.Participants = append([]chat.Participant(nil), t.Participants...)
	return t
}

func (repo *messageRepository) CreateThread(_ context.Context, thread chat.Thread) (chat.Thread, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	thread = copyThread(thread)
	repo.db.threads[thread.ID] = &thread
	return copyThread(thread), nil
}

func (repo *messageRepository) GetThread(_ context.Context, id string) (chat.Thread, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.threads[id]; ok {
		return copyThread(*t), nil
	}
	return chat.Thread{}, chat.ErrThreadNotFound
}

func (repo *messageRepository) CreateMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.threads[msg.ThreadID]; !ok {
		return chat.Message{}, chat.ErrThreadNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	stored := copyMessage(msg)
	repo.db.messages[msg.ID] = &stored
	repo.db.order = append(repo.db.order, msg.ID)
	return copyMessage(stored), nil
}

func (repo *messageRepository) GetMessage(_ context.Context, id string) (chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if msg, ok := repo.db.messages[id]; ok {
		return copyMessage(*msg), nil
	}
	return chat.Message{}, chat.ErrNotFound
}

func (repo *messageRepository) UpdateMessage(_ context.Context, msg chat.Message, prevStatus chat.Status, prevVersion int) (chat.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	current, ok := repo.db.messages[msg.ID]
	if !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	if current.ApprovalStatus != prevStatus || current.Version != prevVersion {
		return chat.Message{}, chat.ErrStale
	}
	stored := copyMessage(msg)
	repo.db.messages[msg.ID] = &stored
	return copyMessage(stored), nil
}

func (repo *messageRepository) ListThreadMessages(_ context.Context, threadID string) ([]chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	msgs := make([]chat.Message, 0)
	for _, id := range repo.db.order {
		if msg := repo.db.messages[id]; msg.ThreadID == threadID {
			msgs = append(msgs, copyMessage(*msg))
		}
	}
	return msgs, nil
}
