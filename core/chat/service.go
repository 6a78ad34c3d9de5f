package chat

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/notification"
	"github.com/trezcool/masomo-chat/core/user"
)

type (
	Repository interface {
		CreateThread(ctx context.Context, thread Thread) (Thread, error)
		GetThread(ctx context.Context, id string) (Thread, error)
		CreateMessage(ctx context.Context, msg Message) (Message, error)
		GetMessage(ctx context.Context, id string) (Message, error)
		// UpdateMessage stores msg only if the stored row still has status `prevStatus` and version `prevVersion`,
		// otherwise it returns ErrStale.
		UpdateMessage(ctx context.Context, msg Message, prevStatus Status, prevVersion int) (Message, error)
		// ListThreadMessages returns the thread's messages, oldest first.
		ListThreadMessages(ctx context.Context, threadID string) ([]Message, error)
	}

	Service struct {
		repo        Repository
		dispatcher  notification.Dispatcher
		mailSvc     core.EmailService
		validate    *validator.Validate
		logger      core.Logger
		exemptRoles []string
		alertTo     []mail.Address
		now         func() time.Time
	}
)

func NewService(
	repo Repository,
	dispatcher notification.Dispatcher,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:        repo,
		dispatcher:  dispatcher,
		mailSvc:     mailSvc,
		validate:    validate,
		logger:      logger,
		exemptRoles: conf.Moderation.ExemptRoles,
		alertTo:     core.ParseAddresses(conf.Moderation.AlertEmails),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create posts a message in a thread. Messages of moderation-exempt senders are approved right away,
// others wait for a moderator.
func (svc *Service) Create(ctx context.Context, sender user.Identity, threadID string, nm NewMessage) (Message, error) {
	nm.clean()
	if err := svc.validate.Struct(nm); err != nil {
		return Message{}, err
	}

	thread, err := svc.repo.GetThread(ctx, threadID)
	if err != nil {
		return Message{}, errors.Wrap(err, "getting thread")
	}
	if !thread.HasParticipant(sender.ID) {
		return Message{}, ErrNotParticipant
	}

	status := StatusPending
	if sender.HasAnyRole(svc.exemptRoles...) {
		status = StatusApproved
	}

	msg, err := svc.repo.CreateMessage(ctx, nm.build(thread.ID, sender.ID, status, svc.now()))
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}

	if msg.ApprovalStatus == StatusApproved {
		svc.dispatcher.Dispatch(notification.Job{
			Recipients: thread.RecipientsExcept(msg.SenderID),
			Event:      newMessageEvent(msg),
		})
	} else {
		svc.alertModerators(msg, false)
	}
	return msg, nil
}

func (svc *Service) Approve(ctx context.Context, approver user.Identity, id string) (Message, error) {
	if !approver.IsModerator() {
		return Message{}, ErrNotModerator
	}

	prev, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		return Message{}, errors.Wrap(err, "getting message")
	}
	next, err := prev.Approve(approver.ID, svc.now())
	if err != nil {
		return Message{}, err
	}
	msg, err := svc.commit(ctx, prev, next, "approve")
	if err != nil {
		return Message{}, err
	}

	if recipients, ok := svc.recipients(ctx, msg); ok {
		svc.dispatcher.Dispatch(notification.Job{Recipients: recipients, Event: messageApprovedEvent(msg)})
		svc.dispatcher.Dispatch(notification.Job{Recipients: recipients, Event: newMessageEvent(msg), SocketOnly: true})
	}
	return msg, nil
}

func (svc *Service) Reject(ctx context.Context, approver user.Identity, id string, rm RejectMessage) (Message, error) {
	if !approver.IsModerator() {
		return Message{}, ErrNotModerator
	}
	rm.Reason = core.CleanString(rm.Reason)
	if err := svc.validate.Struct(rm); err != nil {
		return Message{}, err
	}

	prev, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		return Message{}, errors.Wrap(err, "getting message")
	}
	next, err := prev.Reject(rm.Reason, svc.now())
	if err != nil {
		return Message{}, err
	}
	msg, err := svc.commit(ctx, prev, next, "reject")
	if err != nil {
		return Message{}, err
	}

	svc.logger.Info(fmt.Sprintf("message %s rejected by %s: %s", msg.ID, approver.ID, rm.Reason), approver)
	svc.dispatcher.Dispatch(notification.Job{Recipients: []string{msg.SenderID}, Event: messageRejectedEvent(msg)})
	return msg, nil
}

// Edit changes the content of the editor's own message. A rejected message is sent back for moderation.
func (svc *Service) Edit(ctx context.Context, editor user.Identity, id string, em EditMessage) (Message, error) {
	em.Content = core.CleanString(em.Content)
	if err := svc.validate.Struct(em); err != nil {
		return Message{}, err
	}

	prev, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		return Message{}, errors.Wrap(err, "getting message")
	}
	next, err := prev.Edit(editor.ID, em.Content, svc.now())
	if err != nil {
		return Message{}, err
	}
	msg, err := svc.commit(ctx, prev, next, "edit")
	if err != nil {
		return Message{}, err
	}

	if prev.ApprovalStatus == StatusRejected {
		svc.alertModerators(msg, true)
	}
	return msg, nil
}

// Get returns a message if `reader` is allowed to see it. Hidden messages are reported as not found.
func (svc *Service) Get(ctx context.Context, reader user.Identity, id string) (Message, error) {
	msg, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		return Message{}, errors.Wrap(err, "getting message")
	}
	if !msg.VisibleTo(reader) {
		return Message{}, ErrNotFound
	}
	if !reader.IsModerator() && reader.ID != msg.SenderID {
		thread, err := svc.repo.GetThread(ctx, msg.ThreadID)
		if err != nil {
			return Message{}, errors.Wrap(err, "getting thread")
		}
		if !thread.HasParticipant(reader.ID) {
			return Message{}, ErrNotFound
		}
	}
	return msg, nil
}

// ListThread returns the thread's messages visible to `reader`, oldest first.
func (svc *Service) ListThread(ctx context.Context, reader user.Identity, threadID string) ([]Message, error) {
	thread, err := svc.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, errors.Wrap(err, "getting thread")
	}
	if !reader.IsModerator() && !thread.HasParticipant(reader.ID) {
		return nil, ErrNotParticipant
	}

	msgs, err := svc.repo.ListThreadMessages(ctx, thread.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing thread messages")
	}
	visible := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.VisibleTo(reader) {
			visible = append(visible, msg)
		}
	}
	return visible, nil
}

// commit persists a transition computed from `prev`. When another request changed the message first,
// the current state is reloaded and reported as an InvalidStateError.
func (svc *Service) commit(ctx context.Context, prev, next Message, op string) (Message, error) {
	msg, err := svc.repo.UpdateMessage(ctx, next, prev.ApprovalStatus, prev.Version)
	if err == nil {
		return msg, nil
	}
	if errors.Cause(err) != ErrStale {
		return Message{}, errors.Wrap(err, "updating message")
	}

	current, gErr := svc.repo.GetMessage(ctx, prev.ID)
	if gErr != nil {
		return Message{}, errors.Wrap(gErr, "reloading message")
	}
	return Message{}, newInvalidStateError(current, op, "message was modified concurrently")
}

func (svc *Service) recipients(ctx context.Context, msg Message) ([]string, bool) {
	thread, err := svc.repo.GetThread(ctx, msg.ThreadID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("loading recipients of message %s: %v", msg.ID, err), err)
		return nil, false
	}
	return thread.RecipientsExcept(msg.SenderID), true
}

func (svc *Service) alertModerators(msg Message, requeued bool) {
	if svc.mailSvc == nil || len(svc.alertTo) == 0 {
		return
	}
	subject := "New message pending approval"
	if requeued {
		subject = "Edited message pending approval"
	}
	body := fmt.Sprintf(
		"Message %s posted by user %s in thread %s is waiting for approval:\n\n%s\n",
		msg.ID, msg.SenderID, msg.ThreadID, core.Truncate(msg.Content, 280),
	)
	svc.mailSvc.SendMessages(&core.EmailMessage{To: svc.alertTo, Subject: subject, BodyStr: body})
}
