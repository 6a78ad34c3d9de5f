package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound       = errors.New("message not found")
	ErrThreadNotFound = errors.New("thread not found")
	ErrNotParticipant = errors.New("user is not a participant of this thread")
	ErrNotModerator   = errors.New("only moderators can approve or reject messages")

	// ErrStale is returned by Repository.UpdateMessage when the stored message no longer
	// has the expected status and version.
	ErrStale = errors.New("message was modified concurrently")
)

// InvalidStateError means a transition was requested on a message whose state does not allow it.
type InvalidStateError struct {
	MessageID    string
	Op           string
	Status       Status
	Precondition string
}

func newInvalidStateError(m Message, op, precondition string) *InvalidStateError {
	return &InvalidStateError{MessageID: m.ID, Op: op, Status: m.ApprovalStatus, Precondition: precondition}
}

func (err InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s message %s (status %s): %s", err.Op, err.MessageID, err.Status, err.Precondition)
}

func IsInvalidState(err error) bool {
	_, ok := errors.Cause(err).(*InvalidStateError)
	return ok
}
