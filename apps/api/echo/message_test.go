package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/notification"
	"github.com/trezcool/masomo-chat/core/user"
	"github.com/trezcool/masomo-chat/tests"
)

type messageResp struct {
	ID              string      `json:"id"`
	SenderID        string      `json:"sender_id"`
	Content         string      `json:"content"`
	ApprovalStatus  chat.Status `json:"approval_status"`
	RejectionReason *string     `json:"rejection_reason"`
	ApprovedBy      *string     `json:"approved_by"`
}

type conflictResp struct {
	Error        string      `json:"error"`
	Operation    string      `json:"operation"`
	Status       chat.Status `json:"status"`
	Precondition string      `json:"precondition"`
}

func messagesPath(threadID string) string { return "/v1/threads/" + threadID + "/messages" }
func messagePath(id string) string        { return "/v1/messages/" + id }

func TestMessageAPI_create(t *testing.T) {
	app := newTestApp(t)

	teacher := testutil.NewIdentity("teacher", user.RoleTeacher)
	parent := testutil.NewIdentity("parent", user.RoleParent)
	outsider := testutil.NewIdentity("outsider", user.RoleTeacher)
	thread := testutil.CreateThread(t, app.msgRepo, teacher, parent)

	tests := []struct {
		httpTest
		wantStatus   chat.Status
		wantApprover string
		wantField    string
	}{
		{
			httpTest:   httpTest{name: "teacher message waits for approval", path: messagesPath(thread.ID), token: app.token(t, teacher), body: map[string]string{"content": "Hello"}, wantCode: http.StatusCreated},
			wantStatus: chat.StatusPending,
		},
		{
			httpTest:     httpTest{name: "parent message is approved", path: messagesPath(thread.ID), token: app.token(t, parent), body: map[string]string{"content": "Hi teacher"}, wantCode: http.StatusCreated},
			wantStatus:   chat.StatusApproved,
			wantApprover: parent.ID,
		},
		{
			httpTest:  httpTest{name: "blank content", path: messagesPath(thread.ID), token: app.token(t, teacher), body: map[string]string{"content": "   "}, wantCode: http.StatusBadRequest},
			wantField: "content",
		},
		{
			httpTest:  httpTest{name: "unknown message type", path: messagesPath(thread.ID), token: app.token(t, teacher), body: map[string]string{"content": "x", "message_type": "video"}, wantCode: http.StatusBadRequest},
			wantField: "message_type",
		},
		{
			httpTest: httpTest{name: "not a participant", path: messagesPath(thread.ID), token: app.token(t, outsider), body: map[string]string{"content": "Hello"}, wantCode: http.StatusForbidden},
		},
		{
			httpTest: httpTest{name: "unknown thread", path: messagesPath("nope"), token: app.token(t, teacher), body: map[string]string{"content": "Hello"}, wantCode: http.StatusNotFound},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			switch {
			case tt.wantStatus != "":
				var msg messageResp
				decode(t, rec, &msg)
				assert.Equal(t, tt.wantStatus, msg.ApprovalStatus)
				assert.Nil(t, msg.RejectionReason)
				if tt.wantApprover != "" {
					require.NotNil(t, msg.ApprovedBy)
					assert.Equal(t, tt.wantApprover, *msg.ApprovedBy)
				} else {
					assert.Nil(t, msg.ApprovedBy)
				}
			case tt.wantField != "":
				var fields map[string]string
				decode(t, rec, &fields)
				assert.Contains(t, fields, tt.wantField)
			}
		})
	}

	// only the exempt (approved) message was fanned out, to the teacher
	require.Len(t, app.dispatcher.Results, 1)
	res := app.dispatcher.Results[0]
	assert.Equal(t, notification.KindNewMessage, res.Kind)
	assert.Contains(t, res.PerRecipient, teacher.ID)
	assert.NotContains(t, res.PerRecipient, parent.ID)
}

func TestMessageAPI_moderationFlow(t *testing.T) {
	app := newTestApp(t)

	teacher := testutil.NewIdentity("teacher", user.RoleTeacher)
	parent := testutil.NewIdentity("parent", user.RoleParent)
	admin := testutil.NewIdentity("admin", user.RoleAdmin)
	outsider := testutil.NewIdentity("outsider", user.RoleStudent)
	thread := testutil.CreateThread(t, app.msgRepo, teacher, parent)

	rec := app.do(t, http.MethodPost, messagesPath(thread.ID), app.token(t, teacher), map[string]string{"content": "Field trip on Friday"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created messageResp
	decode(t, rec, &created)

	// hidden from the parent while pending
	rec = app.do(t, http.MethodGet, messagePath(created.ID), app.token(t, parent), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodGet, messagesPath(thread.ID), app.token(t, parent), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []messageResp
	decode(t, rec, &listed)
	assert.Empty(t, listed)

	// the sender sees it
	rec = app.do(t, http.MethodGet, messagePath(created.ID), app.token(t, teacher), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// only moderators approve
	for _, id := range []user.Identity{parent, teacher} {
		rec = app.do(t, http.MethodPost, messagePath(created.ID)+"/approve", app.token(t, id), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, id.Username)
	}

	rec = app.do(t, http.MethodPost, messagePath(created.ID)+"/approve", app.token(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved messageResp
	decode(t, rec, &approved)
	assert.Equal(t, chat.StatusApproved, approved.ApprovalStatus)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin.ID, *approved.ApprovedBy)

	require.Len(t, app.dispatcher.Results, 2)
	assert.Equal(t, notification.KindMessageApproved, app.dispatcher.Results[0].Kind)
	assert.Equal(t, notification.KindNewMessage, app.dispatcher.Results[1].Kind)
	for _, res := range app.dispatcher.Results {
		assert.Contains(t, res.PerRecipient, parent.ID)
		assert.NotContains(t, res.PerRecipient, teacher.ID)
	}

	// second approve is refused
	rec = app.do(t, http.MethodPost, messagePath(created.ID)+"/approve", app.token(t, admin), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict conflictResp
	decode(t, rec, &conflict)
	assert.Equal(t, "approve", conflict.Operation)
	assert.Equal(t, chat.StatusApproved, conflict.Status)
	assert.NotEmpty(t, conflict.Precondition)

	// approved messages are immutable
	rec = app.do(t, http.MethodPut, messagePath(created.ID), app.token(t, teacher), map[string]string{"content": "changed"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// now visible to the parent
	rec = app.do(t, http.MethodGet, messagePath(created.ID), app.token(t, parent), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, messagesPath(thread.ID), app.token(t, outsider), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = app.do(t, http.MethodGet, messagePath(created.ID), app.token(t, outsider), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageAPI_rejectThenEdit(t *testing.T) {
	app := newTestApp(t)

	teacher := testutil.NewIdentity("teacher", user.RoleTeacher)
	parent := testutil.NewIdentity("parent", user.RoleParent)
	admin := testutil.NewIdentity("admin", user.RoleAdminPrincipal)
	thread := testutil.CreateThread(t, app.msgRepo, teacher, parent)
	adminToken := app.token(t, admin)

	rec := app.do(t, http.MethodPost, messagesPath(thread.ID), app.token(t, teacher), map[string]string{"content": "Your kid failed"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created messageResp
	decode(t, rec, &created)

	rec = app.do(t, http.MethodPost, messagePath(created.ID)+"/reject", adminToken, map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fields map[string]string
	decode(t, rec, &fields)
	assert.Contains(t, fields, "rejection_reason")

	rec = app.do(t, http.MethodPost, messagePath(created.ID)+"/reject", adminToken, map[string]string{"rejection_reason": "Inappropriate tone"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rejected messageResp
	decode(t, rec, &rejected)
	assert.Equal(t, chat.StatusRejected, rejected.ApprovalStatus)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "Inappropriate tone", *rejected.RejectionReason)
	assert.Nil(t, rejected.ApprovedBy)

	// the rejection only goes to the sender
	require.Len(t, app.dispatcher.Results, 1)
	assert.Equal(t, notification.KindMessageRejected, app.dispatcher.Results[0].Kind)
	assert.Len(t, app.dispatcher.Results[0].PerRecipient, 1)
	assert.Contains(t, app.dispatcher.Results[0].PerRecipient, teacher.ID)

	// someone else cannot edit it
	rec = app.do(t, http.MethodPut, messagePath(created.ID), app.token(t, parent), map[string]string{"content": "hacked"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, http.MethodPut, messagePath(created.ID), app.token(t, teacher), map[string]string{"content": "Your kid needs support"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var edited messageResp
	decode(t, rec, &edited)
	assert.Equal(t, chat.StatusPending, edited.ApprovalStatus)
	assert.Nil(t, edited.RejectionReason)
	assert.Equal(t, "Your kid needs support", edited.Content)

	rec = app.do(t, http.MethodPost, messagePath(created.ID)+"/approve", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodPost, messagePath("missing")+"/approve", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
