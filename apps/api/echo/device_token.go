package echoapi

import (
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
	"github.com/trezcool/masomo-chat/core/notification"
	pushsvc "github.com/trezcool/masomo-chat/services/push"
)

var errNoActiveTokens = core.NewValidationError(errors.New("no active device tokens to notify"))

type (
	UnregisterRequest struct {
		Token string `json:"token"`
	}

	TestPushRequest struct {
		Title   string `json:"title" validate:"max=255"`
		Message string `json:"message" validate:"required,notblank,max=1000"`
	}

	TestPushResult struct {
		Platform device.Platform        `json:"platform"`
		Success  bool                   `json:"success"`
		Code     notification.ErrorCode `json:"error_code,omitempty"`
	}

	TestPushResponse struct {
		Sent    int              `json:"sent"`
		Failed  int              `json:"failed"`
		Results []TestPushResult `json:"results"`
	}

	CleanupRequest struct {
		UserID string `json:"user_id"`
	}

	CleanupResponse struct {
		Deactivated int `json:"deactivated"`
	}
)

type deviceTokenApi struct {
	svc      *device.Service
	pushSvc  *pushsvc.Service
	validate *validator.Validate
}

func registerDeviceTokenAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *device.Service,
	pushSvc *pushsvc.Service,
	validate *validator.Validate,
	testLimiter *limiterPool,
) {
	api := deviceTokenApi{
		svc:      svc,
		pushSvc:  pushSvc,
		validate: validate,
	}

	dg := g.Group("/device-tokens", jwt)
	dg.POST("/register", api.register)
	dg.POST("/unregister", api.unregister)
	dg.POST("/test", api.test, userRateLimitMiddleware(testLimiter))
	dg.POST("/cleanup", api.cleanup)
}

// Handlers

func (api *deviceTokenApi) register(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data device.NewToken
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewToken")
	}

	tok, err := api.svc.Register(ctx.Request().Context(), id.ID, data)
	if err != nil {
		return errors.Wrap(err, "registering device token")
	}
	return ctx.JSON(http.StatusCreated, tok)
}

func (api *deviceTokenApi) unregister(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data UnregisterRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UnregisterRequest")
	}

	if err = api.svc.Unregister(ctx.Request().Context(), id.ID, data.Token); err != nil {
		return errors.Wrap(err, "unregistering device token")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *deviceTokenApi) test(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data TestPushRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TestPushRequest")
	}
	data.Title = core.CleanString(data.Title)
	data.Message = core.CleanString(data.Message)
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	if data.Title == "" {
		data.Title = "Test notification"
	}

	reqCtx := ctx.Request().Context()
	toks, err := api.svc.GetActiveTokens(reqCtx, id.ID)
	if err != nil {
		return errors.Wrap(err, "getting active device tokens")
	}
	if len(toks) == 0 {
		return errNoActiveTokens
	}

	ev := notification.Generic{
		Header: notification.NewHeader(data.Title, data.Message, notification.PriorityHigh),
		Extra:  map[string]interface{}{"test": true},
	}
	res := api.pushSvc.SendBulk(reqCtx, toks, ev)

	resp := TestPushResponse{Sent: res.Sent, Failed: res.Failed, Results: make([]TestPushResult, 0, len(res.PerToken))}
	for _, d := range res.PerToken {
		resp.Results = append(resp.Results, TestPushResult{Platform: d.Platform, Success: d.Success, Code: d.Code})
	}
	sort.Slice(resp.Results, func(i, j int) bool { return resp.Results[i].Platform < resp.Results[j].Platform })
	return ctx.JSON(http.StatusOK, resp)
}

// cleanup deactivates the duplicate tokens of the caller, or of `user_id` when the caller is an admin.
func (api *deviceTokenApi) cleanup(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data CleanupRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CleanupRequest")
	}

	userID := id.ID
	if uid := core.CleanString(data.UserID); uid != "" && uid != id.ID {
		if !id.IsAdmin() {
			return errHttpForbidden
		}
		userID = uid
	}

	n, err := api.svc.CleanupDuplicates(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "cleaning up device tokens")
	}
	return ctx.JSON(http.StatusOK, CleanupResponse{Deactivated: n})
}
