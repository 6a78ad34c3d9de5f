package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core/chat"
)

type messageApi struct {
	svc *chat.Service
}

func registerMessageAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *chat.Service) {
	api := messageApi{svc: svc}

	tg := g.Group("/threads/:id/messages", jwt)
	tg.POST("", api.create)
	tg.GET("", api.queryThread)

	mg := g.Group("/messages/:id", jwt)
	mg.GET("", api.retrieve)
	mg.PUT("", api.update)
	mg.POST("/approve", api.approve, moderatorMiddleware())
	mg.POST("/reject", api.reject, moderatorMiddleware())
}

// Handlers

func (api *messageApi) create(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data chat.NewMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}

	msg, err := api.svc.Create(ctx.Request().Context(), id, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *messageApi) queryThread(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	msgs, err := api.svc.ListThread(ctx.Request().Context(), id, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing thread messages")
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messageApi) retrieve(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	msg, err := api.svc.Get(ctx.Request().Context(), id, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting message")
	}
	return ctx.JSON(http.StatusOK, msg)
}

func (api *messageApi) update(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data chat.EditMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditMessage")
	}

	msg, err := api.svc.Edit(ctx.Request().Context(), id, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "editing message")
	}
	return ctx.JSON(http.StatusOK, msg)
}

func (api *messageApi) approve(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	msg, err := api.svc.Approve(ctx.Request().Context(), id, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving message")
	}
	return ctx.JSON(http.StatusOK, msg)
}

func (api *messageApi) reject(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data chat.RejectMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectMessage")
	}

	msg, err := api.svc.Reject(ctx.Request().Context(), id, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rejecting message")
	}
	return ctx.JSON(http.StatusOK, msg)
}
