package http

import (
	"errors"
	"net/http"

	"github.com/courseloop/playback-gateway/internal/bridge"
	"github.com/courseloop/playback-gateway/internal/infrastructure/auth"
	"github.com/courseloop/playback-gateway/internal/infrastructure/validate"
	"github.com/courseloop/playback-gateway/internal/lesson"
	"github.com/courseloop/playback-gateway/internal/session"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type PlayerHandler struct {
	manager   *session.Manager
	jwtUtil   *auth.JWTUtil
	validator validate.Validator
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

func NewPlayerHandler(
	Manager *session.Manager,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
	logger *zap.Logger,
) *PlayerHandler {
	return &PlayerHandler{
		manager:   Manager,
		jwtUtil:   JWTUtil,
		validator: Validator,
		upgrader: websocket.Upgrader{
			// the surface is embedded into arbitrary course pages, the
			// attachment handle is the capability, not the origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type attachRequest struct {
	LessonID string `json:"lesson_id"`
}

type commandRequest struct {
	Func string        `json:"func"`
	Args []interface{} `json:"args"`
}

// HandleAttach mount a playback session for the lesson and hand back the
// attachment handle the surface presents on its channel
func (ph *PlayerHandler) HandleAttach(c echo.Context) (err error) {
	ju := ph.jwtUtil
	claims := ju.GetContextToken(c)

	req := new(attachRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTStandardError(http.StatusBadRequest, "Failed to parse request body"))
	}
	if err := ph.validator.Empty("lesson_id", req.LessonID); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", err))
	}

	snapshot, err := ph.manager.Attach(c.Request().Context(), claims.UID, req.LessonID)
	if err != nil {
		if errors.Is(err, lesson.ErrLessonNotFound) {
			return c.JSON(http.StatusNotFound, NewRESTStandardError(http.StatusNotFound, err.Error()))
		}
		return err
	}
	return c.JSON(http.StatusCreated, snapshot)
}

// HandleState snapshot of the learner's live session
func (ph *PlayerHandler) HandleState(c echo.Context) (err error) {
	claims := ph.jwtUtil.GetContextToken(c)

	snapshot, err := ph.manager.State(claims.UID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return c.JSON(http.StatusNotFound, NewRESTStandardError(http.StatusNotFound, err.Error()))
		}
		return err
	}
	return c.JSON(http.StatusOK, snapshot)
}

// HandleCommand apply a learner intent to the live session
func (ph *PlayerHandler) HandleCommand(c echo.Context) (err error) {
	claims := ph.jwtUtil.GetContextToken(c)

	req := new(commandRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTStandardError(http.StatusBadRequest, "Failed to parse request body"))
	}
	if err := ph.validator.Empty("func", req.Func); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", err))
	}

	if err := ph.manager.Dispatch(claims.UID, req.Func, req.Args); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return c.JSON(http.StatusNotFound, NewRESTStandardError(http.StatusNotFound, err.Error()))
		}
		return c.JSON(http.StatusBadRequest, NewRESTStandardError(http.StatusBadRequest, err.Error()))
	}
	return c.NoContent(http.StatusAccepted)
}

// HandleDetach end the learner's session, detaching twice is a no-op
func (ph *PlayerHandler) HandleDetach(c echo.Context) (err error) {
	claims := ph.jwtUtil.GetContextToken(c)
	ph.manager.Detach(claims.UID)
	return c.NoContent(http.StatusNoContent)
}

// HandleSurfaceSocket upgrade the surface's connection and bind it as the
// session's message channel. Blocks pumping frames until the surface goes
// away, the bound attachment outlives any single connection.
func (ph *PlayerHandler) HandleSurfaceSocket(c echo.Context) (err error) {
	handle := c.QueryParam("handle")
	if err := ph.validator.Empty("handle", handle); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", err))
	}

	conn, err := ph.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	channel := bridge.NewWSChannel(conn)
	att, err := ph.manager.BindSurface(handle, channel)
	if err != nil {
		ph.logger.Warn("Surface presented an unknown handle",
			zap.String("bridge.attachment", handle),
			zap.String("client.address", c.Request().RemoteAddr),
		)
		channel.Close()
		return nil
	}

	channel.ReadPump(att.Ingest)
	return nil
}
