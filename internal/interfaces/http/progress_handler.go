package http

import (
	"net/http"

	"github.com/courseloop/playback-gateway/internal/infrastructure/auth"
	"github.com/courseloop/playback-gateway/internal/infrastructure/validate"
	"github.com/courseloop/playback-gateway/internal/progress"
	"github.com/labstack/echo/v4"
)

type ProgressHandler struct {
	progressUseCase progress.ProgressUseCase
	validator       validate.Validator
	jwtUtil         *auth.JWTUtil
}

func NewProgressHandler(
	ProgressUseCase progress.ProgressUseCase,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
) *ProgressHandler {
	handler := &ProgressHandler{ProgressUseCase, Validator, JWTUtil}
	return handler
}

func (ph *ProgressHandler) HandleGetLessonProgress(c echo.Context) (err error) {
	claims := ph.jwtUtil.GetContextToken(c)
	courseID := c.QueryParam("course_id")

	if err := ph.validator.Empty("course_id", courseID); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", err))
	}

	records, err := ph.progressUseCase.GetUserLessonProgress(c.Request().Context(), claims.UID, courseID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

func (ph *ProgressHandler) HandleGetCourseProgress(c echo.Context) (err error) {
	claims := ph.jwtUtil.GetContextToken(c)
	courseID := c.Param("id")

	aggregate, err := ph.progressUseCase.GetCourseProgress(c.Request().Context(), claims.UID, courseID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, aggregate)
}

func (ph *ProgressHandler) HandleGetStreak(c echo.Context) (err error) {
	claims := ph.jwtUtil.GetContextToken(c)

	streak, err := ph.progressUseCase.GetStreak(c.Request().Context(), claims.UID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, streak)
}
