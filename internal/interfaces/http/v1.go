package http

import (
	"github.com/labstack/echo/v4"
)

func v1Endpoint(
	PlayerHandler *PlayerHandler,
	ProgressHandler *ProgressHandler,
	jwtMiddleware echo.MiddlewareFunc,
	refreshMiddleware echo.MiddlewareFunc,
	requestIDMiddleware echo.MiddlewareFunc,
	traceLoggerMiddleware echo.MiddlewareFunc,
) *endpoint {
	return &endpoint{
		apiVersion:  "api/v1",
		middlewares: []echo.MiddlewareFunc{requestIDMiddleware, traceLoggerMiddleware},
		groups: []*apiGroup{
			{
				prefix:      "/player",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
				routes: []*route{
					{"POST", "/attach", PlayerHandler.HandleAttach, nil},
					{"DELETE", "/attach", PlayerHandler.HandleDetach, nil},
					{"GET", "/state", PlayerHandler.HandleState, nil},
					{"POST", "/command", PlayerHandler.HandleCommand, nil},
				},
			},
			{
				prefix:      "/lesson",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
				routes: []*route{
					{"GET", "/progress", ProgressHandler.HandleGetLessonProgress, nil},
				},
			},
			{
				prefix:      "/course",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
				routes: []*route{
					{"GET", "/:id/progress", ProgressHandler.HandleGetCourseProgress, nil},
				},
			},
			{
				prefix:      "/streak",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
				routes: []*route{
					{"GET", "", ProgressHandler.HandleGetStreak, nil},
				},
			},
			{
				// the surface authenticates with its attachment handle, not a
				// learner token
				prefix: "/ws",
				routes: []*route{
					{"GET", "/player", PlayerHandler.HandleSurfaceSocket, nil},
				},
			},
		},
	}
}
