// Package api exposes the operator commands over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"SpotAgent/internal/service/ratelimit"
	"SpotAgent/internal/usecase"
	xhttp "SpotAgent/pkg/http"
	xlogger "SpotAgent/pkg/logger"

	"github.com/labstack/echo/v4"
)

const callerKey = "operator_caller"

// HealthCheck is one dependency probed by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OperatorHandler serves /api/* behind bearer-token auth and a per-caller
// rate limit, plus an unauthenticated /healthz.
type OperatorHandler struct {
	logger  *xlogger.Logger
	op      *usecase.Operator
	rl      *ratelimit.Limiter
	perMin  int
	checks  []HealthCheck
	timeout time.Duration
}

type OperatorOption func(*OperatorHandler)

func WithRateLimit(rl *ratelimit.Limiter, perMinute int) OperatorOption {
	return func(h *OperatorHandler) {
		h.rl = rl
		if perMinute > 0 {
			h.perMin = perMinute
		}
	}
}

func WithHealthChecks(checks ...HealthCheck) OperatorOption {
	return func(h *OperatorHandler) { h.checks = append(h.checks, checks...) }
}

func NewOperatorHandler(logger *xlogger.Logger, op *usecase.Operator, opts ...OperatorOption) *OperatorHandler {
	h := &OperatorHandler{logger: logger, op: op, rl: ratelimit.New(), perMin: 30, timeout: 3 * time.Second}
	for _, o := range opts {
		o(h)
	}
	if h.logger == nil {
		h.logger = xlogger.Nop()
	}
	return h
}

func (h *OperatorHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.authenticate)
	g.GET("/status", h.run(usecase.CmdStatus))
	g.GET("/today", h.run(usecase.CmdToday))
	g.GET("/weights", h.run(usecase.CmdWeights))
	g.POST("/optimize", h.run(usecase.CmdOptimize))
	g.POST("/emergency-flat", h.run(usecase.CmdEmergencyFlat))
	g.POST("/close", h.run(usecase.CmdClose))
	g.POST("/commands", h.Command)
}

func (h *OperatorHandler) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := xhttp.BearerToken(c)
		if token == "" {
			return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("missing bearer token"))
		}
		caller := usecase.APICaller(token)
		if !h.op.Authorized(caller) {
			h.logger.Warn("operator api token rejected", xlogger.String("remote", c.RealIP()))
			return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("caller not allowed"))
		}
		if !h.rl.Allow(caller, float64(h.perMin), float64(h.perMin)/60) {
			h.logger.Warn("operator api rate limited", xlogger.String("remote", c.RealIP()))
			return xhttp.TooManyRequestsResponse(c, "rate limited")
		}
		c.Set(callerKey, caller)
		return next(c)
	}
}

func (h *OperatorHandler) run(cmd usecase.Command) echo.HandlerFunc {
	return func(c echo.Context) error { return h.execute(c, cmd) }
}

// Command accepts {"command": "..."} for clients that prefer one endpoint.
func (h *OperatorHandler) Command(c echo.Context) error {
	req := &CommandRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cmd, err := usecase.ParseCommand(req.Command)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return h.execute(c, cmd)
}

func (h *OperatorHandler) execute(c echo.Context, cmd usecase.Command) error {
	caller, _ := c.Get(callerKey).(string)
	reply, err := h.op.Execute(c.Request().Context(), caller, cmd)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if reply.Accepted {
		return xhttp.AcceptedResponse(c, reply)
	}
	return xhttp.SuccessResponse(c, reply)
}

func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, usecase.ErrUnauthorized):
		return xhttp.UnauthorizedError("caller not allowed")
	case errors.Is(err, usecase.ErrUnknownCommand):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, usecase.ErrNothingToClose):
		return xhttp.ConflictError("no open position")
	default:
		return xhttp.InternalError("command failed").WithError(err)
	}
}

// Health probes every registered dependency with a short timeout.
func (h *OperatorHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	res := make(map[string]string, len(h.checks))
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			res[chk.Name] = err.Error()
			status = http.StatusServiceUnavailable
			h.logger.Warn("health check failed", xlogger.String("dependency", chk.Name), xlogger.Error(err))
			continue
		}
		res[chk.Name] = "ok"
	}
	return xhttp.DataResponse(c, status, res)
}
