package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/bench"
	"github.com/KevinKickass/OpenSpiCore/internal/charge"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ad5672"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ads866x"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/pss"
	"github.com/KevinKickass/OpenSpiCore/internal/spi"
	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

// classify maps an error to a status code and an error code. Errors not
// known here are reported with fallback.
func classify(err error, fallback int) (int, string) {
	switch {
	case errors.Is(err, bench.ErrDeviceNotFound):
		return http.StatusNotFound, types.CodeNotFound
	case errors.Is(err, bench.ErrDeviceType):
		return http.StatusBadRequest, types.CodeBadRequest
	case errors.Is(err, pss.ErrConfig),
		errors.Is(err, charge.ErrParams),
		errors.Is(err, ad5672.ErrChannel),
		errors.Is(err, ads866x.ErrInputRange):
		return http.StatusBadRequest, types.CodeInvalidConfig
	case errors.Is(err, charge.ErrBusy),
		errors.Is(err, charge.ErrNotActive),
		errors.Is(err, spi.ErrRunning),
		errors.Is(err, bench.ErrNoProfile):
		return http.StatusConflict, types.CodeConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, types.CodeTimeout
	}

	switch fallback {
	case http.StatusBadGateway:
		return fallback, types.CodeDeviceError
	case http.StatusBadRequest:
		return fallback, types.CodeBadRequest
	default:
		return http.StatusInternalServerError, types.CodeInternal
	}
}

func (s *Server) respondError(c *gin.Context, message string, err error, fallback int) {
	status, code := classify(err, fallback)
	c.JSON(status, types.NewErrorResponse(code, message, err.Error()))
}

// await waits for a device result within the request timeout. It writes the
// error response itself and reports whether the handler may continue.
func await[T any](s *Server, c *gin.Context, r *async.Return[T], message string) (T, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout())
	defer cancel()

	v, err := r.WaitContext(ctx)
	if err != nil {
		s.respondError(c, message, err, http.StatusBadGateway)
		return v, false
	}
	return v, true
}

func (s *Server) requestTimeout() time.Duration {
	if t := s.lm.Config().Server.RequestTimeout; t > 0 {
		return t
	}
	return 5 * time.Second
}
