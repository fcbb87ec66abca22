package apperror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fekuna/merkado-order-service/pkg/logger"
)

// HTTPStatus maps err onto a response code. Wrapped errors are unwrapped,
// so an OrderCreationError reports the status of its cause.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		stock      *InsufficientStockError
		conflict   *ConflictError
		transition *IllegalTransitionError
		httpErr    *echo.HTTPError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &stock), errors.As(err, &conflict), errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &httpErr):
		return httpErr.Code
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorHandler writes {"message": ...} for every error a handler returns.
// 5xx errors are logged. Their message is replaced with a generic text unless
// the error is a stock bookkeeping fault, whose message names the product or
// batch and the quantity involved.
func HTTPErrorHandler(base logger.ZapLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := HTTPStatus(err)
		message := err.Error()
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			if m, ok := httpErr.Message.(string); ok {
				message = m
			}
		}

		if code >= http.StatusInternalServerError {
			logger.FromContext(c.Request().Context(), base).Error("request failed", zap.Error(err))
			if !isStockFault(err) {
				message = http.StatusText(code)
			}
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, echo.Map{"message": message})
	}
}

func isStockFault(err error) bool {
	var (
		inconsistency *DataInconsistencyError
		negative      *NegativeStockError
		overdraft     *OverdraftError
	)
	return errors.As(err, &inconsistency) || errors.As(err, &negative) || errors.As(err, &overdraft)
}
