package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{entity.ErrSessionNotFound, http.StatusNotFound},
	{entity.ErrEventNotFound, http.StatusNotFound},
	{entity.ErrBookingNotFound, http.StatusNotFound},

	// переход не разрешён в текущем состоянии мастера
	{entity.ErrWrongStep, http.StatusConflict},
	{entity.ErrStepIncomplete, http.StatusConflict},
	{entity.ErrNoNextStep, http.StatusConflict},
	{entity.ErrNoPreviousStep, http.StatusConflict},
	{entity.ErrSessionExpired, http.StatusConflict},
	{entity.ErrNotExpired, http.StatusConflict},
	{entity.ErrBookingAlreadyExists, http.StatusConflict},

	{entity.ErrEventUnavailable, http.StatusUnprocessableEntity},
	{entity.ErrShowTimeNotFound, http.StatusUnprocessableEntity},
	{entity.ErrZoneNotFound, http.StatusUnprocessableEntity},
	{entity.ErrZoneUnavailable, http.StatusUnprocessableEntity},
	{entity.ErrInvalidQuantity, http.StatusUnprocessableEntity},
	{entity.ErrCapacityReached, http.StatusUnprocessableEntity},
	{entity.ErrInvalidProof, http.StatusUnprocessableEntity},
	{entity.ErrInvalidBookingStatus, http.StatusUnprocessableEntity},
	{entity.ErrMissingExtraField, http.StatusUnprocessableEntity},
	{entity.ErrInvalidPaymentMethod, http.StatusUnprocessableEntity},
	{entity.ErrInvalidInput, http.StatusUnprocessableEntity},

	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

func statusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// respondError maps domain errors to status codes. Only unexpected failures are logged.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
