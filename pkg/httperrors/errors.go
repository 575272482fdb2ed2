package httperrors

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fintrack/backend/pkg/dispatch"
	"github.com/fintrack/backend/pkg/httputil"
	"github.com/fintrack/backend/pkg/ledger"
	"github.com/fintrack/backend/pkg/models"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Generate a struct containing the HTTP error on the fly.
func New(c *gin.Context, status int, msgAndArgs ...any) {
	// Format msgAndArgs in a final string.
	// This is taken almost exactly from https://github.com/stretchr/testify/blob/181cea6eab8b2de7071383eca4be32a424db38dd/assert/assertions.go#L181
	msg := ""
	if len(msgAndArgs) == 1 {
		if msgAsStr, ok := msgAndArgs[0].(string); ok {
			msg = msgAsStr
		}
		msg = fmt.Sprintf("%+v", msg)
	}

	if len(msgAndArgs) > 1 {
		msg = fmt.Sprintf(msgAndArgs[0].(string), msgAndArgs[1:]...)
	}

	c.JSON(status, HTTPError{
		Error: msg,
	})
}

// Status returns the HTTP status code for an error.
func Status(err error) int {
	var e Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}

	switch {
	case errors.Is(err, models.ErrResourceNotFound), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, httputil.ErrInvalidUUID),
		errors.Is(err, httputil.ErrInvalidMonth),
		errors.Is(err, httputil.ErrInvalidBody),
		errors.Is(err, httputil.ErrRequestBodyEmpty),
		errors.Is(err, io.EOF):
		return http.StatusBadRequest

	case errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity

	case errors.Is(err, ledger.ErrStoreConflict), errors.Is(err, models.ErrConflict):
		return http.StatusConflict

	case errors.Is(err, ledger.ErrExternalCollaborator):
		return http.StatusBadGateway

	case errors.Is(err, dispatch.ErrNotStarted), errors.Is(err, dispatch.ErrClosed):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

// Handler writes the error response for an error.
//
// Errors with an unknown cause are logged with the request id and replaced
// by a generic message.
func Handler(c *gin.Context, err error) {
	status := Status(err)

	if status == http.StatusInternalServerError {
		log.Error().Str("request-id", requestid.Get(c)).Msgf("%T: %v", err, err.Error())
		New(c, status, "An error occurred on the server during your request, please contact your server administrator. The request id is '%v', send this to your server administrator to help them finding the problem", requestid.Get(c))
		return
	}

	if errors.Is(err, io.EOF) {
		err = httputil.ErrRequestBodyEmpty
	}

	New(c, status, err.Error())
}
