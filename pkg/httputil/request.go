package httputil

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/fintrack/backend/internal/types"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// BindData binds the data from the request to the struct passed in the interface.
func BindData(c *gin.Context, data any) error {
	if err := c.ShouldBindJSON(data); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrRequestBodyEmpty
		}

		var jsonUnmarshalTypeError *json.UnmarshalTypeError
		if errors.As(err, &jsonUnmarshalTypeError) {
			return err
		}

		log.Error().Str("request-id", requestid.Get(c)).Msgf("%T: %v", err, err.Error())
		return ErrInvalidBody
	}

	return nil
}

// UUIDFromString binds a string to a UUID
//
// This is needed because gin does not support form binding to uuid.UUID currently.
// Follow https://github.com/gin-gonic/gin/pull/3045 to see when this gets resolved.
func UUIDFromString(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}

	return u, nil
}

// ParamUUID parses the path parameter as a UUID. Unlike UUIDFromString, an
// empty value is an error.
func ParamUUID(c *gin.Context, param string) (uuid.UUID, error) {
	u, err := UUIDFromString(c.Param(param))
	if err != nil || u == uuid.Nil {
		return uuid.Nil, ErrInvalidUUID
	}

	return u, nil
}

// QueryMonth parses the query parameter in YYYY-MM format. If the parameter
// is not set, fallback is returned.
func QueryMonth(c *gin.Context, param string, fallback types.Month) (types.Month, error) {
	s, ok := c.GetQuery(param)
	if !ok {
		return fallback, nil
	}

	month, err := types.ParseMonth(s)
	if err != nil {
		return types.Month{}, ErrInvalidMonth
	}

	return month, nil
}

// ContextKey is the type of keys set on the gin context.
type ContextKey string

// ContextURL is the key for the base URL of the API.
const ContextURL ContextKey = "baseURL"

// BaseURL returns the base URL of the API set by the URL middleware.
func BaseURL(c *gin.Context) string {
	return c.GetString(string(ContextURL))
}
