package controllers

import (
	"net/http"

	"github.com/fintrack/backend/pkg/httperrors"
	"github.com/fintrack/backend/pkg/httputil"
	"github.com/gin-gonic/gin"
)

// RegisterHealthzRoutes registers the routes for the healthz endpoint.
func (co Controller) RegisterHealthzRoutes(r *gin.RouterGroup) {
	r.OPTIONS("", co.OptionsHealthz)
	r.GET("", co.GetHealthz)
}

// OptionsHealthz returns the allowed HTTP verbs
func (co Controller) OptionsHealthz(c *gin.Context) {
	httputil.OptionsGet(c)
}

// GetHealthz returns 204 if the database can be reached.
func (co Controller) GetHealthz(c *gin.Context) {
	sqlDB, err := co.DB.DB()
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	err = sqlDB.PingContext(c.Request.Context())
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
