package router

import (
	"net/http"
	"net/url"

	"github.com/fintrack/backend/pkg/controllers"
	"github.com/fintrack/backend/pkg/httperrors"
	"github.com/fintrack/backend/pkg/httputil"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/logger"
	"github.com/gin-contrib/pprof"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// This is set at build time, see Makefile.
var version = "0.0.0"

// Options configure the router.
type Options struct {
	CORSAllowOrigins []string
	EnablePprof      bool
}

// Config sets up the router and its middlewares.
//
// The returned teardown function unregisters the HTTP metrics and must be
// called when the router is not used anymore.
func Config(url *url.URL, options Options) (*gin.Engine, func(), error) {
	// Set up the router and middlewares
	r := gin.New()

	// Don’t process X-Forwarded-For header as we do not do anything with
	// client IPs
	r.ForwardedByClientIP = false

	// Send a HTTP 405 (Method not allowed) for all paths where there is
	// a handler, but not for the specific method used
	r.HandleMethodNotAllowed = true

	err := registerPrometheusMetrics()
	if err != nil {
		return nil, func() {}, err
	}
	teardown := func() {
		unregisterPrometheusMetrics()
	}

	r.Use(gin.Recovery())
	r.Use(requestid.New())
	r.Use(URLMiddleware(url))
	r.Use(MetricsMiddleware())
	r.NoMethod(func(c *gin.Context) {
		httperrors.New(c, http.StatusMethodNotAllowed, "This HTTP method is not allowed for the endpoint you called")
	})
	r.NoRoute(func(c *gin.Context) {
		httperrors.New(c, http.StatusNotFound, "There is no endpoint for the path you called")
	})
	r.Use(logger.SetLogger(
		logger.WithDefaultLevel(zerolog.InfoLevel),
		logger.WithClientErrorLevel(zerolog.InfoLevel),
		logger.WithServerErrorLevel(zerolog.ErrorLevel),
		logger.WithLogger(func(c *gin.Context, logger zerolog.Logger) zerolog.Logger {
			return logger.With().
				Str("request-id", requestid.Get(c)).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Int("status", c.Writer.Status()).
				Int("size", c.Writer.Size()).
				Str("user-agent", c.Request.UserAgent()).
				Logger()
		})))

	// CORS settings
	if len(options.CORSAllowOrigins) > 0 {
		log.Debug().Strs("CORS Allowed Origins", options.CORSAllowOrigins).Msg("Router")

		r.Use(cors.New(cors.Config{
			AllowOrigins:     options.CORSAllowOrigins,
			AllowMethods:     []string{"OPTIONS", "GET", "POST"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	// Disable the gin debug route printing as it clutters logs (and test logs)
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, numHandlers int) {}

	// Don’t trust any proxy. We do not process any client IPs,
	// therefore we don’t need to trust anyone here.
	_ = r.SetTrustedProxies([]string{})

	log.Debug().Str("API Base URL", url.String()).Str("Host", url.Host).Str("Path", url.Path).Msg("Router")
	log.Info().Str("version", version).Msg("Router")

	return r, teardown, nil
}

// AttachRoutes attaches the API routes to the router group that is passed in.
// Separating this from Config() allows us to attach it to different
// paths for different use cases.
func AttachRoutes(co controllers.Controller, group *gin.RouterGroup, options Options) {
	group.GET("", GetRoot)
	group.OPTIONS("", httputil.OptionsGet)
	group.GET("/version", GetVersion)
	group.OPTIONS("/version", httputil.OptionsGet)
	group.GET("/metrics", gin.WrapH(promhttp.Handler()))

	co.RegisterHealthzRoutes(group.Group("/healthz"))

	// pprof performance profiles
	if options.EnablePprof {
		pprof.RouteRegister(group, "debug/pprof")
	}

	v1 := group.Group("/v1")
	{
		v1.GET("", GetV1)
		v1.OPTIONS("", httputil.OptionsGet)
	}

	co.RegisterJobRoutes(v1.Group("/jobs"))
	co.RegisterBudgetRoutes(v1.Group("/budgets"))
	co.RegisterTransactionRoutes(v1.Group("/transactions"))
	co.RegisterUserRoutes(v1.Group("/users"))
}

type RootResponse struct {
	Links RootLinks `json:"links"`
}

type RootLinks struct {
	Healthz string `json:"healthz" example:"https://example.com/api/healthz"` // Healthz endpoint
	Version string `json:"version" example:"https://example.com/api/version"` // Endpoint returning the version of the backend
	Metrics string `json:"metrics" example:"https://example.com/api/metrics"` // Endpoint returning Prometheus metrics
	V1      string `json:"v1" example:"https://example.com/api/v1"`           // List endpoint for all v1 endpoints
}

// GetRoot returns the link list for the API root
func GetRoot(c *gin.Context) {
	url := httputil.BaseURL(c)

	c.JSON(http.StatusOK, RootResponse{
		Links: RootLinks{
			Healthz: url + "/healthz",
			Version: url + "/version",
			Metrics: url + "/metrics",
			V1:      url + "/v1",
		},
	})
}

type VersionResponse struct {
	Data VersionObject `json:"data"` // Data object for the version endpoint
}

type VersionObject struct {
	Version string `json:"version" example:"1.1.0"` // the running version of the backend
}

// GetVersion returns the API version object
func GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, VersionResponse{
		Data: VersionObject{
			Version: version,
		},
	})
}

type V1Response struct {
	Links V1Links `json:"links"` // Links for the v1 API
}

type V1Links struct {
	Jobs         string `json:"jobs" example:"https://example.com/api/v1/jobs"`                 // URL of the job list endpoint
	Budgets      string `json:"budgets" example:"https://example.com/api/v1/budgets"`           // URL of the budget endpoints
	Transactions string `json:"transactions" example:"https://example.com/api/v1/transactions"` // URL of the transaction endpoints
	Users        string `json:"users" example:"https://example.com/api/v1/users"`               // URL of the user endpoints
}

// GetV1 returns the link list for v1
func GetV1(c *gin.Context) {
	url := httputil.BaseURL(c)

	c.JSON(http.StatusOK, V1Response{
		Links: V1Links{
			Jobs:         url + "/v1/jobs",
			Budgets:      url + "/v1/budgets",
			Transactions: url + "/v1/transactions",
			Users:        url + "/v1/users",
		},
	})
}
