package web

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"thirdcoast.systems/relay/cmd/web/handlers/api/job_api"
	"thirdcoast.systems/relay/cmd/web/handlers/api/owner_api"
	"thirdcoast.systems/relay/cmd/web/handlers/api/share_api"
	"thirdcoast.systems/relay/cmd/web/handlers/api/stream_api"
	"thirdcoast.systems/relay/cmd/web/handlers/common"
	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/queue"
	"thirdcoast.systems/relay/internal/store"
	"thirdcoast.systems/relay/internal/transcode"
)

type Webserver struct {
	*echo.Echo
	store      store.Store
	channel    blobstore.Channel
	manager    *queue.Manager
	transcoder *transcode.Transcoder
}

// Deps are the services the delivery server fronts.
type Deps struct {
	Store      store.Store
	Channel    blobstore.Channel
	Manager    *queue.Manager
	Transcoder *transcode.Transcoder
}

func NewWebserver(deps Deps) (*Webserver, error) {
	e := echo.New()

	webserver := &Webserver{
		Echo:       e,
		store:      deps.Store,
		channel:    deps.Channel,
		manager:    deps.Manager,
		transcoder: deps.Transcoder,
	}

	if err := webserver.registerRoutes(); err != nil {
		return nil, err
	}

	if err := webserver.setupMiddleware(); err != nil {
		return nil, err
	}

	return webserver, nil
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// streaming responses are neither compressed nor logged per chunk
func isStreamPath(c echo.Context) bool {
	switch c.Path() {
	case "/stream/:artifact_id", "/jobs/:id/events":
		return true
	default:
		return false
	}
}

func (s *Webserver) setupMiddleware() error {
	s.HideBanner = true
	s.HidePort = true
	s.HTTPErrorHandler = common.HTTPErrorHandler
	s.Validator = &requestValidator{validate: validator.New()}

	s.Use(middleware.BodyLimit("2M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:   5,
		Skipper: isStreamPath,
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/healthz", "/metrics":
				return true
			default:
				return false
			}
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))

	return nil
}

func (s *Webserver) registerRoutes() error {
	s.POST("/jobs", job_api.HandleCreate(s.manager))
	s.GET("/jobs", job_api.HandleList(s.manager))
	s.GET("/jobs/:id", job_api.HandleGet(s.manager))
	s.GET("/jobs/:id/events", job_api.HandleEvents(s.manager))
	s.POST("/jobs/:id/:action", job_api.HandleAction(s.manager))

	s.GET("/owners/:owner_id/stats", owner_api.HandleStats(s.manager))
	s.PUT("/owners/:owner_id/tier", owner_api.HandleSetTier(s.manager))

	stream := stream_api.HandleStream(s.store, s.channel, s.transcoder)
	s.GET("/stream/:artifact_id", stream)
	s.HEAD("/stream/:artifact_id", stream)

	s.POST("/artifacts/:id/share", share_api.HandleCreate(s.store))
	s.GET("/s/:code", share_api.HandleRedirect(s.store))

	s.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check
	s.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return nil
}
