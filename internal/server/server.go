package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/routepay/internal/config"
	"github.com/smallbiznis/routepay/internal/delivery"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	"github.com/smallbiznis/routepay/internal/driver"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	"github.com/smallbiznis/routepay/internal/geocode"
	"github.com/smallbiznis/routepay/internal/lock"
	"github.com/smallbiznis/routepay/internal/observability"
	obsmiddleware "github.com/smallbiznis/routepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/routepay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/routepay/internal/observability/tracing"
	"github.com/smallbiznis/routepay/internal/payroll"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	"github.com/smallbiznis/routepay/internal/providers"
	"github.com/smallbiznis/routepay/internal/ratelimit"
	"github.com/smallbiznis/routepay/internal/rating"
	"github.com/smallbiznis/routepay/internal/reference"
	referencedomain "github.com/smallbiznis/routepay/internal/reference/domain"
	"github.com/smallbiznis/routepay/internal/route"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	"github.com/smallbiznis/routepay/internal/upload"
	uploaddomain "github.com/smallbiznis/routepay/internal/upload/domain"
	"github.com/smallbiznis/routepay/internal/validate"
	validatedomain "github.com/smallbiznis/routepay/internal/validate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var Module = fx.Module("http.server",
	lock.Module,
	ratelimit.Module,
	providers.Module,
	driver.Module,
	route.Module,
	delivery.Module,
	rating.Module,
	geocode.Module,
	payroll.Module,
	upload.Module,
	validate.Module,
	reference.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

// RunHTTP binds the engine to the configured address for the app lifetime.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	uploadSvc    uploaddomain.Service
	payrollSvc   payrolldomain.Service
	deliverySvc  deliverydomain.Service
	validateSvc  validatedomain.Service
	referenceSvc referencedomain.Service
	driverSvc    driverdomain.Service
	routeSvc     routedomain.Service

	uploadLimiter ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin *gin.Engine
	Cfg config.Config
	Log *zap.Logger

	UploadSvc    uploaddomain.Service
	PayrollSvc   payrolldomain.Service
	DeliverySvc  deliverydomain.Service
	ValidateSvc  validatedomain.Service
	ReferenceSvc referencedomain.Service
	DriverSvc    driverdomain.Service
	RouteSvc     routedomain.Service

	UploadLimiter ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		uploadSvc:    p.UploadSvc,
		payrollSvc:   p.PayrollSvc,
		deliverySvc:  p.DeliverySvc,
		validateSvc:  p.ValidateSvc,
		referenceSvc: p.ReferenceSvc,
		driverSvc:    p.DriverSvc,
		routeSvc:     p.RouteSvc,

		uploadLimiter: p.UploadLimiter,
	}

	svc.registerDriverRoutes()
	svc.registerReferenceRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerDriverRoutes() {
	drivers := s.engine.Group("/drivers/:driverCode")

	drivers.POST("/uploads", s.UploadRateLimit(), s.UploadLimit(), s.UploadManifest)
	drivers.DELETE("/uploads", s.DeleteUploads)

	drivers.GET("/payroll", s.ListDriverPayroll)
	drivers.PUT("/payroll/:periodKey/deduction", s.UpdateDeduction)
}

func (s *Server) registerReferenceRoutes() {
	s.engine.GET("/drivers", s.ListDrivers)
	s.engine.POST("/drivers", s.CreateDriver)
	s.engine.GET("/drivers/:driverCode", s.GetDriver)
	s.engine.PATCH("/drivers/:driverCode", s.UpdateDriver)
	s.engine.DELETE("/drivers/:driverCode", s.DeleteDriver)

	s.engine.GET("/routes", s.ListRoutes)
	s.engine.PUT("/routes", s.UpsertRoute)
	s.engine.GET("/routes/:routeCode", s.GetRoute)
	s.engine.DELETE("/routes/:routeCode", s.DeleteRoute)
}

func (s *Server) registerAdminRoutes() {
	s.engine.GET("/deliveries", s.ListDeliveries)

	s.engine.POST("/payroll/recalculate", s.RecalculatePayroll)
	s.engine.POST("/validate", s.ValidateAddresses)
	s.engine.POST("/reference/sync", s.SyncReference)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
