package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	"github.com/smallbiznis/flagship/internal/config"
	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
	"github.com/smallbiznis/flagship/internal/evaluation"
	flagdomain "github.com/smallbiznis/flagship/internal/flag/domain"
	"github.com/smallbiznis/flagship/internal/observability"
	obsmiddleware "github.com/smallbiznis/flagship/internal/observability/logger"
	obstracing "github.com/smallbiznis/flagship/internal/observability/tracing"
	"github.com/smallbiznis/flagship/internal/reconcile"
	userdomain "github.com/smallbiznis/flagship/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	appSvc         appdomain.Service
	environmentSvc envdomain.Service
	flagSvc        flagdomain.Service
	userSvc        userdomain.Service
	evaluationSvc  evaluation.Service
	auditSvc       auditdomain.Service
	reconciler     *reconcile.Reconciler
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	AppSvc         appdomain.Service
	EnvironmentSvc envdomain.Service
	FlagSvc        flagdomain.Service
	UserSvc        userdomain.Service
	EvaluationSvc  evaluation.Service
	AuditSvc       auditdomain.Service
	Reconciler     *reconcile.Reconciler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		appSvc:         p.AppSvc,
		environmentSvc: p.EnvironmentSvc,
		flagSvc:        p.FlagSvc,
		userSvc:        p.UserSvc,
		evaluationSvc:  p.EvaluationSvc,
		auditSvc:       p.AuditSvc,
		reconciler:     p.Reconciler,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", MaxBodyBytes(defaultMaxBodyBytes), NoCache())

	// -------- Apps --------
	api.GET("/apps", s.ListApps)
	api.POST("/apps", s.CreateApp)
	api.GET("/apps/:id", s.GetAppByID)
	api.PATCH("/apps/:id", s.UpdateApp)

	// -------- Environments --------
	api.GET("/apps/:id/environments", s.ListEnvironments)
	api.POST("/apps/:id/environments", s.CreateEnvironment)
	api.GET("/environments/:id", s.GetEnvironmentByID)
	api.DELETE("/environments/:id", s.DeleteEnvironment)

	// -------- Flags --------
	api.GET("/flags", s.ListFlags)
	api.GET("/apps/:id/flags", s.ListAppFlags)
	api.POST("/apps/:id/flags", s.CreateFlag)
	api.GET("/apps/:id/flags/:name", s.GetFlagByName)
	api.GET("/flags/:id", s.GetFlagByID)
	api.PATCH("/flags/:id", s.UpdateFlag)
	api.DELETE("/flags/:id", s.DeleteFlag)
	api.POST("/flags/:id/environments/:envId/toggle", s.ToggleFlag)
	api.PUT("/flags/:id/environments/:envId", s.UpdateFlagSetting)

	// -------- Evaluation --------
	api.POST("/evaluate", s.Evaluate)
	api.POST("/evaluate/all", s.EvaluateAll)

	// -------- Users --------
	api.GET("/apps/:id/users", s.ListUsers)
	api.POST("/apps/:id/users", s.IdentifyUser)
	api.GET("/apps/:id/users/:externalId", s.GetUserByExternalID)
	api.GET("/users/:id", s.GetUserByID)
	api.PATCH("/users/:id", s.UpdateUser)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", MaxBodyBytes(defaultMaxBodyBytes), NoCache())

	admin.GET("/audit-logs", s.ListAuditLogs)
	admin.POST("/apps/:id/ensure-production", s.EnsureProduction)
	admin.POST("/reconcile", s.RunReconcile)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
