package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/verigate/verigate/internal/config"
	gatewaydomain "github.com/verigate/verigate/internal/gateway/domain"
	integrationdomain "github.com/verigate/verigate/internal/integration/domain"
	ledgerdomain "github.com/verigate/verigate/internal/ledger/domain"
	querylogdomain "github.com/verigate/verigate/internal/querylog/domain"
	"github.com/verigate/verigate/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	gatewaySvc     gatewaydomain.Service
	ledgerSvc      ledgerdomain.Service
	queryLogSvc    querylogdomain.Service
	integrationSvc integrationdomain.Service
	lookupLimiter  *ratelimit.LookupLimiter
}

type Params struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	GatewaySvc     gatewaydomain.Service
	LedgerSvc      ledgerdomain.Service
	QueryLogSvc    querylogdomain.Service
	IntegrationSvc integrationdomain.Service
	LookupLimiter  *ratelimit.LookupLimiter `optional:"true"`
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		gatewaySvc:     p.GatewaySvc,
		ledgerSvc:      p.LedgerSvc,
		queryLogSvc:    p.QueryLogSvc,
		integrationSvc: p.IntegrationSvc,
		lookupLimiter:  p.LookupLimiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(RequestLogMiddleware(s.log))

	officer := api.Group("")
	officer.Use(s.OfficerRequired())
	officer.POST("/lookups", s.LookupRateLimit(), s.Invoke)
	officer.GET("/queries", s.ListQueries)
	officer.GET("/ledger", s.ListLedger)
	officer.GET("/balance", s.GetBalance)

	api.GET("/officers/:id/balance", s.GetOfficerBalance)
	api.POST("/officers/:id/credits", s.CreditOfficer)

	api.GET("/integrations", s.ListIntegrations)
	api.POST("/integrations", s.CreateIntegration)
	api.PATCH("/integrations/:id/status", s.SetIntegrationStatus)
	api.GET("/integrations/routes", s.ListRoutes)
	api.POST("/integrations/routes", s.BindOperation)
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// Module wires the HTTP surface.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)
