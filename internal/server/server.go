package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ownaday/daybook/internal/claim"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	"github.com/ownaday/daybook/internal/clock"
	"github.com/ownaday/daybook/internal/config"
	"github.com/ownaday/daybook/internal/events"
	"github.com/ownaday/daybook/internal/gift"
	giftdomain "github.com/ownaday/daybook/internal/gift/domain"
	"github.com/ownaday/daybook/internal/integrity"
	"github.com/ownaday/daybook/internal/ledger"
	"github.com/ownaday/daybook/internal/listing"
	listingdomain "github.com/ownaday/daybook/internal/listing/domain"
	"github.com/ownaday/daybook/internal/observability"
	obsmiddleware "github.com/ownaday/daybook/internal/observability/logger"
	obsmetrics "github.com/ownaday/daybook/internal/observability/metrics"
	obstracing "github.com/ownaday/daybook/internal/observability/tracing"
	"github.com/ownaday/daybook/internal/owner"
	"github.com/ownaday/daybook/internal/payment"
	"github.com/ownaday/daybook/internal/payment/webhook"
	"github.com/ownaday/daybook/internal/transfer"
	transferdomain "github.com/ownaday/daybook/internal/transfer/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	integrity.Module,
	fx.Provide(registerGin),
	events.Module,
	owner.Module,
	claim.Module,
	ledger.Module,
	listing.Module,
	gift.Module,
	transfer.Module,
	payment.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
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

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	claimSvc    claimdomain.Service
	giftSvc     giftdomain.Service
	listingSvc  listingdomain.Service
	transferSvc transferdomain.Service
	webhookSvc  *webhook.Service
	signer      *integrity.Signer
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	ClaimSvc    claimdomain.Service
	GiftSvc     giftdomain.Service
	ListingSvc  listingdomain.Service
	TransferSvc transferdomain.Service
	WebhookSvc  *webhook.Service
	Signer      *integrity.Signer
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		claimSvc:    p.ClaimSvc,
		giftSvc:     p.GiftSvc,
		listingSvc:  p.ListingSvc,
		transferSvc: p.TransferSvc,
		webhookSvc:  p.WebhookSvc,
		signer:      p.Signer,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payment callbacks --------
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)

	// -------- Days --------
	api.GET("/days/:day", s.GetDay)

	// -------- Claims --------
	api.GET("/claims/:day/verify", s.VerifyClaim)
	api.POST("/claims/:day/transfer", s.TransferClaim)

	// -------- Transfer codes --------
	api.POST("/transfer-codes", s.IssueTransferCode)
	api.POST("/transfer-codes/revoke", s.RevokeTransferCode)

	// -------- Gifts --------
	api.POST("/gifts", s.MintGiftCode)
	api.POST("/gifts/redeem", s.RedeemGiftCode)

	// -------- Listings --------
	api.POST("/listings", s.OpenListing)
	api.POST("/listings/:id/cancel", s.CancelListing)
}
