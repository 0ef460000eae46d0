package server

import (
	"context"
	"net/http"
	"time"

	"cardshop/internal/auth"
	"cardshop/internal/config"
	"cardshop/internal/logger"
	"cardshop/internal/purchase"
	"cardshop/internal/user"
	"cardshop/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const shutdownTimeout = 10 * time.Second

type Handlers struct {
	User     *user.Handler
	Wallet   *wallet.Handler
	Purchase *purchase.Handler
	// Mail is optional; without it the queue endpoint is not mounted.
	Mail QueueInspector
}

type Server struct {
	router   *gin.Engine
	config   *config.Config
	limiters []*RateLimiter
}

func New(cfg *config.Config, h Handlers) *Server {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestLoggingMiddleware(),
		MetricsMiddleware(),
		corsMiddleware(cfg.CORSOrigins),
	)

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	SetupSwagger(router, cfg.PublicBaseURL)

	purchaseLimiter := NewRateLimiter("purchase", cfg.RateLimitRPS, cfg.RateLimitBurst)
	// Providers deliver from a handful of addresses, so webhooks get more room.
	webhookLimiter := NewRateLimiter("webhook", cfg.RateLimitRPS*10, cfg.RateLimitBurst*10)

	router.POST("/webhook/payment", webhookLimiter.Middleware(), h.Purchase.Webhook)
	router.GET("/wallet/purchase/methods", h.Purchase.Methods)
	router.GET("/wallet/purchase/return", h.Purchase.Return)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", h.User.GetMe)
		protected.DELETE("/me", h.User.DeleteMe)
		protected.GET("/wallet", h.Wallet.GetBalances)
		protected.GET("/wallet/history", h.Wallet.ListHistory)
		protected.POST("/wallet/purchase/initiate", purchaseLimiter.Middleware(), h.Purchase.Initiate)
		protected.GET("/wallet/purchase/:id/status", h.Purchase.Status)
		protected.GET("/wallet/purchases", h.Purchase.List)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.DELETE("/users/:userID", h.User.Delete)
		admin.POST("/wallets/:userID/adjust", h.Wallet.Adjust)
		admin.GET("/wallets/:userID/reconcile", h.Wallet.Reconcile)
		if h.Mail != nil {
			admin.GET("/email/queue", EmailQueue(h.Mail))
		}
	}

	return &Server{
		router:   router,
		config:   cfg,
		limiters: []*RateLimiter{purchaseLimiter, webhookLimiter},
	}
}

// Close releases the background work owned by the router. Run calls it on
// shutdown.
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Stop()
	}
}

func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
