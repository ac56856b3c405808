// Package httpapi exposes the public HTTP surface: payments, transaction
// records, users and wallet auth, claims, ISCN registration, collections,
// prices and supply.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/likecoin/likecoin-api-public/internal/app/metrics"
	collectionsvc "github.com/likecoin/likecoin-api-public/internal/app/services/collection"
	iscnsvc "github.com/likecoin/likecoin-api-public/internal/app/services/iscn"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	paymentsvc "github.com/likecoin/likecoin-api-public/internal/app/services/payment"
	pricessvc "github.com/likecoin/likecoin-api-public/internal/app/services/prices"
	rewardsvc "github.com/likecoin/likecoin-api-public/internal/app/services/reward"
	subscriptionsvc "github.com/likecoin/likecoin-api-public/internal/app/services/subscription"
	supplysvc "github.com/likecoin/likecoin-api-public/internal/app/services/supply"
	userssvc "github.com/likecoin/likecoin-api-public/internal/app/services/users"
	"github.com/likecoin/likecoin-api-public/internal/app/system"
	"github.com/likecoin/likecoin-api-public/internal/middleware"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

// Config controls the HTTP listener and middleware chain.
type Config struct {
	Addr            string
	JWTSecret       []byte
	JWTIssuer       string
	TokenTTL        time.Duration
	AllowedOrigins  []string
	RateLimitRPS    int
	RateLimitBurst  int
	AdminToken      string
	SupplyCacheAge  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Services bundles the domain services the handlers dispatch to. All
// fields must be set before Router is built.
type Services struct {
	Payments      *paymentsvc.Service
	Ledger        *ledgersvc.Service
	Rewards       *rewardsvc.Service
	Users         *userssvc.Service
	ISCN          *iscnsvc.Service
	Subscriptions *subscriptionsvc.Service
	Collections   *collectionsvc.Service
	Prices        *pricessvc.Service
	Supply        *supplysvc.Service
}

// Server is the HTTP front end. It implements system.Service.
type Server struct {
	cfg    Config
	svcs   Services
	issuer *middleware.TokenIssuer
	log    *logger.Logger

	httpServer *http.Server
}

var _ system.Service = (*Server)(nil)

// New builds the server and its route tree.
func New(cfg Config, svcs Services, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("http")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS * 2
	}
	s := &Server{
		cfg:    cfg,
		svcs:   svcs,
		issuer: middleware.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
		log:    log,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the full route tree with the middleware chain applied.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Payments and transaction records.
	v1.HandleFunc("/payment", s.handlePay).Methods(http.MethodPost)
	v1.HandleFunc("/payment/multiple", s.handleMultiPay).Methods(http.MethodPost)
	v1.HandleFunc("/tx/id/{hash}", s.handleGetTx).Methods(http.MethodGet)
	v1.HandleFunc("/tx/id/{hash}/metadata", s.handleUpdateTxMetadata).Methods(http.MethodPost)
	v1.HandleFunc("/tx/history/addr/{addr}", s.handleTxHistory).Methods(http.MethodGet)

	// Users, wallet auth, social links.
	v1.HandleFunc("/users/new", s.handleRegisterUser).Methods(http.MethodPost)
	v1.HandleFunc("/users/id/{id}", s.handleGetUser).Methods(http.MethodGet)
	v1.HandleFunc("/users/addr/{addr}", s.handleGetUserByWallet).Methods(http.MethodGet)
	v1.HandleFunc("/users/challenge", s.handleChallenge).Methods(http.MethodPost)
	v1.HandleFunc("/users/login", s.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/users/self", s.handleGetSelf).Methods(http.MethodGet)
	v1.HandleFunc("/users/wallet/evm", s.handleLinkEVMWallet).Methods(http.MethodPost)
	v1.HandleFunc("/users/wallet/cosmos", s.handleLinkCosmosWallet).Methods(http.MethodPost)
	v1.HandleFunc("/users/social", s.handleLinkSocial).Methods(http.MethodPost)
	v1.HandleFunc("/users/social/{platform}", s.handleUnlinkSocial).Methods(http.MethodDelete)
	v1.HandleFunc("/users/id/{id}/social", s.handleListSocial).Methods(http.MethodGet)

	// Claims.
	v1.HandleFunc("/like/bonus/claim", s.handleClaimBonuses).Methods(http.MethodPost)
	v1.HandleFunc("/coupon/{code}", s.handleGetCoupon).Methods(http.MethodGet)
	v1.HandleFunc("/coupon/{code}/claim", s.handleClaimCoupon).Methods(http.MethodPost)
	v1.HandleFunc("/mission/list", s.handleListMissions).Methods(http.MethodGet)
	v1.HandleFunc("/mission/claim", s.handleClaimMission).Methods(http.MethodPost)

	// ISCN registration.
	v1.HandleFunc("/iscn/estimate", s.handleISCNEstimate).Methods(http.MethodPost)
	v1.HandleFunc("/iscn/upload", s.handleISCNUpload).Methods(http.MethodPost)
	v1.HandleFunc("/iscn/register", s.handleISCNRegister).Methods(http.MethodPost)
	v1.HandleFunc("/iscn/id/{id}", s.handleGetISCN).Methods(http.MethodGet)
	v1.HandleFunc("/iscn/id/{id}/token", s.handleRotateISCNToken).Methods(http.MethodPost)

	// Subscriptions.
	v1.HandleFunc("/subscription/activate", s.handleActivateSubscription).Methods(http.MethodPost)
	v1.HandleFunc("/subscription/cancel", s.handleCancelSubscription).Methods(http.MethodPost)

	// Collections.
	v1.HandleFunc("/collections", s.handleCreateCollection).Methods(http.MethodPost)
	v1.HandleFunc("/collections/{id}", s.handleGetCollection).Methods(http.MethodGet)
	v1.HandleFunc("/collections/{id}", s.handleUpdateCollection).Methods(http.MethodPut)
	v1.HandleFunc("/collections/{id}", s.handleDeleteCollection).Methods(http.MethodDelete)
	v1.HandleFunc("/collections/addr/{addr}", s.handleListCollections).Methods(http.MethodGet)

	// Misc (public, cacheable).
	v1.HandleFunc("/misc/price", s.handlePrice).Methods(http.MethodGet)
	v1.HandleFunc("/misc/totalsupply", s.handleTotalSupply).Methods(http.MethodGet)
	v1.HandleFunc("/misc/stats", s.handleAdminStats).Methods(http.MethodGet)
	v1.HandleFunc("/admin/users/{id}/blacklist", s.handleSetBlacklisted).Methods(http.MethodPost)

	skipPaths := []string{
		"/healthz",
		"/metrics",
		"/v1/users/new",
		"/v1/users/id",
		"/v1/users/addr",
		"/v1/users/challenge",
		"/v1/users/login",
		"/v1/coupon",
		"/v1/misc",
		"/v1/iscn",
		"/v1/tx",
		"/v1/payment",
		"/v1/collections",
		"/v1/admin",
	}

	auth := middleware.NewAuthMiddleware(s.cfg.JWTSecret, s.log, skipPaths)
	limiter := middleware.NewRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst, s.log)
	cors := middleware.NewCORSMiddleware(s.cfg.AllowedOrigins)

	// Auth runs before the limiter so authenticated requests are keyed by
	// user ID rather than the shared client IP bucket.
	var handler http.Handler = r
	handler = limiter.Handler(handler)
	handler = auth.Handler(handler)
	handler = metrics.InstrumentHandler(handler)
	handler = cors.Handler(handler)
	return handler
}

// Name implements system.Service.
func (s *Server) Name() string { return "http" }

// Start begins serving in the background. Listen errors after startup are
// logged, not returned.
func (s *Server) Start(_ context.Context) error {
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server terminated")
		}
	}()
	return nil
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
