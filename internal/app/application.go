// Package app wires configuration, storage, domain services and background
// workers into one startable unit.
package app

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/analytics"
	"github.com/likecoin/likecoin-api-public/internal/app/httpapi"
	"github.com/likecoin/likecoin-api-public/internal/app/poller"
	collectionsvc "github.com/likecoin/likecoin-api-public/internal/app/services/collection"
	iscnsvc "github.com/likecoin/likecoin-api-public/internal/app/services/iscn"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	paymentsvc "github.com/likecoin/likecoin-api-public/internal/app/services/payment"
	pricessvc "github.com/likecoin/likecoin-api-public/internal/app/services/prices"
	rewardsvc "github.com/likecoin/likecoin-api-public/internal/app/services/reward"
	subscriptionsvc "github.com/likecoin/likecoin-api-public/internal/app/services/subscription"
	supplysvc "github.com/likecoin/likecoin-api-public/internal/app/services/supply"
	userssvc "github.com/likecoin/likecoin-api-public/internal/app/services/users"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
	"github.com/likecoin/likecoin-api-public/internal/app/storage/memory"
	"github.com/likecoin/likecoin-api-public/internal/app/storage/postgres"
	"github.com/likecoin/likecoin-api-public/internal/app/system"
	"github.com/likecoin/likecoin-api-public/internal/arweave"
	"github.com/likecoin/likecoin-api-public/internal/chain"
	"github.com/likecoin/likecoin-api-public/internal/config"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/internal/httputil"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

const defaultPricesUpstream = "https://api.coingecko.com/api/v3"

// Stores groups the persistence interfaces every service draws from. All
// fields normally point at the same backend.
type Stores struct {
	Users       storage.UserStore
	Ledger      storage.LedgerStore
	Rewards     storage.RewardStore
	ISCN        storage.ISCNStore
	Collections storage.CollectionStore
	Transactor  storage.Transactor
}

// Application owns the wired service graph and its lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	manager *system.Manager
	stores  Stores
	closers []io.Closer
}

// New wires the application from configuration. An empty database DSN
// selects the in-memory store.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.New(logger.LoggingConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
	}

	a := &Application{
		cfg:     cfg,
		log:     log,
		manager: system.NewManager(),
	}

	if err := a.openStores(); err != nil {
		return nil, err
	}

	cosmosClient, evmClient, err := a.chainClients()
	if err != nil {
		return nil, err
	}

	var payoutSender rewardsvc.PayoutSender = disabledSender{}
	var msgSender iscnsvc.MsgSender = disabledSender{}
	if sender := a.cosmosSender(cosmosClient); sender != nil {
		payoutSender = sender
		msgSender = sender
	}

	publisher := analytics.NewPublisher(
		cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Channel, log.WithField("component", "analytics"))

	ledgerSvc := ledgersvc.New(a.stores.Ledger, a.stores.Transactor, cfg.Ledger.MetadataWindow,
		log.WithField("component", "ledger"))

	var broadcaster paymentsvc.RawBroadcaster = disabledEVM{}
	if evmClient != nil {
		broadcaster = evmClient
	}
	paymentSvc := paymentsvc.New(broadcaster, ledgerSvc, publisher, log.WithField("component", "payment"))

	rewardSvc := rewardsvc.New(a.stores.Users, a.stores.Rewards, a.stores.Transactor, payoutSender,
		log.WithField("component", "reward"))

	usersSvc := userssvc.New(a.stores.Users, log.WithField("component", "users"))

	var uploader iscnsvc.Uploader = disabledUploader{}
	if cfg.Arweave.GatewayURL != "" {
		uploader = arweave.NewClient(cfg.Arweave.GatewayURL, cfg.Arweave.Timeout)
	}
	iscnSvc := iscnsvc.New(a.stores.ISCN, uploader, msgSender, ledgerSvc, log.WithField("component", "iscn"))

	var billing subscriptionsvc.BillingGateway = disabledBilling{}
	if cfg.Billing.GatewayURL != "" {
		billing = subscriptionsvc.NewHTTPGateway(cfg.Billing.GatewayURL)
	}
	subscriptionSvc := subscriptionsvc.New(a.stores.Users, billing, log.WithField("component", "subscription"))

	collectionSvc := collectionsvc.New(a.stores.Collections, log.WithField("component", "collection"))

	pricesUpstream := cfg.Prices.UpstreamURL
	if pricesUpstream == "" {
		pricesUpstream = defaultPricesUpstream
	}
	pricesSvc := pricessvc.New(
		httputil.NewClient(httputil.ClientConfig{BaseURL: pricesUpstream}),
		pricessvc.Config{
			CoinID:       cfg.Prices.CoinID,
			TTL:          cfg.Prices.CacheTTL,
			StaleIfError: cfg.Prices.StaleTTL,
		},
		log.WithField("component", "prices"))

	var balances supplysvc.BalanceFetcher = disabledCosmos{}
	if cosmosClient != nil {
		balances = cosmosClient
	}
	supplySvc, err := supplysvc.New(supplysvc.Config{
		TotalMinted:     cfg.Supply.TotalMinted,
		ReservedWallets: cfg.Supply.ReservedWallets,
		TTL:             time.Duration(cfg.Supply.CacheMaxAge) * time.Second,
	}, balances, log.WithField("component", "supply"))
	if err != nil {
		return nil, fmt.Errorf("configure supply service: %w", err)
	}

	resolver := a.txResolver(cosmosClient, evmClient)
	txPoller := poller.New(a.stores.Ledger, ledgerSvc, resolver, log.WithField("component", "tx-poller"))

	httpServer := httpapi.New(httpapi.Config{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		JWTIssuer:       cfg.Auth.JWTIssuer,
		TokenTTL:        cfg.Auth.TokenLifetime,
		AllowedOrigins:  splitOrigins(cfg.Server.AllowedOrigins),
		RateLimitRPS:    cfg.Server.RateLimitRPS,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		AdminToken:      cfg.Auth.AdminToken,
		SupplyCacheAge:  time.Duration(cfg.Supply.CacheMaxAge) * time.Second,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, httpapi.Services{
		Payments:      paymentSvc,
		Ledger:        ledgerSvc,
		Rewards:       rewardSvc,
		Users:         usersSvc,
		ISCN:          iscnSvc,
		Subscriptions: subscriptionSvc,
		Collections:   collectionSvc,
		Prices:        pricesSvc,
		Supply:        supplySvc,
	}, log.WithField("component", "http"))

	for _, svc := range []system.Service{txPoller, subscriptionSvc, httpServer} {
		if err := a.manager.Register(svc); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Start brings up the background workers and the HTTP listener.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop shuts the services down in reverse start order and closes storage.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	for _, c := range a.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (a *Application) openStores() error {
	if a.cfg.Database.DSN == "" {
		a.log.Info("no database configured, using in-memory store")
		mem := memory.New()
		a.stores = Stores{
			Users:       mem,
			Ledger:      mem,
			Rewards:     mem,
			ISCN:        mem,
			Collections: mem,
			Transactor:  mem,
		}
		return nil
	}

	store, err := postgres.Open(a.cfg.Database.DSN, postgres.Options{
		MaxOpenConns: a.cfg.Database.MaxOpenConns,
		MaxIdleConns: a.cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, store)
	a.stores = Stores{
		Users:       store,
		Ledger:      store,
		Rewards:     store,
		ISCN:        store,
		Collections: store,
		Transactor:  store,
	}
	return nil
}

func (a *Application) chainClients() (*chain.CosmosClient, *chain.EVMClient, error) {
	var cosmosClient *chain.CosmosClient
	var evmClient *chain.EVMClient
	var err error

	if a.cfg.Chain.CosmosLCDURL != "" {
		cosmosClient, err = chain.NewCosmosClient(chain.CosmosConfig{
			LCDURL:  a.cfg.Chain.CosmosLCDURL,
			ChainID: a.cfg.Chain.CosmosChainID,
			Denom:   a.cfg.Chain.CosmosDenom,
			Timeout: a.cfg.Chain.RequestTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("configure cosmos client: %w", err)
		}
	}
	if a.cfg.Chain.EVMRPCURL != "" {
		evmClient, err = chain.NewEVMClient(chain.EVMConfig{
			RPCURL:  a.cfg.Chain.EVMRPCURL,
			Timeout: a.cfg.Chain.RequestTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("configure evm client: %w", err)
		}
	}
	return cosmosClient, evmClient, nil
}

// cosmosSender prepares the signing sender used for payouts and ISCN
// broadcasts. Returns nil when no signer key is configured.
func (a *Application) cosmosSender(client *chain.CosmosClient) *paymentsvc.CosmosSender {
	if client == nil || a.cfg.Chain.SignerPrivateKey == "" {
		return nil
	}
	signer, err := chain.NewSigner(a.cfg.Chain.SignerPrivateKey, a.cfg.Chain.CosmosChainID, "like")
	if err != nil {
		a.log.WithError(err).Error("invalid signer key, payouts disabled")
		return nil
	}
	return paymentsvc.NewCosmosSender(client, signer, a.log.WithField("component", "cosmos-sender"))
}

func (a *Application) txResolver(cosmosClient *chain.CosmosClient, evmClient *chain.EVMClient) poller.TxResolver {
	var cosmos poller.CosmosTxGetter = disabledCosmos{}
	if cosmosClient != nil {
		cosmos = cosmosClient
	}
	var evm poller.EVMReceiptGetter = disabledEVM{}
	if evmClient != nil {
		evm = evmClient
	}
	return poller.NewChainResolver(cosmos, evm, 0)
}

func splitOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// disabledCosmos stands in when no LCD endpoint is configured.
type disabledCosmos struct{}

func (disabledCosmos) GetTx(context.Context, string) (chain.TxStatus, error) {
	return chain.TxStatus{}, apperrors.Upstream("cosmos endpoint is not configured")
}

func (disabledCosmos) GetBalance(context.Context, string) (*big.Int, error) {
	return nil, apperrors.Upstream("cosmos endpoint is not configured")
}

// disabledEVM stands in when no EVM RPC endpoint is configured.
type disabledEVM struct{}

func (disabledEVM) SendRawTransaction(context.Context, string) (string, error) {
	return "", apperrors.Upstream("evm endpoint is not configured")
}

func (disabledEVM) GetTransactionReceipt(context.Context, string) (*chain.TransactionReceipt, error) {
	return nil, apperrors.Upstream("evm endpoint is not configured")
}

// disabledUploader stands in when no storage gateway is configured.
type disabledUploader struct{}

func (disabledUploader) Price(context.Context, int64) (*big.Int, error) {
	return nil, apperrors.Upstream("storage gateway is not configured")
}

func (disabledUploader) Upload(context.Context, []byte, string) (string, error) {
	return "", apperrors.Upstream("storage gateway is not configured")
}

// disabledSender stands in when no signing key is configured.
type disabledSender struct{}

func (disabledSender) Send(context.Context, string, int64, string) (string, error) {
	return "", apperrors.Upstream("signing wallet is not configured")
}

func (disabledSender) SendMsgs(context.Context, []chain.Msg, string) (string, error) {
	return "", apperrors.Upstream("signing wallet is not configured")
}

// disabledBilling stands in when no billing gateway is configured.
type disabledBilling struct{}

func (disabledBilling) Charge(context.Context, string, string) (string, error) {
	return "", apperrors.Upstream("billing gateway is not configured")
}

func (disabledBilling) Refund(context.Context, string, string) error {
	return apperrors.Upstream("billing gateway is not configured")
}
