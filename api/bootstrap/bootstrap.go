package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/offboardpro/offboardpro/api/auth"
	"github.com/offboardpro/offboardpro/api/config"
	"github.com/offboardpro/offboardpro/api/database"
	"github.com/offboardpro/offboardpro/api/grpcserver"
	accountapp "github.com/offboardpro/offboardpro/api/services/account/app"
	billingapp "github.com/offboardpro/offboardpro/api/services/billing/app"
	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
	razorpaygw "github.com/offboardpro/offboardpro/api/services/billing/gateway/razorpay"
	stripegw "github.com/offboardpro/offboardpro/api/services/billing/gateway/stripe"
	entapp "github.com/offboardpro/offboardpro/api/services/entitlement/app"
	"github.com/offboardpro/offboardpro/api/services/entitlement/observer"
	trackerapp "github.com/offboardpro/offboardpro/api/services/tracker/app"
	"github.com/offboardpro/offboardpro/api/store"
	fsstore "github.com/offboardpro/offboardpro/api/store/firestore"
	"github.com/offboardpro/offboardpro/api/store/memory"
	"github.com/offboardpro/offboardpro/api/store/postgres"
	"github.com/offboardpro/offboardpro/api/websocket"
)

// App is the wired process: one store, one gateway, the services on top of
// them and the live entitlement fan-out.
type App struct {
	Config   *config.Config
	Store    store.Store
	Gateway  gw.PaymentGateway
	Verifier auth.TokenVerifier
	Users    auth.UserAdmin

	Entitlements entapp.Service
	Billing      billingapp.Service
	Tracker      trackerapp.Service
	Account      accountapp.Service

	Observer *observer.Observer
	Hub      *websocket.Hub
	GRPC     *grpcserver.Server
}

var app *App
var initOnce sync.Once
var initErr error

// NewApp wires the services over already-built infrastructure.
func NewApp(cfg *config.Config, st store.Store, g gw.PaymentGateway, v auth.TokenVerifier, users auth.UserAdmin) *App {
	ents := entapp.NewService(st)
	obs := observer.New(st)
	gs := grpcserver.New()
	obs.OnFeedState(gs.SetFeedState)
	return &App{
		Config:       cfg,
		Store:        st,
		Gateway:      g,
		Verifier:     v,
		Users:        users,
		Entitlements: ents,
		Billing:      billingapp.NewService(g, st, ents),
		Tracker:      trackerapp.NewService(st, ents),
		Account:      accountapp.NewService(st, ents, users, cfg.ReauthWindow()),
		Observer:     obs,
		Hub:          websocket.NewHub(obs, cfg.FrontendOrigin),
		GRPC:         gs,
	}
}

// Init loads config, opens the configured store and gateway, and wires services.
func Init() error {
	// If an app has already been injected (e.g., tests), do not override or init heavy deps.
	if app != nil {
		return nil
	}
	var err error
	if config.AppConfig == nil {
		config.AppConfig, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := config.AppConfig
	ctx := context.Background()

	var fb *firebase.App
	if cfg.UsesFirebase() {
		var opts []option.ClientOption
		if cfg.FirebaseCredentials != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentials))
		}
		fb, err = firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize firebase: %w", err)
		}
	}

	st, err := openStore(ctx, cfg, fb)
	if err != nil {
		return err
	}

	var g gw.PaymentGateway
	switch cfg.PaymentGateway {
	case config.GatewayStripe:
		stripegw.SetKey(cfg.StripeSecretKey)
		g = stripegw.New(cfg.StripeWebhookSecret)
	default:
		g = razorpaygw.New(razorpaygw.Config{
			KeyID:         cfg.RazorpayKeyID,
			KeySecret:     cfg.RazorpayKeySecret,
			WebhookSecret: cfg.RazorpayWebhookSecret,
		})
	}

	var v auth.TokenVerifier
	var users auth.UserAdmin
	switch cfg.AuthMode {
	case config.AuthFirebase:
		client, err := fb.Auth(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize firebase auth: %w", err)
		}
		fa := auth.NewFirebaseAuth(client)
		v, users = fa, fa
	default:
		v, users = auth.NewJWTVerifier(cfg.JWTSecret), auth.NoopAdmin{}
	}

	app = NewApp(cfg, st, g, v, users)
	slog.Info("bootstrap complete", "store", cfg.StoreBackend, "gateway", g.Name(), "auth", cfg.AuthMode)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, fb *firebase.App) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		if err := database.Initialize(); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return postgres.New(database.GetDBx(), cfg.DatabaseURL), nil
	case config.StoreFirestore:
		client, err := fb.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firestore: %w", err)
		}
		return fsstore.New(client), nil
	default:
		slog.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	}
}

func Get() *App { return app }

// Set allows tests to inject a wired app.
func Set(a *App) { app = a }

// Ensure runs Init() once per process and returns any initialization error.
func Ensure() error {
	initOnce.Do(func() {
		initErr = Init()
	})
	return initErr
}
