package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds the global application configuration
var AppConfig *Config

// Config holds the application configuration
type Config struct {
	// memory, postgres or firestore
	StoreBackend string
	DatabaseURL  string

	// razorpay or stripe
	PaymentGateway        string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	StripeSecretKey       string
	StripeWebhookSecret   string

	// firebase or jwt
	AuthMode            string
	JWTSecret           string
	FirebaseProjectID   string
	FirebaseCredentials string

	// Server ports
	HTTPPort string
	GRPCPort string

	FrontendOrigin    string
	ReauthMaxAge      string
	ReconcileSchedule string
	LogLevel          string
	LogFormat         string

	// Optional: base URL for running remote HTTP integration tests (e.g., https://api.example.com)
	IntegrationBaseURL string
}

const (
	StoreMemory    = "memory"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"

	GatewayRazorpay = "razorpay"
	GatewayStripe   = "stripe"

	AuthFirebase = "firebase"
	AuthJWT      = "jwt"
)

var envVars = []struct {
	name    string
	envVar  string
	display string
}{
	{"StoreBackend", "STORE_BACKEND", "Store Backend"},
	{"DatabaseURL", "DATABASE_URL", "Database URL"},
	{"PaymentGateway", "PAYMENT_GATEWAY", "Payment Gateway"},
	{"RazorpayKeyID", "RAZORPAY_KEY_ID", "Razorpay Key ID"},
	{"RazorpayKeySecret", "RAZORPAY_KEY_SECRET", "Razorpay Key Secret"},
	{"RazorpayWebhookSecret", "RAZORPAY_WEBHOOK_SECRET", "Razorpay Webhook Secret"},
	{"StripeSecretKey", "STRIPE_SECRET_KEY", "Stripe Secret Key"},
	{"StripeWebhookSecret", "STRIPE_WEBHOOK_SECRET", "Stripe Webhook Secret"},
	{"AuthMode", "AUTH_MODE", "Auth Mode"},
	{"JWTSecret", "JWT_SECRET", "JWT Secret"},
	{"FirebaseProjectID", "FIREBASE_PROJECT_ID", "Firebase Project ID"},
	{"FirebaseCredentials", "FIREBASE_CREDENTIALS", "Firebase Credentials"},
	{"HTTPPort", "PORT", "HTTP Port"},
	{"GRPCPort", "GRPC_PORT", "gRPC Port"},
	{"FrontendOrigin", "FRONTEND_ORIGIN", "Frontend Origin"},
	{"ReauthMaxAge", "REAUTH_MAX_AGE", "Reauth Max Age"},
	{"ReconcileSchedule", "RECONCILE_SCHEDULE", "Reconcile Schedule"},
	{"LogLevel", "LOG_LEVEL", "Log Level"},
	{"LogFormat", "LOG_FORMAT", "Log Format"},
	{"IntegrationBaseURL", "INTEGRATION_BASE_URL", "Integration Base URL"},
}

var defaults = map[string]string{
	"StoreBackend":      StoreMemory,
	"PaymentGateway":    GatewayRazorpay,
	"AuthMode":          AuthJWT,
	"HTTPPort":          "8080",
	"GRPCPort":          "50051",
	"FrontendOrigin":    "*",
	"ReauthMaxAge":      "5m",
	"ReconcileSchedule": "@every 5m",
	"LogLevel":          "info",
	"LogFormat":         "json",
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{}

	// Try to load .env file from current directory and parent directories
	currentDir, _ := os.Getwd()
	for currentDir != "/" {
		envPath := filepath.Join(currentDir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			err = godotenv.Load(envPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load .env file: %v", err)
			}
			break
		}
		currentDir = filepath.Dir(currentDir)
	}

	v := reflect.ValueOf(config).Elem()
	for _, e := range envVars {
		value := os.Getenv(e.envVar)
		if value == "" {
			value = defaults[e.name]
		}
		v.FieldByName(e.name).SetString(value)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	var missing []string
	need := func(name string) {
		for _, e := range envVars {
			if e.name == name && reflect.ValueOf(c).Elem().FieldByName(name).String() == "" {
				missing = append(missing, e.display)
			}
		}
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		need("DatabaseURL")
	case StoreFirestore:
		need("FirebaseProjectID")
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.PaymentGateway {
	case GatewayRazorpay:
		need("RazorpayKeyID")
		need("RazorpayKeySecret")
	case GatewayStripe:
		need("StripeSecretKey")
	default:
		return fmt.Errorf("invalid PAYMENT_GATEWAY %q", c.PaymentGateway)
	}

	switch c.AuthMode {
	case AuthJWT:
		need("JWTSecret")
	case AuthFirebase:
		need("FirebaseProjectID")
	default:
		return fmt.Errorf("invalid AUTH_MODE %q", c.AuthMode)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variable: %s", missing[0])
	}
	if _, err := time.ParseDuration(c.ReauthMaxAge); err != nil {
		return fmt.Errorf("invalid REAUTH_MAX_AGE %q: %v", c.ReauthMaxAge, err)
	}
	return nil
}

// ReauthWindow is how old a credential may be before sensitive operations
// require the user to sign in again.
func (c *Config) ReauthWindow() time.Duration {
	d, err := time.ParseDuration(c.ReauthMaxAge)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// UsesFirebase reports whether any component needs the Firebase Admin SDK.
func (c *Config) UsesFirebase() bool {
	return c.AuthMode == AuthFirebase || c.StoreBackend == StoreFirestore
}
