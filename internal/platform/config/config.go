package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix = "API_"

	defaultPort            = 8080
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 15 * time.Second

	defaultCatalogTimeout = 5 * time.Second

	defaultVATRatePercent        = 27
	defaultShippingBaseRate      = 1990
	defaultFreeShippingThreshold = 50000
	defaultWeightThresholdGrams  = 5000
	defaultSurchargePerKg        = 500

	defaultIdempotencyTTL          = 24 * time.Hour
	defaultIdempotencyCleanupEvery = time.Hour
	defaultIdempotencyCleanupBatch = 250

	defaultBankAccountHolder = "CSZ Tuzvedelmi Kft."
	defaultBankName          = "OTP Bank"
	defaultBankIBAN          = "HU12 1234 5678 9012 3456 7890 1234"
	defaultBankBIC           = "OTPVHUHB"
)

// Config aggregates all runtime configuration for the API service.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Catalog     CatalogConfig
	Stripe      StripeConfig
	Pricing     PricingConfig
	Checkout    CheckoutConfig
	Idempotency IdempotencyConfig
	CORS        CORSConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirestoreConfig identifies the Firestore project backing persistence.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig identifies the Pub/Sub project and fulfillment topic.
type PubSubConfig struct {
	ProjectID        string
	FulfillmentTopic string
}

// CatalogConfig points at the CMS REST API used for price lookups.
type CatalogConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// StripeConfig carries the PSP credentials.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// PricingConfig carries tax and shipping parameters. Amounts are HUF without
// minor units, weights are grams.
type PricingConfig struct {
	VATRatePercent        int64
	ShippingBaseRate      int64
	FreeShippingThreshold int64
	WeightThresholdGrams  int64
	SurchargePerKg        int64
}

// CheckoutConfig carries the storefront redirect targets for Stripe sessions
// and the bank account shown on bank-transfer orders.
type CheckoutConfig struct {
	SuccessURL  string
	CancelURL   string
	BankAccount BankAccountConfig
}

// BankAccountConfig holds the wire details customers pay bank-transfer
// orders to.
type BankAccountConfig struct {
	AccountHolder string
	BankName      string
	IBAN          string
	BIC           string
}

// IdempotencyConfig controls retention of replayable responses.
type IdempotencyConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	CleanupBatch    int
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string
}

// ValidationError aggregates the configuration problems found during Load.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "config: invalid configuration"
	}
	return "config: " + strings.Join(e.Issues, "; ")
}

// Option customises the Load behaviour.
type Option func(*loader)

type loader struct {
	lookup  func(string) (string, bool)
	envFile string
	issues  []string
}

// WithLookup overrides the environment lookup, primarily for tests.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(l *loader) {
		if lookup != nil {
			l.lookup = lookup
		}
	}
}

// WithEnvFile loads KEY=VALUE pairs from the given file before reading the
// environment. Missing files are ignored.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = strings.TrimSpace(path)
	}
}

// Load reads, defaults, and validates the service configuration.
func Load(opts ...Option) (Config, error) {
	l := &loader{lookup: os.LookupEnv}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	if l.envFile != "" {
		fileVars, err := parseEnvFile(l.envFile)
		if err != nil {
			return Config{}, err
		}
		if len(fileVars) > 0 {
			base := l.lookup
			l.lookup = func(key string) (string, bool) {
				if value, ok := base(key); ok {
					return value, true
				}
				value, ok := fileVars[key]
				return value, ok
			}
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            l.intValue("PORT", defaultPort),
			ReadTimeout:     l.durationValue("READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    l.durationValue("WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     l.durationValue("IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: l.durationValue("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    l.stringValue("FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: l.stringValue("FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        l.stringValue("PUBSUB_PROJECT_ID", ""),
			FulfillmentTopic: l.stringValue("PUBSUB_FULFILLMENT_TOPIC", "order-fulfillment"),
		},
		Catalog: CatalogConfig{
			BaseURL:  l.stringValue("CATALOG_BASE_URL", ""),
			APIToken: l.stringValue("CATALOG_API_TOKEN", ""),
			Timeout:  l.durationValue("CATALOG_TIMEOUT", defaultCatalogTimeout),
		},
		Stripe: StripeConfig{
			APIKey:        l.stringValue("STRIPE_API_KEY", ""),
			WebhookSecret: l.stringValue("STRIPE_WEBHOOK_SECRET", ""),
		},
		Pricing: PricingConfig{
			VATRatePercent:        l.int64Value("VAT_RATE_PERCENT", defaultVATRatePercent),
			ShippingBaseRate:      l.int64Value("SHIPPING_BASE_RATE", defaultShippingBaseRate),
			FreeShippingThreshold: l.int64Value("FREE_SHIPPING_THRESHOLD", defaultFreeShippingThreshold),
			WeightThresholdGrams:  l.int64Value("WEIGHT_THRESHOLD_GRAMS", defaultWeightThresholdGrams),
			SurchargePerKg:        l.int64Value("SHIPPING_SURCHARGE_PER_KG", defaultSurchargePerKg),
		},
		Checkout: CheckoutConfig{
			SuccessURL: l.stringValue("CHECKOUT_SUCCESS_URL", ""),
			CancelURL:  l.stringValue("CHECKOUT_CANCEL_URL", ""),
			BankAccount: BankAccountConfig{
				AccountHolder: l.stringValue("BANK_ACCOUNT_HOLDER", defaultBankAccountHolder),
				BankName:      l.stringValue("BANK_NAME", defaultBankName),
				IBAN:          l.stringValue("BANK_IBAN", defaultBankIBAN),
				BIC:           l.stringValue("BANK_BIC", defaultBankBIC),
			},
		},
		Idempotency: IdempotencyConfig{
			TTL:             l.durationValue("IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: l.durationValue("IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyCleanupEvery),
			CleanupBatch:    l.intValue("IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyCleanupBatch),
		},
		CORS: CORSConfig{
			AllowedOrigins: l.listValue("CORS_ALLOWED_ORIGINS"),
		},
	}

	l.validate(cfg)

	if len(l.issues) > 0 {
		sort.Strings(l.issues)
		return Config{}, &ValidationError{Issues: l.issues}
	}
	return cfg, nil
}

func (l *loader) validate(cfg Config) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		l.addIssue("API_PORT must be between 1 and 65535")
	}
	if cfg.Firestore.ProjectID == "" && cfg.Firestore.EmulatorHost == "" {
		l.addIssue("API_FIRESTORE_PROJECT_ID is required")
	}
	if cfg.Catalog.BaseURL == "" {
		l.addIssue("API_CATALOG_BASE_URL is required")
	}
	if cfg.Stripe.APIKey == "" {
		l.addIssue("API_STRIPE_API_KEY is required")
	}
	if cfg.Stripe.WebhookSecret == "" {
		l.addIssue("API_STRIPE_WEBHOOK_SECRET is required")
	}
	if cfg.Checkout.SuccessURL == "" {
		l.addIssue("API_CHECKOUT_SUCCESS_URL is required")
	}
	if cfg.Checkout.CancelURL == "" {
		l.addIssue("API_CHECKOUT_CANCEL_URL is required")
	}
	if cfg.Pricing.VATRatePercent < 0 || cfg.Pricing.VATRatePercent >= 100 {
		l.addIssue("API_VAT_RATE_PERCENT must be between 0 and 99")
	}
	if cfg.Pricing.ShippingBaseRate < 0 {
		l.addIssue("API_SHIPPING_BASE_RATE must not be negative")
	}
	if cfg.Pricing.FreeShippingThreshold < 0 {
		l.addIssue("API_FREE_SHIPPING_THRESHOLD must not be negative")
	}
	if cfg.Pricing.WeightThresholdGrams < 0 {
		l.addIssue("API_WEIGHT_THRESHOLD_GRAMS must not be negative")
	}
	if cfg.Pricing.SurchargePerKg < 0 {
		l.addIssue("API_SHIPPING_SURCHARGE_PER_KG must not be negative")
	}
}

func (l *loader) addIssue(issue string) {
	l.issues = append(l.issues, issue)
}

func (l *loader) rawValue(key string) (string, bool) {
	value, ok := l.lookup(envPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (l *loader) stringValue(key, fallback string) string {
	if value, ok := l.rawValue(key); ok && value != "" {
		return value
	}
	return fallback
}

func (l *loader) intValue(key string, fallback int) int {
	value, ok := l.rawValue(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		l.addIssue(fmt.Sprintf("%s%s must be an integer", envPrefix, key))
		return fallback
	}
	return parsed
}

func (l *loader) int64Value(key string, fallback int64) int64 {
	value, ok := l.rawValue(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		l.addIssue(fmt.Sprintf("%s%s must be an integer", envPrefix, key))
		return fallback
	}
	return parsed
}

func (l *loader) durationValue(key string, fallback time.Duration) time.Duration {
	value, ok := l.rawValue(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		l.addIssue(fmt.Sprintf("%s%s must be a duration such as 30s or 5m", envPrefix, key))
		return fallback
	}
	return parsed
}

func (l *loader) listValue(key string) []string {
	value, ok := l.rawValue(key)
	if !ok || value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

func parseEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			vars[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return vars, nil
}
