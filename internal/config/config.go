package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MintConfig models the fixed values every mint run sends to NMKR. It can be
// overridden by the YAML file at MINT_CONFIG_PATH and then by env vars.
type MintConfig struct {
	PayoutWalletAddress     string `yaml:"payoutWalletAddress"`
	ProjectPriceLovelace    int64  `yaml:"projectPriceLovelace"`
	PaymentPriceLovelace    int64  `yaml:"paymentPriceLovelace"`
	PolicyExpires           bool   `yaml:"policyExpires"`
	PolicyLocksDateTime     string `yaml:"policyLocksDateTime"`
	PriceValidFrom          string `yaml:"priceValidFrom"`
	PriceValidTo            string `yaml:"priceValidTo"`
	PaymentGatewaySaleStart string `yaml:"paymentGatewaySaleStart"`
	AddressExpireMinutes    int    `yaml:"addressExpireMinutes"`
	ProjectURL              string `yaml:"projectUrl"`
	TokenNamePrefix         string `yaml:"tokenNamePrefix"`
	TwitterHandle           string `yaml:"twitterHandle"`
}

// AppConfig ties together file defaults, env overrides and derived values.
type AppConfig struct {
	Service ServiceConfig
	NMKR    NMKRConfig
	Mint    MintConfig
}

type ServiceConfig struct {
	HTTPPort             int
	HMACSecret           string
	HMACSignatureHeader  string
	HMACTimestampHeader  string
	HMACClockSkew        time.Duration
	IdempotencyWindow    time.Duration
	IdempotencyStorePath string
	PostgresDSN          string
	RateLimit            float64
	RateBurst            int
	MaxUploadBytes       int64
	AllowedOrigins       []string
	RunRetention         int
}

type NMKRConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// FakePayURL is the pay base used by the fake client when APIKey is empty.
	FakePayURL string
}

const (
	defaultNMKRBaseURL   = "https://studio-api.nmkr.io"
	defaultPayoutAddress = "addr1q98qjgkvv6ul6p5tlxvq9zxklnj87y0lf4s0lta4km4s0scktx0qwk39jnq9a3krt20xa07fgkpf23q4wl3sqcgmrwps79n8u9"
)

// DefaultMint returns the mint values used when no file or env override exists.
func DefaultMint() MintConfig {
	return MintConfig{
		PayoutWalletAddress:     defaultPayoutAddress,
		ProjectPriceLovelace:    20000000,
		PaymentPriceLovelace:    2000000,
		PolicyExpires:           true,
		PolicyLocksDateTime:     "2025-12-06T12:46:19.695Z",
		PriceValidFrom:          "2022-12-06T12:46:19.695Z",
		PriceValidTo:            "2025-12-06T12:46:19.695Z",
		PaymentGatewaySaleStart: "2022-12-08T12:46:19.695Z",
		AddressExpireMinutes:    20,
	}
}

// Load aggregates configuration from .env, the optional mint file and the environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded, using process environment")
	}

	mintCfg := DefaultMint()
	if path := envOr("MINT_CONFIG_PATH", ""); path != "" {
		if err := loadMintFile(path, &mintCfg); err != nil {
			return nil, fmt.Errorf("load mint config: %w", err)
		}
	}
	mintCfg.PayoutWalletAddress = envOr("MINT_PAYOUT_ADDRESS", mintCfg.PayoutWalletAddress)
	mintCfg.ProjectPriceLovelace = envOrInt64("MINT_PROJECT_PRICE_LOVELACE", mintCfg.ProjectPriceLovelace)
	mintCfg.PaymentPriceLovelace = envOrInt64("MINT_PAYMENT_PRICE_LOVELACE", mintCfg.PaymentPriceLovelace)

	if strings.TrimSpace(mintCfg.PayoutWalletAddress) == "" {
		return nil, errors.New("payout wallet address is required")
	}

	serviceCfg := ServiceConfig{
		HTTPPort:             envOrInt("API_HTTP_PORT", 3000),
		HMACSecret:           envOr("MINT_HMAC_SECRET", ""),
		HMACSignatureHeader:  envOr("MINT_HMAC_SIGNATURE_HEADER", "X-Mint-Signature"),
		HMACTimestampHeader:  envOr("MINT_HMAC_TIMESTAMP_HEADER", "X-Mint-Timestamp"),
		HMACClockSkew:        time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		IdempotencyWindow:    envOrDuration("IDEMPOTENCY_WINDOW", 24*time.Hour),
		IdempotencyStorePath: envOr("IDEMPOTENCY_STORE_PATH", filepath.Join(os.TempDir(), "nmkrmint-idem.json")),
		PostgresDSN:          envOr("POSTGRES_DSN", ""),
		RateLimit:            envOrFloat("MINT_RATE_LIMIT", 1),
		RateBurst:            envOrInt("MINT_RATE_BURST", 5),
		MaxUploadBytes:       envOrInt64("MAX_UPLOAD_BYTES", 10<<20),
		AllowedOrigins:       splitList(envOr("CORS_ALLOWED_ORIGINS", "*")),
		RunRetention:         envOrInt("RUN_RETENTION", 256),
	}

	nmkrCfg := NMKRConfig{
		BaseURL:    envOr("NMKR_API_URL", defaultNMKRBaseURL),
		APIKey:     envOr("NMKR_API_KEY", ""),
		Timeout:    envOrDuration("NMKR_TIMEOUT", time.Minute),
		FakePayURL: envOr("NMKR_FAKE_PAY_URL", "https://pay.preprod.nmkr.io"),
	}

	return &AppConfig{
		Service: serviceCfg,
		NMKR:    nmkrCfg,
		Mint:    mintCfg,
	}, nil
}

func loadMintFile(path string, cfg *MintConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields missing from the file keep the values already in cfg.
	return yaml.Unmarshal(raw, cfg)
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
