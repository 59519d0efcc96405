package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/gateway"
)

// GatewayConfig is the gateway process configuration.
type GatewayConfig struct {
	Port        string
	BackendAddr string

	AuthMode        gateway.AuthMode
	AccessToken     string
	AccessTokenHash string

	CallPathPrefix       string
	RequireCustomerPhone bool
	GenerateCallID       bool
	DefaultEnv           string
	DefaultTypeCall      string

	Ingress           audio.Format
	LegacyBinaryAudio bool
	BackendSampleRate int
	OutputSampleRate  int
	BufferDuration    time.Duration
	ClientSchema      gateway.Schema

	ErrorCloseDelay time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	RedisAddr      string
	MongoURI       string
	MongoDB        string
	MetricsEnabled bool

	AdminJWTSecret   string
	AdminJWTIssuer   string
	AdminJWTAudience string
}

// MockBackendConfig is the stand-in backend configuration.
type MockBackendConfig struct {
	Port           string
	RecordingsDir  string
	RecordFormat   audio.Format
	EchoSampleRate int
	GCSBucket      string
	GCSPrefix      string
	STTEnabled     bool
	STTLanguage    string
	// GoogleCredentialsFile is a service account key for GCS and Speech;
	// empty means application default credentials.
	GoogleCredentialsFile string
}

// LoadDotEnv reads .env when present. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func LoadGateway() (*GatewayConfig, error) {
	p := parser{}
	cfg := &GatewayConfig{
		Port:            env("PORT", "8080"),
		BackendAddr:     env("BACKEND_ADDR", "localhost:50051"),
		AccessToken:     os.Getenv("ACCESS_TOKEN"),
		AccessTokenHash: os.Getenv("ACCESS_TOKEN_BCRYPT"),

		CallPathPrefix:       env("CALL_PATH_PREFIX", "/call"),
		RequireCustomerPhone: p.boolean("REQUIRE_CUSTOMER_PHONE", false),
		GenerateCallID:       p.boolean("GENERATE_CALL_ID", false),
		DefaultEnv:           env("DEFAULT_ENV", "dev"),
		DefaultTypeCall:      env("TYPE_CALL", "inbound"),

		Ingress: audio.Format{
			SampleRate:      p.integer("INGRESS_SAMPLE_RATE", 8000),
			SampleWidthBits: p.integer("INGRESS_SAMPLE_WIDTH", 16),
			NumChannels:     p.integer("INGRESS_NUM_CHANNELS", 1),
		},
		LegacyBinaryAudio: p.boolean("LEGACY_BINARY_AUDIO", false),
		BackendSampleRate: p.integer("BACKEND_SAMPLE_RATE", 24000),
		OutputSampleRate:  p.integer("OUTPUT_SAMPLE_RATE", 8000),
		BufferDuration:    p.millis("BUFFER_DURATION_MS", 200*time.Millisecond),
		ClientSchema:      gateway.Schema(env("CLIENT_SCHEMA", string(gateway.SchemaEnvelope))),

		ErrorCloseDelay: p.millis("ERROR_CLOSE_DELAY_MS", 500*time.Millisecond),
		WriteTimeout:    p.millis("WRITE_TIMEOUT_MS", 5*time.Second),
		ShutdownTimeout: p.millis("SHUTDOWN_TIMEOUT_MS", 10*time.Second),

		RedisAddr:      RedisAddrFromEnv(),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDB:        env("MONGO_DB", "callbridge"),
		MetricsEnabled: p.boolean("METRICS_ENABLED", true),

		AdminJWTSecret:   os.Getenv("ADMIN_JWT_SECRET"),
		AdminJWTIssuer:   os.Getenv("ADMIN_JWT_ISSUER"),
		AdminJWTAudience: os.Getenv("ADMIN_JWT_AUDIENCE"),
	}

	mode, err := gateway.ParseAuthMode(os.Getenv("AUTH_MODE"))
	p.add(err)
	cfg.AuthMode = mode
	if _, err := gateway.NewEncoder(cfg.ClientSchema); err != nil {
		p.add(err)
	}
	p.add(cfg.Ingress.Validate())
	if cfg.OutputSampleRate <= 0 {
		p.add(errors.New("OUTPUT_SAMPLE_RATE must be > 0"))
	}
	if cfg.BackendSampleRate <= 0 {
		p.add(errors.New("BACKEND_SAMPLE_RATE must be > 0"))
	}
	if cfg.BufferDuration < 0 {
		p.add(errors.New("BUFFER_DURATION_MS must be >= 0"))
	}
	if cfg.BackendAddr == "" {
		p.add(errors.New("BACKEND_ADDR is required"))
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadMockBackend() (*MockBackendConfig, error) {
	p := parser{}
	cfg := &MockBackendConfig{
		Port:          env("MOCK_PORT", "50051"),
		RecordingsDir: env("RECORDINGS_DIR", "recordings"),
		RecordFormat: audio.Format{
			SampleRate:      p.integer("RECORD_SAMPLE_RATE", 16000),
			SampleWidthBits: 16,
			NumChannels:     1,
		},
		EchoSampleRate: p.integer("ECHO_SAMPLE_RATE", 0),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		GCSPrefix:      env("GCS_PREFIX", "recordings"),
		STTEnabled:     p.boolean("STT_ENABLED", false),
		STTLanguage:    env("STT_LANGUAGE", "en-US"),

		GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
	}
	p.add(cfg.RecordFormat.Validate())
	if cfg.EchoSampleRate < 0 {
		p.add(errors.New("ECHO_SAMPLE_RATE must be >= 0"))
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RedisAddrFromEnv returns the first of REDIS_ADDR, REDIS_URI, REDIS_URL.
func RedisAddrFromEnv() string {
	for _, k := range []string{"REDIS_ADDR", "REDIS_URI", "REDIS_URL"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser collects every invalid variable so startup reports them together.
type parser struct {
	errs []error
}

func (p *parser) add(err error) {
	if err != nil {
		p.errs = append(p.errs, err)
	}
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.add(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.add(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) millis(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.add(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return time.Duration(n) * time.Millisecond
}
