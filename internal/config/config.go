package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envPort                  = "PORT"
	envServerReadTimeout     = "SERVER_READ_TIMEOUT"
	envServerWriteTimeout    = "SERVER_WRITE_TIMEOUT"
	envServerShutdownTimeout = "SERVER_SHUTDOWN_TIMEOUT"
	envPublicBaseURL         = "PUBLIC_BASE_URL"
	envMaxUploadSize         = "MAX_UPLOAD_SIZE"
	envActorRateLimit        = "ACTOR_RATE_LIMIT"
	envActorRateBurst        = "ACTOR_RATE_BURST"
	envDBHost                = "DB_HOST"
	envDBPort                = "DB_PORT"
	envDBName                = "DB_NAME"
	envDBUser                = "DB_USER"
	envDBPassword            = "DB_PASSWORD"
	envDBSSLMode             = "DB_SSL_MODE"
	envDBMaxConns            = "DB_MAX_CONNS"
	envDBMinConns            = "DB_MIN_CONNS"
	envAWSRegion             = "REGION"
	envAWSAccessKeyID        = "AWS_ACCESS_KEY_ID"
	envAWSSecretAccessKey    = "AWS_SECRET_ACCESS_KEY"
	envS3Endpoint            = "S3_ENDPOINT"
	envPublicBucket          = "PUBLIC_BUCKET"
	envPrivateBucket         = "PRIVATE_BUCKET"
	envJWTSecret             = "JWT_SECRET"
	envSigningSecret         = "SIGNING_SECRET"
	envWorkerTokenTTL        = "WORKER_TOKEN_TTL"
	envSessionTokenTTL       = "SESSION_TOKEN_TTL"
	envSignerWorkerTTL       = "SIGNER_WORKER_TTL"
	envSignerAdminTTL        = "SIGNER_ADMIN_TTL"
	envWorkerWakeURL         = "WORKER_WAKE_URL"
	envWorkerWakeTimeout     = "WORKER_WAKE_TIMEOUT"
	envQueueLeaseDuration    = "QUEUE_LEASE_DURATION"
	envQueueSweepInterval    = "QUEUE_SWEEP_INTERVAL"
	envQueueMaxAttempts      = "QUEUE_MAX_ATTEMPTS"
	envUploadConcurrency     = "UPLOAD_CONCURRENCY"
	envRedisAddr             = "REDIS_ADDR"
	envRedisPassword         = "REDIS_PASSWORD"
	envRedisDB               = "REDIS_DB"
	envWatermarkAnchor       = "WATERMARK_ANCHOR"
	envWatermarkHashIdentity = "WATERMARK_HASH_IDENTITY"
	envLogMode               = "LOG_MODE"
	envEnableProfiling       = "ENABLE_PROFILING"
)

const (
	defaultServerPort          = "8080"
	defaultServerReadTimeout   = 30 * time.Second
	defaultServerWriteTimeout  = 60 * time.Second
	defaultServerShutdown      = 10 * time.Second
	defaultPublicBaseURL       = "http://localhost:8080"
	defaultMaxUploadSize       = int64(200 * 1024 * 1024)
	defaultActorRateLimit      = 20
	defaultActorRateBurst      = 40
	defaultDBHost              = "localhost"
	defaultDBPort              = 5432
	defaultDBName              = "assetpipeline"
	defaultDBUser              = "assetpipeline_app"
	defaultDBSSLMode           = "disable"
	defaultDBMaxConns          = 25
	defaultDBMinConns          = 2
	defaultPublicBucket        = "assets-public"
	defaultPrivateBucket       = "assets-private"
	defaultWorkerTokenTTL      = 15 * time.Minute
	defaultSessionTokenTTL     = 24 * time.Hour
	defaultSignerWorkerTTL     = 10 * time.Minute
	defaultSignerAdminTTL      = time.Hour
	maxSignerAdminTTL          = time.Hour
	defaultWorkerWakeTimeout   = 60 * time.Second
	defaultQueueLeaseDuration  = 15 * time.Minute
	defaultQueueSweepInterval  = time.Minute
	defaultQueueMaxAttempts    = 3
	defaultUploadConcurrency   = 3
	defaultWatermarkAnchor     = "HPTRACE"
	defaultLogMode             = "dev"
	minSecretLength            = 32
	minUniqueCharsInSecret     = 16
	minRepeatedCharThreshold   = 4
	maxRepeatedChars           = 2
	errPortRequiredFmt         = "PORT must be set"
	errDBPasswordRequiredFmt   = "DB_PASSWORD must be set"
	errRegionRequiredFmt       = "REGION must be set"
	errAWSAccessKeyRequiredFmt = "AWS_ACCESS_KEY_ID must be set"
	errAWSSecretKeyRequiredFmt = "AWS_SECRET_ACCESS_KEY must be set"
	errBucketsRequiredFmt      = "PUBLIC_BUCKET and PRIVATE_BUCKET must be set and distinct"
	errSecretRequiredFmt       = "%s must be set"
	errSecretMinLengthFmt      = "%s must be at least %d characters"
	errSecretLowEntropyFmt     = "%s has insufficient entropy (appears non-random). Use a cryptographically secure random string."
	errSecretsMustDifferFmt    = "JWT_SECRET and SIGNING_SECRET must differ"
	errSignerAdminTTLFmt       = "SIGNER_ADMIN_TTL must be between 1s and %s"
	errPositiveValueFmt        = "%s must be positive"
	errInvalidConfigurationFmt = "invalid configuration: %w"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Auth      AuthConfig
	Signer    SignerConfig
	Worker    WorkerConfig
	Queue     QueueConfig
	Redis     RedisConfig
	Watermark WatermarkConfig
	App       AppConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	PublicBaseURL   string
	MaxUploadSize   int64

	// Per authenticated actor, requests per second and burst.
	ActorRateLimit int
	ActorRateBurst int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	PublicBucket    string
	PrivateBucket   string
}

type AuthConfig struct {
	JWTSecret      string
	SigningSecret  string
	WorkerTokenTTL time.Duration
	// SessionTTL only applies to tokens minted by the ops CLI.
	SessionTTL     time.Duration
}

type SignerConfig struct {
	WorkerTTL time.Duration
	AdminTTL  time.Duration
}

type WorkerConfig struct {
	WakeURL     string
	WakeTimeout time.Duration
}

type QueueConfig struct {
	LeaseDuration time.Duration
	SweepInterval time.Duration
	MaxAttempts   int
}

// RedisConfig is optional. An empty Addr disables the distributed sweep lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WatermarkConfig struct {
	Anchor       string
	HashIdentity bool
}

type AppConfig struct {
	UploadConcurrency int
	LogMode           string
	// Profiling mounts pprof under /debug for admins.
	Profiling         bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv(envPort, defaultServerPort),
			ReadTimeout:     getDurationEnv(envServerReadTimeout, defaultServerReadTimeout),
			WriteTimeout:    getDurationEnv(envServerWriteTimeout, defaultServerWriteTimeout),
			ShutdownTimeout: getDurationEnv(envServerShutdownTimeout, defaultServerShutdown),
			PublicBaseURL:   strings.TrimRight(getEnv(envPublicBaseURL, defaultPublicBaseURL), "/"),
			MaxUploadSize:   getInt64Env(envMaxUploadSize, defaultMaxUploadSize),
			ActorRateLimit:  getIntEnv(envActorRateLimit, defaultActorRateLimit),
			ActorRateBurst:  getIntEnv(envActorRateBurst, defaultActorRateBurst),
		},
		Database: DatabaseConfig{
			Host:     getEnv(envDBHost, defaultDBHost),
			Port:     getIntEnv(envDBPort, defaultDBPort),
			Database: getEnv(envDBName, defaultDBName),
			User:     getEnv(envDBUser, defaultDBUser),
			Password: requireEnv(envDBPassword),
			SSLMode:  getEnv(envDBSSLMode, defaultDBSSLMode),
			MaxConns: getIntEnv(envDBMaxConns, defaultDBMaxConns),
			MinConns: getIntEnv(envDBMinConns, defaultDBMinConns),
		},
		AWS: AWSConfig{
			Region:          requireEnv(envAWSRegion),
			AccessKeyID:     requireEnv(envAWSAccessKeyID),
			SecretAccessKey: requireEnv(envAWSSecretAccessKey),
			Endpoint:        getEnv(envS3Endpoint, ""),
			PublicBucket:    getEnv(envPublicBucket, defaultPublicBucket),
			PrivateBucket:   getEnv(envPrivateBucket, defaultPrivateBucket),
		},
		Auth: AuthConfig{
			JWTSecret:      requireEnv(envJWTSecret),
			SigningSecret:  requireEnv(envSigningSecret),
			WorkerTokenTTL: getDurationEnv(envWorkerTokenTTL, defaultWorkerTokenTTL),
			SessionTTL:     getDurationEnv(envSessionTokenTTL, defaultSessionTokenTTL),
		},
		Signer: SignerConfig{
			WorkerTTL: getDurationEnv(envSignerWorkerTTL, defaultSignerWorkerTTL),
			AdminTTL:  getDurationEnv(envSignerAdminTTL, defaultSignerAdminTTL),
		},
		Worker: WorkerConfig{
			WakeURL:     getEnv(envWorkerWakeURL, ""),
			WakeTimeout: getDurationEnv(envWorkerWakeTimeout, defaultWorkerWakeTimeout),
		},
		Queue: QueueConfig{
			LeaseDuration: getDurationEnv(envQueueLeaseDuration, defaultQueueLeaseDuration),
			SweepInterval: getDurationEnv(envQueueSweepInterval, defaultQueueSweepInterval),
			MaxAttempts:   getIntEnv(envQueueMaxAttempts, defaultQueueMaxAttempts),
		},
		Redis: RedisConfig{
			Addr:     getEnv(envRedisAddr, ""),
			Password: getEnv(envRedisPassword, ""),
			DB:       getIntEnv(envRedisDB, 0),
		},
		Watermark: WatermarkConfig{
			Anchor:       getEnv(envWatermarkAnchor, defaultWatermarkAnchor),
			HashIdentity: getBoolEnv(envWatermarkHashIdentity, false),
		},
		App: AppConfig{
			UploadConcurrency: getIntEnv(envUploadConcurrency, defaultUploadConcurrency),
			LogMode:           getEnv(envLogMode, defaultLogMode),
			Profiling:         getBoolEnv(envEnableProfiling, false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf(errInvalidConfigurationFmt, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf(errPortRequiredFmt)
	}

	if c.Database.Password == "" {
		return fmt.Errorf(errDBPasswordRequiredFmt)
	}

	if c.AWS.Region == "" {
		return fmt.Errorf(errRegionRequiredFmt)
	}

	if c.AWS.AccessKeyID == "" {
		return fmt.Errorf(errAWSAccessKeyRequiredFmt)
	}

	if c.AWS.SecretAccessKey == "" {
		return fmt.Errorf(errAWSSecretKeyRequiredFmt)
	}

	if c.AWS.PublicBucket == "" || c.AWS.PrivateBucket == "" || c.AWS.PublicBucket == c.AWS.PrivateBucket {
		return fmt.Errorf(errBucketsRequiredFmt)
	}

	if err := validateSecret(envJWTSecret, c.Auth.JWTSecret); err != nil {
		return err
	}

	if err := validateSecret(envSigningSecret, c.Auth.SigningSecret); err != nil {
		return err
	}

	if c.Auth.JWTSecret == c.Auth.SigningSecret {
		return fmt.Errorf(errSecretsMustDifferFmt)
	}

	if c.Signer.AdminTTL < time.Second || c.Signer.AdminTTL > maxSignerAdminTTL {
		return fmt.Errorf(errSignerAdminTTLFmt, maxSignerAdminTTL)
	}

	positives := map[string]time.Duration{
		envSignerWorkerTTL:    c.Signer.WorkerTTL,
		envWorkerTokenTTL:     c.Auth.WorkerTokenTTL,
		envSessionTokenTTL:    c.Auth.SessionTTL,
		envQueueLeaseDuration: c.Queue.LeaseDuration,
		envQueueSweepInterval: c.Queue.SweepInterval,
	}
	for name, value := range positives {
		if value <= 0 {
			return fmt.Errorf(errPositiveValueFmt, name)
		}
	}

	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf(errPositiveValueFmt, envQueueMaxAttempts)
	}

	if c.App.UploadConcurrency <= 0 {
		return fmt.Errorf(errPositiveValueFmt, envUploadConcurrency)
	}

	return nil
}

func validateSecret(name, secret string) error {
	if secret == "" {
		return messages.secretInvalid(errSecretRequiredFmt, name)
	}

	if len(secret) < minSecretLength {
		return messages.secretInvalid(errSecretMinLengthFmt, name, minSecretLength)
	}

	if !hasMinimumEntropy(secret) {
		return messages.secretInvalid(errSecretLowEntropyFmt, name)
	}

	return nil
}

func hasMinimumEntropy(secret string) bool {
	if len(secret) < minSecretLength {
		return false
	}

	charCounts := make(map[rune]int)
	for _, char := range secret {
		charCounts[char]++
	}

	if len(charCounts) < minUniqueCharsInSecret {
		return false
	}

	repeatedChars := 0
	for _, count := range charCounts {
		if count > len(secret)/minRepeatedCharThreshold {
			repeatedChars++
		}
	}

	return repeatedChars <= maxRepeatedChars
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func requireEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(messages.requiredEnvNotSet(key))
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go duration strings or a bare integer of minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}
