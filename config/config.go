// Package config provides configuration management for the memories application.
// It handles loading and validation of configuration values from environment variables,
// with support for required variables, default values, and collective error reporting.
// The resulting AppConfig is read once at startup and handed to constructors; nothing
// else in the application reads the environment.
package config

import (
	"fmt"
	// `os` package provides operating system functionalities, like reading environment variables.
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends understood by STORE_BACKEND.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Token classifiers understood by TOKEN_CLASSIFIER.
const (
	ClassifierLength = "length"
	ClassifierIssuer = "issuer"
)

// Post mutation policies understood by POST_MUTATION_POLICY.
const (
	PolicyAnyAuthenticated = "any"
	PolicyCreatorOnly      = "creator"
)

// PoolConfig represents configuration for the database connection pool.
type PoolConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	MaxSize        int
	ConnectTimeout time.Duration // bounds the initial connection attempt
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend        string // "postgres" or "memory"
	Pool           *PoolConfig
	MigrationsPath string
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	JWTSecret           string        // Secret key for signing self-issued tokens
	TokenTTL            time.Duration // Lifetime of self-issued tokens
	Issuer              string        // `iss` claim of self-issued tokens
	Classifier          string        // "length" or "issuer"
	LengthThreshold     int           // tokens shorter than this are self-issued (length classifier)
	AllowExternalTokens bool
}

// PostsConfig holds post-related configuration.
type PostsConfig struct {
	MutationPolicy string // "any" or "creator"
}

// UploadConfig holds object storage settings for presigned uploads.
// Empty bucket or region is not a startup error; the upload route reports it instead.
type UploadConfig struct {
	Bucket string
	Region string
	URLTTL time.Duration
}

// Configured reports whether enough settings are present to presign uploads.
func (u *UploadConfig) Configured() bool {
	return u.Bucket != "" && u.Region != ""
}

// RateLimitConfig holds the Redis-backed rate limiter settings.
type RateLimitConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MaxRequests   int
	Window        time.Duration
}

// Enabled reports whether rate limiting should be installed.
func (r *RateLimitConfig) Enabled() bool {
	return r.RedisAddr != ""
}

// EventsConfig holds settings for the post activity stream.
type EventsConfig struct {
	Heartbeat time.Duration // interval between keep-alive comments
	Buffer    int           // events buffered per subscriber before dropping
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port string // Port for the HTTP server
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// AppConfig is the top-level configuration structure for the application.
type AppConfig struct {
	Store     *StoreConfig
	Auth      *AuthConfig
	Posts     *PostsConfig
	Upload    *UploadConfig
	RateLimit *RateLimitConfig
	Events    *EventsConfig
	Server    *ServerConfig
	Log       *LogConfig
}

// Helper function to get a required environment variable.
// Appends an error to the errors slice if the variable is not set or empty.
func getRequiredEnv(key string, errors *[]string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		*errors = append(*errors, fmt.Sprintf("missing required environment variable: %s", key))
		return ""
	}
	return value
}

// Helper function to get an optional environment variable with a default string value.
func getOptionalEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get an optional environment variable parsed as an int.
// Uses defaultValue if not set or if parsing fails. Appends an error if parsing fails.
func getOptionalEnvInt(key string, defaultValue int, errors *[]string) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected integer, got '%s': %v", key, valueStr, err))
		return defaultValue
	}
	return valueInt
}

// Helper function to get an optional environment variable parsed as a bool.
func getOptionalEnvBool(key string, defaultValue bool, errors *[]string) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueBool, err := strconv.ParseBool(valueStr)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected boolean, got '%s': %v", key, valueStr, err))
		return defaultValue
	}
	return valueBool
}

// Helper function to get an optional environment variable parsed as time.Duration.
// `time.ParseDuration` expects a string like "15m", "1h30s".
func getOptionalEnvDuration(key string, defaultValue time.Duration, errors *[]string) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueDuration, err := time.ParseDuration(valueStr)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected duration string, got '%s': %v", key, valueStr, err))
		return defaultValue
	}
	if valueDuration <= 0 {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: duration must be positive, got '%s'", key, valueStr))
		return defaultValue
	}
	return valueDuration
}

// getOneOf reads an optional enum-like variable and records an error for unknown values.
func getOneOf(key string, defaultValue string, allowed []string, errors *[]string) string {
	value := strings.ToLower(getOptionalEnv(key, defaultValue))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected one of [%s], got '%s'", key, strings.Join(allowed, ", "), value))
	return defaultValue
}

// clampPoolSize keeps pool sizes within [5, 100].
func clampPoolSize(size int, varName string, errors *[]string) int {
	if size < 5 {
		*errors = append(*errors, fmt.Sprintf("pool size for %s (%d) is less than minimum 5", varName, size))
		return 5
	}
	if size > 100 {
		*errors = append(*errors, fmt.Sprintf("pool size for %s (%d) is greater than maximum 100", varName, size))
		return 100
	}
	return size
}

// LoadConfig creates and returns an AppConfig by reading and validating environment variables.
// It collects all errors encountered during loading and returns a single error if any exist.
func LoadConfig() (*AppConfig, error) {
	var errors []string

	// Store Configuration
	backend := getOneOf("STORE_BACKEND", StoreBackendPostgres, []string{StoreBackendPostgres, StoreBackendMemory}, &errors)
	storeConfig := &StoreConfig{
		Backend:        backend,
		MigrationsPath: getOptionalEnv("MIGRATIONS_PATH", "./migrations"),
	}
	if backend == StoreBackendPostgres {
		// Database credentials are only required when Postgres is actually used.
		storeConfig.Pool = &PoolConfig{
			Host:           getOptionalEnv("DB_HOST", "localhost"),
			Port:           getOptionalEnvInt("DB_PORT", 5432, &errors),
			User:           getRequiredEnv("DB_USER", &errors),
			Password:       getRequiredEnv("DB_PASSWORD", &errors),
			DBName:         getRequiredEnv("DB_NAME", &errors),
			MaxSize:        clampPoolSize(getOptionalEnvInt("DB_POOL_SIZE", 10, &errors), "DB_POOL_SIZE", &errors),
			ConnectTimeout: getOptionalEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second, &errors),
		}
	}

	// Auth Configuration
	authConfig := &AuthConfig{
		JWTSecret:           getRequiredEnv("JWT_SECRET", &errors),
		TokenTTL:            getOptionalEnvDuration("JWT_TOKEN_TTL", time.Hour, &errors),
		Issuer:              getOptionalEnv("JWT_ISSUER", "memories"),
		Classifier:          getOneOf("TOKEN_CLASSIFIER", ClassifierLength, []string{ClassifierLength, ClassifierIssuer}, &errors),
		LengthThreshold:     getOptionalEnvInt("TOKEN_LENGTH_THRESHOLD", 500, &errors),
		AllowExternalTokens: getOptionalEnvBool("ALLOW_EXTERNAL_TOKENS", true, &errors),
	}
	if authConfig.LengthThreshold <= 0 {
		errors = append(errors, fmt.Sprintf("TOKEN_LENGTH_THRESHOLD must be positive, got %d", authConfig.LengthThreshold))
	}

	postsConfig := &PostsConfig{
		MutationPolicy: getOneOf("POST_MUTATION_POLICY", PolicyAnyAuthenticated, []string{PolicyAnyAuthenticated, PolicyCreatorOnly}, &errors),
	}

	uploadConfig := &UploadConfig{
		Bucket: getOptionalEnv("S3_BUCKET_NAME", ""),
		Region: getOptionalEnv("AWS_REGION_NAME", ""),
		URLTTL: getOptionalEnvDuration("UPLOAD_URL_TTL", time.Hour, &errors),
	}

	rateLimitConfig := &RateLimitConfig{
		RedisAddr:     getOptionalEnv("REDIS_ADDR", ""),
		RedisPassword: getOptionalEnv("REDIS_PASSWORD", ""),
		RedisDB:       getOptionalEnvInt("REDIS_DB", 0, &errors),
		MaxRequests:   getOptionalEnvInt("RATE_LIMIT_MAX", 20, &errors),
		Window:        getOptionalEnvDuration("RATE_LIMIT_WINDOW", time.Minute, &errors),
	}
	if rateLimitConfig.MaxRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RATE_LIMIT_MAX must be positive, got %d", rateLimitConfig.MaxRequests))
	}

	eventsConfig := &EventsConfig{
		Heartbeat: getOptionalEnvDuration("EVENTS_HEARTBEAT", 15*time.Second, &errors),
		Buffer:    getOptionalEnvInt("EVENTS_BUFFER", 16, &errors),
	}
	if eventsConfig.Buffer <= 0 {
		errors = append(errors, fmt.Sprintf("EVENTS_BUFFER must be positive, got %d", eventsConfig.Buffer))
	}

	// Server Configuration
	serverConfig := &ServerConfig{
		Port: getOptionalEnv("PORT", "8080"),
	}

	logConfig := &LogConfig{
		Level:  getOptionalEnv("LOG_LEVEL", "info"),
		Format: getOneOf("LOG_FORMAT", "text", []string{"text", "json"}, &errors),
	}

	// If any errors were collected during loading, return a single aggregated error message.
	if len(errors) > 0 {
		return nil, fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return &AppConfig{
		Store:     storeConfig,
		Auth:      authConfig,
		Posts:     postsConfig,
		Upload:    uploadConfig,
		RateLimit: rateLimitConfig,
		Events:    eventsConfig,
		Server:    serverConfig,
		Log:       logConfig,
	}, nil
}
