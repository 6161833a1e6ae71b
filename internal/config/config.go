package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	CORSOrigins            string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	JWTIssuer              string
	TokenTTL               time.Duration
	SessionTTL             time.Duration
	SessionChannel         string
	RelayURL               string
	RelayTimeout           time.Duration
	ResendCooldown         time.Duration
	ResendRateLimit        int
	DashboardCacheTTL      time.Duration
	BcryptCost             int
	UploadMaxSizeMB        int
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	Mail                   MailConfig
}

// MailConfig selects the email backend used by the relay.
type MailConfig struct {
	Provider       string
	SendGridAPIKey string
	FromName       string
	FromEmail      string
}

// MailerConfig holds runtime configuration values for the verification relay.
type MailerConfig struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	CORSOrigins            string
	DatabaseURL            string
	BcryptCost             int
	UploadMaxSizeMB        int
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	Mail                   MailConfig
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	return listenAddress(c.AppPort)
}

// HTTPAddress returns the address the relay should listen on.
func (c MailerConfig) HTTPAddress() string {
	return listenAddress(c.AppPort)
}

// CloudinaryConfigured reports whether uploads can be pushed to Cloudinary.
func (c Config) CloudinaryConfigured() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// CloudinaryConfigured reports whether uploads can be pushed to Cloudinary.
func (c MailerConfig) CloudinaryConfigured() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func listenAddress(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

func newViper() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ROSTER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Roster")
	v.SetDefault("app.env", "development")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("bcrypt.cost", 0)
	v.SetDefault("upload.max_size_mb", 5)
	v.SetDefault("cloudinary.folder", "gema/students")
	v.SetDefault("mail.provider", "log")
	v.SetDefault("mail.from_name", "GEMA")
	v.SetDefault("mail.from_email", "no-reply@gema.local")
	return v
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func loadMail(v *viper.Viper) (MailConfig, error) {
	mail := MailConfig{
		Provider:       strings.ToLower(strings.TrimSpace(v.GetString("mail.provider"))),
		SendGridAPIKey: v.GetString("sendgrid.api_key"),
		FromName:       v.GetString("mail.from_name"),
		FromEmail:      v.GetString("mail.from_email"),
	}

	switch mail.Provider {
	case "log":
	case "sendgrid":
		if mail.SendGridAPIKey == "" {
			return MailConfig{}, fmt.Errorf("sendgrid api key must be provided when mail provider is sendgrid")
		}
	default:
		return MailConfig{}, fmt.Errorf("unknown mail provider %q", mail.Provider)
	}
	return mail, nil
}

// Load reads API configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	v := newViper()
	v.SetDefault("app.port", "8080")
	v.SetDefault("jwt.issuer", "gema-roster")
	v.SetDefault("jwt.ttl", "12h")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.channel", "roster")
	v.SetDefault("relay.timeout", "10s")
	v.SetDefault("resend.cooldown", "1m")
	v.SetDefault("resend.rate_limit", 5)
	v.SetDefault("dashboard.cache_ttl", "30s")

	tokenTTL, err := duration(v, "jwt.ttl")
	if err != nil {
		return Config{}, err
	}
	sessionTTL, err := duration(v, "session.ttl")
	if err != nil {
		return Config{}, err
	}
	relayTimeout, err := duration(v, "relay.timeout")
	if err != nil {
		return Config{}, err
	}
	cooldown, err := duration(v, "resend.cooldown")
	if err != nil {
		return Config{}, err
	}
	dashboardTTL, err := duration(v, "dashboard.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	mail, err := loadMail(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		CORSOrigins:            v.GetString("cors.origins"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTIssuer:              v.GetString("jwt.issuer"),
		TokenTTL:               tokenTTL,
		SessionTTL:             sessionTTL,
		SessionChannel:         v.GetString("session.channel"),
		RelayURL:               strings.TrimRight(v.GetString("relay.url"), "/"),
		RelayTimeout:           relayTimeout,
		ResendCooldown:         cooldown,
		ResendRateLimit:        v.GetInt("resend.rate_limit"),
		DashboardCacheTTL:      dashboardTTL,
		BcryptCost:             v.GetInt("bcrypt.cost"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		Mail:                   mail,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}
	if cfg.ResendRateLimit <= 0 {
		cfg.ResendRateLimit = 5
	}

	return cfg, nil
}

// LoadMailer reads relay configuration values. The database is optional: without it the relay only
// emails codes and does not provision identities.
func LoadMailer() (MailerConfig, error) {
	v := newViper()
	v.SetDefault("app.port", "3001")

	mail, err := loadMail(v)
	if err != nil {
		return MailerConfig{}, err
	}

	return MailerConfig{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		CORSOrigins:            v.GetString("cors.origins"),
		DatabaseURL:            v.GetString("database.url"),
		BcryptCost:             v.GetInt("bcrypt.cost"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		Mail:                   mail,
	}, nil
}
