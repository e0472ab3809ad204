package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultPublicURL      = "http://localhost:8080"
	DefaultJWTExpiresIn   = "720h"
	DefaultStorageDriver  = "postgres"
	DefaultPGHost         = "127.0.0.1"
	DefaultPGPort         = 5432
	DefaultPGUser         = "postgres"
	DefaultPGDatabase     = "ayro"
	DefaultPGSSLMode      = "disable"
	DefaultSlackAPIURL    = "https://slack.com/api/"
	DefaultGraphURL       = "https://graph.facebook.com/v19.0"
	DefaultFCMURL         = "https://fcm.googleapis.com/fcm/send"
	DefaultTimeoutSeconds = 10
	DefaultWorkerDriver   = "local"
	DefaultRedisURL       = "redis://127.0.0.1:6379/0"
	DefaultConcurrency    = 10
	DefaultRetentionCron  = "@daily"
	DefaultRetentionDays  = 90
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
	WorkerDriverLocal     = "local"
	WorkerDriverAsynq     = "asynq"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Storage   StorageConfig   `toml:"storage"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Slack     SlackConfig     `toml:"slack"`
	Messenger MessengerConfig `toml:"messenger"`
	Push      PushConfig      `toml:"push"`
	Worker    WorkerConfig    `toml:"worker"`
	Retention RetentionConfig `toml:"retention"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr      string `toml:"addr"`
	PublicURL string `toml:"public_url"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// ExpiresIn parses JWTExpiresIn, falling back to the default on bad input.
func (c AuthConfig) ExpiresIn() time.Duration {
	d, err := time.ParseDuration(c.JWTExpiresIn)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultJWTExpiresIn)
	}
	return d
}

type StorageConfig struct {
	Driver string `toml:"driver"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type SlackConfig struct {
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	SigningSecret  string `toml:"signing_secret"`
	RedirectURL    string `toml:"redirect_url"`
	APIURL         string `toml:"api_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c SlackConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }

type MessengerConfig struct {
	GraphURL       string `toml:"graph_url"`
	VerifyToken    string `toml:"verify_token"`
	AppSecret      string `toml:"app_secret"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c MessengerConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }

type PushConfig struct {
	FCMURL         string `toml:"fcm_url"`
	WebGatewayURL  string `toml:"web_gateway_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c PushConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }

type WorkerConfig struct {
	Driver      string `toml:"driver"`
	RedisURL    string `toml:"redis_url"`
	Concurrency int    `toml:"concurrency"`
}

type RetentionConfig struct {
	Schedule string `toml:"schedule"`
	Days     int    `toml:"days"`
}

// Window returns the age after which chat messages are purged.
func (c RetentionConfig) Window() time.Duration {
	days := c.Days
	if days <= 0 {
		days = DefaultRetentionDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// DSN builds a postgres connection URL.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

func seconds(n int) time.Duration {
	if n <= 0 {
		n = DefaultTimeoutSeconds
	}
	return time.Duration(n) * time.Second
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:      DefaultHTTPAddr,
			PublicURL: DefaultPublicURL,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Storage: StorageConfig{
			Driver: DefaultStorageDriver,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Slack: SlackConfig{
			APIURL:         DefaultSlackAPIURL,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Messenger: MessengerConfig{
			GraphURL:       DefaultGraphURL,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Push: PushConfig{
			FCMURL:         DefaultFCMURL,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Worker: WorkerConfig{
			Driver:      DefaultWorkerDriver,
			RedisURL:    DefaultRedisURL,
			Concurrency: DefaultConcurrency,
		},
		Retention: RetentionConfig{
			Schedule: DefaultRetentionCron,
			Days:     DefaultRetentionDays,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
