package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port         int
	MasterSecret string
	GinMode      string
	TLSCertFile  string
	TLSKeyFile   string
	TokenExpiry  time.Duration

	// Public base of this server, used to generate per-user content and
	// callback URLs handed to the document server.
	ServerScheme string
	ServerHost   string

	// Document editing server location. When DocserverAccessOnly is set,
	// only this host may fetch document content.
	DocserverScheme     string
	DocserverHost       string
	DocserverAccessOnly bool

	// Save pipeline lock polling budget.
	LockAttempts int
	LockInterval time.Duration

	DocumentsDBFile string
}

// DocserverURL is the base URL of the editing server's web API.
func (c Config) DocserverURL() string {
	return c.DocserverScheme + "://" + c.DocserverHost + "/web-apps/"
}

// PlatformURL is the base URL the editing server calls back on.
func (c Config) PlatformURL() string {
	return fmt.Sprintf("%s://%s:%d/v1/editors", c.ServerScheme, c.ServerHost, c.Port)
}

// DocserverHostName is the docserver host with any port stripped, for
// matching against a request's origin host.
func (c Config) DocserverHostName() string {
	if i := strings.IndexByte(c.DocserverHost, ':'); i > 0 {
		return c.DocserverHost[:i]
	}
	return c.DocserverHost
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:            3000,
		GinMode:         "release",
		TokenExpiry:     24 * time.Hour,
		ServerScheme:    "http",
		DocserverScheme: "http",
		LockAttempts:    20,
		LockInterval:    250 * time.Millisecond,
		DocumentsDBFile: "documents.db",
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.MasterSecret = env.Getenv("MASTER_SECRET")
	if cfg.MasterSecret == "" {
		return Config{}, fmt.Errorf("MASTER_SECRET is required")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	if raw := env.Getenv("TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("SERVER_SCHEME"); raw != "" {
		cfg.ServerScheme = raw
	}
	cfg.ServerHost = env.Getenv("SERVER_HOST")
	if cfg.ServerHost == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		cfg.ServerHost = host
	}

	if raw := env.Getenv("DOCSERVER_SCHEME"); raw != "" {
		cfg.DocserverScheme = raw
	}
	cfg.DocserverHost = env.Getenv("DOCSERVER_HOST")
	if cfg.DocserverHost == "" {
		return Config{}, fmt.Errorf("DOCSERVER_HOST is required")
	}
	if raw := env.Getenv("DOCSERVER_ACCESS_ONLY"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DOCSERVER_ACCESS_ONLY")
		}
		cfg.DocserverAccessOnly = v
	}

	if raw := env.Getenv("LOCK_WAIT_ATTEMPTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid LOCK_WAIT_ATTEMPTS")
		}
		cfg.LockAttempts = n
	}
	if raw := env.Getenv("LOCK_WAIT_INTERVAL_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return Config{}, fmt.Errorf("invalid LOCK_WAIT_INTERVAL_MS")
		}
		cfg.LockInterval = time.Duration(ms) * time.Millisecond
	}

	if raw := env.Getenv("DOCUMENTS_DB_FILE"); raw != "" {
		cfg.DocumentsDBFile = raw
	}

	return cfg, nil
}
