package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgredis "github.com/ahwlsqja/walletlogin/pkg/redis"
	"github.com/kelseyhightower/envconfig"
)

// DefaultStatement is the text shown above the nonce in the login message
const DefaultStatement = "Sign in with your wallet. This request will not trigger a blockchain transaction or cost any gas fees."

// Config is the backend server configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Host         string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"3306"`
	User            string        `envconfig:"DB_USER" default:"app"`
	Password        string        `envconfig:"DB_PASSWORD" default:"apppassword"`
	Name            string        `envconfig:"DB_NAME" default:"walletlogin"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	PoolSize    int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
}

// Client maps the settings onto the Redis client package
func (c RedisConfig) Client() pkgredis.Config {
	return pkgredis.Config{
		Host:        c.Host,
		Port:        c.Port,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
		ReadTimeout: c.ReadTimeout,
		PoolSize:    c.PoolSize,
	}
}

type AuthConfig struct {
	JWTSecret string        `envconfig:"AUTH_JWT_SECRET" required:"true"`
	Issuer    string        `envconfig:"AUTH_ISSUER" default:"walletlogin"`
	TokenTTL  time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"24h"`
	NonceTTL  time.Duration `envconfig:"AUTH_NONCE_TTL" default:"5m"`
	Statement string        `envconfig:"LOGIN_STATEMENT"`
}

// Load reads the backend configuration from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.Statement == "" {
		cfg.Auth.Statement = DefaultStatement
	}
	return &cfg, nil
}

// ClientConfig is the terminal client configuration
type ClientConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogFile     string `envconfig:"LOG_FILE" default:"walletlogin.log"`

	BackendURL     string        `envconfig:"BACKEND_URL" default:"http://localhost:8080/api"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"15s"`
	Statement      string        `envconfig:"LOGIN_STATEMENT"`

	// SessionStore selects where the login record is kept: file or redis
	SessionStore string `envconfig:"SESSION_STORE" default:"file"`
	SessionFile  string `envconfig:"SESSION_FILE" default:"walletlogin-session.json"`
	SessionKey   string `envconfig:"SESSION_KEY" default:"wallet-login-manager"`
	Redis        RedisConfig

	KeystoreDir        string `envconfig:"KEYSTORE_DIR" default:""`
	KeystorePassphrase string `envconfig:"KEYSTORE_PASSPHRASE" default:""`
	DevPrivateKey      string `envconfig:"DEV_PRIVATE_KEY" default:""`

	WalletConnectBridge      string        `envconfig:"WALLETCONNECT_BRIDGE" default:""`
	WalletConnectReadTimeout time.Duration `envconfig:"WALLETCONNECT_READ_TIMEOUT" default:"5m"`

	// ChainRPCURLs holds chainID:url pairs, e.g. "1:https://eth.llamarpc.com,8453:https://mainnet.base.org"
	ChainRPCURLs   []string      `envconfig:"CHAIN_RPC_URLS" default:""`
	TxTimeout      time.Duration `envconfig:"TX_TIMEOUT" default:"2m"`
	TxPollInterval time.Duration `envconfig:"TX_POLL_INTERVAL" default:"1s"`
}

// Chains parses ChainRPCURLs into a chain id -> rpc url map
func (c ClientConfig) Chains() (map[int64]string, error) {
	chains := make(map[int64]string, len(c.ChainRPCURLs))
	for _, pair := range c.ChainRPCURLs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, ":")
		if idx <= 0 || idx == len(pair)-1 {
			return nil, fmt.Errorf("invalid CHAIN_RPC_URLS entry %q: want chainID:url", pair)
		}
		id, err := strconv.ParseInt(pair[:idx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id in %q: %w", pair, err)
		}
		chains[id] = pair[idx+1:]
	}
	return chains, nil
}

// LoadClient reads the terminal client configuration from the environment
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}
	if cfg.Statement == "" {
		cfg.Statement = DefaultStatement
	}
	switch cfg.SessionStore {
	case "file", "redis", "memory":
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE %q", cfg.SessionStore)
	}
	return &cfg, nil
}
