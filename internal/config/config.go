package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

const (
	ServiceName    = "storefront"
	ServiceVersion = "0.1.0"
)

type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// MySQLConfig describes the store connection. DSN, when set, wins over the
// discrete fields.
type MySQLConfig struct {
	DSN             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	IOTimeout       time.Duration
	RunMigrations   bool
}

// RedisConfig leaves caching disabled when Addr is empty.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

type CacheConfig struct {
	TTL       time.Duration
	OpTimeout time.Duration
}

type OrderConfig struct {
	StoreTimeout   time.Duration
	CommitAttempts int
}

type Config struct {
	Server       ServerConfig
	MySQL        MySQLConfig
	Redis        RedisConfig
	Cache        CacheConfig
	Order        OrderConfig
	LogLevel     string
	OtelEndpoint string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", ":50051")
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("mysql_dsn", "")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 3306)
	v.SetDefault("db_user", "root")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "storefront")
	v.SetDefault("db_max_open_conns", 50)
	v.SetDefault("db_max_idle_conns", 25)
	v.SetDefault("db_conn_max_lifetime", 5*time.Minute)
	v.SetDefault("db_dial_timeout", 5*time.Second)
	v.SetDefault("db_io_timeout", 10*time.Second)
	v.SetDefault("run_migrations", true)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_pool_size", 100)
	v.SetDefault("redis_timeout", 500*time.Millisecond)

	v.SetDefault("cache_ttl", 300*time.Second)
	v.SetDefault("cache_timeout", 500*time.Millisecond)

	v.SetDefault("store_timeout", 5*time.Second)
	v.SetDefault("order_commit_attempts", 3)

	v.SetDefault("log_level", "info")
	v.SetDefault("otel_endpoint", "")
}

// Load reads configuration from the environment and, when CONFIG_FILE is
// set, from that file. Environment variables take precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:        v.GetString("http_addr"),
			GRPCAddr:        v.GetString("grpc_addr"),
			RequestTimeout:  v.GetDuration("request_timeout"),
			ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		},
		MySQL: MySQLConfig{
			DSN:             v.GetString("mysql_dsn"),
			Host:            v.GetString("db_host"),
			Port:            v.GetInt("db_port"),
			User:            v.GetString("db_user"),
			Password:        v.GetString("db_password"),
			Name:            v.GetString("db_name"),
			MaxOpenConns:    v.GetInt("db_max_open_conns"),
			MaxIdleConns:    v.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db_conn_max_lifetime"),
			DialTimeout:     v.GetDuration("db_dial_timeout"),
			IOTimeout:       v.GetDuration("db_io_timeout"),
			RunMigrations:   v.GetBool("run_migrations"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
			PoolSize: v.GetInt("redis_pool_size"),
			Timeout:  v.GetDuration("redis_timeout"),
		},
		Cache: CacheConfig{
			TTL:       v.GetDuration("cache_ttl"),
			OpTimeout: v.GetDuration("cache_timeout"),
		},
		Order: OrderConfig{
			StoreTimeout:   v.GetDuration("store_timeout"),
			CommitAttempts: v.GetInt("order_commit_attempts"),
		},
		LogLevel:     strings.ToLower(v.GetString("log_level")),
		OtelEndpoint: v.GetString("otel_endpoint"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR must not be empty"))
	}
	if c.MySQL.DSN == "" && c.MySQL.Name == "" {
		errs = append(errs, errors.New("either MYSQL_DSN or DB_NAME is required"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL))
	}
	if c.Order.CommitAttempts < 1 {
		errs = append(errs, fmt.Errorf("ORDER_COMMIT_ATTEMPTS must be at least 1, got %d", c.Order.CommitAttempts))
	}
	if c.Order.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STORE_TIMEOUT must be positive, got %s", c.Order.StoreTimeout))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

// FormatDSN returns the driver DSN with time parsing and the configured
// network timeouts applied.
func (m MySQLConfig) FormatDSN() (string, error) {
	var (
		cfg *mysql.Config
		err error
	)
	if m.DSN != "" {
		cfg, err = mysql.ParseDSN(m.DSN)
		if err != nil {
			return "", fmt.Errorf("invalid MYSQL_DSN: %w", err)
		}
	} else {
		cfg = mysql.NewConfig()
		cfg.User = m.User
		cfg.Passwd = m.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(m.Host, fmt.Sprint(m.Port))
		cfg.DBName = m.Name
	}

	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = m.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = m.IOTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = m.IOTimeout
	}

	return cfg.FormatDSN(), nil
}
