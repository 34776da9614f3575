// Ininicializing common application configuration
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	AppVersion     string        `mapstructure:"app_version"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Timeout        time.Duration `mapstructure:"timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Env            string        `mapstructure:"environment"`
	Mode           string        `mapstructure:"mode"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Настройки пула соединений
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// StorageConfig selects the backends. Drivers: memory, redis, postgres.
type StorageConfig struct {
	StateDriver   string `mapstructure:"state_driver"`
	CatalogDriver string `mapstructure:"catalog_driver"`
	BookingDriver string `mapstructure:"booking_driver"`
}

type BookingConfig struct {
	StorageKey     string        `mapstructure:"storage_key"`
	PaymentTimeout time.Duration `mapstructure:"payment_timeout"`
	StateTTL       time.Duration `mapstructure:"state_ttl"`
	MaxProofSize   int64         `mapstructure:"max_proof_size"`
}

type TrackingConfig struct {
	PageSize       int           `mapstructure:"page_size"`
	ReminderWindow time.Duration `mapstructure:"reminder_window"`
	ReminderEvery  time.Duration `mapstructure:"reminder_every"`
}

type WorkerConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
}

type QueueConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Prefix     string        `mapstructure:"prefix"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()
	setDefaults(viperInstance)

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	viperInstance.SetEnvPrefix("YOYE")
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	err := viperInstance.ReadInConfig()
	if err != nil {
		// без файла работаем на значениях по умолчанию и переменных окружения
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &c, nil
}

// GetServerAddress возвращает адрес сервера
func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setDefaults устанавливает значения по умолчанию
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "yoye")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "yoye_booking")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_timeout", 4*time.Second)

	v.SetDefault("storage.state_driver", "memory")
	v.SetDefault("storage.catalog_driver", "memory")
	v.SetDefault("storage.booking_driver", "memory")

	// Booking defaults
	v.SetDefault("booking.storage_key", "yoye_booking_state")
	v.SetDefault("booking.payment_timeout", 10*time.Minute)
	v.SetDefault("booking.state_ttl", 24*time.Hour)
	v.SetDefault("booking.max_proof_size", 10<<20)

	v.SetDefault("tracking.page_size", 5)
	v.SetDefault("tracking.reminder_window", 24*time.Hour)
	v.SetDefault("tracking.reminder_every", time.Hour)

	// Worker defaults
	v.SetDefault("worker.cleanup_interval", 30*time.Minute)
	v.SetDefault("worker.stale_after", 24*time.Hour)

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.prefix", "yoye_booking")
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.base_delay", 5*time.Second)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)

	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)
}
