package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is built once in main and handed to every service. Nothing in the
// codebase reads viper after startup.
type Config struct {
	BalanceCeiling    int64 // maximum balance an account may hold, minor units
	MaxTransferAmount int64 // per-transfer cap, minor units
	MaxPageSize       int
	DefaultPageSize   int

	JWTSecret        string
	JWTExpiryMinutes int

	Argon2 Argon2Config
}

// Argon2Config holds password hashing parameters.
type Argon2Config struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength int
}

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Load returns the service configuration with defaults applied.
func Load() *Config {
	viper.SetDefault("ledger.balance_ceiling", 120000)
	viper.SetDefault("ledger.max_transfer_amount", 50000)
	viper.SetDefault("ledger.max_page_size", 50)
	viper.SetDefault("ledger.default_page_size", 10)

	viper.SetDefault("jwt.expiry_minutes", 10)

	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	return &Config{
		BalanceCeiling:    viper.GetInt64("ledger.balance_ceiling"),
		MaxTransferAmount: viper.GetInt64("ledger.max_transfer_amount"),
		MaxPageSize:       viper.GetInt("ledger.max_page_size"),
		DefaultPageSize:   viper.GetInt("ledger.default_page_size"),
		JWTSecret:         viper.GetString("jwt.secret_key"),
		JWTExpiryMinutes:  viper.GetInt("jwt.expiry_minutes"),
		Argon2: Argon2Config{
			Time:       uint32(viper.GetInt("argon2.time")),
			Memory:     uint32(viper.GetInt("argon2.memory")),
			Threads:    uint8(viper.GetInt("argon2.threads")),
			KeyLength:  uint32(viper.GetInt("argon2.key_length")),
			SaltLength: viper.GetInt("argon2.salt_length"),
		},
	}
}

// LoadDB returns database configuration with defaults
func LoadDB() *DBConfig {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "pokebank")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	return &DBConfig{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetString("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		Name:            viper.GetString("database.name"),
		SSLMode:         viper.GetString("database.ssl_mode"),
		MaxOpenConns:    viper.GetInt("database.max_open_conns"),
		MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
	}
}
