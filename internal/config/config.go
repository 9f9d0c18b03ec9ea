// Package config loads the settings from flags and LAZYTEMPLATE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageFilesystem = "fs"
	StorageS3         = "s3"
	StorageRedis      = "redis"
	StorageSQLite     = "sqlite"
)

const envPrefix = "LAZYTEMPLATE"

// Config holds the settings of the server and of the template commands.
type Config struct {
	Addr      string
	ServerURL string
	LogLevel  string

	Storage       string
	DataDir       string
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	StorageSecret string

	URLSigningSecret string
	EnableDatadog    bool
	RateLimit        float64
	RateBurst        int
}

// Default configuration.
func Default() Config {
	return Config{
		Addr:      ":8080",
		ServerURL: "http://127.0.0.1:8080",
		LogLevel:  "info",
		Storage:   StorageFilesystem,
		DataDir:   "templates",
		RateLimit: 5,
		RateBurst: 10,
	}
}

// BindFlags defines the flags at the set.
func BindFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("addr", d.Addr, "address the server listens on")
	flags.String("server-url", d.ServerURL, "template server used by the template commands")
	flags.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	flags.String("storage", d.Storage, "template storage: fs, s3, redis or sqlite")
	flags.String("data-dir", d.DataDir, "directory of the fs and sqlite storages")
	flags.String("s3-bucket", d.S3Bucket, "bucket of the s3 storage")
	flags.String("s3-region", d.S3Region, "region of the s3 bucket")
	flags.String("s3-prefix", d.S3Prefix, "key prefix at the s3 bucket")
	flags.String("redis-addr", d.RedisAddr, "address of the redis storage")
	flags.String("redis-username", d.RedisUsername, "username of the redis storage")
	flags.String("redis-password", d.RedisPassword, "password of the redis storage")
	flags.String("storage-secret", d.StorageSecret, "AES key used to encrypt the stored templates, empty disables it")
	flags.String("url-signing-secret", d.URLSigningSecret, "secret used to sign the template download urls")
	flags.Bool("enable-datadog", d.EnableDatadog, "send traces to datadog")
	flags.Float64("rate-limit", d.RateLimit, "requests per second accepted by the document routes, 0 disables it")
	flags.Int("rate-burst", d.RateBurst, "burst accepted by the document routes")
}

// Load reads the configuration. Flags set explicitly win over the environment, which wins over the defaults.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, fmt.Errorf("fail to bind the flags: %w", err)
	}

	cfg := Config{
		Addr:             v.GetString("addr"),
		ServerURL:        v.GetString("server-url"),
		LogLevel:         v.GetString("log-level"),
		Storage:          v.GetString("storage"),
		DataDir:          v.GetString("data-dir"),
		S3Bucket:         v.GetString("s3-bucket"),
		S3Region:         v.GetString("s3-region"),
		S3Prefix:         v.GetString("s3-prefix"),
		RedisAddr:        v.GetString("redis-addr"),
		RedisUsername:    v.GetString("redis-username"),
		RedisPassword:    v.GetString("redis-password"),
		StorageSecret:    v.GetString("storage-secret"),
		URLSigningSecret: v.GetString("url-signing-secret"),
		EnableDatadog:    v.GetBool("enable-datadog"),
		RateLimit:        v.GetFloat64("rate-limit"),
		RateBurst:        v.GetInt("rate-burst"),
	}
	return cfg, nil
}

// Validate the settings needed to run the server.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr can't be empty")
	}
	if c.URLSigningSecret == "" {
		return errors.New("url-signing-secret can't be empty")
	}
	if _, err := c.Level(); err != nil {
		return err
	}

	switch c.Storage {
	case StorageFilesystem, StorageSQLite:
		if c.DataDir == "" {
			return fmt.Errorf("data-dir can't be empty with the '%s' storage", c.Storage)
		}
	case StorageS3:
		if c.S3Bucket == "" {
			return errors.New("s3-bucket can't be empty with the 's3' storage")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("redis-addr can't be empty with the 'redis' storage")
		}
	default:
		return fmt.Errorf("unknown storage '%s'", c.Storage)
	}

	if n := len(c.StorageSecret); n != 0 && n != 16 && n != 24 && n != 32 {
		return errors.New("storage-secret must have 16, 24 or 32 bytes")
	}
	if c.RateLimit < 0 {
		return errors.New("rate-limit can't be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return errors.New("rate-burst must be at least 1")
	}
	return nil
}

// Level parses the log level.
func (c Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log-level '%s': %w", c.LogLevel, err)
	}
	return level, nil
}
