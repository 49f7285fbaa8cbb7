// Ininicializing common application configuration
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	App     AppConfig     `mapstructure:"app"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Storage StorageConfig `mapstructure:"storage"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
}

type ServerConfig struct {
	AppVersion   string `json:"appVersion"`
	Host         string `json:"host" validate:"required"`
	Port         string `json:"port" validate:"required"`
	Timeout      time.Duration
	Idle_timeout time.Duration
	Env          string `json:"environment"`
	Mode         string `mapstructure:"mode"`
}

type AppConfig struct {
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type StorageConfig struct {
	Type  string      `mapstructure:"type"` // local | minio
	Local LocalConfig `mapstructure:"local"`
	Minio MinioConfig `mapstructure:"minio"`
}

type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type AuthConfig struct {
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	FallbackMode string        `mapstructure:"fallback_mode"` // permissive | restrictive
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	Enabled bool   `mapstructure:"enabled"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	err := viperInstance.ReadInConfig()

	if err != nil {
		return nil, err
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		log.Fatalf("unable to decode config into struct, %v", err)
		return nil, err
	}

	c.applyEnvOverrides()
	return &c, nil
}

// applyEnvOverrides wires the operator switches named at the auth
// boundary: AUTH_SERVICE_URL, AUTH_TIMEOUT, AUTH_MAX_RETRIES and
// AUTH_FALLBACK_MODE always win over the yaml values.
func (c *Config) applyEnvOverrides() {
	c.Auth.URL = GetEnv("AUTH_SERVICE_URL", c.Auth.URL)
	c.Auth.FallbackMode = GetEnv("AUTH_FALLBACK_MODE", c.Auth.FallbackMode)
	c.Auth.MaxRetries = GetEnvInt("AUTH_MAX_RETRIES", c.Auth.MaxRetries)

	if value := os.Getenv("AUTH_TIMEOUT"); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			c.Auth.Timeout = d
		}
	}
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
