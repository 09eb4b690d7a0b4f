package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Map            MapConfig            `mapstructure:"map"`
	AniList        AniListConfig        `mapstructure:"anilist"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type CatalogConfig struct {
	// Source is "file" or "postgres".
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
	Table  string `mapstructure:"table"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MapTTL     time.Duration `mapstructure:"map_ttl"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		RecommendationsServed string `mapstructure:"recommendations_served"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RecommendationConfig struct {
	DefaultK int `mapstructure:"default_k"`
	MaxK     int `mapstructure:"max_k"`
	// SharedAttributes is "candidate" or "intersection".
	SharedAttributes string `mapstructure:"shared_attributes"`
	MaxFeatures      int    `mapstructure:"max_features"`
	Seed             int64  `mapstructure:"seed"`
}

type MapConfig struct {
	DefaultLimit     int `mapstructure:"default_limit"`
	DefaultNeighbors int `mapstructure:"default_neighbors"`
}

type AniListConfig struct {
	URL       string        `mapstructure:"url"`
	PerPage   int           `mapstructure:"per_page"`
	MaxPages  int           `mapstructure:"max_pages"`
	Interval  time.Duration `mapstructure:"interval"`
	LongPause time.Duration `mapstructure:"long_pause"`
	Output    string        `mapstructure:"output"`
}

type SecurityConfig struct {
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is a per-client-IP token bucket. Zero RequestsPerSecond
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Catalog defaults
	viper.SetDefault("catalog.source", "file")
	viper.SetDefault("catalog.path", "anime_data.json")
	viper.SetDefault("catalog.table", "anime")

	// Database defaults
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")
	viper.SetDefault("redis.map_ttl", "30m")

	// Kafka defaults
	viper.SetDefault("kafka.topics.recommendations_served", "recommendations-served")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Recommendation defaults
	viper.SetDefault("recommendation.default_k", 10)
	viper.SetDefault("recommendation.max_k", 100)
	viper.SetDefault("recommendation.shared_attributes", "candidate")
	viper.SetDefault("recommendation.max_features", 300)
	viper.SetDefault("recommendation.seed", 42)

	// Map defaults
	viper.SetDefault("map.default_limit", 180)
	viper.SetDefault("map.default_neighbors", 5)

	// AniList fetcher defaults
	viper.SetDefault("anilist.url", "https://graphql.anilist.co")
	viper.SetDefault("anilist.per_page", 50)
	viper.SetDefault("anilist.max_pages", 200)
	viper.SetDefault("anilist.interval", "1s")
	viper.SetDefault("anilist.long_pause", "60s")
	viper.SetDefault("anilist.output", "anime_data.json")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"http://localhost:5173", "https://recurate-woad.vercel.app"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
	viper.SetDefault("security.rate_limit.requests_per_second", 20)
	viper.SetDefault("security.rate_limit.burst", 40)
}
