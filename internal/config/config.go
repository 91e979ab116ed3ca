package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// DefaultUserAgent is the default User-Agent string sent with all HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:147.0) Gecko/20100101 Firefox/147.0"

// DefaultTitulkyDomain is the base URL of the subtitle site.
const DefaultTitulkyDomain = "https://www.titulky.com"

type Config struct {
	TitulkyDomain         string `mapstructure:"titulky_domain"`
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"` // held in memory only, never logged
	ProxyConnectionString string `mapstructure:"proxy_connection_string"`
	ClientTimeout         string `mapstructure:"client_timeout"` // Go duration string like "30s"
	UserAgent             string `mapstructure:"user_agent"`
	LoginFreshness        string `mapstructure:"login_freshness"`   // re-login window, e.g. "30m"
	CaptchaCooldown       string `mapstructure:"captcha_cooldown"`  // sticky captcha flag cooldown
	MinArchiveBytes       int    `mapstructure:"min_archive_bytes"` // smaller downloads are treated as failed
	OmdbAPIKey            string `mapstructure:"omdb_api_key"`
	SentryDSN             string `mapstructure:"sentry_dsn"`
	LogLevel              string `mapstructure:"log_level"`
	Server                struct {
		Port    int    `mapstructure:"port"`
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Sessions struct {
		Size int    `mapstructure:"size"` // maximum number of cached user sessions
		TTL  string `mapstructure:"ttl"`  // idle eviction, Go duration string
	} `mapstructure:"sessions"`
	Cache struct {
		Provider      string `mapstructure:"provider"` // "memory" or "redis"
		Size          int    `mapstructure:"size"`
		TTL           string `mapstructure:"ttl"`
		RedisAddress  string `mapstructure:"redis_address"`
		RedisPassword string `mapstructure:"redis_password"`
		RedisDB       int    `mapstructure:"redis_db"`
	} `mapstructure:"cache"`
}

var (
	globalConfig *Config
	logger       zerolog.Logger
)

func init() {
	// Initialize zerolog with console writer for human-readable output
	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:     os.Stdout,
		NoColor: false,
	}).With().Timestamp().Logger()

	config, err := LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	level := zerolog.InfoLevel // default
	if config.LogLevel != "" {
		if parsedLevel, err := zerolog.ParseLevel(config.LogLevel); err == nil {
			level = parsedLevel
		} else {
			logger.Warn().Str("invalid_level", config.LogLevel).Msg("Invalid log level, using default 'info'")
		}
	}

	zerolog.SetGlobalLevel(level)
	logger = logger.Level(level)

	globalConfig = config
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variable support
	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.BindEnv("log_level", "LOG_LEVEL")
	_ = viper.BindEnv("username", "TITULKY_USERNAME")
	_ = viper.BindEnv("password", "TITULKY_PASSWORD")

	viper.SetDefault("titulky_domain", DefaultTitulkyDomain)
	viper.SetDefault("client_timeout", "30s")
	viper.SetDefault("login_freshness", "30m")
	viper.SetDefault("captcha_cooldown", "15m")
	// The site serves tiny error pages instead of archives when a download is
	// rejected; anything under this size is not a real archive.
	viper.SetDefault("min_archive_bytes", 50)
	viper.SetDefault("server.port", 7000)
	viper.SetDefault("server.address", "0.0.0.0")
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("sessions.size", 100)
	viper.SetDefault("sessions.ttl", "2h")
	viper.SetDefault("cache.provider", "memory")
	viper.SetDefault("cache.size", 200)
	viper.SetDefault("cache.ttl", "1h")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	return &config, nil
}

func GetConfig() *Config {
	return globalConfig
}

func GetUserAgent() string {
	if globalConfig != nil && globalConfig.UserAgent != "" {
		return globalConfig.UserAgent
	}

	return DefaultUserAgent
}

func GetLogger() zerolog.Logger {
	return logger
}

// ParseDurationOr parses a Go duration string, falling back to def when the
// value is empty or malformed.
func ParseDurationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn().Str("duration", value).Err(err).Msg("Invalid duration, using default")
		return def
	}
	return d
}
