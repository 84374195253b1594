package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigFileEnv names the environment variable pointing at an optional TOML
// file. Values from the environment override the file.
const ConfigFileEnv = "LISTING_CONFIG"

type Config struct {
	Paths    PathsConfig
	Browser  BrowserConfig
	Scraper  ScraperConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type PathsConfig struct {
	Template    string
	Input       string
	OutputDir   string
	Summary     string
	SnapshotDir string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgent      string
	NavRetries     int
}

type ScraperConfig struct {
	ReadyTimeout time.Duration
	MaxClicks    int
	MaxStalls    int
	PauseMin     time.Duration
	PauseMax     time.Duration
	MaxRetries   int
	RenderHTML   bool
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	Stream        string
	RelayInterval time.Duration
	RelayBatch    int
	// StreamMaxLen trims the listing stream to about this many entries.
	StreamMaxLen int
	// RequestStream carries scrape requests for the consume command.
	RequestStream string
	ConsumerGroup string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Template:  "product_template.json",
			Input:     "urls.csv",
			OutputDir: "products",
			Summary:   "products.csv",
		},
		Browser: BrowserConfig{
			Headless:       true,
			Timeout:        30 * time.Second,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			AcceptLanguage: "en-GB,en;q=0.9",
			TimezoneID:     "Europe/London",
			Locale:         "en-GB",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			NavRetries:     2,
		},
		Scraper: ScraperConfig{
			ReadyTimeout: 30 * time.Second,
			MaxClicks:    30,
			MaxStalls:    2,
			PauseMin:     time.Second,
			PauseMax:     2 * time.Second,
			MaxRetries:   1,
			RenderHTML:   true,
		},
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			DBName:   "listings",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			Stream:        "stream:listings",
			RelayInterval: 5 * time.Second,
			RelayBatch:    100,
			RequestStream: "stream:scrape_requests",
			ConsumerGroup: "listing-builder",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, then the TOML file named by
// path (or LISTING_CONFIG when path is empty), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Paths = PathsConfig{
		Template:    getEnvOrDefault("LISTING_TEMPLATE", c.Paths.Template),
		Input:       getEnvOrDefault("LISTING_INPUT", c.Paths.Input),
		OutputDir:   getEnvOrDefault("LISTING_OUTPUT_DIR", c.Paths.OutputDir),
		Summary:     getEnvOrDefault("LISTING_SUMMARY", c.Paths.Summary),
		SnapshotDir: getEnvOrDefault("LISTING_SNAPSHOT_DIR", c.Paths.SnapshotDir),
	}
	c.Browser = BrowserConfig{
		Headless:       getBoolOrDefault("BROWSER_HEADLESS", c.Browser.Headless),
		Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", c.Browser.Timeout),
		ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", c.Browser.ViewportWidth),
		ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", c.Browser.ViewportHeight),
		AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", c.Browser.AcceptLanguage),
		TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", c.Browser.TimezoneID),
		Locale:         getEnvOrDefault("BROWSER_LOCALE", c.Browser.Locale),
		UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", c.Browser.UserAgent),
		NavRetries:     getIntOrDefault("BROWSER_NAV_RETRIES", c.Browser.NavRetries),
	}
	c.Scraper = ScraperConfig{
		ReadyTimeout: getDurationOrDefault("SCRAPER_READY_TIMEOUT", c.Scraper.ReadyTimeout),
		MaxClicks:    getIntOrDefault("SCRAPER_MAX_CLICKS", c.Scraper.MaxClicks),
		MaxStalls:    getIntOrDefault("SCRAPER_MAX_STALLS", c.Scraper.MaxStalls),
		PauseMin:     getDurationOrDefault("SCRAPER_PAUSE_MIN", c.Scraper.PauseMin),
		PauseMax:     getDurationOrDefault("SCRAPER_PAUSE_MAX", c.Scraper.PauseMax),
		MaxRetries:   getIntOrDefault("SCRAPER_MAX_RETRIES", c.Scraper.MaxRetries),
		RenderHTML:   getBoolOrDefault("SCRAPER_RENDER_HTML", c.Scraper.RenderHTML),
	}
	c.Server = ServerConfig{
		Port:            getEnvOrDefault("SERVER_PORT", c.Server.Port),
		Host:            getEnvOrDefault("SERVER_HOST", c.Server.Host),
		ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", c.Server.ReadTimeout),
		WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout),
		ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout),
	}
	c.Database = DatabaseConfig{
		Enabled:  getBoolOrDefault("DB_ENABLED", c.Database.Enabled),
		Host:     getEnvOrDefault("DB_HOST", c.Database.Host),
		Port:     getIntOrDefault("DB_PORT", c.Database.Port),
		User:     getEnvOrDefault("DB_USER", c.Database.User),
		Password: getEnvOrDefault("DB_PASSWORD", c.Database.Password),
		DBName:   getEnvOrDefault("DB_NAME", c.Database.DBName),
		SSLMode:  getEnvOrDefault("DB_SSL_MODE", c.Database.SSLMode),
		MaxConns: getIntOrDefault("DB_MAX_CONNS", c.Database.MaxConns),
	}
	c.Redis = RedisConfig{
		Addr:          getEnvOrDefault("REDIS_ADDR", c.Redis.Addr),
		Password:      getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password),
		DB:            getIntOrDefault("REDIS_DB", c.Redis.DB),
		Stream:        getEnvOrDefault("REDIS_STREAM", c.Redis.Stream),
		RelayInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", c.Redis.RelayInterval),
		RelayBatch:    getIntOrDefault("RELAY_BATCH_SIZE", c.Redis.RelayBatch),
		StreamMaxLen:  getIntOrDefault("REDIS_STREAM_MAXLEN", c.Redis.StreamMaxLen),
		RequestStream: getEnvOrDefault("REDIS_REQUEST_STREAM", c.Redis.RequestStream),
		ConsumerGroup: getEnvOrDefault("REDIS_CONSUMER_GROUP", c.Redis.ConsumerGroup),
	}
	c.Logging = LoggingConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", c.Logging.Level),
		Format: getEnvOrDefault("LOG_FORMAT", c.Logging.Format),
	}
}

func (c *Config) Validate() error {
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("LISTING_OUTPUT_DIR must not be empty")
	}

	if c.Scraper.MaxClicks < 1 {
		return fmt.Errorf("SCRAPER_MAX_CLICKS must be at least 1")
	}

	if c.Scraper.MaxStalls < 1 {
		return fmt.Errorf("SCRAPER_MAX_STALLS must be at least 1")
	}

	if c.Scraper.PauseMin > c.Scraper.PauseMax {
		return fmt.Errorf("SCRAPER_PAUSE_MIN cannot be greater than SCRAPER_PAUSE_MAX")
	}

	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

// DSN is the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// Address is the listen address for the preview server.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
