package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration accepts Go duration strings such as "2s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// fileConfig mirrors Config for TOML decoding. Only keys present in the file
// are applied.
type fileConfig struct {
	Paths struct {
		Template    string `toml:"template"`
		Input       string `toml:"input"`
		OutputDir   string `toml:"output_dir"`
		Summary     string `toml:"summary"`
		SnapshotDir string `toml:"snapshot_dir"`
	} `toml:"paths"`
	Browser struct {
		Headless       *bool     `toml:"headless"`
		Timeout        *Duration `toml:"timeout"`
		ViewportWidth  int       `toml:"viewport_width"`
		ViewportHeight int       `toml:"viewport_height"`
		AcceptLanguage string    `toml:"accept_language"`
		TimezoneID     string    `toml:"timezone"`
		Locale         string    `toml:"locale"`
		UserAgent      string    `toml:"user_agent"`
		NavRetries     int       `toml:"nav_retries"`
	} `toml:"browser"`
	Scraper struct {
		ReadyTimeout *Duration `toml:"ready_timeout"`
		MaxClicks    int       `toml:"max_clicks"`
		MaxStalls    int       `toml:"max_stalls"`
		PauseMin     *Duration `toml:"pause_min"`
		PauseMax     *Duration `toml:"pause_max"`
		MaxRetries   *int      `toml:"max_retries"`
		RenderHTML   *bool     `toml:"render_html"`
	} `toml:"scraper"`
	Server struct {
		Port            string    `toml:"port"`
		Host            string    `toml:"host"`
		ReadTimeout     *Duration `toml:"read_timeout"`
		WriteTimeout    *Duration `toml:"write_timeout"`
		ShutdownTimeout *Duration `toml:"shutdown_timeout"`
	} `toml:"server"`
	Database struct {
		Enabled  *bool  `toml:"enabled"`
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		DBName   string `toml:"name"`
		SSLMode  string `toml:"ssl_mode"`
		MaxConns int    `toml:"max_conns"`
	} `toml:"database"`
	Redis struct {
		Addr          string    `toml:"addr"`
		Password      string    `toml:"password"`
		DB            *int      `toml:"db"`
		Stream        string    `toml:"stream"`
		RelayInterval *Duration `toml:"relay_interval"`
		RelayBatch    int       `toml:"relay_batch"`
		StreamMaxLen  int       `toml:"stream_maxlen"`
		RequestStream string    `toml:"request_stream"`
		ConsumerGroup string    `toml:"consumer_group"`
	} `toml:"redis"`
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f fileConfig
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Paths.Template, f.Paths.Template)
	setString(&c.Paths.Input, f.Paths.Input)
	setString(&c.Paths.OutputDir, f.Paths.OutputDir)
	setString(&c.Paths.Summary, f.Paths.Summary)
	setString(&c.Paths.SnapshotDir, f.Paths.SnapshotDir)

	setBool(&c.Browser.Headless, f.Browser.Headless)
	setDuration(&c.Browser.Timeout, f.Browser.Timeout)
	setInt(&c.Browser.ViewportWidth, f.Browser.ViewportWidth)
	setInt(&c.Browser.ViewportHeight, f.Browser.ViewportHeight)
	setString(&c.Browser.AcceptLanguage, f.Browser.AcceptLanguage)
	setString(&c.Browser.TimezoneID, f.Browser.TimezoneID)
	setString(&c.Browser.Locale, f.Browser.Locale)
	setString(&c.Browser.UserAgent, f.Browser.UserAgent)
	setInt(&c.Browser.NavRetries, f.Browser.NavRetries)

	setDuration(&c.Scraper.ReadyTimeout, f.Scraper.ReadyTimeout)
	setInt(&c.Scraper.MaxClicks, f.Scraper.MaxClicks)
	setInt(&c.Scraper.MaxStalls, f.Scraper.MaxStalls)
	setDuration(&c.Scraper.PauseMin, f.Scraper.PauseMin)
	setDuration(&c.Scraper.PauseMax, f.Scraper.PauseMax)
	if f.Scraper.MaxRetries != nil {
		c.Scraper.MaxRetries = *f.Scraper.MaxRetries
	}
	setBool(&c.Scraper.RenderHTML, f.Scraper.RenderHTML)

	setString(&c.Server.Port, f.Server.Port)
	setString(&c.Server.Host, f.Server.Host)
	setDuration(&c.Server.ReadTimeout, f.Server.ReadTimeout)
	setDuration(&c.Server.WriteTimeout, f.Server.WriteTimeout)
	setDuration(&c.Server.ShutdownTimeout, f.Server.ShutdownTimeout)

	setBool(&c.Database.Enabled, f.Database.Enabled)
	setString(&c.Database.Host, f.Database.Host)
	setInt(&c.Database.Port, f.Database.Port)
	setString(&c.Database.User, f.Database.User)
	setString(&c.Database.Password, f.Database.Password)
	setString(&c.Database.DBName, f.Database.DBName)
	setString(&c.Database.SSLMode, f.Database.SSLMode)
	setInt(&c.Database.MaxConns, f.Database.MaxConns)

	setString(&c.Redis.Addr, f.Redis.Addr)
	setString(&c.Redis.Password, f.Redis.Password)
	if f.Redis.DB != nil {
		c.Redis.DB = *f.Redis.DB
	}
	setString(&c.Redis.Stream, f.Redis.Stream)
	setDuration(&c.Redis.RelayInterval, f.Redis.RelayInterval)
	setInt(&c.Redis.RelayBatch, f.Redis.RelayBatch)
	setInt(&c.Redis.StreamMaxLen, f.Redis.StreamMaxLen)
	setString(&c.Redis.RequestStream, f.Redis.RequestStream)
	setString(&c.Redis.ConsumerGroup, f.Redis.ConsumerGroup)

	setString(&c.Logging.Level, f.Logging.Level)
	setString(&c.Logging.Format, f.Logging.Format)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
