package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Adda-Baaj/broker-scraper/internal/processor"
	"github.com/Adda-Baaj/broker-scraper/pkg/discovery"
	"github.com/Adda-Baaj/broker-scraper/pkg/httpclient"
	"github.com/Adda-Baaj/broker-scraper/pkg/resources"
)

// EnvPrefix is prepended to every environment override, e.g. SCRAPER_CACHE_DIR.
const EnvPrefix = "SCRAPER"

// DefaultWebsites are crawled when no site list is configured.
var DefaultWebsites = []string{
	"http://livemint.com/",
	"https://www.bloomberg.com/asia",
	"https://www.marketwatch.com/",
	"https://www.reuters.com/business/finance/",
	"https://www.cnbctv18.com/",
}

// Config is the full runtime configuration.
type Config struct {
	Websites       []string            `mapstructure:"websites"`
	Count          int                 `mapstructure:"count"`
	MaxArticles    int                 `mapstructure:"max_articles"`
	Language       string              `mapstructure:"language"`
	UserAgent      string              `mapstructure:"user_agent"`
	HTTPTimeout    time.Duration       `mapstructure:"http_timeout"`
	RequestDelay   time.Duration       `mapstructure:"request_delay"`
	OutputFile     string              `mapstructure:"output_file"`
	PublishersFile string              `mapstructure:"publishers_file"`
	Cache          CacheConfig         `mapstructure:"cache"`
	Resources      ResourcesConfig     `mapstructure:"resources"`
	Discovery      DiscoveryConfig     `mapstructure:"discovery"`
	Blocklist      processor.Blocklist `mapstructure:"blocklist"`
	Log            LogConfig           `mapstructure:"log"`
	Server         ServerConfig        `mapstructure:"server"`
}

// CacheConfig locates the discovery cache.
type CacheConfig struct {
	Dir string        `mapstructure:"dir"`
	TTL time.Duration `mapstructure:"ttl"`
}

// ResourcesConfig controls where language resources are looked up and fetched from.
type ResourcesConfig struct {
	Dir         string               `mapstructure:"dir"`
	SearchPaths []string             `mapstructure:"search_paths"`
	BaseURL     string               `mapstructure:"base_url"`
	Items       []resources.Resource `mapstructure:"items"`
}

// DiscoveryConfig tunes site crawling.
type DiscoveryConfig struct {
	Strategies    []string `mapstructure:"strategies"`
	MaxCategories int      `mapstructure:"max_categories"`
	MaxSitemaps   int      `mapstructure:"max_sitemaps"`
	RespectRobots bool     `mapstructure:"respect_robots"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	disc := discovery.DefaultOptions()
	bl := processor.DefaultBlocklist()

	v.SetDefault("websites", DefaultWebsites)
	v.SetDefault("count", 5)
	v.SetDefault("max_articles", 1500)
	v.SetDefault("language", "en")
	v.SetDefault("user_agent", httpclient.DefaultUserAgent)
	v.SetDefault("http_timeout", 15*time.Second)
	v.SetDefault("request_delay", time.Duration(0))
	v.SetDefault("output_file", "articles.json")
	v.SetDefault("publishers_file", "")
	v.SetDefault("cache.dir", ".scraper_cache")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("resources.dir", "nltk_data")
	v.SetDefault("resources.search_paths", []string{})
	v.SetDefault("resources.base_url", resources.DefaultBaseURL)
	v.SetDefault("resources.items", resources.Defaults())
	v.SetDefault("discovery.strategies", disc.Strategies)
	v.SetDefault("discovery.max_categories", disc.MaxCategories)
	v.SetDefault("discovery.max_sitemaps", disc.MaxSitemaps)
	v.SetDefault("discovery.respect_robots", false)
	v.SetDefault("blocklist.brands", bl.Brands)
	v.SetDefault("blocklist.texts", bl.Texts)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.addr", ":8080")
}

// Load reads configuration from defaults, an optional file, .env and SCRAPER_* environment
// variables, in increasing precedence. An empty path looks for config.{yaml,yml,json} in the
// working directory and tolerates its absence.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	c.Websites = splitList(c.Websites)
	c.Resources.SearchPaths = splitList(c.Resources.SearchPaths)
	c.Discovery.Strategies = splitList(c.Discovery.Strategies)
	for i, s := range c.Discovery.Strategies {
		c.Discovery.Strategies[i] = strings.ToLower(s)
	}
	c.Blocklist.Brands = splitList(c.Blocklist.Brands)
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// splitList trims entries, splits comma-joined values from env overrides and drops empties.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if len(c.Websites) == 0 {
		return errors.New("config: websites must list at least one site")
	}
	for _, s := range c.Discovery.Strategies {
		switch s {
		case discovery.StrategyHomepage, discovery.StrategyFeeds, discovery.StrategySitemaps:
		default:
			return fmt.Errorf("config: unknown discovery strategy %q", s)
		}
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("config: request_delay must not be negative, got %s", c.RequestDelay)
	}
	if strings.TrimSpace(c.Resources.Dir) == "" {
		return errors.New("config: resources.dir is required")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// DiscoveryOptions maps the configuration onto crawler options.
func (c Config) DiscoveryOptions() discovery.Options {
	return discovery.Options{
		Language:      c.Language,
		UserAgent:     c.UserAgent,
		Timeout:       c.HTTPTimeout,
		Strategies:    c.Discovery.Strategies,
		MaxCategories: c.Discovery.MaxCategories,
		MaxSitemaps:   c.Discovery.MaxSitemaps,
		RespectRobots: c.Discovery.RespectRobots,
	}
}
