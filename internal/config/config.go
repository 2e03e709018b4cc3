package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eiademand/internal/core"
)

const dateLayout = "2006-01-02"

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	TrustedProxies     []string

	// EIA API
	EIAAPIKey      string
	EIAPageLength  int
	EIAPageTimeout time.Duration
	DatasetsFile   string
	Datasets       core.Catalog

	// Defaults applied when a request leaves a field empty
	DefaultDataset     string
	DefaultStart       string
	DefaultEnd         string
	DefaultUnits       string
	DefaultTopN        int
	DefaultEasternOnly bool

	// Fetch cache
	CacheMaxEntries      int
	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration

	// AMQP (optional, report publication)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Kafka (optional, report publication)
	KafkaBrokers []string
	KafkaTopic   string

	// InfluxDB (optional, series storage)
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Redis (optional, fetch cache shared between instances)
	RedisAddr string
	RedisDB   int
	RedisTTL  time.Duration

	// Report worker
	ReportDigestInterval time.Duration

	LogLevel string
}

// datasetsFile is the layout of the optional DATASETS_FILE.
type datasetsFile struct {
	Datasets []core.Dataset `yaml:"datasets"`
}

// Load reads configuration from the environment. Datasets listed in
// DATASETS_FILE are added to, or replace by name, the built-in ones.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		EIAAPIKey:      getEnv("EIA_API_KEY", ""),
		EIAPageLength:  getEnvInt("EIA_PAGE_LENGTH", 5000),
		EIAPageTimeout: getEnvDuration("EIA_PAGE_TIMEOUT", 60*time.Second),
		DatasetsFile:   getEnv("DATASETS_FILE", ""),

		DefaultDataset:     getEnv("DEFAULT_DATASET", core.FuelTypeDataset.Name),
		DefaultStart:       getEnv("DEFAULT_START", "2026-02-09"),
		DefaultEnd:         getEnv("DEFAULT_END", "2026-02-16"),
		DefaultUnits:       getEnv("DEFAULT_UNITS", string(core.MWh)),
		DefaultTopN:        getEnvInt("DEFAULT_TOP_N", 10),
		DefaultEasternOnly: getEnvBool("DEFAULT_EASTERN_ONLY", true),

		CacheMaxEntries:      getEnvInt("CACHE_MAX_ENTRIES", 64),
		CacheTTL:             getEnvDuration("CACHE_TTL", time.Hour),
		CacheCleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "eiademand"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "demand_reports"),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "demand-reports"),

		InfluxURL:    getEnv("INFLUXDB_URL", ""),
		InfluxToken:  getEnv("INFLUXDB_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUXDB_ORG", ""),
		InfluxBucket: getEnv("INFLUXDB_BUCKET", "eiademand"),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		RedisTTL:  getEnvDuration("REDIS_TTL", 6*time.Hour),

		ReportDigestInterval: getEnvDuration("REPORT_DIGEST_INTERVAL", time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		Datasets: core.DefaultCatalog(),
	}

	if cfg.DatasetsFile != "" {
		extra, err := LoadDatasets(cfg.DatasetsFile)
		if err != nil {
			return nil, err
		}
		for _, d := range extra {
			cfg.Datasets[d.Name] = d
		}
	}

	return cfg, nil
}

// LoadDatasets reads dataset definitions from a YAML file.
func LoadDatasets(path string) ([]core.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read datasets file: %w", err)
	}
	var f datasetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse datasets file %s: %w", path, err)
	}
	for i := range f.Datasets {
		d := &f.Datasets[i]
		if d.CategoryLabel == "" {
			d.CategoryLabel = d.CategoryColumn
		}
		if d.Title == "" {
			d.Title = "Electricity demand by " + d.CategoryLabel
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("datasets file %s: %w", path, err)
		}
	}
	return f.Datasets, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.EIAAPIKey) == "" {
		errors = append(errors, "EIA_API_KEY is required")
	}

	if c.EIAPageLength < 1 || c.EIAPageLength > 5000 {
		errors = append(errors, fmt.Sprintf("invalid EIA page length %d: must be between 1 and 5000", c.EIAPageLength))
	}
	if c.EIAPageTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid EIA page timeout %v: must be at least 1 second", c.EIAPageTimeout))
	}

	start, errStart := time.Parse(dateLayout, c.DefaultStart)
	if errStart != nil {
		errors = append(errors, fmt.Sprintf("invalid default start '%s': must be YYYY-MM-DD", c.DefaultStart))
	}
	end, errEnd := time.Parse(dateLayout, c.DefaultEnd)
	if errEnd != nil {
		errors = append(errors, fmt.Sprintf("invalid default end '%s': must be YYYY-MM-DD", c.DefaultEnd))
	}
	if errStart == nil && errEnd == nil && end.Before(start) {
		errors = append(errors, fmt.Sprintf("default end %s is before default start %s", c.DefaultEnd, c.DefaultStart))
	}

	if _, err := core.ParseUnit(c.DefaultUnits); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default units '%s': must be MWh or GWh", c.DefaultUnits))
	}
	if c.DefaultTopN < 1 || c.DefaultTopN > 15 {
		errors = append(errors, fmt.Sprintf("invalid default top N %d: must be between 1 and 15", c.DefaultTopN))
	}

	if c.CacheMaxEntries < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheMaxEntries))
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if len(c.Datasets) == 0 {
		errors = append(errors, "at least one dataset must be configured")
	} else if _, err := c.Datasets.Get(c.DefaultDataset); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default dataset '%s': must be one of %v", c.DefaultDataset, c.Datasets.Names()))
	}

	if c.AMQPURL != "" {
		errors = append(errors, c.amqpErrors()...)
	}

	if c.KafkaEnabled() && strings.TrimSpace(c.KafkaTopic) == "" {
		errors = append(errors, "Kafka topic cannot be empty when Kafka brokers are provided")
	}

	if c.InfluxEnabled() {
		if parsedURL, err := url.Parse(c.InfluxURL); err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid InfluxDB URL '%s': must be http or https", c.InfluxURL))
		}
		if c.InfluxToken == "" {
			errors = append(errors, "INFLUXDB_TOKEN is required when InfluxDB URL is provided")
		}
		if c.InfluxOrg == "" {
			errors = append(errors, "INFLUXDB_ORG is required when InfluxDB URL is provided")
		}
		if c.InfluxBucket == "" {
			errors = append(errors, "InfluxDB bucket cannot be empty when InfluxDB URL is provided")
		}
	}

	if c.RedisEnabled() {
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis address '%s': must be host:port", c.RedisAddr))
		}
		if c.RedisDB < 0 {
			errors = append(errors, fmt.Sprintf("invalid Redis DB %d: must not be negative", c.RedisDB))
		}
		if c.RedisTTL <= 0 {
			errors = append(errors, fmt.Sprintf("invalid Redis TTL %v: must be positive", c.RedisTTL))
		}
	}

	return joinErrors(errors)
}

// ValidateWorker checks the settings the report worker needs, which are
// the AMQP connection and the log level only.
func (c *Config) ValidateWorker() error {
	if c.AMQPURL == "" {
		return joinErrors([]string{"AMQP_URL is required"})
	}
	return joinErrors(c.amqpErrors())
}

func (c *Config) amqpErrors() []string {
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

func joinErrors(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// AMQPEnabled reports whether report publication is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// KafkaEnabled reports whether report summaries also go to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// InfluxEnabled reports whether report series are written to InfluxDB.
func (c *Config) InfluxEnabled() bool {
	return c.InfluxURL != ""
}

// RedisEnabled reports whether the shared fetch cache is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
