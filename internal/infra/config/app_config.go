// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/payroute/internal/app/dynamic"
	"github.com/coachpo/payroute/internal/app/router"
	"github.com/coachpo/payroute/internal/domain/kgraph"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/infra/eventsink"
	"github.com/coachpo/payroute/internal/infra/persistence"
	"github.com/coachpo/payroute/internal/infra/telemetry"
)

type workerKind int

const (
	workerUnset workerKind = iota
	workerExplicit
	workerAuto
	workerDefault
)

const defaultWorkers = 4

// WorkerSetting encapsulates a worker count allowing both numeric and symbolic values.
type WorkerSetting struct {
	kind  workerKind
	value int
}

// Workers returns an explicit worker setting.
func Workers(n int) WorkerSetting {
	return WorkerSetting{kind: workerExplicit, value: n}
}

// UnmarshalYAML supports integer, "auto", and "default" values.
func (s *WorkerSetting) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = WorkerSetting{kind: workerUnset}
		return nil
	}

	text := strings.TrimSpace(node.Value)
	if text == "" {
		*s = WorkerSetting{kind: workerUnset}
		return nil
	}

	switch strings.ToLower(text) {
	case "auto":
		*s = WorkerSetting{kind: workerAuto}
		return nil
	case "default":
		*s = WorkerSetting{kind: workerDefault}
		return nil
	}

	val, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("workers: invalid value %q", node.Value)
	}
	if val <= 0 {
		return fmt.Errorf("workers: numeric value must be > 0")
	}
	*s = WorkerSetting{kind: workerExplicit, value: val}
	return nil
}

// Resolve returns the effective worker count derived from the setting.
func (s WorkerSetting) Resolve() int {
	switch s.kind {
	case workerExplicit:
		return s.value
	case workerAuto:
		if cores := runtime.NumCPU(); cores > 0 {
			return cores
		}
		return defaultWorkers
	default:
		return defaultWorkers
	}
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
	// MigrationsPath overrides the migrations compiled into the binary.
	MigrationsPath string `yaml:"migrationsPath"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = "postgresql://localhost:5432/payroute"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 16
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
	c.MigrationsPath = strings.TrimSpace(c.MigrationsPath)
}

func (c DatabaseConfig) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 {
		return fmt.Errorf("minConns must be >=0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	if c.MaxConnLifetime <= 0 {
		return fmt.Errorf("maxConnLifetime must be >0")
	}
	if c.MaxConnIdleTime <= 0 {
		return fmt.Errorf("maxConnIdleTime must be >0")
	}
	if c.HealthCheckPeriod <= 0 {
		return fmt.Errorf("healthCheckPeriod must be >0")
	}
	return nil
}

// PoolConfig returns the pgx pool sizing.
func (c DatabaseConfig) PoolConfig() persistence.PoolConfig {
	return persistence.PoolConfig{
		DSN:               c.DSN,
		MaxConns:          c.MaxConns,
		MinConns:          c.MinConns,
		MaxConnLifetime:   c.MaxConnLifetime,
		MaxConnIdleTime:   c.MaxConnIdleTime,
		HealthCheckPeriod: c.HealthCheckPeriod,
	}
}

// RoutingConfig configures the static routing pipeline.
type RoutingConfig struct {
	// InputSchema selects the BackendInput builder: v1 or v2.
	InputSchema string `yaml:"inputSchema"`
	// EligibilityCheck toggles the constraint graph check; unset means enabled.
	EligibilityCheck *bool         `yaml:"eligibilityCheck"`
	SessionWorkers   WorkerSetting `yaml:"sessionWorkers"`
}

// EligibilityCheckEnabled reports whether candidates are checked against the constraint graph.
func (c RoutingConfig) EligibilityCheckEnabled() bool {
	return c.EligibilityCheck == nil || *c.EligibilityCheck
}

// ReporterConfig sizes the detached outcome reporter.
type ReporterConfig struct {
	Workers         int           `yaml:"workers"`
	Queue           int           `yaml:"queue"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
}

// DynamicRoutingConfig configures the statistical routing services.
type DynamicRoutingConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"baseURL"`
	// Timeout bounds one ranking call, HTTPTimeout one request to the service.
	Timeout          time.Duration  `yaml:"timeout"`
	HTTPTimeout      time.Duration  `yaml:"httpTimeout"`
	ContractInitRate float64        `yaml:"contractInitRate"`
	Reporter         ReporterConfig `yaml:"reporter"`
}

func (c *DynamicRoutingConfig) applyDefaults() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 300 * time.Millisecond
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 2 * time.Second
	}
	if c.ContractInitRate <= 0 {
		c.ContractInitRate = 1
	}
	if c.Reporter.Workers <= 0 {
		c.Reporter.Workers = 4
	}
	if c.Reporter.Queue <= 0 {
		c.Reporter.Queue = 1024
	}
	if c.Reporter.MaxAttempts <= 0 {
		c.Reporter.MaxAttempts = 3
	}
	if c.Reporter.InitialInterval <= 0 {
		c.Reporter.InitialInterval = 100 * time.Millisecond
	}
	if c.Reporter.MaxInterval <= 0 {
		c.Reporter.MaxInterval = 2 * time.Second
	}
}

func (c DynamicRoutingConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BaseURL == "" {
		return fmt.Errorf("baseURL required when enabled")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("baseURL %q must be an absolute URL", c.BaseURL)
	}
	if c.Reporter.InitialInterval > c.Reporter.MaxInterval {
		return fmt.Errorf("reporter initialInterval must be <= maxInterval")
	}
	return nil
}

// ReporterSettings maps the reporter section onto the dynamic package.
func (c DynamicRoutingConfig) ReporterSettings() dynamic.ReporterConfig {
	return dynamic.ReporterConfig{
		Workers:         c.Reporter.Workers,
		Queue:           c.Reporter.Queue,
		MaxAttempts:     c.Reporter.MaxAttempts,
		InitialInterval: c.Reporter.InitialInterval,
		MaxInterval:     c.Reporter.MaxInterval,
	}
}

// EventSinkConfig selects where routing events are delivered.
type EventSinkConfig struct {
	Kind         string        `yaml:"kind"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

func (c *EventSinkConfig) applyDefaults() {
	c.Kind = normalizeName(c.Kind)
	if c.Kind == "" {
		c.Kind = eventsink.KindLog
	}
	brokers := make([]string, 0, len(c.Brokers))
	for _, b := range c.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	c.Brokers = brokers
	c.Topic = strings.TrimSpace(c.Topic)
	if c.Kind == eventsink.KindKafka && c.Topic == "" {
		c.Topic = "routing-events"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second
	}
}

func (c EventSinkConfig) validate() error {
	switch c.Kind {
	case eventsink.KindNone, eventsink.KindLog:
		return nil
	case eventsink.KindKafka:
		if len(c.Brokers) == 0 {
			return fmt.Errorf("kafka brokers required")
		}
		return nil
	default:
		return fmt.Errorf("kind must be one of none, log, kafka")
	}
}

// SinkConfig maps the section onto the eventsink package.
func (c EventSinkConfig) SinkConfig() eventsink.Config {
	return eventsink.Config{
		Kind:         c.Kind,
		Brokers:      append([]string(nil), c.Brokers...),
		Topic:        c.Topic,
		WriteTimeout: c.WriteTimeout,
	}
}

// PaymentMethodFilter restricts where a payment method type may be used.
type PaymentMethodFilter struct {
	Countries        []string `yaml:"countries"`
	Currencies       []string `yaml:"currencies"`
	DeniedCountries  []string `yaml:"deniedCountries"`
	DeniedCurrencies []string `yaml:"deniedCurrencies"`
}

// PaymentMethodFiltersConfig holds global filters keyed by payment method type, optionally
// overridden per connector.
type PaymentMethodFiltersConfig struct {
	Default    map[string]PaymentMethodFilter            `yaml:"default"`
	Connectors map[string]map[string]PaymentMethodFilter `yaml:"connectors"`
}

func (c PaymentMethodFiltersConfig) validate() error {
	for name := range c.Connectors {
		if !routing.NormalizeConnector(name).Valid() {
			return fmt.Errorf("unknown connector %q", name)
		}
	}
	return nil
}

// Filters converts the section into constraint graph filters.
func (c PaymentMethodFiltersConfig) Filters() kgraph.Filters {
	var out kgraph.Filters
	if len(c.Default) > 0 {
		out.Default = convertFilters(c.Default)
	}
	if len(c.Connectors) > 0 {
		out.Connectors = make(map[routing.Connector]map[routing.PaymentMethodType]kgraph.PaymentMethodFilter, len(c.Connectors))
		for name, byType := range c.Connectors {
			out.Connectors[routing.NormalizeConnector(name)] = convertFilters(byType)
		}
	}
	return out
}

func convertFilters(in map[string]PaymentMethodFilter) map[routing.PaymentMethodType]kgraph.PaymentMethodFilter {
	out := make(map[routing.PaymentMethodType]kgraph.PaymentMethodFilter, len(in))
	for pmt, f := range in {
		out[routing.PaymentMethodType(normalizeName(pmt))] = kgraph.PaymentMethodFilter{
			Countries:        codes[routing.Country](f.Countries),
			Currencies:       codes[routing.Currency](f.Currencies),
			DeniedCountries:  codes[routing.Country](f.DeniedCountries),
			DeniedCurrencies: codes[routing.Currency](f.DeniedCurrencies),
		}
	}
	return out
}

func codes[T ~string](values []string) []T {
	if len(values) == 0 {
		return nil
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		if code := normalizeCode(v); code != "" {
			out = append(out, T(code))
		}
	}
	return out
}

// AppConfig is the unified payroute configuration sourced from YAML.
type AppConfig struct {
	Environment          Environment                `yaml:"environment"`
	Telemetry            TelemetryConfig            `yaml:"telemetry"`
	Database             DatabaseConfig             `yaml:"database"`
	Routing              RoutingConfig              `yaml:"routing"`
	DynamicRouting       DynamicRoutingConfig       `yaml:"dynamicRouting"`
	EventSink            EventSinkConfig            `yaml:"eventSink"`
	PaymentMethodFilters PaymentMethodFiltersConfig `yaml:"paymentMethodFilters"`
}

// DefaultAppConfig returns a normalised configuration for local use.
func DefaultAppConfig() AppConfig {
	cfg := AppConfig{Environment: EnvDev}
	_ = cfg.normalise()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(bytes)
}

// LoadOrDefault behaves like Load but returns DefaultAppConfig when the file does not exist.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, error) {
	if strings.TrimSpace(configPath) == "" {
		return DefaultAppConfig(), nil
	}
	cfg, err := Load(ctx, configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultAppConfig(), nil
	}
	return cfg, err
}

// Parse decodes, normalises and validates a YAML document.
func Parse(data []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) normalise() error {
	c.Environment = Environment(normalizeName(string(c.Environment)))
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "payroute"
	}

	c.Routing.InputSchema = normalizeName(c.Routing.InputSchema)
	if c.Routing.InputSchema == "" {
		c.Routing.InputSchema = router.InputSchemaV1
	}

	c.Database.applyDefaults()
	c.DynamicRouting.applyDefaults()
	c.EventSink.applyDefaults()
	return nil
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry serviceName required")
	}

	switch c.Routing.InputSchema {
	case router.InputSchemaV1, router.InputSchemaV2:
	default:
		return fmt.Errorf("routing inputSchema must be one of v1, v2")
	}
	if c.Routing.SessionWorkers.Resolve() <= 0 {
		return fmt.Errorf("routing sessionWorkers must be >0")
	}

	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.DynamicRouting.validate(); err != nil {
		return fmt.Errorf("dynamicRouting: %w", err)
	}
	if err := c.EventSink.validate(); err != nil {
		return fmt.Errorf("eventSink: %w", err)
	}
	if err := c.PaymentMethodFilters.validate(); err != nil {
		return fmt.Errorf("paymentMethodFilters: %w", err)
	}
	return nil
}

// TelemetrySettings maps the telemetry section onto the telemetry package.
func (c AppConfig) TelemetrySettings() telemetry.Config {
	settings := telemetry.DefaultConfig()
	settings.Enabled = c.Telemetry.EnableMetrics
	settings.EnableMetrics = c.Telemetry.EnableMetrics
	settings.OTLPInsecure = c.Telemetry.OTLPInsecure
	if c.Telemetry.OTLPEndpoint != "" {
		settings.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	settings.ServiceName = c.Telemetry.ServiceName
	settings.Environment = string(c.Environment)
	return settings
}

// EngineSettings returns the router configuration derived from the routing and filter sections.
// Store, dynamic router and event sink are wired by the caller.
func (c AppConfig) EngineSettings() router.EngineConfig {
	return router.EngineConfig{
		Filters:           c.PaymentMethodFilters.Filters(),
		InputSchema:       c.Routing.InputSchema,
		DisableGraphCheck: !c.Routing.EligibilityCheckEnabled(),
		SessionWorkers:    c.Routing.SessionWorkers.Resolve(),
	}
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
