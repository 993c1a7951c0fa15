package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"yqhp/loadgen/internal/execution"
	"yqhp/loadgen/internal/metrics/engine"
	"yqhp/loadgen/internal/scenario"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/output"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Is makes errors.Is(err, ErrConfig) true for validation errors.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrConfig
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields returns the names of the invalid fields in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
	steps  *scenario.Registry
	modes  *execution.Registry
}

// NewValidator creates a new configuration validator backed by the default
// step and execution mode registries.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
		steps:  scenario.DefaultRegistry,
		modes:  execution.DefaultRegistry,
	}
}

// WithSteps sets the step registry used to resolve step names.
func (v *Validator) WithSteps(steps *scenario.Registry) *Validator {
	v.steps = steps
	return v
}

// addError adds a validation error.
func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
// Whether a threshold's metric exists is checked later against the
// metric registry, once the steps' custom metrics are known.
func (v *Validator) Validate(cfg *RunConfig) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("config", "config is nil")
		return v.errors
	}

	v.validateExecutor(cfg)
	v.validateBaseURL(cfg.BaseURL)
	v.validateStages(cfg)
	v.validateThresholds(cfg.Thresholds)
	v.validateSteps(cfg.Steps)
	v.validateOutputs(cfg.Outputs)
	v.validateSleep(&cfg.Sleep)
	v.validateHTTP(&cfg.HTTP)
	v.validatePayload(&cfg.Payload)
	v.validateSummary(&cfg.Summary)
	v.validateLogging(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateExecutor(cfg *RunConfig) {
	if cfg.Executor == "" {
		return
	}
	if !v.modes.Has(cfg.Executor) {
		v.addError("executor", fmt.Sprintf("unknown executor '%s', must be one of: %v", cfg.Executor, v.modes.List()))
	}
}

// validateBaseURL requires an absolute http(s) URL.
func (v *Validator) validateBaseURL(raw string) {
	if raw == "" {
		v.addError("base_url", "base url is required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		v.addError("base_url", fmt.Sprintf("invalid url: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		v.addError("base_url", fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme))
	}
	if u.Host == "" {
		v.addError("base_url", "host is required")
	}
}

func (v *Validator) validateStages(cfg *RunConfig) {
	if len(cfg.Stages) == 0 {
		v.addError("stages", "at least one stage is required")
		return
	}
	for i, s := range cfg.Stages {
		if s.Duration < 0 {
			v.addError(fmt.Sprintf("stages[%d].duration", i), "duration must be non-negative")
		}
		if s.Target < 0 {
			v.addError(fmt.Sprintf("stages[%d].target", i), "target must be non-negative")
		}
	}
	if cfg.TotalDuration() <= 0 {
		v.addError("stages", "total duration must be positive")
	}
}

// validateThresholds checks expression syntax only.
func (v *Validator) validateThresholds(thresholds Thresholds) {
	for i, th := range thresholds {
		field := fmt.Sprintf("thresholds[%d]", i)
		if th.Metric == "" {
			v.addError(field+".metric", "metric is required")
			continue
		}
		if _, err := engine.ParseThreshold(th.Metric, th.Condition); err != nil {
			v.addError(field+".condition", err.Error())
		}
	}
}

func (v *Validator) validateSteps(steps []string) {
	if len(steps) == 0 {
		v.addError("steps", "at least one step is required")
		return
	}
	for i, name := range steps {
		if !v.steps.Has(name) {
			v.addError(fmt.Sprintf("steps[%d]", i), fmt.Sprintf("unknown step '%s', must be one of: %s", name, strings.Join(v.steps.Names(), ", ")))
		}
	}
}

func (v *Validator) validateOutputs(outputs []string) {
	for i, arg := range outputs {
		if _, _, err := output.ParseArg(arg); err != nil {
			v.addError(fmt.Sprintf("outputs[%d]", i), err.Error())
		}
	}
}

func (v *Validator) validateSleep(cfg *SleepConfig) {
	if cfg.Min < 0 {
		v.addError("sleep.min", "sleep min must be non-negative")
	}
	if cfg.Max < cfg.Min {
		v.addError("sleep.max", "sleep max must not be less than sleep min")
	}
}

func (v *Validator) validateHTTP(cfg *HTTPConfig) {
	if cfg.Timeout <= 0 {
		v.addError("http.timeout", "request timeout must be positive")
	}
	if cfg.MaxConnsPerHost < 0 {
		v.addError("http.max_conns_per_host", "max connections per host must be non-negative")
	}
}

func (v *Validator) validatePayload(cfg *PayloadConfig) {
	if cfg.ErrorProbability < 0 || cfg.ErrorProbability > 1 {
		v.addError("payload.error_probability", "error probability must be within [0, 1]")
	}
}

var trendStatNames = []string{"avg", "min", "med", "max", "count"}

func (v *Validator) validateSummary(cfg *SummaryConfig) {
	if len(cfg.TrendStats) == 0 {
		v.addError("summary.trend_stats", "at least one trend stat is required")
	}
	for _, stat := range cfg.TrendStats {
		if slices.Contains(trendStatNames, stat) {
			continue
		}
		if _, ok, err := metrics.ParsePercentile(stat); !ok || err != nil {
			v.addError("summary.trend_stats", fmt.Sprintf("invalid trend stat '%s'", stat))
		}
	}
	v.validateWebhook(&cfg.Webhook)
	if cfg.Pushgateway.URL != "" && cfg.Pushgateway.Job == "" {
		v.addError("summary.pushgateway.job", "pushgateway job is required")
	}
}

func (v *Validator) validateWebhook(cfg *WebhookConfig) {
	if cfg.URL == "" {
		return
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.addError("summary.webhook.url", fmt.Sprintf("invalid webhook url '%s'", cfg.URL))
	}
	if cfg.Timeout <= 0 {
		v.addError("summary.webhook.timeout", "webhook timeout must be positive")
	}
	if cfg.Retries < 0 {
		v.addError("summary.webhook.retries", "webhook retries must be non-negative")
	}
}

// validateLogging validates the logging configuration.
func (v *Validator) validateLogging(cfg *LoggingConfig) {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if cfg.Level != "" && !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if cfg.Format != "" && !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}
}

// IsValidAddress checks if the address is a valid host:port or :port listen address.
func IsValidAddress(addr string) bool {
	if addr == "" {
		return false
	}

	if strings.HasPrefix(addr, ":") {
		port := strings.TrimPrefix(addr, ":")
		if port == "" {
			return false
		}
		_, err := net.LookupPort("tcp", port)
		return err == nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}

	// Host can be empty (meaning all interfaces), an IP, or a hostname
	if host != "" && net.ParseIP(host) == nil && !isValidHostname(host) {
		return false
	}

	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	labels := strings.Split(hostname, ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		// Labels must start and end with alphanumeric
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}

	return true
}

// isAlphanumeric checks if a byte is alphanumeric.
func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
// This is a convenience method on RunConfig.
func (c *RunConfig) Validate() error {
	return NewValidator().Validate(c)
}

// LoadAndValidate loads configuration from a file, applies env and
// command-line overrides, and validates the result.
func LoadAndValidate(path string, overrides map[string]string) (*RunConfig, error) {
	cfg, err := NewLoader().WithConfigPath(path).WithCmdArgs(overrides).Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
