package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/types"
)

// ErrConfig marks every configuration error. Callers map it to exit code 1.
var ErrConfig = errors.New("configuration error")

// DefaultSummaryExport 是默认的 JSON 汇总文件名。
const DefaultSummaryExport = "logs-summary.json"

// RunConfig represents the complete configuration of one load test run.
type RunConfig struct {
	Executor   types.ExecutionMode `yaml:"executor" env:"LOADGEN_EXECUTOR"`
	BaseURL    string              `yaml:"base_url" env:"BASE_URL"`
	Stages     []types.Stage       `yaml:"stages"`
	Thresholds Thresholds          `yaml:"thresholds"`
	Steps      []string            `yaml:"steps" env:"LOADGEN_STEPS"`
	Seed       uint64              `yaml:"seed" env:"LOADGEN_SEED"`
	Tags       map[string]string   `yaml:"tags,omitempty" env:"LOADGEN_TAGS"`
	Outputs    []string            `yaml:"outputs,omitempty" env:"LOADGEN_OUT"`
	Sleep      SleepConfig         `yaml:"sleep"`
	HTTP       HTTPConfig          `yaml:"http"`
	Payload    PayloadConfig       `yaml:"payload"`
	Summary    SummaryConfig       `yaml:"summary"`
	Logging    LoggingConfig       `yaml:"logging"`
}

// SleepConfig is the pause between iterations: fixed when Min == Max,
// otherwise uniformly random in [Min, Max).
type SleepConfig struct {
	Min time.Duration `yaml:"min" env:"LOADGEN_SLEEP_MIN"`
	Max time.Duration `yaml:"max" env:"LOADGEN_SLEEP_MAX"`
}

// HTTPConfig holds HTTP client configuration.
type HTTPConfig struct {
	Timeout         time.Duration `yaml:"timeout" env:"LOADGEN_REQUEST_TIMEOUT"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host" env:"LOADGEN_MAX_CONNS_PER_HOST"`
	UserAgent       string        `yaml:"user_agent" env:"LOADGEN_USER_AGENT"`
}

// PayloadConfig holds synthetic payload configuration.
type PayloadConfig struct {
	ErrorProbability float64 `yaml:"error_probability" env:"LOADGEN_ERROR_PROBABILITY"`
	Service          string  `yaml:"service" env:"LOADGEN_SERVICE"`
}

// SummaryConfig holds summary report configuration.
type SummaryConfig struct {
	Export      string            `yaml:"export" env:"LOADGEN_SUMMARY_EXPORT"`
	TrendStats  []string          `yaml:"trend_stats" env:"LOADGEN_SUMMARY_TREND_STATS"`
	NoColor     bool              `yaml:"no_color" env:"LOADGEN_NO_COLOR"`
	Quiet       bool              `yaml:"quiet" env:"LOADGEN_QUIET"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Pushgateway PushgatewayConfig `yaml:"pushgateway"`
}

// WebhookConfig posts the JSON summary to an HTTP endpoint after the run.
// An empty URL disables it.
type WebhookConfig struct {
	URL     string            `yaml:"url" env:"LOADGEN_SUMMARY_WEBHOOK"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout"`
	Retries int               `yaml:"retries"`
}

// PushgatewayConfig pushes the final aggregates to a Prometheus Pushgateway.
// An empty URL disables it.
type PushgatewayConfig struct {
	URL string `yaml:"url" env:"LOADGEN_SUMMARY_PUSHGATEWAY"`
	Job string `yaml:"job" env:"LOADGEN_SUMMARY_PUSHGATEWAY_JOB"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOADGEN_LOG_LEVEL"`
	Format string `yaml:"format" env:"LOADGEN_LOG_FORMAT"`
	File   string `yaml:"file" env:"LOADGEN_LOG_FILE"`
}

// DefaultConfig returns a RunConfig with default values: the classic
// log-ingestion profile of 10 then 30 VUs over five and a half minutes.
func DefaultConfig() *RunConfig {
	return &RunConfig{
		Executor: types.ModeRampingVUs,
		BaseURL:  "http://correlation-engine:8080",
		Stages: []types.Stage{
			{Duration: 30 * time.Second, Target: 10},
			{Duration: 2 * time.Minute, Target: 10},
			{Duration: 30 * time.Second, Target: 30},
			{Duration: 2 * time.Minute, Target: 30},
			{Duration: 30 * time.Second, Target: 0},
		},
		Thresholds: Thresholds{
			{Metric: "http_req_duration", Condition: "p(95)<1000"},
			{Metric: "http_req_failed", Condition: "rate<0.05"},
			{Metric: "errors", Condition: "rate<0.05"},
		},
		Steps: []string{"logs"},
		Sleep: SleepConfig{
			Min: time.Second,
			Max: 3 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:         10 * time.Second,
			MaxConnsPerHost: 512,
			UserAgent:       "loadgen/1.0",
		},
		Payload: PayloadConfig{
			ErrorProbability: 0.1,
			Service:          "auth-service",
		},
		Summary: SummaryConfig{
			Export:     DefaultSummaryExport,
			TrendStats: append([]string(nil), metrics.DefaultTrendStats...),
			Webhook: WebhookConfig{
				Timeout: 10 * time.Second,
				Retries: 2,
			},
			Pushgateway: PushgatewayConfig{
				Job: "loadgen",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Thresholds is the ordered threshold list. In YAML it is either a list of
// {metric, condition} entries or a mapping from metric name to a list of
// conditions; both keep document order.
type Thresholds []types.Threshold

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Thresholds) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []types.Threshold
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = list
		return nil

	case yaml.MappingNode:
		var list []types.Threshold
		for i := 0; i+1 < len(node.Content); i += 2 {
			metric := node.Content[i].Value
			value := node.Content[i+1]

			var conditions []string
			if value.Kind == yaml.ScalarNode {
				conditions = []string{value.Value}
			} else if err := value.Decode(&conditions); err != nil {
				return fmt.Errorf("thresholds.%s: %w", metric, err)
			}
			for _, c := range conditions {
				list = append(list, types.Threshold{Metric: metric, Condition: c})
			}
		}
		*t = list
		return nil

	default:
		return fmt.Errorf("line %d: thresholds must be a list or a mapping", node.Line)
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	lookupEnv  func(string) (string, bool)
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		lookupEnv: os.LookupEnv,
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML run file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnv replaces the environment lookup, mainly for tests.
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// WithCmdArgs sets command-line overrides keyed by dotted yaml path,
// e.g. "http.timeout" or "base_url".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags.
// Every returned error wraps ErrConfig.
func (l *Loader) Load() (*RunConfig, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("%w: 从文件加载配置失败: %w", ErrConfig, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("%w: 应用环境变量覆盖失败: %w", ErrConfig, err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("%w: 应用命令行参数覆盖失败: %w", ErrConfig, err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. Unknown keys are rejected.
func (l *Loader) loadFromFile(cfg *RunConfig) error {
	f, err := os.Open(l.configPath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty file, use defaults
		}
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func (l *Loader) applyEnvOverrides(cfg *RunConfig) error {
	return l.applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue, ok := l.lookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}

	return nil
}

// applyCmdOverrides applies command-line argument overrides to the configuration.
func (l *Loader) applyCmdOverrides(cfg *RunConfig) error {
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by dotted yaml path.
func setConfigValue(cfg *RunConfig, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

// fieldByYAMLName finds a struct field by its yaml tag name, falling back to
// a case-insensitive match on the Go field name.
func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == name || strings.EqualFold(t.Field(i).Name, strings.ReplaceAll(name, "_", "")) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("无效的无符号整数: %w", err)
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		// Handle string slices (comma-separated)
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts).Convert(field.Type()))
		} else {
			return fmt.Errorf("不支持的切片类型: %s", field.Type().Elem().Kind())
		}

	case reflect.Map:
		// Handle string->string maps (key=value,key=value format)
		if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.String {
			m := make(map[string]string)
			pairs := strings.Split(value, ",")
			for _, pair := range pairs {
				kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
				if len(kv) == 2 {
					m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
				}
			}
			field.Set(reflect.ValueOf(m))
		} else {
			return fmt.Errorf("不支持的 map 类型")
		}

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *RunConfig) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes on top of the defaults.
func ParseConfig(data []byte) (*RunConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: 解析配置失败: %w", ErrConfig, err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*RunConfig, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Clone creates a deep copy of the configuration.
func (c *RunConfig) Clone() *RunConfig {
	data, _ := c.Serialize()
	clone, _ := ParseConfig(data)
	return clone
}

// TotalDuration returns the planned run length.
func (c *RunConfig) TotalDuration() time.Duration {
	return types.TotalDuration(c.Stages)
}

// MaxVUs returns the highest stage target.
func (c *RunConfig) MaxVUs() int {
	return types.MaxTarget(c.Stages)
}
