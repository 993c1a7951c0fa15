// Package scenario 定义 VU 每次迭代执行的脚本步骤。
// 每个步骤发送若干请求，记录命名检查的结果和自定义指标的值。
package scenario

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"yqhp/loadgen/internal/executor"
	"yqhp/loadgen/internal/payload"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/types"
)

// ErrStepNotFound 未注册的步骤名称
var ErrStepNotFound = errors.New("step not found")

// Env 是步骤运行所需的环境，每个 VU 一份
type Env struct {
	BaseURL string
	Client  *executor.Client
	Payload *payload.Generator
	Now     func() time.Time
}

// URL 拼接基础地址和路径
func (e *Env) URL(path string) string {
	return strings.TrimRight(e.BaseURL, "/") + path
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// MetricDef 声明步骤记录的自定义指标
type MetricDef struct {
	Name     string
	Type     metrics.MetricType
	Contains metrics.ValueType
}

// Step 是脚本中的一个步骤。Run 不返回错误：所有失败都记录为失败的检查。
type Step interface {
	// Name 返回步骤名称
	Name() string
	// Metrics 返回步骤记录的自定义指标
	Metrics() []MetricDef
	// Run 执行一次步骤，结果写入 res
	Run(env *Env, res *types.IterationResult)
}

// Script 按顺序执行的步骤列表
type Script []Step

// Run 依次执行所有步骤
func (s Script) Run(env *Env, res *types.IterationResult) {
	for _, step := range s {
		step.Run(env, res)
	}
}

// Metrics 返回所有步骤声明的自定义指标（按名称去重）
func (s Script) Metrics() []MetricDef {
	seen := make(map[string]bool)
	var defs []MetricDef
	for _, step := range s {
		for _, def := range step.Metrics() {
			if seen[def.Name] {
				continue
			}
			seen[def.Name] = true
			defs = append(defs, def)
		}
	}
	return defs
}

// RegisterMetrics 在注册表中创建脚本声明的自定义指标
func (s Script) RegisterMetrics(registry *metrics.Registry) error {
	for _, def := range s.Metrics() {
		if _, err := registry.NewMetric(def.Name, def.Type, def.Contains); err != nil {
			return fmt.Errorf("register metric for script: %w", err)
		}
	}
	return nil
}

// Factory 创建步骤实例
type Factory func() Step

// Registry 管理步骤的注册和查找
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry 创建一个新的步骤注册表
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register 注册步骤工厂。名称重复时返回错误。
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("step name is empty")
	}
	if factory == nil {
		return fmt.Errorf("step %q has nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("step %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister 注册步骤，如果出错则 panic
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Has 检查步骤是否已注册
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names 返回所有已注册的步骤名称（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Build 按名称创建脚本
func (r *Registry) Build(names []string) (Script, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	script := make(Script, 0, len(names))
	for _, name := range names {
		factory, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q (available: %s)", ErrStepNotFound, name, strings.Join(r.namesLocked(), ", "))
		}
		script = append(script, factory())
	}
	return script, nil
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry 内置步骤注册表
var DefaultRegistry = NewRegistry()

// Build 使用默认注册表创建脚本
func Build(names []string) (Script, error) {
	return DefaultRegistry.Build(names)
}

// milliseconds 转换为毫秒浮点数
func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
