// Package stub 提供被测服务的本地替身：日志摄取、关联查询、评审记录和
// Prometheus 指标接口。日志摄取可按比例注入失败，用于端到端测试和空跑。
package stub

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"yqhp/loadgen/pkg/logger"
)

// Config 桩服务配置
type Config struct {
	// Address 监听地址，例如 ":8080"
	Address string `yaml:"address"`

	// ServiceName 在 / 和 /health 中返回的服务名
	ServiceName string `yaml:"service_name"`

	// FailEvery 每第 N 个 /api/logs 请求返回 500，0 表示不启用
	FailEvery int `yaml:"fail_every"`

	// FailRatio 以该概率随机返回 500，FailEvery 启用时忽略
	FailRatio float64 `yaml:"fail_ratio"`

	// Seed 随机失败使用的种子
	Seed uint64 `yaml:"seed"`

	// Latency 每个请求额外的处理延迟
	Latency time.Duration `yaml:"latency"`

	// Reviews 初始评审记录条数
	Reviews int `yaml:"reviews"`

	// AccessLog 是否输出访问日志
	AccessLog bool `yaml:"access_log"`
}

// DefaultConfig returns a default stub configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:     ":8080",
		ServiceName: "correlation-engine",
		Seed:        1,
		Reviews:     5,
	}
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	if c.FailEvery < 0 {
		return fmt.Errorf("fail_every must be >= 0, got %d", c.FailEvery)
	}
	if c.FailRatio < 0 || c.FailRatio > 1 {
		return fmt.Errorf("fail_ratio must be within [0, 1], got %g", c.FailRatio)
	}
	if c.Latency < 0 {
		return fmt.Errorf("latency must be >= 0, got %s", c.Latency)
	}
	if c.Reviews < 0 {
		return fmt.Errorf("reviews must be >= 0, got %d", c.Reviews)
	}
	return nil
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Server 桩服务
type Server struct {
	app     *fiber.App
	config  *Config
	metrics *Metrics
	store   *store

	failMu   sync.Mutex
	logsSeen int
	rnd      *rand.Rand
}

// NewServer creates a new stub server.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ServiceName == "" {
		config.ServiceName = DefaultConfig().ServiceName
	}

	app := fiber.New(fiber.Config{
		AppName:               config.ServiceName,
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
		JSONEncoder:           sonic.ConfigStd.Marshal,
		JSONDecoder:           sonic.ConfigStd.Unmarshal,
	})

	s := &Server{
		app:     app,
		config:  config,
		metrics: NewMetrics(),
		store:   newStore(config.Reviews, time.Now()),
		rnd:     rand.New(rand.NewPCG(config.Seed, config.Seed^0x5bd1e995)),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New())

	if s.config.AccessLog {
		s.app.Use(fiberlogger.New(fiberlogger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}

	s.app.Use(s.observe)
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.health)
	s.app.Get("/", s.root)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api")
	api.Post("/logs", s.ingestLogs)
	api.Get("/correlations", s.listCorrelations)
	api.Get("/seca-reviews", s.listReviews)
	api.Put("/seca-reviews/:id", s.updateReview)
}

// observe 记录每个请求的次数和耗时，并施加配置的延迟
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	if s.config.Latency > 0 {
		time.Sleep(s.config.Latency)
	}

	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	// c.Method() 引用请求缓冲区，作为标签保存前需要复制
	s.metrics.ObserveRequest(strings.Clone(c.Method()), c.Route().Path, status, time.Since(start).Seconds())
	return err
}

// shouldFail 决定本次日志摄取是否注入失败
func (s *Server) shouldFail() bool {
	s.failMu.Lock()
	defer s.failMu.Unlock()

	s.logsSeen++
	if s.config.FailEvery > 0 {
		return s.logsSeen%s.config.FailEvery == 0
	}
	if s.config.FailRatio > 0 {
		return s.rnd.Float64() < s.config.FailRatio
	}
	return false
}

// Listen 在配置的地址上启动服务，阻塞直到服务关闭
func (s *Server) Listen() error {
	logger.Info("stub service listening", "address", s.config.Address,
		"fail_every", s.config.FailEvery, "fail_ratio", s.config.FailRatio)
	return s.app.Listen(s.config.Address)
}

// Serve 在给定的 listener 上提供服务，阻塞直到服务关闭
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// StartWithContext 启动服务，ctx 结束时关闭
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Listen()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Metrics 返回桩服务的指标
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
