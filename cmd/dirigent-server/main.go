// Dirigent Server — оркестратор workload'ов по возможностям backend'ов.
//
// Сервер:
//   - Загружает профили backend'ов из конфигурации
//   - Выполняет запросы по стратегиям SINGLE/WORKFLOW/PARALLEL/PIPELINE
//   - Ведёт circuit breaker'ы и мониторинг здоровья backend'ов
//   - Отдаёт HTTP API, /healthz и Prometheus /metrics
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Dirigent/internal/api"
	"github.com/shaiso/Dirigent/internal/breaker"
	"github.com/shaiso/Dirigent/internal/domain"
	"github.com/shaiso/Dirigent/internal/engine"
	"github.com/shaiso/Dirigent/internal/events"
	"github.com/shaiso/Dirigent/internal/health"
	"github.com/shaiso/Dirigent/internal/invoker"
	"github.com/shaiso/Dirigent/internal/orchestrator"
	"github.com/shaiso/Dirigent/internal/registry"
	"github.com/shaiso/Dirigent/internal/repo"
	"github.com/shaiso/Dirigent/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting dirigent-server")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Профили backend'ов
	reg, err := registry.LoadFromFile(registry.ConfigPath())
	if err != nil {
		logger.Error("failed to load backends config", "error", err)
		os.Exit(1)
	}
	logger.Info("backends loaded", "count", reg.Size())

	metrics := telemetry.NewMetrics()

	// Получатели событий переходов контуров
	notifiers := []breaker.Notifier{
		&breaker.MetricsNotifier{Metrics: metrics},
	}

	// RabbitMQ (опционально)
	if amqpURL := events.URLFromEnv(); amqpURL != "" {
		conn, err := events.NewConnection(amqpURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, circuit events disabled", "error", err)
		} else {
			defer conn.Close()
			logger.Info("RabbitMQ connected")

			if err := events.SetupTopology(conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}

			notifiers = append(notifiers, events.NewPublisher(conn, logger))
		}
	}

	// Circuit breaker'ы с настройками из профилей
	circuits := breaker.NewManager(breaker.Config{
		Notifiers: notifiers,
		Logger:    logger,
	})
	for _, p := range reg.List() {
		circuits.Register(p.ID, breaker.Settings{
			FailureThreshold: p.FailureThreshold,
			ResetTimeout:     time.Duration(p.ResetTimeoutSec) * time.Second,
		})
	}
	go circuits.Run(ctx, time.Second)

	// Транспорт вызовов
	inv := invoker.NewHTTP(invoker.Config{
		Registry: reg,
		Metrics:  metrics,
	})

	// Движок workflow
	eng := engine.New(engine.Config{
		Registry: reg,
		Circuits: circuits,
		Invoker:  inv,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err := loadTemplates(eng, logger); err != nil {
		logger.Error("failed to load workflow templates", "error", err)
		os.Exit(1)
	}

	// Audit trail (опционально)
	var auditor orchestrator.Auditor
	if os.Getenv("DB_URL") != "" {
		pool, err := repo.NewPool(ctx)
		if err != nil {
			logger.Warn("database not available, audit trail disabled", "error", err)
		} else {
			defer pool.Close()
			logger.Info("database connected")
			auditor = repo.NewOutcomeRepo(pool)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Registry: reg,
		Scorer:   registry.NewScorer(reg, circuits),
		Circuits: circuits,
		Invoker:  inv,
		Engine:   eng,
		Metrics:  metrics,
		Auditor:  auditor,
		Logger:   logger,
	})

	// Мониторинг здоровья backend'ов
	monitor, err := health.New(health.Config{
		Registry: reg,
		Prober:   inv,
		Interval: healthInterval(),
		Schedule: os.Getenv("HEALTH_SCHEDULE"),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create health monitor", "error", err)
		os.Exit(1)
	}
	monitor.Start()

	// HTTP: API + /healthz + /metrics
	handler := api.NewHandler(api.Config{
		Orchestrator: orch,
		Engine:       eng,
		Registry:     reg,
		Circuits:     circuits,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		port = ":" + v
	}

	server := &http.Server{Addr: port, Handler: mux}
	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}

	monitor.Stop()
	logger.Info("dirigent-server stopped")
}

// healthInterval возвращает интервал проверок здоровья из окружения.
func healthInterval() time.Duration {
	if v := os.Getenv("HEALTH_INTERVAL_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return 0 // default задаёт health.New
}

// loadTemplates регистрирует workflow-шаблоны из файла DIRIGENT_TEMPLATES.
// Файл опционален: шаблоны можно регистрировать и через API.
func loadTemplates(eng *engine.Engine, logger *slog.Logger) error {
	path := os.Getenv("DIRIGENT_TEMPLATES")
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg struct {
		Templates []domain.WorkflowTemplate `json:"templates"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}

	for i := range cfg.Templates {
		if err := eng.RegisterTemplate(&cfg.Templates[i]); err != nil {
			return err
		}
	}
	logger.Info("workflow templates loaded", "count", len(cfg.Templates))
	return nil
}
