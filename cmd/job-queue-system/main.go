// Copyright 2025 James Ross
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/admin"
	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/obs"
	"github.com/flyingrobots/go-redis-work-queue/internal/producer"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"github.com/flyingrobots/go-redis-work-queue/internal/reaper"
	"github.com/flyingrobots/go-redis-work-queue/internal/redisclient"
	"github.com/flyingrobots/go-redis-work-queue/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var role string
	var configPath string
	var adminCmd string
	var adminQueueType string
	var adminQueueID string
	var adminN int
	var adminInterval int64
	var adminYes bool
	var benchCount int
	var benchPayloadSize int
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&role, "role", "all", "Role to run: producer|worker|requeue|all|admin")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&adminCmd, "admin-cmd", "", "Admin command: stats|metrics|peek|interval|purge|bench")
	fs.StringVar(&adminQueueType, "queue-type", "", "Queue type for admin commands")
	fs.StringVar(&adminQueueID, "queue-id", "", "Queue id (tenant) for admin commands")
	fs.IntVar(&adminN, "n", 10, "Number of items for admin peek")
	fs.Int64Var(&adminInterval, "interval-ms", 0, "New rate-limit interval in ms for admin interval")
	fs.BoolVar(&adminYes, "yes", false, "Automatic yes to prompts (dangerous operations)")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.IntVar(&benchCount, "bench-count", 1000, "Admin bench: number of jobs")
	fs.IntVar(&benchPayloadSize, "bench-payload-size", 64, "Admin bench: payload size in bytes")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	rdb := redisclient.New(cfg)
	defer rdb.Close()

	orchestrator := queue.NewOrchestrator(rdb, cfg.Sharq.KeyPrefix, nil,
		int64(cfg.Sharq.JobExpireInterval.Milliseconds()), cfg.Sharq.IntervalFloorMS)

	if role != "admin" {
		readyCheck := func(c context.Context) error {
			_, err := rdb.Ping(c).Result()
			return err
		}
		httpSrv := obs.StartHTTPServer(cfg, readyCheck)
		defer func() { _ = httpSrv.Shutdown(context.Background()) }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	if role != "admin" {
		obs.StartReadySetSampler(ctx, cfg, rdb, logger)
	}

	switch role {
	case "producer":
		prod := producer.New(cfg, rdb, orchestrator, logger)
		if err := prod.Run(ctx); err != nil {
			logger.Fatal("producer error", obs.Err(err))
		}
	case "worker":
		wrk := worker.New(cfg, orchestrator, demoHandler(logger), logger)
		if err := wrk.Run(ctx); err != nil {
			logger.Fatal("worker error", obs.Err(err))
		}
	case "requeue":
		sched := reaper.New(cfg, orchestrator, logger)
		sched.Run(ctx)
	case "all":
		prod := producer.New(cfg, rdb, orchestrator, logger)
		wrk := worker.New(cfg, orchestrator, demoHandler(logger), logger)
		sched := reaper.New(cfg, orchestrator, logger)
		go sched.Run(ctx)
		go func() {
			if err := prod.Run(ctx); err != nil {
				logger.Error("producer error", obs.Err(err))
				cancel()
			}
		}()
		if err := wrk.Run(ctx); err != nil {
			logger.Fatal("worker error", obs.Err(err))
		}
	case "admin":
		runAdmin(ctx, cfg, rdb, orchestrator, logger, adminCmd, adminQueueType, adminQueueID, adminN, adminInterval, adminYes, benchCount, benchPayloadSize)
		return
	default:
		logger.Fatal("unknown role", obs.String("role", role))
	}
}

// demoHandler simulates job processing: a brief pause proportional to
// payload size, failing any job whose payload contains "fail".
func demoHandler(logger *zap.Logger) worker.Handler {
	return func(ctx context.Context, job queue.DequeueResult) error {
		dur := time.Duration(len(job.Payload)) * time.Microsecond
		if dur > 200*time.Millisecond {
			dur = 200 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dur):
		}
		if bytes.Contains(job.Payload, []byte("fail")) {
			return fmt.Errorf("job %s simulated failure", job.JobID)
		}
		logger.Debug("job processed", obs.String("job_id", job.JobID), obs.String("queue_id", job.QueueID))
		return nil
	}
}

func runAdmin(ctx context.Context, cfg *config.Config, rdb *redis.Client, o *queue.Orchestrator, logger *zap.Logger,
	cmd, queueType, queueID string, n int, intervalMs int64, yes bool, benchCount, benchPayloadSize int) {
	switch cmd {
	case "stats":
		res, err := admin.Stats(ctx, cfg, rdb)
		if err != nil {
			logger.Fatal("admin stats error", obs.Err(err))
		}
		printJSON(res)
	case "metrics":
		res, err := admin.Metrics(ctx, o, queueType, queueID)
		if err != nil {
			logger.Fatal("admin metrics error", obs.Err(err))
		}
		printJSON(res)
	case "peek":
		if queueType == "" || queueID == "" {
			logger.Fatal("admin peek requires --queue-type and --queue-id")
		}
		res, err := admin.Peek(ctx, cfg, rdb, queueType, queueID, int64(n))
		if err != nil {
			logger.Fatal("admin peek error", obs.Err(err))
		}
		printJSON(res)
	case "interval":
		if queueType == "" || queueID == "" || intervalMs <= 0 {
			logger.Fatal("admin interval requires --queue-type, --queue-id and --interval-ms")
		}
		res, err := admin.SetInterval(ctx, o, queueType, queueID, intervalMs)
		if err != nil {
			logger.Fatal("admin interval error", obs.Err(err))
		}
		printJSON(res)
	case "purge":
		if queueType == "" {
			logger.Fatal("admin purge requires --queue-type")
		}
		if !yes {
			logger.Fatal("refusing to purge without --yes")
		}
		deleted, err := admin.PurgeType(ctx, cfg, rdb, queueType)
		if err != nil {
			logger.Fatal("admin purge error", obs.Err(err))
		}
		printJSON(struct {
			Deleted int64 `json:"deleted"`
		}{Deleted: deleted})
	case "bench":
		if queueType == "" {
			queueType = "bench"
		}
		res, err := admin.Bench(ctx, o, queueType, benchCount, benchPayloadSize, cfg.Sharq.DefaultIntervalMS)
		if err != nil {
			logger.Fatal("admin bench error", obs.Err(err))
		}
		printJSON(res)
	default:
		logger.Fatal("unknown admin command", obs.String("cmd", cmd))
	}
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
