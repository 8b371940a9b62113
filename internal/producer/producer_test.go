// Copyright 2025 James Ross
package producer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	p := &Producer{cfg: &config.Config{Producer: config.Producer{DefaultType: "default"}}}

	qt, qid := p.classify("sms/tenant-a/message.json")
	if qt != "sms" || qid != "tenant-a" {
		t.Fatalf("expected sms/tenant-a, got %s/%s", qt, qid)
	}

	qt, qid = p.classify("tenant-b/message.json")
	if qt != "default" || qid != "tenant-b" {
		t.Fatalf("expected default/tenant-b, got %s/%s", qt, qid)
	}

	qt, qid = p.classify("message.json")
	if qt != "default" || qid != "unassigned" {
		t.Fatalf("expected default/unassigned, got %s/%s", qt, qid)
	}
}

func TestRateLimit(t *testing.T) {
	mr, _ := miniredis.Run()
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{Producer: config.Producer{RateLimitPerSec: 1, RateLimitKey: "rl"}}
	log, _ := zap.NewDevelopment()
	o := queue.NewOrchestrator(rdb, "sharq", nil, 300000, queue.DefaultIntervalFloorMS)
	p := New(cfg, rdb, o, log)

	if err := p.rateLimit(context.Background()); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := p.rateLimit(context.Background()); err != nil {
		t.Fatal(err)
	} // second call exceeds limit; sleeps ~1s until a token refills
	if time.Since(start) < 100*time.Millisecond {
		t.Fatalf("expected limiter to sleep when exceeded")
	}
}
