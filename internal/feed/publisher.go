package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/scanner"
)

// Publisher streams per-cycle records to Redis for the external
// observability collaborator. A nil *Publisher is a no-op, so the pipeline
// runs unchanged when Redis is not configured.
type Publisher struct {
	rdb       *redis.Client
	stream    string
	latestKey string
	maxLen    int64
}

func NewPublisher(cfg *config.Config) *Publisher {
	if cfg.Redis.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	return &Publisher{
		rdb:       rdb,
		stream:    cfg.Redis.Stream,
		latestKey: cfg.Redis.LatestKey,
		maxLen:    cfg.Redis.MaxLen,
	}
}

// PublishCycle appends one cycle report to the stream and refreshes the
// latest-snapshot key for the chain.
func (p *Publisher) PublishCycle(ctx context.Context, rep scanner.CycleReport) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal cycle report: %w", err)
	}
	chain := strconv.FormatUint(uint64(rep.Chain), 10)
	if err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"chain": chain,
			"ts_ms": rep.Ts.UnixMilli(),
			"body":  body,
		},
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	if err := p.rdb.Set(ctx, p.latestKey+":"+chain, body, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", p.latestKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
