// Package redis keeps the risk manager's per-user state in Redis so that
// cooldowns survive restarts and are shared between scanner instances.
//
// Every call goes through a CircuitBreaker. Writes are mirrored in memory
// and applied to Redis in order through a queue. While any write is
// queued, or Redis is unreachable, reads are served from memory; the
// queue is replayed once the breaker closes again.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-signalcore/internal/metrics"
	"trading-signalcore/internal/model"
	"trading-signalcore/internal/portfolio"
)

const dayBalanceTTL = 48 * time.Hour

var _ model.RiskStateStore = (*Store)(nil)

// Config configures the Redis connection and its breaker.
type Config struct {
	Addr         string        `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	KeyPrefix    string        `yaml:"key_prefix" default:"risk" validate:"required"`
	MaxFailures  int           `yaml:"max_failures" default:"5" validate:"gte=1"`
	ResetTimeout time.Duration `yaml:"reset_timeout" default:"10s" validate:"gt=0"`
	MaxPending   int           `yaml:"max_pending" default:"10000" validate:"gte=1"`
}

type writeKind int

const (
	writeCooldown writeKind = iota
	writeClearCooldown
	writeDayBalance
)

// pendingWrite is a write waiting to be applied to Redis.
type pendingWrite struct {
	seq     uint64
	kind    writeKind
	userID  string
	day     string
	until   time.Time
	balance float64
}

// Store implements model.RiskStateStore on Redis with an in-memory fallback.
type Store struct {
	client   *goredis.Client
	cb       *CircuitBreaker
	fallback *portfolio.MemoryStateStore
	prefix   string
	metrics  *metrics.Metrics
	now      func() time.Time

	mu         sync.Mutex
	pending    []pendingWrite
	maxPending int
	seq        uint64
	flushing   bool

	// OnFlush is called after each drain attempt with the number of
	// writes applied.
	OnFlush func(count int)
}

// Option customises a Store.
type Option func(*Store)

// WithMetrics publishes breaker state and fallback counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New connects to Redis and pings the server.
func New(cfg Config, opts ...Option) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg, opts...), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config, opts ...Option) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "risk"
	}
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	if cfg.MaxPending < 1 {
		cfg.MaxPending = 10000
	}

	s := &Store{
		client:     client,
		cb:         NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		fallback:   portfolio.NewMemoryStateStore(),
		prefix:     cfg.KeyPrefix,
		now:        time.Now,
		maxPending: cfg.MaxPending,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
		s.metrics.SetCircuitState(int(to))
		if from == StateClosed && to == StateOpen {
			s.metrics.CircuitTripped()
		}
		if to == StateClosed {
			go s.flush(context.Background())
		}
	}
	return s
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Breaker exposes the circuit breaker state.
func (s *Store) Breaker() *CircuitBreaker { return s.cb }

// Close closes the client. Queued writes are dropped.
func (s *Store) Close() error {
	if n := s.PendingCount(); n > 0 {
		log.Printf("[redis] closing with %d unflushed writes", n)
	}
	return s.client.Close()
}

func (s *Store) cooldownKey(userID string) string {
	return s.prefix + ":cooldown:" + userID
}

func (s *Store) dayBalanceKey(userID, day string) string {
	return s.prefix + ":daybal:" + userID + ":" + day
}

// ── Reads ──

func (s *Store) Cooldown(ctx context.Context, userID string) (time.Time, bool, error) {
	if s.PendingCount() > 0 {
		s.metrics.RedisFallback()
		return s.fallback.Cooldown(ctx, userID)
	}

	var (
		until time.Time
		found bool
	)
	err := s.cb.Execute(func() error {
		v, err := s.client.Get(ctx, s.cooldownKey(userID)).Int64()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		until, found = time.Unix(0, v).UTC(), true
		return nil
	})
	if err != nil {
		s.fellBack("cooldown", err)
		return s.fallback.Cooldown(ctx, userID)
	}
	return until, found, nil
}

func (s *Store) DayStartBalance(ctx context.Context, userID, day string) (float64, bool, error) {
	if s.PendingCount() > 0 {
		s.metrics.RedisFallback()
		return s.fallback.DayStartBalance(ctx, userID, day)
	}

	var (
		bal   float64
		found bool
	)
	err := s.cb.Execute(func() error {
		v, err := s.client.Get(ctx, s.dayBalanceKey(userID, day)).Float64()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		bal, found = v, true
		return nil
	})
	if err != nil {
		s.fellBack("day balance", err)
		return s.fallback.DayStartBalance(ctx, userID, day)
	}
	return bal, found, nil
}

// ── Writes ──
// Writes land in memory and join the queue in one step, then the queue is
// drained in order. A write never overtakes an older queued one.

func (s *Store) SetCooldown(ctx context.Context, userID string, until time.Time) error {
	s.write(ctx, pendingWrite{kind: writeCooldown, userID: userID, until: until})
	return nil
}

func (s *Store) ClearCooldown(ctx context.Context, userID string) error {
	s.write(ctx, pendingWrite{kind: writeClearCooldown, userID: userID})
	return nil
}

func (s *Store) SetDayStartBalance(ctx context.Context, userID, day string, balance float64) error {
	s.write(ctx, pendingWrite{kind: writeDayBalance, userID: userID, day: day, balance: balance})
	return nil
}

func (s *Store) write(ctx context.Context, pw pendingWrite) {
	s.mu.Lock()
	switch pw.kind {
	case writeCooldown:
		_ = s.fallback.SetCooldown(ctx, pw.userID, pw.until)
	case writeClearCooldown:
		_ = s.fallback.ClearCooldown(ctx, pw.userID)
	case writeDayBalance:
		_ = s.fallback.SetDayStartBalance(ctx, pw.userID, pw.day, pw.balance)
	}
	s.enqueueLocked(pw)
	s.mu.Unlock()

	// A cancelled caller must not count against the breaker.
	s.flush(context.WithoutCancel(ctx))
}

func (s *Store) apply(ctx context.Context, pw pendingWrite) error {
	switch pw.kind {
	case writeCooldown:
		ttl := pw.until.Sub(s.now())
		if ttl <= 0 {
			return s.client.Del(ctx, s.cooldownKey(pw.userID)).Err()
		}
		return s.client.Set(ctx, s.cooldownKey(pw.userID), pw.until.UnixNano(), ttl).Err()
	case writeClearCooldown:
		return s.client.Del(ctx, s.cooldownKey(pw.userID)).Err()
	case writeDayBalance:
		v := strconv.FormatFloat(pw.balance, 'f', -1, 64)
		return s.client.Set(ctx, s.dayBalanceKey(pw.userID, pw.day), v, dayBalanceTTL).Err()
	}
	return fmt.Errorf("redis: unknown write kind %d", pw.kind)
}

func (s *Store) fellBack(op string, err error) {
	s.metrics.RedisFallback()
	if !errors.Is(err, ErrCircuitOpen) {
		log.Printf("[redis] %s failed, using memory: %v", op, err)
	}
}

// ── Pending queue ──

// enqueueLocked appends pw, dropping the oldest write when full.
// Caller holds s.mu.
func (s *Store) enqueueLocked(pw pendingWrite) {
	s.seq++
	pw.seq = s.seq
	if len(s.pending) >= s.maxPending {
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, pw)
}

// PendingCount returns the number of writes not yet applied to Redis,
// including one being replayed.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// flush drains the queue head first. A write leaves the queue only after
// Redis accepted it, so reads keep using memory until the replay is done.
// The first failure stops the drain with the queue intact. Only one flush
// runs at a time; writes queued meanwhile are picked up by the running one.
func (s *Store) flush(ctx context.Context) {
	s.mu.Lock()
	if s.flushing || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	s.mu.Unlock()

	flushed := 0
	var err error
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.flushing = false
			s.mu.Unlock()
			break
		}
		pw := s.pending[0]
		s.mu.Unlock()

		err = s.cb.Execute(func() error { return s.apply(ctx, pw) })

		s.mu.Lock()
		if err != nil {
			s.flushing = false
			s.mu.Unlock()
			break
		}
		// The head may have been dropped by a full queue meanwhile.
		if len(s.pending) > 0 && s.pending[0].seq == pw.seq {
			s.pending = s.pending[1:]
		}
		s.mu.Unlock()
		flushed++
	}

	if err != nil {
		s.fellBack("write", err)
	}
	if flushed > 0 {
		log.Printf("[redis] flushed %d buffered writes", flushed)
	}
	if s.OnFlush != nil {
		s.OnFlush(flushed)
	}
}
