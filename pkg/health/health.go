package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

type CheckerRegistry struct {
	mu       sync.RWMutex
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, checker)
}

// Check runs every checker concurrently. Any failure makes the whole
// service unhealthy.
func (r *CheckerRegistry) Check(ctx context.Context) Health {
	r.mu.RLock()
	checkers := append([]Checker(nil), r.checkers...)
	r.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := checker.Check(ctx)
			results[i] = CheckResult{Status: StatusHealthy, Duration: time.Since(start), Timestamp: time.Now()}
			if err != nil {
				results[i].Status = StatusUnhealthy
				results[i].Message = err.Error()
			}
		}()
	}
	wg.Wait()

	h := Health{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checkers)),
	}
	for i, checker := range checkers {
		h.Checks[checker.Name()] = results[i]
		if results[i].Status == StatusUnhealthy {
			h.Status = StatusUnhealthy
		}
	}
	return h
}

type PostgreSQLChecker struct {
	db *sql.DB
}

func NewPostgreSQLChecker(db *sql.DB) *PostgreSQLChecker {
	return &PostgreSQLChecker{db: db}
}

func (c *PostgreSQLChecker) Name() string {
	return "postgresql"
}

func (c *PostgreSQLChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgresql ping failed: %w", err)
	}
	return nil
}

// KafkaChecker reports whether the brokers answer a metadata request.
type KafkaChecker struct {
	client *kafka.Client
}

func NewKafkaChecker(brokers []string, transport *kafka.Transport) *KafkaChecker {
	return &KafkaChecker{client: &kafka.Client{Addr: kafka.TCP(brokers...), Transport: transport}}
}

func (c *KafkaChecker) Name() string {
	return "kafka"
}

func (c *KafkaChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	resp, err := c.client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{}})
	if err != nil {
		return fmt.Errorf("kafka metadata request failed: %w", err)
	}
	if len(resp.Brokers) == 0 {
		return fmt.Errorf("kafka returned no brokers")
	}
	return nil
}

// BreakerState is the part of a circuit breaker the checker reads.
type BreakerState interface {
	Name() string
	State() gobreaker.State
}

// CircuitBreakerChecker fails while the breaker is open. A half-open
// breaker is reported healthy because it is already probing again.
type CircuitBreakerChecker struct {
	breaker BreakerState
}

func NewCircuitBreakerChecker(breaker BreakerState) *CircuitBreakerChecker {
	return &CircuitBreakerChecker{breaker: breaker}
}

func (c *CircuitBreakerChecker) Name() string {
	return "circuit_breaker_" + c.breaker.Name()
}

func (c *CircuitBreakerChecker) Check(_ context.Context) error {
	if state := c.breaker.State(); state == gobreaker.StateOpen {
		return fmt.Errorf("circuit breaker %s is %s", c.breaker.Name(), state)
	}
	return nil
}

// Handler serves the registry as JSON, with 503 when any check fails.
func (r *CheckerRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h := r.Check(req.Context())

		w.Header().Set("Content-Type", "application/json")
		if h.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(h)
	})
}
