// Package breaker защищает публикацию сообщений circuit breaker'ом:
// после серии ошибок брокера публикации быстро отклоняются, пока не
// истечёт reset timeout.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

// ErrOpen возвращается, когда breaker открыт и публикации блокируются.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker — простая реализация circuit breaker паттерна.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       State
	logger      *log.Entry
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		logger:       logger,
	}
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
		} else {
			cb.mu.Unlock()
			return ErrOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}
		return err
	}

	// Успешное выполнение - сбрасываем счётчик
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.failures = 0
	return nil
}

// Bus оборачивает шину сообщений circuit breaker'ом.
type Bus struct {
	next    domain.MessageBus
	breaker *CircuitBreaker
}

var _ domain.MessageBus = (*Bus)(nil)

// Wrap защищает публикации в next заданным breaker'ом.
func Wrap(next domain.MessageBus, breaker *CircuitBreaker) *Bus {
	return &Bus{next: next, breaker: breaker}
}

// Publish публикует сообщение, если breaker закрыт; иначе возвращает ErrOpen.
func (b *Bus) Publish(ctx context.Context, topic string, key string, msg any) error {
	return b.breaker.Execute("publish "+topic, func() error {
		return b.next.Publish(ctx, topic, key, msg)
	})
}
