package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angeloszaimis/payment-router/internal/dispatch"
	"github.com/angeloszaimis/payment-router/internal/payment"
	"github.com/angeloszaimis/payment-router/internal/retry"
)

var errNotConnected = errors.New("broker connection is closed")

const (
	dialAttempts   = 5
	confirmTimeout = 10 * time.Second
)

type session struct {
	conn       *amqp.Connection
	publish    *amqp.Channel
	consume    *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func (s *session) close() {
	if s.consume != nil {
		s.consume.Close()
	}
	if s.publish != nil {
		s.publish.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

// AMQPQueue is a dispatch.Queue backed by a durable RabbitMQ queue.
// Publishes wait for broker confirms. Deliveries are acked on receipt, so a
// submission is forwarded at most once even across restarts.
type AMQPQueue struct {
	url      string
	name     string
	prefetch int
	logger   *slog.Logger

	mutex   sync.Mutex
	sess    *session
	changed chan struct{}

	healthy   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

var _ dispatch.Queue = (*AMQPQueue)(nil)

// Dial connects to RabbitMQ, declares the queue and starts consuming.
// Lost connections are re-established in the background.
func Dial(ctx context.Context, url, name string, prefetch int, logger *slog.Logger) (*AMQPQueue, error) {
	if prefetch < 1 {
		prefetch = 1
	}

	q := &AMQPQueue{
		url:      url,
		name:     name,
		prefetch: prefetch,
		logger:   logger.With(slog.String("queue", name)),
		changed:  make(chan struct{}),
		closed:   make(chan struct{}),
	}

	var sess *session
	err := retry.Do(ctx, retry.NewBackoff(200*time.Millisecond, 5*time.Second, 2), dialAttempts, func(context.Context) error {
		var err error
		sess, err = q.dial()
		if err != nil {
			q.logger.Warn("RabbitMQ not ready", slog.String("error", err.Error()))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	q.install(sess)
	q.logger.Info("Connected to RabbitMQ")
	return q, nil
}

func (q *AMQPQueue) dial() (*session, error) {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	sess := &session{conn: conn}

	if sess.publish, err = conn.Channel(); err != nil {
		sess.close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := sess.publish.Confirm(false); err != nil {
		sess.close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if _, err := sess.publish.QueueDeclare(q.name, true, false, false, false, nil); err != nil {
		sess.close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if sess.consume, err = conn.Channel(); err != nil {
		sess.close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := sess.consume.Qos(q.prefetch, 0, false); err != nil {
		sess.close()
		return nil, fmt.Errorf("set QoS: %w", err)
	}
	if sess.deliveries, err = sess.consume.Consume(q.name, "", false, false, false, false, nil); err != nil {
		sess.close()
		return nil, fmt.Errorf("register consumer: %w", err)
	}

	return sess, nil
}

func (q *AMQPQueue) install(sess *session) {
	q.mutex.Lock()
	q.sess = sess
	close(q.changed)
	q.changed = make(chan struct{})
	q.mutex.Unlock()

	q.healthy.Store(true)
	go q.watch(sess)
}

func (q *AMQPQueue) watch(sess *session) {
	connClosed := sess.conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-q.closed:
		return
	case err := <-connClosed:
		q.healthy.Store(false)
		q.logger.Warn("RabbitMQ connection closed", slog.Any("error", err))
	}

	q.mutex.Lock()
	q.sess = nil
	q.mutex.Unlock()
	sess.close()

	backoff := retry.NewBackoff(500*time.Millisecond, 30*time.Second, 2)
	for {
		timer := time.NewTimer(backoff.Next())
		select {
		case <-q.closed:
			timer.Stop()
			return
		case <-timer.C:
		}

		next, err := q.dial()
		if err != nil {
			q.logger.Warn("RabbitMQ reconnect failed",
				slog.Int("attempt", backoff.Attempts()),
				slog.String("error", err.Error()))
			continue
		}

		q.install(next)
		q.logger.Info("Reconnected to RabbitMQ")
		return
	}
}

func (q *AMQPQueue) current() (*session, chan struct{}) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.sess, q.changed
}

func (q *AMQPQueue) Enqueue(ctx context.Context, sub payment.Submission) error {
	select {
	case <-q.closed:
		return dispatch.ErrQueueClosed
	default:
	}

	sess, _ := q.current()
	if sess == nil || !q.healthy.Load() {
		return fmt.Errorf("%w: %w", dispatch.ErrQueueFull, errNotConnected)
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	deferred, err := sess.publish.PublishWithDeferredConfirmWithContext(
		ctx,
		"",
		q.name,
		false,
		false,
		amqp.Publishing{
			Headers: amqp.Table{
				"correlation_id": sub.CorrelationID,
			},
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    sub.RequestedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish submission: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("%w: broker nacked submission", dispatch.ErrQueueFull)
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("%w: publisher confirm timeout", dispatch.ErrQueueFull)
	}
}

func (q *AMQPQueue) Dequeue(ctx context.Context) (payment.Submission, error) {
	for {
		sess, changed := q.current()
		if sess == nil {
			select {
			case <-changed:
				continue
			case <-q.closed:
				return payment.Submission{}, dispatch.ErrQueueClosed
			case <-ctx.Done():
				return payment.Submission{}, ctx.Err()
			}
		}

		select {
		case <-q.closed:
			return payment.Submission{}, dispatch.ErrQueueClosed
		case <-ctx.Done():
			return payment.Submission{}, ctx.Err()
		case d, ok := <-sess.deliveries:
			if !ok {
				// Connection lost; wait for the watcher to install a new session.
				select {
				case <-changed:
				case <-q.closed:
					return payment.Submission{}, dispatch.ErrQueueClosed
				case <-ctx.Done():
					return payment.Submission{}, ctx.Err()
				}
				continue
			}

			var sub payment.Submission
			if err := json.Unmarshal(d.Body, &sub); err != nil {
				q.logger.Error("Dropping malformed message", slog.String("error", err.Error()))
				_ = d.Nack(false, false)
				continue
			}

			if err := d.Ack(false); err != nil {
				q.logger.Error("Failed to ack message",
					slog.String("correlation_id", sub.CorrelationID),
					slog.String("error", err.Error()))
			}
			return sub, nil
		}
	}
}

// Len reports the number of messages ready in the broker queue.
func (q *AMQPQueue) Len() int {
	sess, _ := q.current()
	if sess == nil {
		return 0
	}
	info, err := sess.publish.QueueDeclarePassive(q.name, true, false, false, false, nil)
	if err != nil {
		return 0
	}
	return info.Messages
}

// IsHealthy returns true while the connection is up.
func (q *AMQPQueue) IsHealthy() bool {
	return q.healthy.Load()
}

// Close stops publishing and consuming. Unlike the in-process queue it does
// not drain: Dequeue fails with dispatch.ErrQueueClosed straight away and
// unconsumed messages stay durable in the broker for the next start.
func (q *AMQPQueue) Close() error {
	q.closeOnce.Do(func() {
		q.logger.Info("Closing RabbitMQ queue")
		close(q.closed)
		q.healthy.Store(false)

		q.mutex.Lock()
		sess := q.sess
		q.sess = nil
		q.mutex.Unlock()

		if sess != nil {
			sess.close()
		}
	})
	return nil
}
