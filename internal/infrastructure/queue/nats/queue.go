package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/infrastructure/resilience"
)

const (
	subjectReindex = "documents.reindex"
	subjectIndexed = "documents.indexed"
	workerGroup    = "indexers"
)

// Queue carries document ids between the API and the indexer worker.
// "documents.reindex" fans out to one indexer via a queue group;
// "documents.indexed" broadcasts to every API replica so each one can
// refresh its vector snapshot.
type Queue struct {
	conn     *nats.Conn
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout     time.Duration
	ReconnectWait      time.Duration
	MaxReconnects      int
	ResilienceExecutor *resilience.Executor
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("ragshield"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{conn: conn, executor: options.ResilienceExecutor}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishReindex(ctx context.Context, documentID string) error {
	return q.publish(ctx, subjectReindex, documentID)
}

func (q *Queue) PublishIndexed(ctx context.Context, documentID string) error {
	return q.publish(ctx, subjectIndexed, documentID)
}

func (q *Queue) publish(ctx context.Context, subject, documentID string) error {
	call := func(context.Context) error {
		if err := q.conn.Publish(subject, []byte(documentID)); err != nil {
			return domain.WrapError(domain.ErrTemporary, "nats publish", err)
		}
		return nil
	}

	if q.executor != nil {
		return q.executor.Execute(ctx, "nats.publish."+subject, call)
	}
	return call(ctx)
}

// SubscribeReindex joins the indexer queue group so each reindex request is
// handled by exactly one worker. Blocks until ctx is cancelled.
func (q *Queue) SubscribeReindex(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(subjectReindex, workerGroup, q.messageHandler(ctx, handler))
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subjectReindex, err)
	}
	return q.waitAndDrain(ctx, sub)
}

// SubscribeIndexed is a plain subscription: every API replica sees every
// indexed notification. Blocks until ctx is cancelled.
func (q *Queue) SubscribeIndexed(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.Subscribe(subjectIndexed, q.messageHandler(ctx, handler))
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subjectIndexed, err)
	}
	return q.waitAndDrain(ctx, sub)
}

func (q *Queue) messageHandler(ctx context.Context, handler func(context.Context, string) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			slog.Error("queue_handler_failed", "subject", msg.Subject, "document_id", string(msg.Data), "error", err)
		}
	}
}

func (q *Queue) waitAndDrain(ctx context.Context, sub *nats.Subscription) error {
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
