package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgNotifyLimit is the largest payload NOTIFY accepts.
const pgNotifyLimit = 8000

// PostgresFeed carries change events over LISTEN/NOTIFY. NOTIFY channel names
// are identifiers, so there is one channel per table and the scope channel is
// matched on the listener side.
type PostgresFeed struct {
	pool             *pgxpool.Pool
	prefix           string
	buffer           int
	subscribeTimeout time.Duration
}

var (
	_ Feed      = (*PostgresFeed)(nil)
	_ Publisher = (*PostgresFeed)(nil)
)

// NewPostgresPool opens a pgx pool for LISTEN/NOTIFY and checks it.
func NewPostgresPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("changefeed: parse postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("changefeed: new postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("changefeed: ping postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresFeed creates a feed on pool.
func NewPostgresFeed(pool *pgxpool.Pool, prefix string, buffer int, subscribeTimeout time.Duration) *PostgresFeed {
	if prefix == "" {
		prefix = "changes"
	}
	if subscribeTimeout <= 0 {
		subscribeTimeout = 10 * time.Second
	}
	return &PostgresFeed{pool: pool, prefix: prefix, buffer: buffer, subscribeTimeout: subscribeTimeout}
}

func (f *PostgresFeed) channelFor(table string) string {
	return strings.ToLower(f.prefix + "_" + table)
}

// Publish notifies listeners of ev.Table.
func (f *PostgresFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("changefeed: encode event: %w", err)
	}
	if len(payload) >= pgNotifyLimit {
		return fmt.Errorf("changefeed: event for %s is %d bytes, over the NOTIFY limit", ev.Channel, len(payload))
	}
	if _, err := f.pool.Exec(ctx, "SELECT pg_notify($1, $2)", f.channelFor(ev.Table), string(payload)); err != nil {
		return fmt.Errorf("changefeed: notify %s: %w", ev.Table, err)
	}
	return nil
}

// Subscribe holds one pooled connection in LISTEN mode until Unsubscribe.
func (f *PostgresFeed) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	if filter.Table == "" {
		return nil, fmt.Errorf("changefeed: postgres subscription requires a table")
	}
	sub := newSubscription(f.buffer)
	listenCtx, cancel := context.WithCancel(ctx)
	sub.stop = cancel
	go f.run(listenCtx, sub, filter)
	return sub, nil
}

func (f *PostgresFeed) run(ctx context.Context, sub *subscription, filter Filter) {
	sub.emitStatus(StatusConnecting)

	acquireCtx, cancel := context.WithTimeout(ctx, f.subscribeTimeout)
	conn, err := f.pool.Acquire(acquireCtx)
	if err == nil {
		_, err = conn.Exec(acquireCtx, "LISTEN "+pgx.Identifier{f.channelFor(filter.Table)}.Sanitize())
	}
	cancel()
	if err != nil {
		if conn != nil {
			conn.Release()
		}
		if sub.closed() {
			return
		}
		if isTimeout(err) {
			sub.emitStatus(StatusTimedOut)
		} else {
			slog.Warn("changefeed: postgres listen failed", "table", filter.Table, "error", err)
			sub.emitStatus(StatusError)
		}
		return
	}
	// 取消 WaitForNotification 会让 pgx 关闭底层连接，Release 后连接池会丢弃它
	defer conn.Release()
	sub.emitStatus(StatusConnected)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if sub.closed() || ctx.Err() != nil {
				return
			}
			slog.Warn("changefeed: postgres wait failed", "table", filter.Table, "error", err)
			sub.emitStatus(StatusError)
			return
		}
		var ev Event
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			slog.Warn("changefeed: dropping undecodable notification", "channel", n.Channel, "error", err)
			continue
		}
		if !filter.Match(ev) {
			continue
		}
		if !sub.emitEvent(ev) {
			return
		}
	}
}
