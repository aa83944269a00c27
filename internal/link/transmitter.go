// Package link moves snapshots between hosts: a Transmitter pushes NDJSON
// records over one outbound TCP connection and a Receiver accepts one
// sender at a time and publishes what it decodes.
package link

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Dicklesworthstone/telelink/internal/logging"
	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/schedule"
	"github.com/Dicklesworthstone/telelink/internal/telemetry"
	"github.com/Dicklesworthstone/telelink/internal/wire"
)

// Outcome reports what Send did with a snapshot.
type Outcome int

const (
	// Sent means the record was written to the open connection.
	Sent Outcome = iota
	// RetryScheduled means the snapshot was dropped and the link is down
	// until the next reconnect attempt.
	RetryScheduled
)

func (o Outcome) String() string {
	if o == Sent {
		return "sent"
	}
	return "retry-scheduled"
}

// Dialer opens the outbound connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TransmitterConfig holds the sender's network settings.
type TransmitterConfig struct {
	Addr         string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// RetryDelay is the fixed wait between reconnect attempts. Retries are
	// unbounded.
	RetryDelay time.Duration
}

// TransmitterOptions carries optional collaborators.
type TransmitterOptions struct {
	Dialer Dialer
	Clock  schedule.Clock
	Stats  *telemetry.SenderStats
	Logger *slog.Logger
}

// Transmitter owns the single outbound connection. Connect, Send and Close
// are its whole lifecycle; reconnecting is Send noticing there is no
// connection and the retry delay has passed.
type Transmitter struct {
	cfg    TransmitterConfig
	dialer Dialer
	clock  schedule.Clock
	stats  *telemetry.SenderStats
	log    *slog.Logger

	mu        sync.Mutex
	conn      net.Conn
	retryAt   time.Time
	attempted bool
}

// NewTransmitter returns a disconnected Transmitter.
func NewTransmitter(cfg TransmitterConfig, opts TransmitterOptions) *Transmitter {
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}
	if opts.Clock == nil {
		opts.Clock = schedule.Real()
	}
	if opts.Stats == nil {
		opts.Stats = &telemetry.SenderStats{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Transmitter{
		cfg:    cfg,
		dialer: opts.Dialer,
		clock:  opts.Clock,
		stats:  opts.Stats,
		log:    logger.With("component", "transmitter", "addr", cfg.Addr),
	}
}

// Connect dials the receiver, replacing any open connection.
func (t *Transmitter) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectLocked(ctx)
}

func (t *Transmitter) connectLocked(ctx context.Context) error {
	t.teardownLocked()
	if t.attempted {
		t.stats.Reconnects.Add(1)
	}
	t.attempted = true

	dialCtx := ctx
	if t.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := t.dialer.DialContext(dialCtx, "tcp", t.cfg.Addr)
	if err != nil {
		t.retryAt = t.clock.Now().Add(t.cfg.RetryDelay)
		return fmt.Errorf("dial %s: %w", t.cfg.Addr, err)
	}
	t.conn = conn
	t.stats.Connected.Store(true)
	t.log.Info("connected", "remote", conn.RemoteAddr().String())
	return nil
}

// Send writes snap as one record. When the link is down it reconnects if
// the retry delay has passed; otherwise, or if the reconnect or write
// fails, the snapshot is dropped and RetryScheduled is returned. Snapshots
// are never queued.
func (t *Transmitter) Send(ctx context.Context, snap model.Snapshot) (Outcome, error) {
	payload, err := wire.Encode(snap)
	if err != nil {
		t.stats.Dropped.Add(1)
		return RetryScheduled, fmt.Errorf("encode snapshot: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		if t.clock.Now().Before(t.retryAt) {
			t.stats.Dropped.Add(1)
			return RetryScheduled, nil
		}
		if err := t.connectLocked(ctx); err != nil {
			t.stats.Failures.Add(1)
			t.stats.Dropped.Add(1)
			t.log.Warn("receiver unreachable", "err", err, "retry_in", t.cfg.RetryDelay)
			return RetryScheduled, err
		}
	}

	if t.cfg.WriteTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	if _, err := t.conn.Write(payload); err != nil {
		t.teardownLocked()
		t.retryAt = t.clock.Now().Add(t.cfg.RetryDelay)
		t.stats.Failures.Add(1)
		t.stats.Dropped.Add(1)
		t.log.Warn("send failed, connection dropped", "err", err, "retry_in", t.cfg.RetryDelay)
		return RetryScheduled, fmt.Errorf("write record: %w", err)
	}
	t.stats.Sent.Add(1)
	return Sent, nil
}

// Connected reports whether a connection is open.
func (t *Transmitter) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Close tears the connection down. The Transmitter may be used again.
func (t *Transmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.stats.Connected.Store(false)
	return err
}

func (t *Transmitter) teardownLocked() {
	if t.conn == nil {
		return
	}
	_ = t.conn.Close()
	t.conn = nil
	t.stats.Connected.Store(false)
}

// Run sends every snapshot from snaps until the channel closes or ctx ends,
// then closes the connection.
func (t *Transmitter) Run(ctx context.Context, snaps <-chan model.Snapshot) {
	defer t.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			outcome, err := t.Send(ctx, snap)
			if err == nil && outcome == Sent {
				t.log.Debug("snapshot sent", "timestamp", snap.Timestamp)
			}
		}
	}
}
