package link

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Dicklesworthstone/telelink/internal/display"
	tlerrors "github.com/Dicklesworthstone/telelink/internal/errors"
	"github.com/Dicklesworthstone/telelink/internal/logging"
	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/schedule"
	"github.com/Dicklesworthstone/telelink/internal/telemetry"
	"github.com/Dicklesworthstone/telelink/internal/wire"
)

// ConnectionState describes the receiver's peer. Values are immutable; the
// receiver swaps in a new one on every change.
type ConnectionState struct {
	Active         bool
	Peer           string
	Session        string
	Since          time.Time
	LastAcceptedAt time.Time
}

// ReceiverConfig holds the listener settings.
type ReceiverConfig struct {
	Addr string
	// ReadTimeout bounds each blocking read so shutdown is noticed promptly.
	ReadTimeout time.Duration
}

// ReceiverOptions carries optional collaborators.
type ReceiverOptions struct {
	Clock  schedule.Clock
	Stats  *telemetry.ReceiverStats
	Logger *slog.Logger
}

// Receiver accepts one sender at a time; a new connection supersedes the
// previous one. Decoded snapshots go to the display store stamped with the
// receiver's clock.
type Receiver struct {
	cfg   ReceiverConfig
	store *display.Store
	clock schedule.Clock
	stats *telemetry.ReceiverStats
	log   *slog.Logger

	ln    net.Listener
	state atomic.Pointer[ConnectionState]

	// mu serialises writers: peer hand-over and publishing.
	mu       sync.Mutex
	active   net.Conn
	activeID uint64
	nextID   uint64
}

// NewReceiver returns a receiver that publishes into store.
func NewReceiver(cfg ReceiverConfig, store *display.Store, opts ReceiverOptions) *Receiver {
	if opts.Clock == nil {
		opts.Clock = schedule.Real()
	}
	if opts.Stats == nil {
		opts.Stats = &telemetry.ReceiverStats{}
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Receiver{
		cfg:   cfg,
		store: store,
		clock: opts.Clock,
		stats: opts.Stats,
		log:   logger.With("component", "receiver"),
	}
	r.state.Store(&ConnectionState{})
	return r
}

// Listen binds the configured address. A failure is a NETWORK error meant
// for the operator; nothing else should start after it.
func (r *Receiver) Listen() error {
	ln, err := net.Listen("tcp", r.cfg.Addr)
	if err != nil {
		return tlerrors.WrapWithCode(err, tlerrors.ErrNetwork,
			fmt.Sprintf("Cannot listen on %s", r.cfg.Addr),
			"Check that the port is free and the address belongs to this host, or pick another --port")
	}
	r.ln = ln
	r.log.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (r *Receiver) Addr() net.Addr {
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

// State returns the current connection state.
func (r *Receiver) State() ConnectionState {
	return *r.state.Load()
}

// Serve accepts connections until ctx is done. It closes the listener and
// the active connection on return and waits for the reader to exit.
func (r *Receiver) Serve(ctx context.Context) error {
	if r.ln == nil {
		if err := r.Listen(); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer func() {
		stop()
		_ = r.Close()
		wg.Wait()
	}()

	for {
		conn, err := r.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		id := r.adopt(conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.read(ctx, conn, id)
		}()
	}
}

// adopt makes conn the active peer, closing whichever came before.
func (r *Receiver) adopt(conn net.Conn) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		r.log.Info("connection superseded", "peer", r.active.RemoteAddr().String())
		_ = r.active.Close()
	}
	r.nextID++
	r.active = conn
	r.activeID = r.nextID
	r.stats.Connections.Add(1)

	prev := r.state.Load()
	next := &ConnectionState{
		Active:         true,
		Peer:           conn.RemoteAddr().String(),
		Session:        uuid.NewString(),
		Since:          r.clock.Now(),
		LastAcceptedAt: prev.LastAcceptedAt,
	}
	r.state.Store(next)
	r.log.Info("sender connected", "peer", next.Peer, "session", next.Session)
	return r.activeID
}

func (r *Receiver) release(conn net.Conn, id uint64) {
	_ = conn.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID != id {
		return
	}
	r.active = nil
	next := *r.state.Load()
	next.Active = false
	r.state.Store(&next)
	r.log.Info("sender disconnected", "peer", next.Peer, "session", next.Session)
}

// read splits the stream into records. Each read is bounded by ReadTimeout;
// a timeout only re-checks ctx, keeping any partial record. The size limit
// applies to the record without its delimiter.
func (r *Receiver) read(ctx context.Context, conn net.Conn, id uint64) {
	defer r.release(conn, id)

	reader := bufio.NewReaderSize(conn, 4096)
	var record []byte
	oversized := false
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
		chunk, err := reader.ReadSlice(wire.Delimiter)
		if !oversized {
			record = append(record, chunk...)
			size := len(record)
			if err == nil {
				size--
			}
			if size > wire.MaxRecordSize {
				r.stats.Malformed.Add(1)
				r.log.Debug("record exceeds size limit, skipping to next delimiter")
				oversized = true
				record = record[:0]
			}
		}
		switch {
		case err == nil:
			if !oversized && len(bytes.TrimSpace(record)) > 0 {
				r.accept(id, record)
			}
			oversized = false
			record = record[:0]
		case errors.Is(err, bufio.ErrBufferFull):
		case isTimeout(err):
		default:
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				r.log.Debug("read failed", "err", err)
			}
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (r *Receiver) accept(id uint64, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != r.activeID {
		return
	}
	_, _ = r.onLineLocked(raw)
}

// OnLine decodes one record. A valid record replaces the latest snapshot;
// an invalid one is counted and dropped, leaving the previous snapshot in
// place.
func (r *Receiver) OnLine(raw []byte) (model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onLineLocked(raw)
}

func (r *Receiver) onLineLocked(raw []byte) (model.Snapshot, error) {
	snap, err := wire.Decode(raw)
	if err != nil {
		r.stats.Malformed.Add(1)
		r.log.Debug("record discarded", "err", err)
		return model.Snapshot{}, err
	}
	now := r.clock.Now()
	r.store.Publish(snap, now)
	r.stats.Accepted.Add(1)

	next := *r.state.Load()
	next.LastAcceptedAt = now
	r.state.Store(&next)
	return snap, nil
}

// Close stops listening and drops the active connection.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.active != nil {
		_ = r.active.Close()
	}
	r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	err := r.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
