package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/internal/framing"
	"github.com/bft-labs/aprsship/internal/ports"
	"github.com/bft-labs/aprsship/pkg/log"
)

// Default session timing.
const (
	DefaultConnectTimeout     = 10 * time.Second
	DefaultLoginTimeout       = 15 * time.Second
	DefaultLivenessWindow     = 60 * time.Second
	DefaultMaxStartupAttempts = 10

	// ReceiveOnlyPasscode logs in without transmit rights.
	ReceiveOnlyPasscode = "-1"
)

// ConnectionConfig configures the APRS-IS session.
type ConnectionConfig struct {
	// Addr is the server host:port.
	Addr string

	Callsign string

	// Passcode is sent verbatim. Empty means ReceiveOnlyPasscode.
	Passcode string

	// Filter is the optional server-side filter sent with the login.
	Filter string

	Software string
	Version  string

	ConnectTimeout time.Duration
	LoginTimeout   time.Duration

	// Liveness is the longest allowed gap between two lines, comments included.
	Liveness time.Duration

	Backoff BackoffPolicy

	// MaxStartupAttempts bounds failed attempts before the first session
	// reaches Streaming. Zero means unlimited.
	MaxStartupAttempts int

	MaxLineLength int
}

func (c ConnectionConfig) withDefaults() ConnectionConfig {
	if c.Passcode == "" {
		c.Passcode = ReceiveOnlyPasscode
	}
	if c.Software == "" {
		c.Software = "aprsship"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.Liveness <= 0 {
		c.Liveness = DefaultLivenessWindow
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = framing.DefaultMaxLineLength
	}
	c.Backoff = c.Backoff.withDefaults()
	return c
}

// LoginLine builds the first line sent after connecting, terminator included.
func (c ConnectionConfig) LoginLine() string {
	var b strings.Builder
	fmt.Fprintf(&b, "user %s pass %s vers %s %s", c.Callsign, c.Passcode, c.Software, c.Version)
	if c.Filter != "" {
		b.WriteString(" filter ")
		b.WriteString(c.Filter)
	}
	b.WriteString("\r\n")
	return b.String()
}

// ConnectionManager owns the APRS-IS session: connect, login, liveness
// monitoring and reconnection with backoff. It is the only writer of the
// connection state.
type ConnectionManager struct {
	cfg    ConnectionConfig
	dialer ports.Dialer
	logger log.Logger
	stats  *Stats
	events PipelineEvents

	mu     sync.Mutex
	state  domain.ConnState
	conn   net.Conn
	filter string

	writeMu sync.Mutex
}

// NewConnectionManager creates a manager in the Disconnected state.
func NewConnectionManager(cfg ConnectionConfig, dialer ports.Dialer, stats *Stats, logger log.Logger, events PipelineEvents) *ConnectionManager {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if events == nil {
		events = NoopEvents{}
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &ConnectionManager{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
		stats:  stats,
		events: events,
		state:  domain.ConnDisconnected,
		filter: cfg.Filter,
	}
}

// State returns the current connection state.
func (m *ConnectionManager) State() domain.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run keeps a session open until ctx is canceled, forwarding data lines to
// out. It closes out when it returns. The error is nil on cancellation and
// wraps ErrStartupExhausted if no session ever reached Streaming within
// MaxStartupAttempts.
func (m *ConnectionManager) Run(ctx context.Context, out chan<- domain.RawLine) error {
	defer close(out)
	defer m.transition(domain.ConnClosing, "shutdown")

	bo := NewBackoff(m.cfg.Backoff)
	everStreamed := false
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		m.transition(domain.ConnConnecting, "connect")
		streamed, err := m.session(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		m.transition(domain.ConnDisconnected, reasonOf(err))

		if streamed > 0 || m.reachedStreaming(err) {
			everStreamed = true
			if bo.ObserveSession(streamed) {
				m.logger.Debug("session was stable, backoff reset", log.Duration("streamed", streamed))
			}
		}
		if !everStreamed {
			failures++
			if m.cfg.MaxStartupAttempts > 0 && failures >= m.cfg.MaxStartupAttempts {
				return fmt.Errorf("%w: %d attempts, last error: %v", domain.ErrStartupExhausted, failures, err)
			}
		}

		delay := bo.Next()
		m.stats.reconnects.Add(1)
		m.logger.Warn("session ended, reconnecting",
			log.String("addr", m.cfg.Addr),
			log.Err(err),
			log.Duration("delay", delay),
		)
		if sleepCtx(ctx, delay) != nil {
			return nil
		}
	}
}

// reachedStreaming is true when the session failed only after login was
// acknowledged, even if it streamed for less than a clock tick.
func (m *ConnectionManager) reachedStreaming(err error) bool {
	var se *streamEndError
	return errors.As(err, &se)
}

// streamEndError marks failures that happened in the Streaming state.
type streamEndError struct{ err error }

func (e *streamEndError) Error() string { return e.err.Error() }
func (e *streamEndError) Unwrap() error { return e.err }

// session runs one connection attempt. It returns how long the session
// stayed in Streaming and why it ended. The state on return is Connecting,
// Authenticating or Streaming.
func (m *ConnectionManager) session(ctx context.Context, out chan<- domain.RawLine) (time.Duration, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	conn, err := m.dialer.DialContext(dialCtx, "tcp", m.cfg.Addr)
	cancel()
	if err != nil {
		return 0, &domain.TransportError{Op: "dial", Addr: m.cfg.Addr, Err: err}
	}
	defer conn.Close()

	m.transition(domain.ConnAuthenticating, "tcp connected")
	m.setConn(conn)
	defer m.setConn(nil)

	loginCfg := m.cfg
	loginCfg.Filter = m.Filter()
	if err := m.write(conn, loginCfg.LoginLine()); err != nil {
		return 0, &domain.TransportError{Op: "write", Addr: m.cfg.Addr, Err: err}
	}

	w := newWatchdog(m.cfg.LoginTimeout, m.cfg.Liveness)
	stopWatchdog := w.start(ctx, conn)
	defer stopWatchdog()

	reader := framing.NewReader(conn, m.cfg.MaxLineLength, m.logger)
	var streamingSince time.Time
	var overflows uint64
	streamedFor := func() time.Duration {
		if streamingSince.IsZero() {
			return 0
		}
		return time.Since(streamingSince)
	}

	for {
		line, err := reader.Next()
		if n := reader.Overflows(); n > overflows {
			m.stats.overflows.Add(n - overflows)
			overflows = n
		}
		if err != nil {
			return streamedFor(), m.sessionError(ctx, w, err, !streamingSince.IsZero())
		}

		w.touch()
		m.stats.linesReceived.Add(1)
		m.stats.lastLineAt.Store(line.ReceivedAt.UnixNano())

		if streamingSince.IsZero() {
			acked := !line.Comment
			if line.Comment {
				if verified, ok := parseLogresp(line.Text); ok {
					acked = true
					if !verified && m.cfg.Passcode != ReceiveOnlyPasscode {
						m.logger.Warn("login unverified, check passcode", log.String("callsign", m.cfg.Callsign))
					}
				}
			}
			if acked {
				streamingSince = time.Now()
				w.streaming()
				m.stats.lastConnectedAt.Store(streamingSince.UnixNano())
				m.transition(domain.ConnStreaming, "login acknowledged")
				// A filter changed while authenticating was not in the login line.
				if f := m.Filter(); f != loginCfg.Filter {
					if err := m.write(conn, "#filter "+f+"\r\n"); err != nil {
						m.logger.Warn("failed to send filter", log.Err(err))
					}
				}
			}
		}

		if line.Comment {
			m.stats.comments.Add(1)
			continue
		}

		select {
		case out <- line:
			continue
		default:
		}

		// Queue full: stop reading until the pipeline catches up. The
		// watchdog ignores the silence this causes.
		m.stats.stalls.Add(1)
		w.pause()
		select {
		case out <- line:
			w.resume()
		case <-ctx.Done():
			return streamedFor(), ctx.Err()
		}
	}
}

func (m *ConnectionManager) sessionError(ctx context.Context, w *watchdog, err error, streaming bool) error {
	switch {
	case w.timedOut() != nil:
		err = w.timedOut()
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, io.EOF):
		err = &domain.TransportError{Op: "read", Addr: m.cfg.Addr, Err: errors.New("server closed connection")}
	default:
		err = &domain.TransportError{Op: "read", Addr: m.cfg.Addr, Err: err}
	}
	if streaming {
		return &streamEndError{err: err}
	}
	return err
}

// SetFilter records the filter for future logins and, while Streaming,
// sends it to the server on the live session.
func (m *ConnectionManager) SetFilter(filter string) error {
	m.mu.Lock()
	m.filter = filter
	conn := m.conn
	streaming := m.state == domain.ConnStreaming
	m.mu.Unlock()

	if !streaming || conn == nil {
		return nil
	}
	if err := m.write(conn, "#filter "+filter+"\r\n"); err != nil {
		return &domain.TransportError{Op: "write", Addr: m.cfg.Addr, Err: err}
	}
	m.logger.Info("filter updated", log.String("filter", filter))
	return nil
}

// Filter returns the filter used for the next login.
func (m *ConnectionManager) Filter() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter
}

func (m *ConnectionManager) write(conn net.Conn, s string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(m.cfg.ConnectTimeout)); err != nil {
		return err
	}
	_, err := io.WriteString(conn, s)
	return err
}

func (m *ConnectionManager) setConn(conn net.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

// transition moves the connection state along a legal edge and emits the
// change. Illegal edges are logged and ignored.
func (m *ConnectionManager) transition(next domain.ConnState, reason string) {
	m.mu.Lock()
	prev := m.state
	st, err := prev.Transition(next)
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("connection state", log.Err(err))
		return
	}
	m.state = st
	m.mu.Unlock()

	m.logger.Info("connection state",
		log.String("from", prev.String()),
		log.String("to", st.String()),
		log.String("reason", reason),
		log.String("addr", m.cfg.Addr),
	)
	m.events.OnConnectionStateChange(prev, st, reason)
}

func reasonOf(err error) string {
	if err == nil {
		return "session ended"
	}
	return err.Error()
}

// parseLogresp recognises "# logresp CALL verified|unverified, server NAME".
func parseLogresp(text string) (verified, ok bool) {
	fields := strings.Fields(text)
	if len(fields) < 4 || fields[0] != "#" || fields[1] != "logresp" {
		return false, false
	}
	switch strings.TrimSuffix(fields[3], ",") {
	case "verified":
		return true, true
	case "unverified":
		return false, true
	}
	return false, false
}

// watchdog closes the session when the server goes quiet: LoginTimeout
// after the login line while authenticating, Liveness between lines while
// streaming. It does not count time spent paused for backpressure.
type watchdog struct {
	login    time.Duration
	liveness time.Duration
	loginAt  time.Time

	lastSeen  atomic.Int64
	paused    atomic.Bool
	inStream  atomic.Bool
	timeout   atomic.Pointer[domain.ProtocolTimeoutError]
	pollEvery time.Duration
}

func newWatchdog(login, liveness time.Duration) *watchdog {
	poll := login
	if liveness < poll {
		poll = liveness
	}
	poll /= 4
	if poll < 5*time.Millisecond {
		poll = 5 * time.Millisecond
	}
	w := &watchdog{login: login, liveness: liveness, loginAt: time.Now(), pollEvery: poll}
	w.touch()
	return w
}

func (w *watchdog) touch() { w.lastSeen.Store(time.Now().UnixNano()) }
func (w *watchdog) pause() { w.paused.Store(true) }

func (w *watchdog) streaming() {
	w.touch()
	w.inStream.Store(true)
}

func (w *watchdog) resume() {
	w.touch()
	w.paused.Store(false)
}

func (w *watchdog) timedOut() error {
	if te := w.timeout.Load(); te != nil {
		return te
	}
	return nil
}

// start launches the monitor goroutine. Closing conn unblocks the reader.
func (w *watchdog) start(ctx context.Context, conn net.Conn) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(w.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if w.paused.Load() {
					continue
				}
				phase, limit, since := "login", w.login, w.loginAt
				if w.inStream.Load() {
					phase, limit, since = "stream", w.liveness, time.Unix(0, w.lastSeen.Load())
				}
				if time.Since(since) > limit {
					w.timeout.Store(&domain.ProtocolTimeoutError{Phase: phase, After: limit})
					conn.Close()
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
