// ABOUTME: Connectivity monitor for the TT-RSS server with a work-offline switch
// ABOUTME: Probes with a bounded TCP dial and broadcasts online/offline transitions on a channel

package netstate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 300 * time.Millisecond

// DialFunc opens a connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Monitor tracks whether the server is reachable.
type Monitor struct {
	addr    string
	timeout time.Duration
	dial    DialFunc
	logger  *slog.Logger

	mu          sync.Mutex
	workOffline bool
	online      bool
	probed      bool
	changed     chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTimeout sets the probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithDialer replaces the TCP dialer.
func WithDialer(d DialFunc) Option {
	return func(m *Monitor) { m.dial = d }
}

// WithLogger sets the logger used for transitions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WorkOffline starts the monitor with the offline switch set.
func WorkOffline(on bool) Option {
	return func(m *Monitor) { m.workOffline = on }
}

// New creates a monitor for the host of serverURL.
func New(serverURL string, opts ...Option) (*Monitor, error) {
	addr, err := hostPort(serverURL)
	if err != nil {
		return nil, err
	}
	m := &Monitor{
		addr:    addr,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dial == nil {
		d := &net.Dialer{}
		m.dial = d.DialContext
	}
	return m, nil
}

func hostPort(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("server url %q has no host", serverURL)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "https", "":
			port = "443"
		default:
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Addr returns the probed host:port.
func (m *Monitor) Addr() string {
	return m.addr
}

// SetWorkOffline turns the offline switch on or off. While on, Online
// reports false without probing.
func (m *Monitor) SetWorkOffline(on bool) {
	m.mu.Lock()
	m.workOffline = on
	m.mu.Unlock()
	if on {
		m.set(false)
	}
}

// WorkingOffline reports the offline switch.
func (m *Monitor) WorkingOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workOffline
}

// Online probes the server. The wait is bounded by the probe timeout and ctx.
func (m *Monitor) Online(ctx context.Context) bool {
	if m.WorkingOffline() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	conn, err := m.dial(ctx, "tcp", m.addr)
	if err != nil {
		m.logger.Debug("connectivity probe failed", "addr", m.addr, "err", err)
		m.set(false)
		return false
	}
	conn.Close()
	m.set(true)
	return true
}

// LastKnown returns the result of the most recent probe without probing.
func (m *Monitor) LastKnown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online && !m.workOffline
}

// Changed returns a channel that is closed on the next online/offline
// transition. Call it again after it fires to wait for the following one.
func (m *Monitor) Changed() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

func (m *Monitor) set(online bool) {
	m.mu.Lock()
	if m.probed && m.online == online {
		m.mu.Unlock()
		return
	}
	first := !m.probed
	m.probed = true
	m.online = online
	ch := m.changed
	m.changed = make(chan struct{})
	m.mu.Unlock()

	close(ch)
	if !first || !online {
		m.logger.Info("connectivity changed", "addr", m.addr, "online", online)
	}
}

// WaitOnline blocks until a probe succeeds or ctx ends. Between probes it
// waits for a transition or for retry to elapse.
func (m *Monitor) WaitOnline(ctx context.Context, retry time.Duration) error {
	for {
		if m.Online(ctx) {
			return nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-m.Changed():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Watch probes every interval until ctx ends so that Changed fires without
// callers probing.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.Online(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Online(ctx)
		}
	}
}
