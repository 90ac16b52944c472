package connectivity

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/submitq/internal/log"
)

// DialFunc opens a connection, net.Dialer.DialContext by default
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober feeds a Monitor with the result of periodic TCP dials to the
// submission endpoint. It only observes; it never triggers a sync itself.
type Prober struct {
	monitor  *Monitor
	address  string
	interval time.Duration
	timeout  time.Duration
	dial     DialFunc
	logger   *logrus.Entry
}

// NewProber creates a prober dialing address (host:port)
func NewProber(monitor *Monitor, address string, interval, timeout time.Duration) *Prober {
	var d net.Dialer
	return &Prober{
		monitor:  monitor,
		address:  address,
		interval: interval,
		timeout:  timeout,
		dial:     d.DialContext,
		logger:   log.WithComponent("prober"),
	}
}

// WithDialer replaces the dial function, used by tests
func (p *Prober) WithDialer(dial DialFunc) *Prober {
	p.dial = dial
	return p
}

// Probe performs one observation and passes it to the monitor
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.address)
	if err != nil {
		p.logger.WithError(err).WithField("address", p.address).Debug("Probe failed")
		p.monitor.Update(false)
		return false
	}
	_ = conn.Close()
	p.monitor.Update(true)
	return true
}

// Run probes immediately and then every interval until ctx is done
func (p *Prober) Run(ctx context.Context) error {
	p.logger.WithFields(logrus.Fields{
		"address":  p.address,
		"interval": p.interval,
	}).Info("Starting connectivity prober")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			p.Probe(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AddressFromURL derives host:port from an endpoint URL, defaulting the port
// from the scheme
func AddressFromURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		default:
			return "", fmt.Errorf("cannot derive port for scheme %q", u.Scheme)
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
