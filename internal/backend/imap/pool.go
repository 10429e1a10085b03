package imap

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-imap/client"

	"github.com/driftmail/driftmail/internal/config"
)

// pool is a bounded set of authenticated IMAP sessions. Listing and
// fetching for different folders may run concurrently, but the number
// of live server connections never exceeds the configured size.
type pool struct {
	cfg  config.IMAPConfig
	idle chan *client.Client
	sem  chan struct{}
}

func newPool(cfg config.IMAPConfig) *pool {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	return &pool{
		cfg:  cfg,
		idle: make(chan *client.Client, size),
		sem:  make(chan struct{}, size),
	}
}

func (p *pool) dial() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	c, err := client.DialTLS(addr, &tls.Config{
		ServerName:         p.cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: p.cfg.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	if err := c.Login(p.cfg.Username, p.cfg.Password); err != nil {
		c.Logout() //nolint:errcheck
		return nil, fmt.Errorf("logging in as %s: %w", p.cfg.Username, err)
	}

	return c, nil
}

// acquire returns an idle session or dials a new one while the pool is
// below capacity, blocking otherwise until a session is released.
func (p *pool) acquire(ctx context.Context) (*client.Client, error) {
	select {
	case c := <-p.idle:
		return c, nil
	default:
	}

	select {
	case c := <-p.idle:
		return c, nil
	case p.sem <- struct{}{}:
		c, err := p.dial()
		if err != nil {
			<-p.sem
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pool) release(c *client.Client) {
	p.idle <- c
}

// discard drops a session whose connection is no longer trusted.
func (p *pool) discard(c *client.Client) {
	c.Logout() //nolint:errcheck
	<-p.sem
}

// close logs out every idle session. In-flight sessions are the
// caller's responsibility; Disconnect is only called once all
// operations have returned.
func (p *pool) close() error {
	var firstErr error
	for {
		select {
		case c := <-p.idle:
			if err := c.Logout(); err != nil && firstErr == nil {
				firstErr = err
			}
			<-p.sem
		default:
			return firstErr
		}
	}
}
