// Package client implements the reference client loop: fixed-cadence
// input emission and ingestion of the server's ack snapshots.
package client

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/andersfylling/ticknet/internal/protocol"
	"github.com/andersfylling/ticknet/internal/snapshot"
	"github.com/andersfylling/ticknet/internal/transport"
)

const (
	helloTimeout = 5 * time.Second
	drainWindow  = time.Second
	recvPoll     = time.Millisecond
)

// Config holds client configuration.
type Config struct {
	ServerAddr  string
	Port        int
	SendPeriod  time.Duration
	HistorySize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServerAddr:  "127.0.0.1",
		Port:        7777,
		SendPeriod:  16 * time.Millisecond,
		HistorySize: 32,
	}
}

// InputSource produces the input state for a given client tick.
type InputSource func(tick uint32) (buttons uint32, ax, ay float32)

func zeroInput(uint32) (uint32, float32, float32) {
	return 0, 0, 0
}

// Client is the game client.
type Client struct {
	cfg Config
	log zerolog.Logger
	src InputSource

	conn   *transport.Conn
	peerID uint32

	mu    sync.RWMutex
	snaps *snapshot.Buffer

	clientTick uint32
	seq        uint32
}

// New creates a client. A nil source sends neutral inputs.
func New(cfg Config, src InputSource, log zerolog.Logger) *Client {
	if src == nil {
		src = zeroInput
	}
	if cfg.SendPeriod <= 0 {
		cfg.SendPeriod = DefaultConfig().SendPeriod
	}
	return &Client{
		cfg:   cfg,
		log:   log.With().Str("component", "client").Logger(),
		src:   src,
		snaps: snapshot.NewBuffer(cfg.HistorySize),
	}
}

// Connect dials the server and waits for its hello.
func (c *Client) Connect() error {
	addr := net.JoinHostPort(c.cfg.ServerAddr, strconv.Itoa(c.cfg.Port))
	conn, err := transport.Dial(addr, c.log)
	if err != nil {
		return err
	}

	hello, err := conn.AwaitHello(helloTimeout)
	if err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.peerID = hello.PeerID
	c.log.Info().Uint32("peer", hello.PeerID).Int("version", hello.Version).Msg("connected")
	return nil
}

// Run sends one input per send period and drains snapshots between
// sends, until ctx is cancelled; then it tears the connection down
// gracefully.
func (c *Client) Run(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("not connected")
	}

	ticker := time.NewTicker(c.cfg.SendPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.disconnect("quit")
		case <-ticker.C:
			if err := c.sendInput(); err != nil {
				c.conn.Close()
				return err
			}
			if err := c.drainSnapshots(); err != nil {
				c.conn.Close()
				return err
			}
		}
	}
}

func (c *Client) sendInput() error {
	c.clientTick++
	c.seq++

	buttons, ax, ay := c.src(c.clientTick)
	payload, err := protocol.ClientInput{
		ClientTick: c.clientTick,
		Seq:        c.seq,
		Buttons:    buttons,
		AxisX:      ax,
		AxisY:      ay,
	}.Marshal()
	if err != nil {
		return err
	}
	return c.conn.Send(transport.ChannelGame, transport.FlagUnsequenced, payload)
}

// drainSnapshots consumes everything pending without blocking past the
// poll timeout.
func (c *Client) drainSnapshots() error {
	for {
		ch, payload, err := c.conn.RecvPayload(recvPoll)
		if err != nil {
			if transport.IsTimeout(err) {
				return nil
			}
			return err
		}
		if ch != transport.ChannelGame {
			continue
		}
		c.ingest(payload)
	}
}

func (c *Client) ingest(payload []byte) {
	snap, err := protocol.ParseSnapshot(payload)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping malformed snapshot")
		return
	}
	c.mu.Lock()
	c.snaps.Add(snap)
	c.mu.Unlock()
	c.log.Trace().
		Uint64("server_tick", snap.ServerTick).
		Uint32("ack_applied", snap.AckApplied).
		Uint32("ack_recv", snap.AckRecv).
		Msg("snapshot")
}

// disconnect announces the teardown, keeps draining through a grace
// window, then closes.
func (c *Client) disconnect(reason string) error {
	var result *multierror.Error

	result = multierror.Append(result, c.conn.Goodbye(reason))

	deadline := time.Now().Add(drainWindow)
	for time.Now().Before(deadline) {
		ch, payload, err := c.conn.RecvPayload(50 * time.Millisecond)
		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			break
		}
		if ch == transport.ChannelGame {
			c.ingest(payload)
		}
	}

	result = multierror.Append(result, c.conn.Close())
	return result.ErrorOrNil()
}

// PeerID returns the server-assigned peer index.
func (c *Client) PeerID() uint32 {
	return c.peerID
}

// Latest returns the most recent snapshot received. Safe to call while
// Run is active.
func (c *Client) Latest() (protocol.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snaps.Latest()
}

// History exposes the snapshot buffer. Only safe once Run has returned.
func (c *Client) History() *snapshot.Buffer {
	return c.snaps
}
