package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	kcp "github.com/xtaci/kcp-go/v5"

	"github.com/andersfylling/ticknet/internal/protocol"
)

// ErrVersionMismatch is returned when the server speaks an incompatible
// protocol version.
var ErrVersionMismatch = errors.New("incompatible protocol version")

// Conn is the client side of a host session.
type Conn struct {
	log  zerolog.Logger
	sess *kcp.UDPSession
}

// Dial connects to a server host.
func Dial(addr string, log zerolog.Logger) (*Conn, error) {
	sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	tuneSession(sess)

	return &Conn{
		log:  log.With().Str("component", "transport").Logger(),
		sess: sess,
	}, nil
}

// AwaitHello blocks until the server's hello arrives, up to timeout, and
// verifies protocol compatibility. Game frames arriving first are not
// expected before the hello and are skipped.
func (c *Conn) AwaitHello(timeout time.Duration) (protocol.Hello, error) {
	if err := c.sess.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Hello{}, err
	}
	defer c.sess.SetReadDeadline(time.Time{})

	for {
		f, err := readFrame(c.sess)
		if err != nil {
			return protocol.Hello{}, fmt.Errorf("awaiting hello: %w", err)
		}
		if f.channel != ChannelControl {
			continue
		}

		hello, err := protocol.ParseHello(f.payload)
		if err != nil {
			return protocol.Hello{}, err
		}
		if !protocol.Compatible(protocol.Version, hello.Version) {
			return protocol.Hello{}, fmt.Errorf("%w: server %d, client %d",
				ErrVersionMismatch, hello.Version, protocol.Version)
		}
		return hello, nil
	}
}

// Send writes one frame.
func (c *Conn) Send(channel, flags byte, payload []byte) error {
	return writeFrame(c.sess, channel, flags, payload)
}

// RecvPayload reads the next frame, waiting up to timeout. Use
// IsTimeout to distinguish an idle wait from a dead connection.
func (c *Conn) RecvPayload(timeout time.Duration) (channel byte, payload []byte, err error) {
	if err := c.sess.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, nil, err
	}
	f, err := readFrame(c.sess)
	return f.channel, f.payload, err
}

// Goodbye announces a graceful teardown.
func (c *Conn) Goodbye(reason string) error {
	payload, err := protocol.Goodbye{Reason: reason}.Marshal()
	if err != nil {
		return err
	}
	return writeFrame(c.sess, ChannelControl, 0, payload)
}

// Close closes the session.
func (c *Conn) Close() error {
	return c.sess.Close()
}

// IsTimeout reports whether err is a read-deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
