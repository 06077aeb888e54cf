package wire

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Transport represents the behavior required to move messages between nodes.
// The node only talks to the network through this interface so tests can
// replace it with an in-memory implementation.
type Transport interface {
	Send(ctx context.Context, addr string, m Message) error
	Request(ctx context.Context, addr string, m Message) (Message, error)
	Stream(ctx context.Context, addr string, m Message, fn func(Message) error) error
}

// Responder writes a reply on the connection a message arrived on.
type Responder func(Message) error

// =============================================================================

// Set of default values for the TCP client.
const (
	DefaultDialTimeout   = 3 * time.Second
	DefaultReadTimeout   = 5 * time.Second
	DefaultEmptyReadWait = 200 * time.Millisecond
	DefaultMaxEmptyReads = 5
)

// Client is the TCP implementation of the Transport interface. Every call
// opens its own connection which is closed when the call returns.
type Client struct {
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	EmptyReadWait time.Duration
	MaxEmptyReads int
}

// NewClient constructs a client using the default timeouts.
func NewClient() *Client {
	return &Client{
		DialTimeout:   DefaultDialTimeout,
		ReadTimeout:   DefaultReadTimeout,
		EmptyReadWait: DefaultEmptyReadWait,
		MaxEmptyReads: DefaultMaxEmptyReads,
	}
}

// Send writes a single message to the node at addr without waiting for a
// reply.
func (c *Client) Send(ctx context.Context, addr string, m Message) error {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	return c.write(ctx, conn, addr, m)
}

// Request writes a message to the node at addr and waits for one reply.
func (c *Client) Request(ctx context.Context, addr string, m Message) (Message, error) {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return Message{}, err
	}
	defer conn.Close()

	if err := c.write(ctx, conn, addr, m); err != nil {
		return Message{}, err
	}

	conn.SetReadDeadline(c.deadline(ctx, c.readTimeout()))

	reply, err := ReadMessage(conn)
	if err != nil {
		if IsProtocolError(err) {
			return Message{}, err
		}
		return Message{}, &TransportError{Op: "read", Addr: addr, Err: err}
	}

	return reply, nil
}

// Stream writes a message to the node at addr and hands every reply to fn
// until the remote side closes the connection or MaxEmptyReads consecutive
// reads come back empty.
func (c *Client) Stream(ctx context.Context, addr string, m Message, fn func(Message) error) error {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := c.write(ctx, conn, addr, m); err != nil {
		return err
	}

	br := bufio.NewReader(conn)
	var empty int

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Peek does not consume anything so a timeout here can't split a frame.
		conn.SetReadDeadline(c.deadline(ctx, c.emptyReadWait()))
		if _, err := br.Peek(1); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, os.ErrDeadlineExceeded):
				empty++
				if empty >= c.maxEmptyReads() {
					return nil
				}
				continue
			default:
				return &TransportError{Op: "read", Addr: addr, Err: err}
			}
		}
		empty = 0

		conn.SetReadDeadline(c.deadline(ctx, c.readTimeout()))
		reply, err := ReadMessage(br)
		if err != nil {
			if IsProtocolError(err) {
				return err
			}
			return &TransportError{Op: "read", Addr: addr, Err: err}
		}

		if err := fn(reply); err != nil {
			return err
		}
	}
}

// =============================================================================

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: c.dialTimeout()}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: addr, Err: err}
	}

	return conn, nil
}

func (c *Client) write(ctx context.Context, conn net.Conn, addr string, m Message) error {
	conn.SetWriteDeadline(c.deadline(ctx, c.readTimeout()))

	if err := WriteMessage(conn, m); err != nil {
		if IsProtocolError(err) {
			return err
		}
		return &TransportError{Op: "write", Addr: addr, Err: err}
	}

	// Every connection carries a single request. Closing the write side lets
	// the remote node see EOF and close once its replies are written.
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}

	return nil
}

// deadline returns the earlier of now+d and the context deadline.
func (c *Client) deadline(ctx context.Context, d time.Duration) time.Time {
	t := time.Now().Add(d)
	if dl, ok := ctx.Deadline(); ok && dl.Before(t) {
		return dl
	}
	return t
}

func (c *Client) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return c.DialTimeout
}

func (c *Client) readTimeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return DefaultReadTimeout
	}
	return c.ReadTimeout
}

func (c *Client) emptyReadWait() time.Duration {
	if c.EmptyReadWait <= 0 {
		return DefaultEmptyReadWait
	}
	return c.EmptyReadWait
}

func (c *Client) maxEmptyReads() int {
	if c.MaxEmptyReads <= 0 {
		return DefaultMaxEmptyReads
	}
	return c.MaxEmptyReads
}
