package event

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// Client is a thin wire-protocol client for the event fan-out service,
// the role event.cpp's own counterpart modules (libgxs_event_proxy,
// libgxs_event_stub, referenced from mra/imap/main.cpp) play against it:
// a mailbox mutation publishes here, and an IMAP-side connection selects
// a folder and listens for the events other resources publish to it.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// Dial connects to an event server and identifies this connection as
// resID via the ID command.
func Dial(addr, resID string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}
	if err := c.command("ID " + resID); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) command(line string) error {
	c.conn.SetDeadline(time.Now().Add(socketTimeout))
	if _, err := c.w.WriteString(line + "\r\n"); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	reply, err := readLine(c.r, maxCommandLength)
	if err != nil {
		return err
	}
	if !equalFoldTrim(reply, "TRUE") {
		return fmt.Errorf("event: command %q failed: %s", line, reply)
	}
	return nil
}

// Select registers interest in (user, folder) so that subsequent Publish
// calls from other resources reach this client once it calls Listen.
func (c *Client) Select(user, folder string) error {
	return c.command("SELECT " + user + " " + folder)
}

// Unselect withdraws a prior Select.
func (c *Client) Unselect(user, folder string) error {
	return c.command("UNSELECT " + user + " " + folder)
}

// Publish announces verb for (user, folder), delivered to every other
// resource currently Select-ed on it.
func (c *Client) Publish(verb, user, folder, args string) error {
	line := verb + " " + user + " " + folder
	if args != "" {
		line += " " + args
	}
	return c.command(line)
}

// Listen converts the connection into a subscriber and returns a channel
// of delivered event lines, closed when the connection drops. Listen
// itself never returns an error for a dropped connection after the
// initial handshake; read the channel instead.
func (c *Client) Listen() (<-chan string, error) {
	if err := c.command("LISTEN"); err != nil {
		return nil, err
	}
	out := make(chan string, fifoDepth)
	go func() {
		defer close(out)
		for {
			line, err := readLine(c.r, maxCommandLength)
			if err != nil {
				return
			}
			if equalFoldTrim(line, "PING") {
				c.conn.SetWriteDeadline(time.Now().Add(socketTimeout))
				c.w.WriteString(replyTrue)
				c.w.Flush()
				continue
			}
			select {
			case out <- line:
			default:
			}
			c.conn.SetWriteDeadline(time.Now().Add(socketTimeout))
			c.w.WriteString(replyTrue)
			c.w.Flush()
		}
	}()
	return out, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
