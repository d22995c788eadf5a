// Package smtpclient drives the raw SMTP submission state machine over a
// net/textproto.Conn: CONNECT, greeting, HELO, MAIL FROM, RCPT TO (one per
// recipient), DATA, dot-stuffed body, QUIT. Unlike go-smtp's
// higher-level Client, every response is read and
// classified by hand, since callers need the exact per-recipient outcome to
// build a bounce report rather than a single aggregate error.
package smtpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/postalcore/postal/framework/exterrors"
	"github.com/postalcore/postal/framework/log"
)

// ResponseTimeout bounds how long Client waits for any single SMTP response
// line, matching spec.md's 60s per-response ceiling.
const ResponseTimeout = 60 * time.Second

// Client submits one message over a freshly dialed connection. It is not
// reusable across messages.
type Client struct {
	Hostname string
	Log      log.Logger

	conn *textproto.Conn
	net  net.Conn
	addr string
}

// New returns a Client that will EHLO as hostname (expected in ACE/A-label
// form if non-ASCII).
func New(hostname string, logger log.Logger) *Client {
	if hostname == "" {
		hostname = "localhost.localdomain"
	}
	return &Client{Hostname: hostname, Log: logger}
}

// RcptResult is the per-recipient outcome of SendMail: either the recipient
// was accepted by RCPT TO, or rejected with the SMTP error the server gave.
type RcptResult struct {
	Rcpt string
	Err  error
}

// SendMail dials addr, runs the full submission sequence for one message,
// and reports whether the overall message should be considered delivered
// (true only if at least one recipient was accepted and DATA succeeded).
// Per-recipient rejections are reported in the returned []RcptResult rather
// than aborting the whole transaction — RCPT TO failures for some
// recipients do not prevent delivery to the others.
func (c *Client) SendMail(ctx context.Context, addr, from string, rcpts []string, msg io.Reader) (bool, []RcptResult, error) {
	if err := c.dial(ctx, addr); err != nil {
		return false, nil, err
	}
	defer c.quit()

	if err := c.greet(); err != nil {
		return false, nil, err
	}
	if err := c.helo(); err != nil {
		return false, nil, err
	}
	if err := c.mailFrom(from); err != nil {
		return false, nil, err
	}

	results := make([]RcptResult, 0, len(rcpts))
	accepted := 0
	for _, rcpt := range rcpts {
		rcpt = rewriteRecipient(rcpt)
		err := c.rcptTo(rcpt)
		results = append(results, RcptResult{Rcpt: rcpt, Err: err})
		if err == nil {
			accepted++
		}
	}
	if accepted == 0 {
		return false, results, fmt.Errorf("smtpclient: all recipients rejected")
	}

	if err := c.data(msg); err != nil {
		return false, results, err
	}

	return true, results, nil
}

// rewriteRecipient rewrites an address with no '@' to <addr@none>, the
// convention used for malformed recipients that must still be reported on
// in a DSN rather than silently dropped.
func rewriteRecipient(addr string) string {
	if strings.Contains(addr, "@") {
		return addr
	}
	return addr + "@none"
}

func (c *Client) dial(ctx context.Context, addr string) error {
	c.addr = addr
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return c.wrapNetErr(err)
	}
	c.net = conn
	c.conn = textproto.NewConn(conn)
	return nil
}

func (c *Client) withDeadline(f func() error) error {
	if c.net != nil {
		c.net.SetDeadline(time.Now().Add(ResponseTimeout))
		defer c.net.SetDeadline(time.Time{})
	}
	return f()
}

func (c *Client) greet() error {
	var code int
	var msg string
	err := c.withDeadline(func() error {
		var err error
		code, msg, err = c.conn.ReadResponse(220)
		return err
	})
	return c.wrapResponseErr(code, msg, err)
}

func (c *Client) helo() error {
	var code int
	var msg string
	err := c.withDeadline(func() error {
		id, err := c.conn.Cmd("EHLO %s", c.Hostname)
		if err != nil {
			return err
		}
		c.conn.StartResponse(id)
		defer c.conn.EndResponse(id)
		code, msg, err = c.conn.ReadResponse(250)
		if err != nil {
			// Fall back to HELO for servers that don't support EHLO.
			id, err := c.conn.Cmd("HELO %s", c.Hostname)
			if err != nil {
				return err
			}
			c.conn.StartResponse(id)
			defer c.conn.EndResponse(id)
			code, msg, err = c.conn.ReadResponse(250)
			return err
		}
		return nil
	})
	return c.wrapResponseErr(code, msg, err)
}

func (c *Client) mailFrom(from string) error {
	return c.command("MAIL FROM:<%s>", 250, from)
}

func (c *Client) rcptTo(rcpt string) error {
	return c.command("RCPT TO:<%s>", 250, rcpt)
}

func (c *Client) command(format string, wantCode int, args ...interface{}) error {
	var code int
	var msg string
	err := c.withDeadline(func() error {
		id, err := c.conn.Cmd(format, args...)
		if err != nil {
			return err
		}
		c.conn.StartResponse(id)
		defer c.conn.EndResponse(id)
		code, msg, err = c.conn.ReadResponse(wantCode)
		return err
	})
	return c.wrapResponseErr(code, msg, err)
}

func (c *Client) data(body io.Reader) error {
	var code int
	var msg string
	err := c.withDeadline(func() error {
		id, err := c.conn.Cmd("DATA")
		if err != nil {
			return err
		}
		c.conn.StartResponse(id)
		code, msg, err = c.conn.ReadResponse(354)
		c.conn.EndResponse(id)
		return err
	})
	if err := c.wrapResponseErr(code, msg, err); err != nil {
		return err
	}

	w := c.conn.DotWriter()
	body = injectMailerHeader(body)
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return c.wrapNetErr(err)
	}
	if err := w.Close(); err != nil {
		return c.wrapNetErr(err)
	}

	err = c.withDeadline(func() error {
		var err error
		code, msg, err = c.conn.ReadResponse(250)
		return err
	})
	return c.wrapResponseErr(code, msg, err)
}

func (c *Client) quit() {
	c.withDeadline(func() error {
		id, err := c.conn.Cmd("QUIT")
		if err != nil {
			return err
		}
		c.conn.StartResponse(id)
		defer c.conn.EndResponse(id)
		_, _, err = c.conn.ReadResponse(221)
		return err
	})
	c.conn.Close()
}

// wrapResponseErr classifies a *textproto.Error into go-smtp's SMTPError
// shape (matching spec.md's requirement that responses be classified by
// code range) so the result travels cleanly into bounce's Diagnostic-Code
// field and into the three-tier error model in framework/exterrors: 5xx is
// permanent, 4xx is transient (the exterrors.TemporaryErr default), and a
// connection-level failure is exterrors.Fatal since nothing further on this
// connection can succeed.
func (c *Client) wrapResponseErr(code int, msg string, err error) error {
	if err == nil {
		return nil
	}
	if tpErr, ok := err.(*textproto.Error); ok {
		code = tpErr.Code
		msg = tpErr.Msg
	}
	if code == 0 {
		return c.wrapNetErr(err)
	}

	enh := enhancedCodeFromMessage(msg, code)
	smtpErr := &smtp.SMTPError{
		Code:         code,
		EnhancedCode: enh,
		Message:      msg,
	}
	if code >= 500 {
		return exterrors.WithTemporary(smtpErr, false)
	}
	return smtpErr
}

func (c *Client) wrapNetErr(err error) error {
	if err == nil {
		return nil
	}
	return exterrors.Fatal{Err: fmt.Errorf("smtpclient: %s: %w", c.addr, err)}
}

// enhancedCodeFromMessage extracts a leading "x.y.z" enhanced status code
// from an SMTP response text if present, otherwise derives a generic one
// from the basic reply code's first digit.
func enhancedCodeFromMessage(msg string, code int) smtp.EnhancedCode {
	fields := strings.SplitN(msg, " ", 2)
	if len(fields) > 0 {
		parts := strings.Split(fields[0], ".")
		if len(parts) == 3 {
			nums := make([]int, 3)
			ok := true
			for i, p := range parts {
				n, err := strconv.Atoi(p)
				if err != nil {
					ok = false
					break
				}
				nums[i] = n
			}
			if ok {
				return smtp.EnhancedCode{nums[0], nums[1], nums[2]}
			}
		}
	}
	class := 4
	if code >= 500 {
		class = 5
	} else if code < 400 {
		class = 2
	}
	return smtp.EnhancedCode{class, 0, 0}
}
