// Package rfc5322 renders an in-memory message body into RFC 5322 wire
// format, the oxcmail-equivalent export step the submission orchestrator
// runs before handing a message to smtpclient. It is grounded on the same
// github.com/emersion/go-message/textproto primitives internal/dsn uses to
// assemble a multipart/report: a textproto.Header plus, when more than one
// body part is present, a textproto.MultipartWriter.
package rfc5322

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"
)

// BodyMode selects which part(s) of a message get exported, mirroring the
// three export modes of the original submission algorithm.
type BodyMode int

const (
	PlainAndHTML BodyMode = iota
	HTMLOnly
	PlainOnly
)

// Address is a single RFC 5322 mailbox: "Display Name <addr@example.com>".
type Address struct {
	Name string
	Addr string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Addr
	}
	return mime.QEncoding.Encode("utf-8", a.Name) + " <" + a.Addr + ">"
}

func joinAddrs(addrs []Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// Message is the input to Build: the envelope-level headers plus the
// rendered body text the caller has already produced (e.g. from an
// exmdb-equivalent property bag) in plain and/or HTML form depending on
// Mode.
type Message struct {
	From    Address
	To      []Address
	Cc      []Address
	Subject string
	Date    time.Time

	MessageID string

	Mode BodyMode
	// Plain and HTML are both optional; which ones must be set is
	// determined by Mode (HTMLOnly needs HTML, PlainOnly needs Plain,
	// PlainAndHTML needs both).
	Plain string
	HTML  string

	// ExtraHeaders is added to the outermost header as-is, applied after
	// the standard fields so a caller can override Date or Message-Id.
	ExtraHeaders map[string]string
}

// Build renders msg as a complete RFC 5322 message (header plus body) and
// writes it to w.
func Build(msg Message, w io.Writer) error {
	switch msg.Mode {
	case PlainAndHTML:
		if msg.Plain == "" || msg.HTML == "" {
			return fmt.Errorf("rfc5322: PlainAndHTML mode requires both Plain and HTML bodies")
		}
	case HTMLOnly:
		if msg.HTML == "" {
			return fmt.Errorf("rfc5322: HTMLOnly mode requires an HTML body")
		}
	case PlainOnly:
		if msg.Plain == "" {
			return fmt.Errorf("rfc5322: PlainOnly mode requires a plain-text body")
		}
	default:
		return fmt.Errorf("rfc5322: unknown body mode %d", msg.Mode)
	}

	hdr := textproto.Header{}
	hdr.Add("MIME-Version", "1.0")
	if msg.Date.IsZero() {
		msg.Date = time.Now()
	}
	hdr.Add("Date", msg.Date.Format("Mon, 2 Jan 2006 15:04:05 -0700"))
	hdr.Add("From", msg.From.String())
	if len(msg.To) > 0 {
		hdr.Add("To", joinAddrs(msg.To))
	}
	if len(msg.Cc) > 0 {
		hdr.Add("Cc", joinAddrs(msg.Cc))
	}
	if msg.Subject != "" {
		hdr.Add("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	}
	if msg.MessageID != "" {
		hdr.Add("Message-Id", msg.MessageID)
	}
	for k, v := range msg.ExtraHeaders {
		hdr.Set(k, v)
	}

	if msg.Mode != PlainAndHTML {
		body := msg.Plain
		contentType := `text/plain; charset="utf-8"`
		if msg.Mode == HTMLOnly {
			body = msg.HTML
			contentType = `text/html; charset="utf-8"`
		}
		hdr.Add("Content-Type", contentType)
		hdr.Add("Content-Transfer-Encoding", "8bit")
		if err := textproto.WriteHeader(w, hdr); err != nil {
			return err
		}
		_, err := io.WriteString(w, body)
		return err
	}

	var buf bytes.Buffer
	mw := textproto.NewMultipartWriter(&buf)
	hdr.Add("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	hdr.Add("Content-Transfer-Encoding", "8bit")

	plainHdr := textproto.Header{}
	plainHdr.Add("Content-Type", `text/plain; charset="utf-8"`)
	plainHdr.Add("Content-Transfer-Encoding", "8bit")
	pw, err := mw.CreatePart(plainHdr)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, msg.Plain); err != nil {
		return err
	}

	htmlHdr := textproto.Header{}
	htmlHdr.Add("Content-Type", `text/html; charset="utf-8"`)
	htmlHdr.Add("Content-Transfer-Encoding", "8bit")
	hw, err := mw.CreatePart(htmlHdr)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(hw, msg.HTML); err != nil {
		return err
	}

	if err := mw.Close(); err != nil {
		return err
	}

	if err := textproto.WriteHeader(w, hdr); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}
