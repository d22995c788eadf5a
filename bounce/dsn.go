package bounce

import (
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/google/uuid"
)

// Envelope carries the fields Produce needs beyond what Render already
// consumed from Request, to compose the multipart/report: the reporting
// host identity and arrival bookkeeping bounce_producer_make writes into
// its Reporting-MTA/Arrival-Date/Remote-MTA fields.
type Envelope struct {
	ReportingMTA string
	RemoteMTA    string
	ArrivalDate  time.Time
}

// Produce renders bounceType for req against p's currently active
// template set and assembles a multipart/report MIME message into w,
// returning the outer header the caller should prepend (Content-Type
// carries the report's boundary). It is the Go-native counterpart of
// bounce_producer_make: first part is the rendered, base64-encoded
// template body under its own Content-Type; second part is the
// machine-readable DSN fields built with the same
// go-message/textproto.MultipartWriter internal/dsn uses.
func (p *Producer) Produce(req Request, bounceType Type, env Envelope, w io.Writer) (textproto.Header, error) {
	cs, err := p.templatesFor(req.Charset, req.CPID)
	if err != nil {
		return textproto.Header{}, err
	}
	tpl := cs.templates[bounceType]
	if tpl == nil {
		return textproto.Header{}, fmt.Errorf("bounce: charset %q has no template for type %d", cs.charset, bounceType)
	}

	rend := render(tpl, req, bounceType)

	mw := textproto.NewMultipartWriter(w)
	defer mw.Close()

	host := env.ReportingMTA
	if host == "" {
		host = "localhost"
	}
	outer := textproto.Header{}
	outer.Set("MIME-Version", "1.0")
	outer.Set("X-Auto-Response-Suppress", "All")
	outer.Set("Message-Id", "<"+uuid.NewString()+"@"+host+">")
	outer.Set("Date", time.Now().Format("Mon, 2 Jan 2006 15:04:05 -0700"))
	if rend.from != "" {
		outer.Set("From", rend.from)
	}
	outer.Set("To", "<"+req.Rcpt+">")
	if rend.subject != "" {
		outer.Set("Subject", rend.subject)
	}
	outer.Set("Content-Type", "multipart/report; report-type=delivery-status; boundary="+mw.Boundary())

	if err := writeRenderedPart(mw, rend); err != nil {
		return textproto.Header{}, err
	}
	if err := writeDSNPart(mw, req, env); err != nil {
		return textproto.Header{}, err
	}

	return outer, nil
}

func writeRenderedPart(mw *textproto.MultipartWriter, rend rendered) error {
	h := textproto.Header{}
	contentType := rend.contentType
	if contentType == "" {
		contentType = "text/plain"
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "base64")

	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	enc := base64.NewEncoder(base64.StdEncoding, newLineWrapper(pw, 76))
	if _, err := enc.Write(rend.body); err != nil {
		return err
	}
	return enc.Close()
}

func writeDSNPart(mw *textproto.MultipartWriter, req Request, env Envelope) error {
	h := textproto.Header{}
	h.Set("Content-Type", "message/delivery-status")

	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	fields := textproto.Header{}
	if env.ReportingMTA != "" {
		fields.Add("Reporting-MTA", "dns; "+env.ReportingMTA)
	}
	arrival := env.ArrivalDate
	if arrival.IsZero() {
		arrival = time.Now()
	}
	fields.Add("Arrival-Date", arrival.Format("Mon, 2 Jan 2006 15:04:05 -0700"))
	if err := textproto.WriteHeader(pw, fields); err != nil {
		return err
	}

	rcptFields := textproto.Header{}
	rcptFields.Add("Final-Recipient", "rfc822; "+req.Rcpt)
	rcptFields.Add("Action", "failed")
	rcptFields.Add("Status", "5.0.0")
	if env.RemoteMTA != "" {
		rcptFields.Add("Remote-MTA", "dns; "+env.RemoteMTA)
	}
	return textproto.WriteHeader(pw, rcptFields)
}

// lineWrapper inserts a CRLF every n bytes, the base64 wrapping
// mime_write_content's MIME_ENCODING_BASE64 mode applies.
type lineWrapper struct {
	w       io.Writer
	width   int
	written int
}

func newLineWrapper(w io.Writer, width int) *lineWrapper {
	return &lineWrapper{w: w, width: width}
}

func (lw *lineWrapper) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := lw.width - lw.written
		if n > len(p) {
			n = len(p)
		}
		written, err := lw.w.Write(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		lw.written += written
		p = p[n:]
		if lw.written == lw.width {
			if _, err := lw.w.Write([]byte("\r\n")); err != nil {
				return total, err
			}
			lw.written = 0
		}
	}
	return total, nil
}
