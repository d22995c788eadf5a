package smtpclient

import (
	"bufio"
	"bytes"
	"io"

	"github.com/emersion/go-message/textproto"
)

// injectMailerHeader parses the leading RFC 5322 header off body, adds
// "X-Mailer: postal" if not already present, and returns a reader that
// yields the (possibly rewritten) header followed by the unconsumed body.
// On any parse failure the original reader is returned unmodified rather
// than risking a corrupted submission.
func injectMailerHeader(body io.Reader) io.Reader {
	var consumed bytes.Buffer
	br := bufio.NewReader(io.TeeReader(body, &consumed))
	hdr, err := textproto.ReadHeader(br)
	if err != nil {
		return io.MultiReader(&consumed, body)
	}

	if !hdr.Has("X-Mailer") {
		hdr.Set("X-Mailer", "postal")
	}

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, hdr); err != nil {
		return io.MultiReader(&consumed, body)
	}

	return io.MultiReader(&buf, br)
}
