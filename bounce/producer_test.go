package bounce

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupProducer(t *testing.T, body string) *Producer {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "mail_bounce", "ascii")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range fileNames {
		writeTemplate(t, dir, name, "Content-Type: text/plain\r\nFrom: postmaster@postal.test\r\nSubject: Undeliverable\r\n\r\n"+body)
	}

	p := NewProducer()
	require.NoError(t, p.Refresh(root))
	return p
}

func TestFormatByteSizeMatchesSpecExample(t *testing.T) {
	require.Equal(t, "1.2K", formatByteSize(1234))
}

func TestRenderReplacesEachTagExactlyOnce(t *testing.T) {
	p := setupProducer(t, "Sent <time> to <rcpt> (<length>)")

	cs, err := p.templatesFor("", 0)
	require.NoError(t, err)
	tpl := cs.templates[AutoResponse]

	req := Request{
		From: "sender@example.com",
		Rcpt: "rcpt@example.com",
		Size: 1234,
		Now:  time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
	}
	got := render(tpl, req, AutoResponse)
	body := string(got.body)

	require.NotContains(t, body, "<time>")
	require.NotContains(t, body, "<rcpt>")
	require.NotContains(t, body, "<length>")
	require.Contains(t, body, "rcpt@example.com")
	require.Contains(t, body, "1.2K")
}

func TestRenderFallsBackToCPIDThenAscii(t *testing.T) {
	p := setupProducer(t, "hello <from>")

	_, err := p.templatesFor("", 99999999) // unmapped CPID falls through to ascii
	require.NoError(t, err)
}

func TestProduceAssemblesMultipartReport(t *testing.T) {
	p := setupProducer(t, "Undeliverable: <subject>")

	var buf bytes.Buffer
	req := Request{From: "sender@example.com", Rcpt: "rcpt@example.com", Subject: "hi"}
	env := Envelope{ReportingMTA: "postal.test", RemoteMTA: "postal.test"}
	hdr, err := p.Produce(req, AutoResponse, env, &buf)
	require.NoError(t, err)
	require.Contains(t, hdr.Get("Content-Type"), "multipart/report")
	require.Contains(t, buf.String(), "message/delivery-status")
	require.Contains(t, buf.String(), "Final-Recipient: rfc822; rcpt@example.com")
}

func TestJoinPartsCapsAtMaxLength(t *testing.T) {
	names := make([]string, 0, 2000)
	for i := 0; i < 2000; i++ {
		names = append(names, "attachment-name-long-enough-to-add-up.txt")
	}
	joined := joinParts(names, ", ")
	require.Less(t, len(joined), maxPartsLen+64)
}
