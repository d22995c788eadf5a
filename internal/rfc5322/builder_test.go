package rfc5322

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestBuildPlainOnly(t *testing.T) {
	msg := Message{
		From:    Address{Addr: "sender@example.com"},
		To:      []Address{{Addr: "rcpt@example.com"}},
		Subject: "hello",
		Date:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Mode:    PlainOnly,
		Plain:   "just text",
	}

	var buf bytes.Buffer
	if err := Build(msg, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "From: sender@example.com") {
		t.Errorf("missing From header:\n%s", out)
	}
	if !strings.Contains(out, "just text") {
		t.Errorf("missing plain body:\n%s", out)
	}
	if strings.Contains(out, "multipart") {
		t.Errorf("PlainOnly should not be multipart:\n%s", out)
	}
}

func TestBuildPlainAndHTML(t *testing.T) {
	msg := Message{
		From:  Address{Name: "Sender", Addr: "sender@example.com"},
		To:    []Address{{Addr: "rcpt@example.com"}},
		Mode:  PlainAndHTML,
		Plain: "plain body",
		HTML:  "<p>html body</p>",
	}

	var buf bytes.Buffer
	if err := Build(msg, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "multipart/alternative") {
		t.Errorf("expected multipart/alternative:\n%s", out)
	}
	if !strings.Contains(out, "plain body") || !strings.Contains(out, "html body") {
		t.Errorf("expected both parts present:\n%s", out)
	}
}

func TestBuildRejectsMissingBody(t *testing.T) {
	msg := Message{
		From: Address{Addr: "a@b.com"},
		Mode: HTMLOnly,
	}
	var buf bytes.Buffer
	if err := Build(msg, &buf); err == nil {
		t.Error("expected an error when HTMLOnly mode has no HTML body")
	}
}
