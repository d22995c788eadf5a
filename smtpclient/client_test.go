package smtpclient

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/postalcore/postal/framework/exterrors"
	"github.com/postalcore/postal/framework/log"
)

// fakeServer is a minimal scripted SMTP server good enough to drive Client
// through a full submission without depending on go-smtp's own server (which
// would hide the per-step responses this package exists to classify).
type fakeServer struct {
	ln       net.Listener
	rcptCode map[string]int // recipient -> response code, default 250
}

func startFakeServer(t *testing.T, rcptCode map[string]int) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	fs := &fakeServer{ln: ln, rcptCode: rcptCode}
	go fs.serveOne(t)
	return fs
}

func (fs *fakeServer) addr() string { return fs.ln.Addr().String() }

func (fs *fakeServer) serveOne(t *testing.T) {
	conn, err := fs.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	fmt.Fprintf(conn, "220 fake.example.invalid ESMTP ready\r\n")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "EHLO"):
			fmt.Fprintf(conn, "250-fake.example.invalid greets you\r\n250 8BITMIME\r\n")
		case strings.HasPrefix(upper, "HELO"):
			fmt.Fprintf(conn, "250 fake.example.invalid\r\n")
		case strings.HasPrefix(upper, "MAIL FROM"):
			fmt.Fprintf(conn, "250 2.1.0 Ok\r\n")
		case strings.HasPrefix(upper, "RCPT TO"):
			rcpt := extractAddr(line)
			code := fs.rcptCode[rcpt]
			if code == 0 {
				code = 250
			}
			if code >= 400 {
				fmt.Fprintf(conn, "%d %d.%d.%d rejected\r\n", code, code/100, 0, 0)
			} else {
				fmt.Fprintf(conn, "250 2.1.5 Ok\r\n")
			}
		case strings.HasPrefix(upper, "DATA"):
			fmt.Fprintf(conn, "354 Go ahead\r\n")
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if dl == ".\r\n" || dl == ".\n" {
					break
				}
			}
			fmt.Fprintf(conn, "250 2.0.0 Accepted\r\n")
		case strings.HasPrefix(upper, "QUIT"):
			fmt.Fprintf(conn, "221 2.0.0 Bye\r\n")
			return
		default:
			fmt.Fprintf(conn, "500 5.5.1 Unrecognized command\r\n")
		}
	}
}

func extractAddr(line string) string {
	start := strings.Index(line, "<")
	end := strings.Index(line, ">")
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return line[start+1 : end]
}

func TestSendMailAllAccepted(t *testing.T) {
	fs := startFakeServer(t, nil)

	c := New("client.example.invalid", log.Logger{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, results, err := c.SendMail(ctx, fs.addr(), "sender@example.com", []string{"rcpt@example.com"}, strings.NewReader("Subject: hi\r\n\r\nbody\r\n"))
	if err != nil {
		t.Fatalf("SendMail: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSendMailPartialRejection(t *testing.T) {
	fs := startFakeServer(t, map[string]int{"bad@example.com": 550})

	c := New("client.example.invalid", log.Logger{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, results, err := c.SendMail(ctx, fs.addr(), "sender@example.com",
		[]string{"good@example.com", "bad@example.com"}, strings.NewReader("Subject: hi\r\n\r\nbody\r\n"))
	if err != nil {
		t.Fatalf("SendMail: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true since one recipient was accepted")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("good@example.com should have been accepted: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Fatal("bad@example.com should have been rejected")
	}
	if exterrors.IsTemporary(results[1].Err) {
		t.Errorf("550 rejection should be classified permanent, got temporary: %v", results[1].Err)
	}
}

func TestSendMailAllRejected(t *testing.T) {
	fs := startFakeServer(t, map[string]int{"bad@example.com": 550})

	c := New("client.example.invalid", log.Logger{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, _, err := c.SendMail(ctx, fs.addr(), "sender@example.com", []string{"bad@example.com"}, strings.NewReader("x\r\n"))
	if err == nil {
		t.Fatal("expected an error when every recipient is rejected")
	}
	if ok {
		t.Error("expected ok=false")
	}
}

func TestRewriteRecipientWithoutAt(t *testing.T) {
	if got := rewriteRecipient("nodomain"); got != "nodomain@none" {
		t.Errorf("rewriteRecipient(%q) = %q, want nodomain@none", "nodomain", got)
	}
	if got := rewriteRecipient("a@b"); got != "a@b" {
		t.Errorf("rewriteRecipient(%q) = %q, want unchanged", "a@b", got)
	}
}
