package submit

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/postalcore/postal/framework/log"
	"github.com/postalcore/postal/store"
)

type fakeBackend struct {
	msg *store.MessageContent

	clearedSubmit bool
	moved         bool
	movedTo       store.FID
	deleted       bool
	exAddr        string
	entryIDAddr   string
	sentItems     store.FID
}

func (f *fakeBackend) ReadMessage(ctx context.Context, logon store.Logon, mid store.MID, cpid uint32) (*store.MessageContent, error) {
	if f.msg == nil {
		return nil, errors.New("no such message")
	}
	return f.msg, nil
}

func (f *fakeBackend) ResolveEXAddress(ctx context.Context, essdn string) (string, error) {
	if f.exAddr == "" {
		return "", errors.New("cannot resolve EX address")
	}
	return f.exAddr, nil
}

func (f *fakeBackend) ResolveEntryID(ctx context.Context, logon store.Logon, entryID []byte) (string, error) {
	if f.entryIDAddr == "" {
		return "", errors.New("cannot resolve entry-id")
	}
	return f.entryIDAddr, nil
}

func (f *fakeBackend) ResolveMoveTarget(ctx context.Context, logon store.Logon, entryID []byte) (store.FID, store.MID, error) {
	return 42, 99, nil
}

func (f *fakeBackend) ClearSubmitFlag(ctx context.Context, logon store.Logon, mid store.MID) error {
	f.clearedSubmit = true
	return nil
}

func (f *fakeBackend) MoveMessage(ctx context.Context, logon store.Logon, mid store.MID, dst store.FID, newMID store.MID) error {
	f.moved = true
	f.movedTo = dst
	return nil
}

func (f *fakeBackend) DeleteMessage(ctx context.Context, logon store.Logon, mid store.MID) error {
	f.deleted = true
	return nil
}

func (f *fakeBackend) SentItemsFolder(ctx context.Context, logon store.Logon) (store.FID, error) {
	return f.sentItems, nil
}

// startAcceptAllRelay runs a minimal SMTP server that accepts every command,
// good enough to let SendMessage exercise the whole pipeline end to end.
func startAcceptAllRelay(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveAcceptAll(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func serveAcceptAll(conn net.Conn) {
	defer conn.Close()
	conn.Write([]byte("220 ready\r\n"))
	buf := make([]byte, 4096)
	inData := false
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		text := string(buf[:n])
		switch {
		case inData:
			if strings.Contains(text, "\r\n.\r\n") {
				inData = false
				conn.Write([]byte("250 Accepted\r\n"))
			}
		case strings.HasPrefix(strings.ToUpper(text), "DATA"):
			inData = true
			conn.Write([]byte("354 Go ahead\r\n"))
		case strings.HasPrefix(strings.ToUpper(text), "QUIT"):
			conn.Write([]byte("221 Bye\r\n"))
			return
		default:
			conn.Write([]byte("250 Ok\r\n"))
		}
	}
}

func TestSendMessageMovesToSentItems(t *testing.T) {
	relay := startAcceptAllRelay(t)

	be := &fakeBackend{
		msg: &store.MessageContent{
			ParentFolderID: 1,
			From:           "sender@example.com",
			Subject:        "hi",
			BodyFmt:        store.BodyFormatPlainOnly,
			Plain:          "hello",
			Recipients: []store.Recipient{
				{SMTPAddress: "rcpt@example.com"},
			},
		},
		sentItems: 7,
	}

	o := &Orchestrator{Backend: be, Relay: relay, Hostname: "client.invalid", Log: log.Logger{}}
	ok, err := o.SendMessage(context.Background(), store.Logon{Account: "u"}, 123, false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !be.clearedSubmit {
		t.Error("expected submit flag to be cleared")
	}
	if !be.moved || be.movedTo != 7 {
		t.Errorf("expected move to Sent Items folder (7), got moved=%v dst=%v", be.moved, be.movedTo)
	}
	if be.deleted {
		t.Error("should not have deleted the message")
	}
}

func TestSendMessageDeleteAfterSubmit(t *testing.T) {
	relay := startAcceptAllRelay(t)

	be := &fakeBackend{
		msg: &store.MessageContent{
			ParentFolderID:  1,
			From:            "sender@example.com",
			BodyFmt:         store.BodyFormatPlainOnly,
			Plain:           "hello",
			DeleteAfterSend: true,
			Recipients: []store.Recipient{
				{SMTPAddress: "rcpt@example.com"},
			},
		},
	}

	o := &Orchestrator{Backend: be, Relay: relay, Hostname: "client.invalid", Log: log.Logger{}}
	ok, err := o.SendMessage(context.Background(), store.Logon{}, 1, false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !be.deleted {
		t.Error("expected message to be deleted")
	}
	if be.moved {
		t.Error("should not have moved the message")
	}
}

func TestSendMessageResendFiltersRecipients(t *testing.T) {
	relay := startAcceptAllRelay(t)

	be := &fakeBackend{
		msg: &store.MessageContent{
			ParentFolderID: 1,
			From:           "sender@example.com",
			BodyFmt:        store.BodyFormatPlainOnly,
			Plain:          "hello",
			MessageFlags:   store.MsgFlagResend,
			Recipients: []store.Recipient{
				{SMTPAddress: "no-resend@example.com", Type: store.RecipientTypeTo},
				{SMTPAddress: "resend@example.com", Type: store.RecipientTypeNeedResend},
			},
		},
	}

	o := &Orchestrator{Backend: be, Relay: relay, Hostname: "client.invalid", Log: log.Logger{}}
	ok, err := o.SendMessage(context.Background(), store.Logon{}, 1, true)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
}

func TestSendMessageNoRecipientsIsError(t *testing.T) {
	be := &fakeBackend{
		msg: &store.MessageContent{
			ParentFolderID: 1,
			From:           "sender@example.com",
		},
	}

	o := &Orchestrator{Backend: be, Relay: "127.0.0.1:1", Hostname: "client.invalid", Log: log.Logger{}}
	ok, err := o.SendMessage(context.Background(), store.Logon{}, 1, false)
	if err == nil {
		t.Fatal("expected an error with zero recipients")
	}
	if ok {
		t.Error("expected ok=false")
	}
}
