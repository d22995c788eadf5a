package submit

import (
	"context"
	"net"
	"testing"

	"github.com/foxcpp/go-mockdns"
	"github.com/postalcore/postal/framework/log"
	"github.com/postalcore/postal/store"
)

func TestSendMessageRejectsRecipientWithNoMXOrA(t *testing.T) {
	relay := startAcceptAllRelay(t)

	resolver := &mockdns.Resolver{Zones: map[string]mockdns.Zone{
		"dead.invalid.": {},
	}}

	be := &fakeBackend{
		msg: &store.MessageContent{
			ParentFolderID: 1,
			From:           "sender@example.com",
			BodyFmt:        store.BodyFormatPlainOnly,
			Plain:          "hello",
			Recipients: []store.Recipient{
				{SMTPAddress: "rcpt@dead.invalid"},
			},
		},
	}

	o := &Orchestrator{Backend: be, Relay: relay, Hostname: "client.invalid", Log: log.Logger{}, Resolver: resolver}
	ok, err := o.SendMessage(context.Background(), store.Logon{}, 1, false)
	if err == nil {
		t.Fatal("expected an error for a domain with no MX or A records")
	}
	if ok {
		t.Error("expected ok=false")
	}
	if be.moved || be.deleted || be.clearedSubmit {
		t.Error("post-processing must not run when the domain check fails")
	}
}

func TestSendMessageAcceptsRecipientWithMX(t *testing.T) {
	relay := startAcceptAllRelay(t)

	resolver := &mockdns.Resolver{Zones: map[string]mockdns.Zone{
		"good.invalid.": {
			MX: []net.MX{{Host: "mx.good.invalid.", Pref: 10}},
		},
		"mx.good.invalid.": {
			A: []string{"127.0.0.1"},
		},
	}}

	be := &fakeBackend{
		msg: &store.MessageContent{
			ParentFolderID: 1,
			From:           "sender@example.com",
			BodyFmt:        store.BodyFormatPlainOnly,
			Plain:          "hello",
			Recipients: []store.Recipient{
				{SMTPAddress: "rcpt@good.invalid"},
			},
		},
		sentItems: 3,
	}

	o := &Orchestrator{Backend: be, Relay: relay, Hostname: "client.invalid", Log: log.Logger{}, Resolver: resolver}
	ok, err := o.SendMessage(context.Background(), store.Logon{}, 1, false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
}

func TestSendMessageAcceptsRecipientWithFallbackA(t *testing.T) {
	relay := startAcceptAllRelay(t)

	resolver := &mockdns.Resolver{Zones: map[string]mockdns.Zone{
		"noMX.invalid.": {
			A: []string{"127.0.0.1"},
		},
	}}

	be := &fakeBackend{
		msg: &store.MessageContent{
			ParentFolderID: 1,
			From:           "sender@example.com",
			BodyFmt:        store.BodyFormatPlainOnly,
			Plain:          "hello",
			Recipients: []store.Recipient{
				{SMTPAddress: "rcpt@noMX.invalid"},
			},
		},
	}

	o := &Orchestrator{Backend: be, Relay: relay, Hostname: "client.invalid", Log: log.Logger{}, Resolver: resolver}
	ok, err := o.SendMessage(context.Background(), store.Logon{}, 1, false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
}
