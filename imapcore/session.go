package imapcore

import (
	"context"
	"fmt"

	"github.com/postalcore/postal/framework/module"
	"github.com/postalcore/postal/midb"
)

// authState is the PROTO_STAT state machine imap_cmd_parser.cpp drives
// every command dispatch off: not-authenticated, authenticated (no
// mailbox selected), and selected (a mailbox open, read-write or
// read-only).
type authState int

const (
	stateNotAuthenticated authState = iota
	stateAuthenticated
	stateSelected
)

// Publisher is the subset of event.Client a Session needs: announcing a
// mailbox mutation to the event fan-out service. Declared as an
// interface here (rather than imported from package event directly, to
// avoid a dependency cycle — event.Client has no reason to know about
// imapcore) so tests can stub it without dialing a real TCP listener.
// Its signature matches event.Client.Publish's (verb, user, folder,
// args) exactly, so an *event.Client satisfies Publisher as-is.
type Publisher interface {
	Publish(verb, user, folder, args string) error
}

// noopPublisher discards every publish, for sessions built without a
// live event.Client (tests, or a deployment running without the event
// service configured).
type noopPublisher struct{}

func (noopPublisher) Publish(verb, user, folder, args string) error { return nil }

// Session holds one IMAP connection's state across commands: the
// authenticated account, the selected folder (if any) and whether it was
// opened read-only, and the UIDVALIDITY last reported to the client. Authn and Index are both supplied by the caller so Session
// stays storage- and credential-store-agnostic.
type Session struct {
	Index       midb.Index
	Authn       module.PlainAuth
	Publish     Publisher
	state       authState
	account     string
	folder      string
	readOnly    bool
	uidValidity uint32
}

// NewSession constructs a not-authenticated Session. publish may be nil,
// in which case mutations are silently discarded.
func NewSession(index midb.Index, authn module.PlainAuth, publish Publisher) *Session {
	if publish == nil {
		publish = noopPublisher{}
	}
	return &Session{Index: index, Authn: authn, Publish: publish, state: stateNotAuthenticated}
}

func (s *Session) requireSelected() error {
	if s.state != stateSelected {
		return fmt.Errorf("imapcore: command requires a selected mailbox")
	}
	return nil
}

func (s *Session) requireAuthenticated() error {
	if s.state == stateNotAuthenticated {
		return fmt.Errorf("imapcore: command requires authentication")
	}
	return nil
}

// login validates credentials via Authn.AuthPlain. module.ErrUnknownCredentials
// and any other error both mean a failed LOGIN from the client's point of
// view; imapcore has no reason to distinguish them on the wire.
func (s *Session) login(username, password string) bool {
	return s.Authn.AuthPlain(username, password) == nil
}

func (s *Session) selectFolder(ctx context.Context, folder string, readOnly bool) (midb.Summary, error) {
	summary, err := s.Index.Summary(ctx, s.account, folder)
	if err != nil {
		return midb.Summary{}, err
	}
	s.state = stateSelected
	s.folder = folder
	s.readOnly = readOnly
	s.uidValidity = summary.UIDValidity
	return summary, nil
}

func (s *Session) unselect() {
	s.state = stateAuthenticated
	s.folder = ""
	s.readOnly = false
}
