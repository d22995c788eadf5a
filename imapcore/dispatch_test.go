package imapcore

import (
	"context"
	"testing"

	"github.com/postalcore/postal/framework/module"
	"github.com/postalcore/postal/midb"
	"github.com/stretchr/testify/require"
)

type stubAuthn struct {
	allow map[string]string
}

func (a stubAuthn) AuthPlain(user, pass string) error {
	want, ok := a.allow[user]
	if ok && want == pass {
		return nil
	}
	return module.ErrUnknownCredentials
}

type recordingPublisher struct {
	calls []string
}

func (p *recordingPublisher) Publish(verb, user, folder, args string) error {
	p.calls = append(p.calls, verb+" "+user+" "+folder+" "+args)
	return nil
}

func newTestSession(t *testing.T) (*Session, *recordingPublisher) {
	idx := midb.NewMemIndex()
	require.NoError(t, idx.EnsureFolder(context.Background(), "alice", "INBOX"))
	pub := &recordingPublisher{}
	s := NewSession(idx, stubAuthn{allow: map[string]string{"alice": "hunter2"}}, pub)
	return s, pub
}

func login(t *testing.T, s *Session) {
	lines := s.Handle(context.Background(), "a1 LOGIN alice hunter2")
	require.Equal(t, []string{"a1 OK LOGIN completed"}, lines)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s, _ := newTestSession(t)
	lines := s.Handle(context.Background(), "a1 LOGIN alice wrong")
	require.Equal(t, []string{"a1 NO LOGIN failed"}, lines)
}

func TestSelectBeforeLoginRejected(t *testing.T) {
	s, _ := newTestSession(t)
	lines := s.Handle(context.Background(), "a1 SELECT INBOX")
	require.Equal(t, "a1 NO imapcore: command requires authentication", lines[0])
}

func TestSelectReportsEmptyMailbox(t *testing.T) {
	s, _ := newTestSession(t)
	login(t, s)
	lines := s.Handle(context.Background(), "a2 SELECT INBOX")
	require.Contains(t, lines, "* 0 EXISTS")
	require.Contains(t, lines, "* 0 RECENT")
	require.Equal(t, "a2 OK [READ-WRITE] SELECT completed", lines[len(lines)-1])
}

func TestExamineIsReadOnly(t *testing.T) {
	s, _ := newTestSession(t)
	login(t, s)
	lines := s.Handle(context.Background(), "a2 EXAMINE INBOX")
	require.Equal(t, "a2 OK [READ-ONLY] EXAMINE completed", lines[len(lines)-1])

	storeLines := s.Handle(context.Background(), "a3 STORE 1 +FLAGS (\\Seen)")
	require.Equal(t, "a3 NO mailbox is read-only", storeLines[0])
}

func TestAppendFetchStoreExpungeRoundTrip(t *testing.T) {
	s, pub := newTestSession(t)
	login(t, s)
	s.Handle(context.Background(), "a2 SELECT INBOX")

	appendLines := s.Handle(context.Background(), "a3 APPEND INBOX (\\Seen) \"Subject: hi\"")
	require.Contains(t, appendLines[0], "APPEND completed")
	require.Contains(t, pub.calls, "APPEND alice INBOX 1")

	fetchLines := s.Handle(context.Background(), "a4 FETCH 1 (FLAGS)")
	require.Len(t, fetchLines, 2)
	require.Contains(t, fetchLines[0], "\\Seen")

	storeLines := s.Handle(context.Background(), "a5 STORE 1 +FLAGS (\\Deleted)")
	require.Equal(t, "a5 OK STORE completed", storeLines[len(storeLines)-1])
	require.Contains(t, pub.calls, "STORE alice INBOX ")

	expungeLines := s.Handle(context.Background(), "a6 EXPUNGE")
	require.Contains(t, expungeLines, "* 1 EXPUNGE")
	require.Equal(t, "a6 OK EXPUNGE completed", expungeLines[len(expungeLines)-1])
	require.Contains(t, pub.calls, "EXPUNGE alice INBOX ")

	summaryLines := s.Handle(context.Background(), "a7 SELECT INBOX")
	require.Contains(t, summaryLines, "* 0 EXISTS")
}

func TestSearchUnseen(t *testing.T) {
	s, _ := newTestSession(t)
	login(t, s)
	s.Handle(context.Background(), "a2 SELECT INBOX")
	s.Handle(context.Background(), "a3 APPEND INBOX \"one\"")
	s.Handle(context.Background(), "a4 STORE 1 +FLAGS (\\Seen)")
	s.Handle(context.Background(), "a5 APPEND INBOX \"two\"")

	lines := s.Handle(context.Background(), "a6 SEARCH UNSEEN")
	require.Equal(t, "* SEARCH 2", lines[0])
}

func TestLogoutResetsState(t *testing.T) {
	s, _ := newTestSession(t)
	login(t, s)
	s.Handle(context.Background(), "a2 SELECT INBOX")
	lines := s.Handle(context.Background(), "a3 LOGOUT")
	require.Equal(t, []string{"* BYE logging out", "a3 OK LOGOUT completed"}, lines)
	require.Equal(t, stateNotAuthenticated, s.state)
}

func TestUnrecognizedCommand(t *testing.T) {
	s, _ := newTestSession(t)
	lines := s.Handle(context.Background(), "a1 BOGUS")
	require.Equal(t, "a1 BAD unrecognized command \"BOGUS\"", lines[0])
}
