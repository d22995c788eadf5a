package event

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	aclPath := filepath.Join(t.TempDir(), "event_acl.txt")
	require.NoError(t, os.WriteFile(aclPath, []byte("127.0.0.1\n"), 0o644))

	srv, err := NewServer(Config{ListenAddr: "127.0.0.1:0", ACLPath: aclPath})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	addr := srv.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	return addr
}

func TestSelectPublishDelivery(t *testing.T) {
	addr := startTestServer(t)

	subscriber, err := Dial(addr, "res-subscriber")
	require.NoError(t, err)
	defer subscriber.Close()
	require.NoError(t, subscriber.Select("alice", "INBOX"))
	events, err := subscriber.Listen()
	require.NoError(t, err)

	publisher, err := Dial(addr, "res-publisher")
	require.NoError(t, err)
	defer publisher.Close()
	require.NoError(t, publisher.Publish("NEW_MAIL", "alice", "INBOX", "uid=1"))

	select {
	case line := <-events:
		require.Equal(t, "NEW_MAIL alice INBOX uid=1", line)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSelfPublishSuppressed(t *testing.T) {
	addr := startTestServer(t)

	self, err := Dial(addr, "res-self")
	require.NoError(t, err)
	defer self.Close()
	require.NoError(t, self.Select("bob", "INBOX"))
	events, err := self.Listen()
	require.NoError(t, err)

	// A second connection sharing the same resource ID publishes; the
	// spec requires the sender never receive its own event, which this
	// exercises by publishing from a distinct connection but the same
	// resID as the subscriber.
	publisherSameRes, err := Dial(addr, "res-self")
	require.NoError(t, err)
	defer publisherSameRes.Close()
	require.NoError(t, publisherSameRes.Publish("NEW_MAIL", "bob", "INBOX", ""))

	select {
	case <-events:
		t.Fatal("sender must not receive its own event")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestUnselectStopsDelivery(t *testing.T) {
	addr := startTestServer(t)

	subscriber, err := Dial(addr, "res-unselect")
	require.NoError(t, err)
	defer subscriber.Close()
	require.NoError(t, subscriber.Select("carol", "INBOX"))
	require.NoError(t, subscriber.Unselect("carol", "INBOX"))
	events, err := subscriber.Listen()
	require.NoError(t, err)

	publisher, err := Dial(addr, "res-unselect-pub")
	require.NoError(t, err)
	defer publisher.Close()
	require.NoError(t, publisher.Publish("NEW_MAIL", "carol", "INBOX", ""))

	select {
	case <-events:
		t.Fatal("unselected folder must not receive events")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPingAlwaysTrue(t *testing.T) {
	addr := startTestServer(t)
	c, err := Dial(addr, "res-ping")
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.command("PING"))
}
