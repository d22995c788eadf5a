package midb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSeedYAML = `
- account: alice
  folder: INBOX
  messages:
    - raw: "Subject: one\r\n\r\nbody"
      flags: ["\\Seen"]
    - raw: "Subject: two\r\n\r\nbody"
      flags: []
- account: bob
  folder: INBOX
  messages:
    - raw: "Subject: hi\r\n\r\nbody"
      flags: ["\\Flagged", "\\Seen"]
`

func TestLoadSeedPopulatesFolders(t *testing.T) {
	idx := NewMemIndex()
	require.NoError(t, LoadSeed(context.Background(), idx, []byte(testSeedYAML)))

	sum, err := idx.Summary(context.Background(), "alice", "INBOX")
	require.NoError(t, err)
	require.Equal(t, 2, sum.Exists)

	items, err := idx.FetchSimple(context.Background(), "alice", "INBOX", []Range{{Min: 1, Max: -1}}, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.True(t, items[0].Flags&FlagSeen != 0)
	require.False(t, items[1].Flags&FlagSeen != 0)

	bobSum, err := idx.Summary(context.Background(), "bob", "INBOX")
	require.NoError(t, err)
	require.Equal(t, 1, bobSum.Exists)
}

func TestLoadSeedRejectsUnknownFlag(t *testing.T) {
	idx := NewMemIndex()
	bad := `
- account: alice
  folder: INBOX
  messages:
    - raw: "Subject: x\r\n\r\nbody"
      flags: ["\\Bogus"]
`
	require.Error(t, LoadSeed(context.Background(), idx, []byte(bad)))
}

func TestLoadSeedRejectsMalformedYAML(t *testing.T) {
	idx := NewMemIndex()
	require.Error(t, LoadSeed(context.Background(), idx, []byte("not: [valid")))
}
