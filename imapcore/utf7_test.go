package imapcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMailboxNameASCII(t *testing.T) {
	wire, err := encodeMailboxName("INBOX.Sent")
	require.NoError(t, err)
	require.Equal(t, "INBOX.Sent", wire)

	back, err := decodeMailboxName(wire)
	require.NoError(t, err)
	require.Equal(t, "INBOX.Sent", back)
}

func TestEncodeDecodeMailboxNameLiteralAmpersand(t *testing.T) {
	wire, err := encodeMailboxName("Q&A")
	require.NoError(t, err)
	require.Equal(t, "Q&-A", wire)

	back, err := decodeMailboxName(wire)
	require.NoError(t, err)
	require.Equal(t, "Q&A", back)
}

func TestEncodeDecodeMailboxNameUnicode(t *testing.T) {
	name := "Entwürfe"
	wire, err := encodeMailboxName(name)
	require.NoError(t, err)
	require.NotEqual(t, name, wire)

	back, err := decodeMailboxName(wire)
	require.NoError(t, err)
	require.Equal(t, name, back)
}

func TestDecodeMailboxNameInvalidSequence(t *testing.T) {
	_, err := decodeMailboxName("&!!!-")
	require.Error(t, err)
}
