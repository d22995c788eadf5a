package imapcore

import (
	"testing"

	"github.com/postalcore/postal/midb"
	"github.com/stretchr/testify/require"
)

func TestFormatFlags(t *testing.T) {
	require.Equal(t, "(\\Seen \\Deleted)", formatFlags(midb.FlagSeen|midb.FlagDeleted))
	require.Equal(t, "()", formatFlags(0))
}

func TestParseFlagListRejectsUnknown(t *testing.T) {
	_, err := parseFlagList([]string{"\\Bogus"})
	require.Error(t, err)
}

func TestParseFlagListCaseInsensitive(t *testing.T) {
	flags, err := parseFlagList([]string{"\\seen", "\\FLAGGED"})
	require.NoError(t, err)
	require.Equal(t, midb.FlagSeen|midb.FlagFlagged, flags)
}

func TestStoreOpVariants(t *testing.T) {
	op, silent, ok := storeOp("+FLAGS.SILENT")
	require.True(t, ok)
	require.True(t, silent)
	require.Equal(t, midb.FlagOpAdd, op)

	op, silent, ok = storeOp("-FLAGS")
	require.True(t, ok)
	require.False(t, silent)
	require.Equal(t, midb.FlagOpRemove, op)

	_, _, ok = storeOp("BOGUS")
	require.False(t, ok)
}
