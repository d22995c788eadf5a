package imapcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSequenceSingle(t *testing.T) {
	ranges, err := parseSequence("5")
	require.NoError(t, err)
	require.Equal(t, []Range{{Min: 5, Max: 5}}, ranges)
}

func TestParseSequenceRangeAndStar(t *testing.T) {
	ranges, err := parseSequence("2:4,9:*")
	require.NoError(t, err)
	require.Equal(t, []Range{{Min: 2, Max: 4}, {Min: 9, Max: -1}}, ranges)
}

func TestParseSequenceReversedRangeNormalized(t *testing.T) {
	ranges, err := parseSequence("9:3")
	require.NoError(t, err)
	require.Equal(t, []Range{{Min: 3, Max: 9}}, ranges)
}

func TestParseSequenceRejectsZero(t *testing.T) {
	_, err := parseSequence("0")
	require.Error(t, err)
}

func TestParseSequenceRejectsEmpty(t *testing.T) {
	_, err := parseSequence("")
	require.Error(t, err)
}
