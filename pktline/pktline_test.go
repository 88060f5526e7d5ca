package pktline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwillock/gogit/pktline"
)

func TestDecodeUntilFlush_SingleLine(t *testing.T) {
	input := []byte("001e# service=git-upload-pack\n0000")
	lines, rest, pack, err := pktline.DecodeUntilFlush(input)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "# service=git-upload-pack", string(lines[0]))
	assert.Empty(t, rest)
	assert.Nil(t, pack)
}

func TestDecodeUntilFlush_MultipleLines(t *testing.T) {
	input := []byte("0008one\n0008two\n0000")
	lines, rest, pack, err := pktline.DecodeUntilFlush(input)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "one", string(lines[0]))
	assert.Equal(t, "two", string(lines[1]))
	assert.Empty(t, rest)
	assert.Nil(t, pack)
}

func TestDecodeUntilFlush_NoTrailingNewlineTolerated(t *testing.T) {
	input := []byte("0007abc0000")
	lines, _, _, err := pktline.DecodeUntilFlush(input)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "abc", string(lines[0]))
}

func TestDecodeUntilFlush_EmbeddedPack(t *testing.T) {
	input := append([]byte("0007abc"), []byte("PACKxxxx")...)
	lines, rest, pack, err := pktline.DecodeUntilFlush(input)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Nil(t, rest)
	assert.Equal(t, "PACKxxxx", string(pack))
}

func TestDecodeUntilFlush_NonHexLength(t *testing.T) {
	_, _, _, err := pktline.DecodeUntilFlush([]byte("zzzzpayload0000"))
	assert.ErrorIs(t, err, pktline.ErrBadPktLine)
}

func TestDecodeUntilFlush_LengthBelowMinimum(t *testing.T) {
	_, _, _, err := pktline.DecodeUntilFlush([]byte("0002"))
	assert.ErrorIs(t, err, pktline.ErrBadPktLine)
}

func TestDecodeUntilFlush_Underflow(t *testing.T) {
	_, _, _, err := pktline.DecodeUntilFlush([]byte("00ffshort"))
	assert.ErrorIs(t, err, pktline.ErrBadPktLine)
}

func TestIsFlush(t *testing.T) {
	assert.True(t, pktline.IsFlush([]byte("0000rest")))
	assert.False(t, pktline.IsFlush([]byte("0009rest")))
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "0009done\n", string(pktline.Encode([]byte("done\n"))))
}

func TestFlush(t *testing.T) {
	assert.Equal(t, "0000", string(pktline.Flush()))
}
