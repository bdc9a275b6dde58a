package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccumulateAppendsUntilTerminator(t *testing.T) {
	slot := &commandSlot{}

	require.False(t, accumulate(slot, []byte("41 00")))
	require.False(t, accumulate(slot, []byte(" BE 1F")))
	require.True(t, accumulate(slot, []byte(" A8\r>")))

	require.Equal(t, [][]byte{[]byte("41 00"), []byte(" BE 1F"), []byte(" A8\r")}, slot.chunks)
}

func TestAccumulateDropsBytesAfterTerminatorInSamePacket(t *testing.T) {
	slot := &commandSlot{}
	complete := accumulate(slot, []byte("OK\r>garbage-after-prompt"))
	require.True(t, complete)
	require.Equal(t, [][]byte{[]byte("OK\r")}, slot.chunks)
}

func TestAccumulateDropsEmptyTrailingChunkOnBareTerminator(t *testing.T) {
	slot := &commandSlot{}
	slot.chunks = append(slot.chunks, []byte("41 00 BE\r"))
	complete := accumulate(slot, []byte(">"))
	require.True(t, complete)
	require.Equal(t, [][]byte{[]byte("41 00 BE\r")}, slot.chunks)
}

func TestShapeResponseStringDecodesUTF8(t *testing.T) {
	resp := shapeResponse(ShapeString, [][]byte{[]byte("  NO DATA\r\n")})
	require.Equal(t, "NO DATA", resp.Text)
	require.Equal(t, []byte("  NO DATA\r\n"), resp.Flat)
}

func TestShapeResponseStringFallsBackToLatin1OnInvalidUTF8(t *testing.T) {
	invalid := []byte{0xC3, 0x28} // not valid UTF-8
	resp := shapeResponse(ShapeString, [][]byte{invalid})
	require.Len(t, []rune(resp.Text), 2)
	require.Equal(t, rune(0xC3), []rune(resp.Text)[0])
	require.Equal(t, rune(0x28), []rune(resp.Text)[1])
}

func TestShapeResponseBytesAndChunkedLeaveTextEmpty(t *testing.T) {
	chunks := [][]byte{[]byte("41"), []byte("00")}
	resp := shapeResponse(ShapeBytes, chunks)
	require.Empty(t, resp.Text)
	require.Equal(t, []byte("4100"), resp.Flat)

	resp = shapeResponse(ShapeChunked, chunks)
	require.Empty(t, resp.Text)
	require.Equal(t, chunks, resp.Chunks)
}
