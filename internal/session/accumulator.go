package session

import "bytes"

// terminator is the ELM327 prompt byte ('>') signaling end-of-response
// (§6.2).
const terminator byte = 0x3E

// accumulate appends data as a new chunk on slot (preserving the packet
// boundary, never merging with the previous chunk — §4.6) and scans only
// the newly appended bytes for the terminator. It returns complete=true if
// the terminator was found, in which case slot.chunks has already been
// truncated at the terminator and any trailing empty chunk removed.
//
// Bytes following the terminator within the same packet are discarded, per
// §4.5's "the contract ends at the first terminator".
func accumulate(slot *commandSlot, data []byte) (complete bool) {
	idx := bytes.IndexByte(data, terminator)
	if idx < 0 {
		slot.chunks = append(slot.chunks, data)
		return false
	}

	chunk := data[:idx]
	slot.chunks = append(slot.chunks, chunk)
	if len(chunk) == 0 {
		// Truncation yielded an empty trailing chunk; remove it so Chunked
		// responses never contain a spurious empty element.
		slot.chunks = slot.chunks[:len(slot.chunks)-1]
	}
	return true
}

// shapeResponse builds the Response for shape from the chunks accumulated
// on a completed or timed-out slot (§4.5).
func shapeResponse(shape ReturnShape, chunks [][]byte) Response {
	flat := flatten(chunks)
	resp := Response{Shape: shape, Flat: flat, Chunks: chunks}
	if shape == ShapeString {
		resp.Text = decodeText(flat)
	}
	return resp
}

func flatten(chunks [][]byte) []byte {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	flat := make([]byte, 0, n)
	for _, c := range chunks {
		flat = append(flat, c...)
	}
	return flat
}
