// Package protocol implements the binary wire protocol for block-diff frame
// streaming between a host (the rendering side) and a single viewer peer.
//
// # Design Goals
//
//   - Minimal framing: a frame with no changes costs 2 bytes on the wire.
//   - Fixed geometry: both ends agree on the capture resolution out of band,
//     so diff messages carry a fixed-size dirty bitmap with no length prefix.
//   - Stream friendly: messages are raw bytes over any ordered byte stream
//     (TCP by default), no alignment, no padding.
//
// # Wire Format
//
// All integers are little-endian. Every host-to-peer message starts with a
// 2-byte mode code:
//
//	NONE (0)
//	┌─────────┐
//	│ mode: 2 │
//	└─────────┘
//
//	FULL (1), CHECKER (3), CHECKER_COMPL (4)
//	┌─────────┬─────────┬──────────────────┐
//	│ mode: 2 │ size: 2 │ payload (size)   │
//	└─────────┴─────────┴──────────────────┘
//
//	DIFF (2)
//	┌─────────┬─────────┬────────────────┬──────────────────┐
//	│ mode: 2 │ size: 2 │ bitmap (fixed) │ payload (size)   │
//	└─────────┴─────────┴────────────────┴──────────────────┘
//
// The payload is the lossy-compressed image for the mode: the full frame for
// FULL, the packed dirty blocks for DIFF, or one half-width interlaced
// sub-frame for the checker modes. For DIFF the size field counts only the
// compressed payload; the dirty bitmap length is implied by the agreed
// resolution (150 bytes at 240x320), one bit per 8x8 block in row-major
// order, least-significant bit first within each byte.
//
// Peer to host, the protocol carries single opportunistic acknowledgment
// bytes. The host polls for them without blocking; a missing byte reads as
// AckNone (0). Values are opaque to the wire layer and interpreted by the
// caller as back-pressure.
//
// # Usage
//
// Sending:
//
//	msg := protocol.Message{Mode: protocol.ModeFull, Payload: jpegBytes}
//	if err := protocol.WriteMessage(conn, &msg); err != nil { ... }
//
// Receiving:
//
//	msg, err := protocol.ReadMessage(conn, grid.BitmapSize())
//	if err != nil { ... }
//
// # File Structure
//
//   - message.go: mode codes, Message type, stream read/write
//   - encoder.go: little-endian append-based writer
//   - decoder.go: little-endian bounds-checked reader
//   - ack.go: acknowledgment byte helpers
package protocol
