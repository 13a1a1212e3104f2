package protocol

import "io"

// Acknowledgment byte values. The wire layer passes ack bytes through
// opaquely; these are the conventions used by this implementation's
// receiver. Senders should treat any nonzero byte as "ready".
const (
	// AckNone is what a poll yields when the peer has sent nothing.
	AckNone byte = 0

	// AckReady is written by the receiver after each processed message.
	AckReady byte = 1
)

// WriteAck writes a single acknowledgment byte to w.
func WriteAck(w io.Writer, ack byte) error {
	_, err := w.Write([]byte{ack})
	return err
}

// ReadAck reads a single acknowledgment byte from r, blocking until one
// arrives. Callers that poll opportunistically should set a read deadline on
// the underlying connection instead.
func ReadAck(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return AckNone, err
	}
	return buf[0], nil
}
