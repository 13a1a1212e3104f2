// Package stream implements the sending side of the adaptive remote-play
// pipeline: it watches successive frames of a fixed-layout RGB buffer,
// decides per frame how much of it must travel (nothing, changed blocks, an
// interlaced half, or a full refresh), compresses that selection, and pushes
// it over a self-healing connection.
//
// The pipeline is deliberately synchronous. One Push call performs one
// connection-maintenance tick, one mode selection, one compression pass and
// one blocking write, then polls for the peer's one-byte acknowledgment.
// The caller's frame rate is therefore the clock for everything, including
// reconnect backoff. Callers that cannot tolerate a blocking write configure
// the transport's async write mode instead.
//
// Usage:
//
//	sess, err := stream.New("192.168.1.40:6543", stream.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	for running {
//	    pixels := render() // 240×320 RGB, 3 bytes per pixel
//	    ack, err := sess.Push(pixels)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    throttle(ack)
//	}
//
// Frame modes and their wire encoding live in the protocol package; block
// geometry and the difference scan live in the frame package.
package stream
