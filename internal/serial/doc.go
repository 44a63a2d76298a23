// Package serial opens the two line-oriented serial endpoints tftbridge
// relays between.
//
// Two drivers are available:
//
//   - termios: github.com/tarm/serial, one blocking read per call with
//     the kernel read timeout (VTIME) bounding each wait
//   - gurux: github.com/Gurux/gxserial-go in synchronous mode, where a
//     background reader fills a buffer that ReadLine searches for '\n'
//
// Both return complete records including the trailing newline, and
// return (nil, nil) when the endpoint timeout elapses with no complete
// record. Bytes that arrived before a timeout are kept and prepended to
// the next record.
//
// A Port is not safe for concurrent ReadLine calls. Write and Close may
// be called from another goroutine provided the caller serialises them.
package serial
