// Package oommsg carries out-of-memory notifications from the frame
// allocator (component A) to whatever receives on OomCh. Nothing in this
// module starts such a receiver.
package oommsg

/// OomCh is sent on when the frame allocator cannot satisfy an allocation
/// and a receiver is ready to take the message; the allocator does not
/// block on it when nobody is receiving.
var OomCh chan Oommsg_t = make(chan Oommsg_t)

/// Oommsg_t is sent on OomCh when memory is exhausted. Need is the number
/// of frames the blocked allocation wants; the receiver replies on Resume
/// with true to make the allocator retry, or false to make it fail.
type Oommsg_t struct {
	Need   int
	Resume chan bool
}
