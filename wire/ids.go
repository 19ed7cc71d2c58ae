// Package wire defines the wrapping 16-bit identifiers shared across the
// transport (Tick, MessageID, PacketID) and the signed wrap-around
// arithmetic every comparison between them must use.
package wire

// Tick is a monotonically increasing, wrapping 16-bit simulation step.
type Tick uint16

// MessageID is a wrapping 16-bit identifier assigned by a reliable sender,
// unique per (channel, peer, session).
type MessageID uint16

// PacketID is a wrapping 16-bit identifier assigned by the PacketManager
// per outgoing datagram on a connection.
type PacketID uint16

// wrapDistance returns b - a as a signed 16-bit difference: positive means
// b is "after" a, negative means "before". Two ids more than 2^15 apart are
// considered unordered by the caller (spec.md §9).
func wrapDistance(a, b uint16) int32 {
	return int32(int16(b - a))
}

// Distance returns t2 - t1 as a signed wrap-around distance.
func (t1 Tick) Distance(t2 Tick) int32 { return wrapDistance(uint16(t1), uint16(t2)) }

// Before reports whether t1 precedes t2 by signed wrap-around distance.
func (t1 Tick) Before(t2 Tick) bool { return t1.Distance(t2) > 0 }

// Add advances a tick by n steps (n may be negative).
func (t Tick) Add(n int32) Tick { return Tick(uint16(int32(t) + n)) }

// Distance returns m2 - m1 as a signed wrap-around distance.
func (m1 MessageID) Distance(m2 MessageID) int32 { return wrapDistance(uint16(m1), uint16(m2)) }

// Before reports whether m1 precedes m2 by signed wrap-around distance.
func (m1 MessageID) Before(m2 MessageID) bool { return m1.Distance(m2) > 0 }

// LessEq reports whether m1 <= m2 by signed wrap-around distance (m1 == m2
// or m1 precedes m2).
func (m1 MessageID) LessEq(m2 MessageID) bool { return m1 == m2 || m1.Before(m2) }

// Next returns the following message id, wrapping at 2^16.
func (m MessageID) Next() MessageID { return m + 1 }

// Distance returns p2 - p1 as a signed wrap-around distance.
func (p1 PacketID) Distance(p2 PacketID) int32 { return wrapDistance(uint16(p1), uint16(p2)) }

// Before reports whether p1 precedes p2 by signed wrap-around distance.
func (p1 PacketID) Before(p2 PacketID) bool { return p1.Distance(p2) > 0 }

// Next returns the following packet id, wrapping at 2^16.
func (p PacketID) Next() PacketID { return p + 1 }

// Add advances a packet id by n steps (n may be negative).
func (p PacketID) Add(n int32) PacketID { return PacketID(uint16(int32(p) + n)) }
