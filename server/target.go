package server

import "github.com/ticknet-go/ticknet/netcode"

type targetKind int

const (
	targetAll targetKind = iota
	targetAllExcept
	targetOnly
)

// Target names a set of peers to replicate to, resolved against the live
// peer map at the moment it's used — never cached (spec.md §4.8).
type Target struct {
	kind targetKind
	peer netcode.PeerID
}

// All targets every currently connected peer.
func All() Target { return Target{kind: targetAll} }

// AllExcept targets every connected peer except one.
func AllExcept(peer netcode.PeerID) Target { return Target{kind: targetAllExcept, peer: peer} }

// Only targets a single connected peer.
func Only(peer netcode.PeerID) Target { return Target{kind: targetOnly, peer: peer} }
