// Package channel implements the channel layer: registration of channel
// classes, per-policy senders and receivers, and the registry that maps a
// stable ChannelKind to the compact ChannelID used on the wire.
package channel

import "hash/fnv"

// Kind is a content-addressed identity for a channel class: a stable hash
// of its name, so the same logical channel (e.g. "player-inputs") hashes to
// the same Kind on both client and server builds without coordinating
// integer ids by hand.
type Kind uint64

// KindOf derives the Kind for a channel name. Two calls with the same name
// always produce the same Kind.
func KindOf(name string) Kind {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return Kind(h.Sum64())
}

// ID is the compact wire-format identifier for a channel, assigned by a
// Registry at registration time. It fits the wire's channel_id varint.
type ID uint16
