package channel

import "github.com/ticknet-go/ticknet/wire"

// Message is a single application payload in flight through a channel. ID
// is set only for reliable messages (spec.md §3 MessageContainer<P>);
// unreliable and sequenced sends carry a nil ID until the sequenced sender
// stamps one on for ordering purposes only (never for ack tracking).
//
// IsFragment/FragIndex/FragTotal are populated on the receive path when the
// packet layer had to slice an oversize message into pieces; a reliable
// receiver reassembles them before a Message ever reaches the application
// (spec.md §4.1 "Fragment policy").
type Message struct {
	ID         *wire.MessageID
	Payload    []byte
	IsFragment bool
	FragIndex  uint16
	FragTotal  uint16
}

func withID(id wire.MessageID, payload []byte) Message {
	v := id
	return Message{ID: &v, Payload: payload}
}
