package telemetry

import "github.com/VictoriaMetrics/metrics"

// Counters exported by a running Server or Client. Grounded in the same
// library R2Northstar-Atlas uses for its master-server metrics.
var (
	PacketsSent     = metrics.NewCounter("ticknet_packets_sent_total")
	PacketsReceived = metrics.NewCounter("ticknet_packets_received_total")
	BytesSent       = metrics.NewCounter("ticknet_bytes_sent_total")
	BytesReceived   = metrics.NewCounter("ticknet_bytes_received_total")
	PacketsDropped  = metrics.NewCounter("ticknet_packets_dropped_total")
	MessagesAcked   = metrics.NewCounter("ticknet_messages_acked_total")
	MessagesResent  = metrics.NewCounter("ticknet_messages_resent_total")
	// PeersConnected is a Counter used as an up-down gauge (Inc on connect,
	// Dec on disconnect), which VictoriaMetrics/metrics supports directly.
	PeersConnected = metrics.NewCounter("ticknet_peers_connected")
)

// WritePrometheus writes the current metric snapshot in the text exposition
// format, for a caller to serve over an HTTP /metrics endpoint.
func WritePrometheus(w interface{ Write([]byte) (int, error) }) {
	metrics.WritePrometheus(w, true)
}
