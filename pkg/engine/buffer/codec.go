package buffer

// Codec turns payload bytes into media samples and back. The engine never
// interprets codec specific bits; implementations are injected at
// construction time.
//
// Decode returns ok=false when it needs more bytes before it can produce
// output, in which case the jitter buffer keeps accumulating payloads into
// its assembly buffer.
type Codec interface {
	Decode(payload []byte) (samples []byte, ok bool)
	Encode(samples []byte) []byte
}

// MediaPayload is one decoded, playout-ready unit of media.
type MediaPayload struct {
	Samples        []byte
	Timestamp      uint32
	SequenceNumber uint16
	Marker         bool
}
