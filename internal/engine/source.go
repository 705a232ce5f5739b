package engine

import (
	"crypto/rand"
	"encoding/binary"
)

// Source yields uniform draws in [0, 1) for the resolver.
type Source interface {
	Next() float64
}

// SeededSource draws one float per nonce from the provably-fair stream, so
// draw n of a session can be replayed from (server, client, nonce).
// It is not safe for concurrent use.
type SeededSource struct {
	seeds Seeds
	nonce uint64
}

// NewSeededSource starts drawing at startNonce.
func NewSeededSource(seeds Seeds, startNonce uint64) *SeededSource {
	return &SeededSource{seeds: seeds, nonce: startNonce}
}

// Next returns the first float for the current nonce and advances it.
func (s *SeededSource) Next() float64 {
	f := DrawAt(s.seeds, s.nonce)
	s.nonce++
	return f
}

// Nonce returns the nonce the next draw will use.
func (s *SeededSource) Nonce() uint64 {
	return s.nonce
}

// Seeds returns the seeds backing the source.
func (s *SeededSource) Seeds() Seeds {
	return s.seeds
}

// DrawAt returns the draw a SeededSource produces for nonce.
func DrawAt(seeds Seeds, nonce uint64) float64 {
	return NewStream(seeds.Server, seeds.Client, nonce, 0).NextFloat()
}

// StreamSource draws successive floats from one nonce's stream, so every
// round of a multi-round session replays from a single nonce.
type StreamSource struct {
	stream *Stream
}

// NewStreamSource starts at byte cursor 0 of nonce's stream.
func NewStreamSource(seeds Seeds, nonce uint64) *StreamSource {
	return &StreamSource{stream: NewStream(seeds.Server, seeds.Client, nonce, 0)}
}

// Next consumes the next 4 bytes of the stream.
func (s *StreamSource) Next() float64 {
	return s.stream.NextFloat()
}

// CryptoSource draws from crypto/rand with 53 bits of precision.
type CryptoSource struct{}

// Next returns a uniform float in [0, 1). If the system RNG fails it
// returns 0 rather than panicking in a request path.
func (CryptoSource) Next() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}
