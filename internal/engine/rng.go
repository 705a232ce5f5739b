package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"
)

// Stream produces a deterministic byte stream from HMAC-SHA256 keyed by the
// server seed over "clientSeed:nonce:round". Every 32 bytes a new round is
// hashed.
//
// This is the published provably-fair derivation. Keep it byte-for-byte
// unchanged, or seeds revealed by earlier rotations stop verifying;
// TestStreamKnownVector pins the output.
type Stream struct {
	serverSeed   string
	clientSeed   string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewStream creates a stream positioned at the given byte cursor.
func NewStream(serverSeed, clientSeed string, nonce uint64, cursor uint64) *Stream {
	s := &Stream{
		serverSeed:   serverSeed,
		clientSeed:   clientSeed,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}
	s.generateRound()
	return s
}

// Next returns the next byte.
func (s *Stream) Next() byte {
	if s.currentPos >= 32 {
		s.currentRound++
		s.currentPos = 0
		s.generateRound()
	}

	b := s.buffer[s.currentPos]
	s.currentPos++
	return b
}

// NextFloat consumes exactly 4 bytes and returns a float in [0, 1).
func (s *Stream) NextFloat() float64 {
	b0 := s.Next()
	b1 := s.Next()
	b2 := s.Next()
	b3 := s.Next()

	return bytesToFloat([4]byte{b0, b1, b2, b3})
}

func (s *Stream) generateRound() {
	h := hmac.New(sha256.New, []byte(s.serverSeed))
	message := fmt.Sprintf("%s:%d:%d", s.clientSeed, s.nonce, s.currentRound)
	h.Write([]byte(message))
	copy(s.buffer[:], h.Sum(nil))
}

// bytesToFloat computes b0/256 + b1/256^2 + b2/256^3 + b3/256^4. The maximum
// is 1 - 256^-4, so the result is always below 1.
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		divider := math.Pow(256, float64(i+1))
		result += float64(b) / divider
	}
	return result
}

// Floats returns count floats starting at the given byte cursor.
func Floats(serverSeed, clientSeed string, nonce uint64, cursor uint64, count int) []float64 {
	s := NewStream(serverSeed, clientSeed, nonce, cursor)
	floats := make([]float64, count)

	for i := 0; i < count; i++ {
		floats[i] = s.NextFloat()
	}

	return floats
}
