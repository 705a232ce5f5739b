package engine

import (
	"math"
	"testing"
)

func TestFloats(t *testing.T) {
	tests := []struct {
		name       string
		serverSeed string
		clientSeed string
		nonce      uint64
		cursor     uint64
		count      int
	}{
		{
			name:       "single float",
			serverSeed: "test_server_seed",
			clientSeed: "test_client_seed",
			nonce:      1,
			count:      1,
		},
		{
			name:       "multiple floats across a round",
			serverSeed: "test_server_seed",
			clientSeed: "test_client_seed",
			nonce:      1,
			count:      12,
		},
		{
			name:       "cursor boundary",
			serverSeed: "test_server_seed",
			clientSeed: "test_client_seed",
			nonce:      1,
			cursor:     31,
			count:      2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floats := Floats(tt.serverSeed, tt.clientSeed, tt.nonce, tt.cursor, tt.count)
			if len(floats) != tt.count {
				t.Errorf("Floats() returned %d floats, want %d", len(floats), tt.count)
			}
			for i, f := range floats {
				if f < 0 || f >= 1 {
					t.Errorf("Float %d is out of range [0, 1): %f", i, f)
				}
			}

			again := Floats(tt.serverSeed, tt.clientSeed, tt.nonce, tt.cursor, tt.count)
			for i := range floats {
				if floats[i] != again[i] {
					t.Errorf("Float %d differs between runs: %f != %f", i, floats[i], again[i])
				}
			}
		})
	}
}

func TestStreamKnownVector(t *testing.T) {
	// HMAC-SHA256("test_server_seed", "test_client_seed:1:<round>")
	s := NewStream("test_server_seed", "test_client_seed", 1, 0)
	want := []byte{0xf7, 0x93, 0x55, 0xe7}
	for i, w := range want {
		if got := s.Next(); got != w {
			t.Fatalf("Byte %d: expected %#x, got %#x", i, w, got)
		}
	}

	s = NewStream("test_server_seed", "test_client_seed", 1, 32)
	want = []byte{0x9c, 0xdc, 0x3f, 0xf6}
	for i, w := range want {
		if got := s.Next(); got != w {
			t.Fatalf("Round 1 byte %d: expected %#x, got %#x", i, w, got)
		}
	}

	f := Floats("test_server_seed", "test_client_seed", 1, 0, 1)[0]
	if math.Abs(f-0.9670919121708721) > 1e-12 {
		t.Errorf("Expected first float 0.9670919121708721, got %v", f)
	}
}

func TestBytesToFloat(t *testing.T) {
	tests := []struct {
		name     string
		bytes    [4]byte
		expected float64
	}{
		{
			name:     "all zeros",
			bytes:    [4]byte{0, 0, 0, 0},
			expected: 0.0,
		},
		{
			name:     "all max values",
			bytes:    [4]byte{255, 255, 255, 255},
			expected: 255.0/256.0 + 255.0/(256.0*256.0) + 255.0/(256.0*256.0*256.0) + 255.0/(256.0*256.0*256.0*256.0),
		},
		{
			name:     "first byte only",
			bytes:    [4]byte{1, 0, 0, 0},
			expected: 1.0 / 256.0,
		},
		{
			name:     "last byte only",
			bytes:    [4]byte{0, 0, 0, 1},
			expected: 1.0 / (256.0 * 256.0 * 256.0 * 256.0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := bytesToFloat(tt.bytes)
			if result != tt.expected {
				t.Errorf("bytesToFloat() = %.15f, want %.15f", result, tt.expected)
			}
			if result < 0 || result >= 1 {
				t.Errorf("bytesToFloat() out of range [0, 1): %f", result)
			}
		})
	}
}

func TestStreamRounds(t *testing.T) {
	s := NewStream("test_server", "test_client", 1, 0)

	bytes := make([]byte, 40)
	for i := range bytes {
		bytes[i] = s.Next()
	}

	allZero := true
	for _, b := range bytes {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Error("Stream produced all zero bytes")
	}

	// Byte 32 of a stream from cursor 0 is byte 0 of a stream from cursor 32.
	fromRoundOne := NewStream("test_server", "test_client", 1, 32)
	if bytes[32] != fromRoundOne.Next() {
		t.Error("Round rollover does not match a stream started at cursor 32")
	}
}

func TestSeededSource(t *testing.T) {
	seeds := Seeds{Server: "server", Client: "client"}
	src := NewSeededSource(seeds, 5)

	first := src.Next()
	second := src.Next()
	if src.Nonce() != 7 {
		t.Errorf("Expected next nonce 7, got %d", src.Nonce())
	}
	if first != DrawAt(seeds, 5) || second != DrawAt(seeds, 6) {
		t.Error("SeededSource draws do not match DrawAt replay")
	}
	if first == second {
		t.Error("Consecutive nonces produced identical draws")
	}
}

func TestStreamSource(t *testing.T) {
	seeds := Seeds{Server: "server", Client: "client"}
	src := NewStreamSource(seeds, 9)

	want := Floats("server", "client", 9, 0, 10)
	for i, w := range want {
		if got := src.Next(); got != w {
			t.Errorf("Draw %d: expected %v, got %v", i, w, got)
		}
	}
	if want[0] != DrawAt(seeds, 9) {
		t.Error("First stream draw should match DrawAt for the same nonce")
	}
}

func TestSeededSourceUniform(t *testing.T) {
	src := NewSeededSource(Seeds{Server: "uniform", Client: "check"}, 0)

	const n = 20_000
	buckets := make([]int, 10)
	for i := 0; i < n; i++ {
		f := src.Next()
		buckets[int(f*10)]++
	}
	for i, c := range buckets {
		p := float64(c) / n
		if math.Abs(p-0.1) > 0.015 {
			t.Errorf("Bucket %d holds %.4f of draws, want ~0.1", i, p)
		}
	}
}

func TestCryptoSource(t *testing.T) {
	var src CryptoSource
	for i := 0; i < 1000; i++ {
		f := src.Next()
		if f < 0 || f >= 1 {
			t.Fatalf("CryptoSource produced %v", f)
		}
	}
}

func TestHashServerSeed(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashServerSeed("abc"); got != want {
		t.Errorf("HashServerSeed(abc) = %s, want %s", got, want)
	}
	if HashServerSeed("") != "" {
		t.Error("Empty seed should hash to empty string")
	}
}

func BenchmarkSeededSource(b *testing.B) {
	src := NewSeededSource(Seeds{Server: "benchmark_server_seed", Client: "benchmark_client_seed"}, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = src.Next()
	}
}

func BenchmarkFloats(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Floats("benchmark_server_seed", "benchmark_client_seed", uint64(i), 0, 8)
	}
}
