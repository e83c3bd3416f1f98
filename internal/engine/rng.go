package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
	"strconv"
	"sync"
)

const blockSize = sha256.Size

// ByteGenerator is a replayable Source. Block k of the stream is
// HMAC-SHA256(server, "client:nonce:k") and every draw consumes four bytes,
// so one seed pair replays a whole session draw for draw. It is safe for
// concurrent use.
type ByteGenerator struct {
	mu     sync.Mutex
	mac    hash.Hash
	prefix []byte // "client:nonce:"
	block  uint64
	pos    int
	buf    [blockSize]byte
}

// NewByteGenerator positions a generator at byte offset cursor.
func NewByteGenerator(serverSeed, clientSeed string, nonce uint64, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		mac:    hmac.New(sha256.New, []byte(serverSeed)),
		prefix: []byte(clientSeed + ":" + strconv.FormatUint(nonce, 10) + ":"),
		block:  cursor / blockSize,
		pos:    int(cursor % blockSize),
	}
	bg.fill()
	return bg
}

func (bg *ByteGenerator) fill() {
	bg.mac.Reset()
	bg.mac.Write(bg.prefix)
	bg.mac.Write(strconv.AppendUint(nil, bg.block, 10))
	bg.mac.Sum(bg.buf[:0])
}

func (bg *ByteGenerator) next() byte {
	if bg.pos == blockSize {
		bg.block++
		bg.pos = 0
		bg.fill()
	}
	b := bg.buf[bg.pos]
	bg.pos++
	return b
}

func (bg *ByteGenerator) Float64() float64 {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	var b [4]byte
	for i := range b {
		b[i] = bg.next()
	}
	return bytesToFloat(b)
}

// Cursor reports the byte offset of the next draw.
func (bg *ByteGenerator) Cursor() uint64 {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	return bg.block*blockSize + uint64(bg.pos)
}

// bytesToFloat reads four bytes as base-256 digits after the point:
// b0/256 + b1/256² + b2/256³ + b3/256⁴. Every step is exact in a float64.
func bytesToFloat(b [4]byte) float64 {
	f := 0.0
	for i := len(b) - 1; i >= 0; i-- {
		f = (f + float64(b[i])) / 256
	}
	return f
}

// Stream starts the seed pair's generator for nonce at byte offset cursor.
func (s Seeds) Stream(nonce, cursor uint64) *ByteGenerator {
	return NewByteGenerator(s.Server, s.Client, nonce, cursor)
}
