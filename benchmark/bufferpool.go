package benchmark

import (
	"math/rand"
	"unsafe"
)

// Alignment is the multiple that buffer addresses, transfer lengths and
// file offsets must honour when the page cache is bypassed. 4096 covers
// both 512e and 4Kn devices.
const Alignment = 4096

// BufferFactory produces the single transfer buffer used for a run and
// refills it between write cycles.
type BufferFactory struct {
	rng *rand.Rand
}

// NewBufferFactory returns a factory whose random contents derive from seed.
func NewBufferFactory(seed int64) *BufferFactory {
	return &BufferFactory{rng: rand.New(rand.NewSource(seed))}
}

// Allocate returns a buffer of size bytes starting on an align boundary.
func (f *BufferFactory) Allocate(size int64, align int) []byte {
	if align <= 1 {
		return make([]byte, size)
	}
	raw := make([]byte, int(size)+align)
	off := alignOffset(raw, align)
	return raw[off : off+int(size) : off+int(size)]
}

// Refill overwrites buf with pseudorandom bytes or the fixed pattern.
func (f *BufferFactory) Refill(buf []byte, random bool) {
	if random {
		f.rng.Read(buf)
		return
	}
	FillPattern(buf)
}

// FillPattern writes the fixed repeating pattern used when random buffers
// are disabled: byte i holds i mod 256.
func FillPattern(buf []byte) {
	for i := range buf {
		buf[i] = byte(i)
	}
}

func alignOffset(b []byte, align int) int {
	rem := int(uintptr(unsafe.Pointer(&b[0])) & uintptr(align-1))
	if rem == 0 {
		return 0
	}
	return align - rem
}

func isAligned(b []byte, align int) bool {
	if len(b) == 0 || align <= 1 {
		return true
	}
	return alignOffset(b, align) == 0
}
