package fracpack

import (
	"encoding/binary"
	"math"
)

func add32(a, b uint32) (uint32, bool) {
	s := a + b
	return s, s >= a
}

func mul32(a, b uint32) (uint32, bool) {
	p := uint64(a) * uint64(b)
	return uint32(p), p <= math.MaxUint32
}

// PutUint appends the low size bytes of v in little-endian order.
func PutUint(w *Writer, v uint64, size uint32) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.Append(tmp[:size])
}

// CheckUint rejects values whose bits above the declared width are set.
func CheckUint(v uint64, bits uint32) error {
	if bits >= 64 {
		return nil
	}
	if v>>bits != 0 {
		return ErrBadScalar
	}
	return nil
}

// SignExtend interprets the low bits of raw as a two's complement integer and
// rejects encodings whose unused high bits are not a sign extension.
func SignExtend(raw uint64, bits, size uint32) (int64, error) {
	if bits == 0 || bits > 64 {
		return 0, ErrBadScalar
	}
	shift := 64 - bits
	v := int64(raw<<shift) >> shift
	stored := size * 8
	if stored < 64 {
		mask := uint64(1)<<stored - 1
		if uint64(v)&mask != raw {
			return 0, ErrBadScalar
		}
	} else if uint64(v) != raw {
		return 0, ErrBadScalar
	}
	return v, nil
}

// IntSize is the number of bytes used for an integer of the given width.
func IntSize(bits uint32) uint32 {
	return (bits + 7) / 8
}
