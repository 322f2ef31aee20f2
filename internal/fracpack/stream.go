package fracpack

import (
	"encoding/binary"
	"math"
)

// Writer is an append-only output buffer with backpatching.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

func (w *Writer) Append(p []byte) {
	w.buf = append(w.buf, p...)
}

func (w *Writer) PutU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutU16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) PutU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) Rewrite16(pos int, v uint16) {
	binary.LittleEndian.PutUint16(w.buf[pos:], v)
}

func (w *Writer) Rewrite32(pos int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[pos:], v)
}

// PatchOffset points the slot at fixedPos to the current end of the buffer.
func (w *Writer) PatchOffset(fixedPos int) error {
	offset := len(w.buf) - fixedPos
	if offset < 0 || offset > math.MaxUint32 {
		return ErrSizeOverflow
	}
	w.Rewrite32(fixedPos, uint32(offset))
	return nil
}

// PatchSize stores the number of bytes written since start into the u32 slot
// immediately preceding start.
func (w *Writer) PatchSize(start int) error {
	size := len(w.buf) - start
	if size < 0 || size > math.MaxUint32 {
		return ErrSizeOverflow
	}
	w.Rewrite32(start-4, uint32(size))
	return nil
}

// Input is a bounds-checked view over an encoded buffer.
//
// Positions are passed by pointer and advance as values are read. KnownEnd
// is cleared after skipping unknown extension data; until the next heap
// entry is located the heap cursor may only move forward. HasUnknown is set
// whenever data the decoder does not understand was skipped.
type Input struct {
	Src        []byte
	End        uint32
	KnownEnd   bool
	HasUnknown bool
}

func NewInput(src []byte) (*Input, error) {
	if uint64(len(src)) > math.MaxUint32 {
		return nil, ErrBadSize
	}
	return &Input{Src: src, End: uint32(len(src)), KnownEnd: true}, nil
}

func (in *Input) Bytes(pos *uint32, n uint32) ([]byte, error) {
	end, ok := add32(*pos, n)
	if !ok || end > in.End {
		return nil, ErrReadPastEnd
	}
	b := in.Src[*pos:end]
	*pos = end
	return b, nil
}

func (in *Input) U8(pos *uint32) (uint8, error) {
	b, err := in.Bytes(pos, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (in *Input) U16(pos *uint32) (uint16, error) {
	b, err := in.Bytes(pos, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (in *Input) U32(pos *uint32) (uint32, error) {
	b, err := in.Bytes(pos, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (in *Input) U64(pos *uint32) (uint64, error) {
	b, err := in.Bytes(pos, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Uint reads a little-endian unsigned integer of size bytes (at most 8).
func (in *Input) Uint(pos *uint32, size uint32) (uint64, error) {
	if size > 8 {
		return 0, ErrBadScalar
	}
	b, err := in.Bytes(pos, size)
	if err != nil {
		return 0, err
	}
	var tmp [8]byte
	copy(tmp[:], b)
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

// CheckHeap validates that a heap entry referenced at target begins at the
// heap cursor. After unknown data was skipped the cursor jumps forward to
// target instead.
func (in *Input) CheckHeap(target uint32, heapPos *uint32) error {
	if in.KnownEnd {
		if target != *heapPos {
			return ErrBadOffset
		}
		return nil
	}
	if target < *heapPos || target > in.End {
		return ErrBadOffset
	}
	*heapPos = target
	in.KnownEnd = true
	return nil
}

// Pointer reads a 4-byte offset slot at fixedPos. It reports empty for
// offset 0, none for offset 1, and otherwise the absolute target position.
func (in *Input) Pointer(fixedPos *uint32) (target uint32, offset uint32, err error) {
	start := *fixedPos
	offset, err = in.U32(fixedPos)
	if err != nil {
		return 0, 0, err
	}
	if offset <= 1 {
		return 0, offset, nil
	}
	target, ok := add32(start, offset)
	if !ok {
		return 0, offset, ErrBadOffset
	}
	return target, offset, nil
}

// Frame decodes a length-delimited sub-buffer of size bytes at *pos. Bytes
// left unconsumed inside the frame are recorded as unknown.
func (in *Input) Frame(pos *uint32, size uint32, fn func(pos *uint32) error) error {
	end, ok := add32(*pos, size)
	if !ok || end > in.End {
		return ErrReadPastEnd
	}
	saved := in.End
	in.End = end
	err := fn(pos)
	in.End = saved
	if err != nil {
		return err
	}
	if *pos != end {
		in.HasUnknown = true
		*pos = end
	}
	in.KnownEnd = true
	return nil
}

// Extensions inspects fixed bytes past the last known member of an extensible
// record. Each trailing slot must be a 4-byte pointer; their heap data is
// skipped.
func (in *Input) Extensions(fixedPos, fixedEnd uint32, heapPos uint32) error {
	if fixedPos >= fixedEnd {
		return nil
	}
	if (fixedEnd-fixedPos)%4 != 0 {
		return ErrBadSize
	}
	in.HasUnknown = true
	last := heapPos
	for p := fixedPos; p < fixedEnd; {
		target, offset, err := in.Pointer(&p)
		if err != nil {
			return err
		}
		if offset <= 1 {
			continue
		}
		if target < last || target > in.End {
			return ErrBadOffset
		}
		last = target
		in.KnownEnd = false
	}
	return nil
}

// Finish reports ErrExtraData when bytes remain after a top-level value.
func (in *Input) Finish(pos uint32) error {
	if in.KnownEnd && pos != in.End {
		return ErrExtraData
	}
	return nil
}
