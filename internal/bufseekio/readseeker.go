// Package bufseekio provides a buffered io.ReadSeeker tuned for the FLAC
// decoder's access pattern: long sequential byte-at-a-time runs (the bit
// reader pulls single bytes) punctuated by the jumps of the proportional
// seek search. Seeks that land inside the current buffer are satisfied
// without touching the underlying source, which is what keeps repeated
// "probe a frame near here" iterations cheap on an os.File.
package bufseekio

import (
	"errors"
	"io"
)

// defaultBufferSize comfortably covers a typical compressed FLAC frame,
// so one probe of the seek search usually costs a single underlying read.
const defaultBufferSize = 8192

const minBufferSize = 64

// ReadSeeker wraps an io.ReadSeeker with a read buffer and
// buffer-aware Seek.
type ReadSeeker struct {
	src io.ReadSeeker
	buf []byte
	off int64 // absolute offset of buf[0] in the underlying source.
	r   int   // next unread index within buf[:w].
	w   int   // number of valid bytes in buf.
	err error // deferred error from the last fill.
}

// NewReadSeeker returns rs wrapped in a ReadSeeker with the default
// buffer size. If rs is already a *ReadSeeker it is returned as is.
func NewReadSeeker(rs io.ReadSeeker) *ReadSeeker {
	if b, ok := rs.(*ReadSeeker); ok {
		return b
	}
	return NewReadSeekerSize(rs, defaultBufferSize)
}

// NewReadSeekerSize is NewReadSeeker with an explicit buffer size,
// clamped to a small minimum. An existing *ReadSeeker with a buffer at
// least that large is returned unchanged.
func NewReadSeekerSize(rs io.ReadSeeker, size int) *ReadSeeker {
	if b, ok := rs.(*ReadSeeker); ok && len(b.buf) >= size {
		return b
	}
	if size < minBufferSize {
		size = minBufferSize
	}
	return &ReadSeeker{src: rs, buf: make([]byte, size)}
}

var errNegativeRead = errors.New("bufseekio: source returned negative read count")

// takeErr returns and clears the deferred fill error.
func (b *ReadSeeker) takeErr() error {
	err := b.err
	b.err = nil
	return err
}

// Read serves bytes from the buffer, refilling it with at most one read
// of the underlying source when empty. Reads larger than the buffer
// bypass it entirely.
func (b *ReadSeeker) Read(p []byte) (int, error) {
	if len(p) == 0 {
		if b.r < b.w {
			return 0, nil
		}
		return 0, b.takeErr()
	}
	if b.r == b.w {
		if b.err != nil {
			return 0, b.takeErr()
		}
		if len(p) >= len(b.buf) {
			n, err := b.src.Read(p)
			if n < 0 {
				panic(errNegativeRead)
			}
			b.off += int64(b.r) + int64(n)
			b.r, b.w = 0, 0
			return n, err
		}
		b.off += int64(b.r)
		b.r, b.w = 0, 0
		n, err := b.src.Read(b.buf)
		if n < 0 {
			panic(errNegativeRead)
		}
		b.err = err
		if n == 0 {
			return 0, b.takeErr()
		}
		b.w = n
	}
	n := copy(p, b.buf[b.r:b.w])
	b.r += n
	return n, nil
}

// Position returns the absolute offset of the next byte Read would
// return.
func (b *ReadSeeker) Position() int64 {
	return b.off + int64(b.r)
}

// Seek repositions the reader. A target inside the buffered window moves
// the read cursor without touching the underlying source; anything else
// (including every io.SeekEnd seek, since the stream length is unknown
// here) discards the buffer and seeks the source directly.
func (b *ReadSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekCurrent:
		if offset == 0 {
			return b.Position(), nil
		}
		offset += b.Position()
	case io.SeekEnd:
		return b.seekSource(offset, io.SeekEnd)
	}
	if offset >= b.off && offset < b.off+int64(b.w) {
		b.r = int(offset - b.off)
		return offset, nil
	}
	return b.seekSource(offset, io.SeekStart)
}

func (b *ReadSeeker) seekSource(offset int64, whence int) (int64, error) {
	b.r, b.w = 0, 0
	b.err = nil
	pos, err := b.src.Seek(offset, whence)
	b.off = pos
	return pos, err
}
