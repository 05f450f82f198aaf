package bitio

import (
	"errors"
	"io"

	"github.com/icza/bitio"
)

// ErrInvalidUTF8 is returned by ReadUTF8Uint32/ReadUTF8Uint64 when the byte
// sequence is not a legally formed FLAC "UTF-8" coded integer. Callers
// should treat this the same as a frame/header sync failure: resynchronize
// rather than abort.
var ErrInvalidUTF8 = errors.New("bitio: invalid utf-8 coded number")

// crcSource wraps an io.Reader, folding every byte it serves into both
// running CRC accumulators: CRC-8 verifies the frame header, CRC-16 the
// whole frame. The frame decoder resets each independently at the
// appropriate point (CRC-8 at the start of a header, CRC-16 at the start
// of a frame) so the two windows can differ in extent.
type crcSource struct {
	r     io.Reader
	crc8  uint8
	crc16 uint16
}

func (s *crcSource) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	for _, b := range p[:n] {
		s.crc8 = updateCRC8(s.crc8, b)
		s.crc16 = updateCRC16(s.crc16, b)
	}
	return n, err
}

// ReadByte makes crcSource an io.ByteReader. Without it, icza/bitio wraps
// the source in a bufio.Reader, whose read-ahead would run the CRC
// accumulators past the bits actually consumed and desynchronize every
// CRC window from the frame decoder's reset points.
func (s *crcSource) ReadByte() (byte, error) {
	var buf [1]byte
	for {
		n, err := s.r.Read(buf[:])
		if n == 1 {
			s.crc8 = updateCRC8(s.crc8, buf[0])
			s.crc16 = updateCRC16(s.crc16, buf[0])
			return buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Reader is a growable-source, MSB-first bit reader with built-in CRC-16
// accumulation, unary/Rice/UTF-8 decoding, and unaligned byte-block reads.
// It reads from a refill callback (any io.Reader works: the decoder wires
// in its own read callback wrapped as an io.Reader).
type Reader struct {
	src   *crcSource
	br    *bitio.Reader
	nbits int64 // total bits consumed, used to answer IsConsumedByteAligned
}

// NewReader returns a Reader that pulls bytes from r as needed.
func NewReader(r io.Reader) *Reader {
	src := &crcSource{r: r}
	return &Reader{
		src: src,
		br:  bitio.NewReader(src),
	}
}

// ReadRawUint reads n bits (n <= 64) and returns them as an unsigned value.
func (r *Reader) ReadRawUint(n uint) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	v, err := r.br.ReadBits(uint8(n))
	if err != nil {
		return 0, err
	}
	r.nbits += int64(n)
	return v, nil
}

// ReadRawInt reads n bits and sign-extends the result from an n-bit two's
// complement representation.
func (r *Reader) ReadRawInt(n uint) (int64, error) {
	v, err := r.ReadRawUint(n)
	if err != nil {
		return 0, err
	}
	signBit := uint64(1) << (n - 1)
	if v&signBit != 0 {
		return int64(v) - int64(signBit)*2, nil
	}
	return int64(v), nil
}

// ReadUint32LittleEndian reads a 32-bit little-endian integer (used only for
// Vorbis Comment length fields).
func (r *Reader) ReadUint32LittleEndian() (uint32, error) {
	var buf [4]byte
	if err := r.ReadByteBlockAlignedNoCRC(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// ReadUnary reads a unary-coded integer: the number of leading zero bits
// before the terminating one bit.
func (r *Reader) ReadUnary() (uint32, error) {
	var n uint32
	for {
		bit, err := r.ReadRawUint(1)
		if err != nil {
			return 0, err
		}
		if bit == 1 {
			return n, nil
		}
		n++
	}
}

// ReadRiceSigned reads one Rice-coded signed integer with parameter k.
func (r *Reader) ReadRiceSigned(k uint) (int32, error) {
	high, err := r.ReadUnary()
	if err != nil {
		return 0, err
	}
	var low uint64
	if k > 0 {
		low, err = r.ReadRawUint(k)
		if err != nil {
			return 0, err
		}
	}
	uval := high<<k | uint32(low)
	return int32(uval>>1) ^ -int32(uval&1), nil
}

// ReadRiceSignedBlock reads len(out) Rice-coded signed integers with
// parameter k into out.
func (r *Reader) ReadRiceSignedBlock(out []int32, k uint) error {
	for i := range out {
		v, err := r.ReadRiceSigned(k)
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

// ReadUTF8Uint32 reads a "UTF-8" coded integer known to fit in 31 bits (the
// frame-number form). rawBytesOut, if non-nil, is appended with every byte
// consumed (including on failure), so a caller that hits ErrInvalidUTF8 can
// still account for how far it read.
func (r *Reader) ReadUTF8Uint32(rawBytesOut *[]byte) (uint32, error) {
	x, err := r.readUTF8(rawBytesOut)
	if err != nil {
		return 0, err
	}
	return uint32(x), nil
}

// ReadUTF8Uint64 reads a "UTF-8" coded integer known to fit in 36 bits (the
// sample-number form).
func (r *Reader) ReadUTF8Uint64(rawBytesOut *[]byte) (uint64, error) {
	return r.readUTF8(rawBytesOut)
}

func (r *Reader) readUTF8(rawBytesOut *[]byte) (uint64, error) {
	lead, err := r.ReadRawUint(8)
	if err != nil {
		return 0, err
	}
	if rawBytesOut != nil {
		*rawBytesOut = append(*rawBytesOut, byte(lead))
	}

	var cont int
	var x uint64
	switch {
	case lead&0x80 == 0x00:
		return lead, nil
	case lead&0xE0 == 0xC0:
		cont, x = 1, lead&0x1F
	case lead&0xF0 == 0xE0:
		cont, x = 2, lead&0x0F
	case lead&0xF8 == 0xF0:
		cont, x = 3, lead&0x07
	case lead&0xFC == 0xF8:
		cont, x = 4, lead&0x03
	case lead&0xFE == 0xFC:
		cont, x = 5, lead&0x01
	case lead == 0xFE:
		cont, x = 6, 0
	default:
		return 0, ErrInvalidUTF8
	}

	for i := 0; i < cont; i++ {
		b, err := r.ReadRawUint(8)
		if err != nil {
			return 0, err
		}
		if rawBytesOut != nil {
			*rawBytesOut = append(*rawBytesOut, byte(b))
		}
		if b&0xC0 != 0x80 {
			return 0, ErrInvalidUTF8
		}
		x = x<<6 | (b & 0x3F)
	}
	return x, nil
}

// SkipBits discards n bits without materializing them.
func (r *Reader) SkipBits(n uint) error {
	for n > 56 {
		if _, err := r.ReadRawUint(56); err != nil {
			return err
		}
		n -= 56
	}
	_, err := r.ReadRawUint(n)
	return err
}

// ReadByteBlockAlignedNoCRC reads len(out) raw bytes. The reader must be
// byte aligned; the bytes read are NOT folded into the CRC-16 accumulator
// (used for metadata block bodies, which are not protected by frame CRCs).
func (r *Reader) ReadByteBlockAlignedNoCRC(out []byte) error {
	if !r.IsConsumedByteAligned() {
		return errors.New("bitio.Reader.ReadByteBlockAlignedNoCRC: reader is not byte aligned")
	}
	before := r.src.crc16
	for i := range out {
		v, err := r.ReadRawUint(8)
		if err != nil {
			return err
		}
		out[i] = byte(v)
	}
	r.src.crc16 = before
	return nil
}

// SkipByteBlockAlignedNoCRC discards n raw, byte-aligned bytes without
// folding them into the CRC-16 accumulator.
func (r *Reader) SkipByteBlockAlignedNoCRC(n int) error {
	return r.ReadByteBlockAlignedNoCRC(make([]byte, n))
}

// ResetReadCRC16 zeroes the CRC-16 accumulator, seeding it with seed (used
// to fold in the two sync bytes read before the Reader took over).
func (r *Reader) ResetReadCRC16(seed uint16) {
	r.src.crc16 = seed
}

// GetReadCRC16 returns the CRC-16 accumulated since the last reset.
func (r *Reader) GetReadCRC16() uint16 {
	return r.src.crc16
}

// ResetReadCRC8 zeroes the CRC-8 accumulator, seeding it with seed (used to
// fold in the two sync bytes read before header decoding begins).
func (r *Reader) ResetReadCRC8(seed uint8) {
	r.src.crc8 = seed
}

// GetReadCRC8 returns the CRC-8 accumulated since the last reset.
func (r *Reader) GetReadCRC8() uint8 {
	return r.src.crc8
}

// BitsLeftForByteAlignment returns how many more bits must be consumed to
// reach a byte boundary.
func (r *Reader) BitsLeftForByteAlignment() uint {
	if n := r.nbits % 8; n != 0 {
		return uint(8 - n)
	}
	return 0
}

// IsConsumedByteAligned reports whether the number of bits consumed so far
// is a multiple of 8.
func (r *Reader) IsConsumedByteAligned() bool {
	return r.nbits%8 == 0
}

// BytesRead returns the number of whole bytes consumed so far. Together
// with the stream offset the Reader was created at, it gives the absolute
// position of the next frame boundary once the reader is byte aligned; the
// decoder's sync search and seek logic depend on it.
func (r *Reader) BytesRead() int64 {
	return r.nbits / 8
}
