// Package flac provides access to FLAC (Free Lossless Audio Codec)
// streams: a pull-based decoder front end over the decoder package, and a
// convenience constructor for the encoder package.
//
// The basic structure of a FLAC stream is:
//   - The four byte string "fLaC".
//   - The STREAMINFO metadata block.
//   - Zero or more other metadata blocks.
//   - One or more audio frames.
//
// ref: https://www.xiph.org/flac/format.html
package flac

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/mewkiz/flac/decoder"
	"github.com/mewkiz/flac/encoder"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/internal/bufseekio"
	"github.com/mewkiz/flac/meta"
)

// Stream is a FLAC bitstream being decoded: its stream-level parameters,
// its metadata blocks, and a cursor over its audio frames.
type Stream struct {
	// Info holds the stream's STREAMINFO parameters.
	Info *meta.StreamInfo
	// Blocks holds every metadata block of the stream, STREAMINFO included.
	Blocks []*meta.Block

	dec    *decoder.Decoder
	closer io.Closer
}

// New reads the metadata of a FLAC stream from r and returns a Stream
// positioned at the first audio frame. Seek is unavailable unless r also
// implements io.Seeker.
func New(r io.Reader) (*Stream, error) {
	return newStream(r, nil)
}

// NewSeek is like New for sources that support seeking, enabling
// Stream.Seek.
func NewSeek(rs io.ReadSeeker) (*Stream, error) {
	return newStream(rs, nil)
}

// Open opens the FLAC file at path and returns a Stream positioned at the
// first audio frame. The caller is responsible for calling Close.
func Open(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	s, err := newStream(bufseekio.NewReadSeeker(f), f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func newStream(r io.Reader, closer io.Closer) (*Stream, error) {
	dec := decoder.New(r, decoder.Options{})
	if err := dec.ProcessUntilEndOfMetadata(); err != nil {
		return nil, err
	}
	return &Stream{
		Info:   dec.StreamInfo(),
		Blocks: dec.Blocks(),
		dec:    dec,
		closer: closer,
	}, nil
}

// Next returns the next decoded audio frame of the stream. At end of
// stream it returns io.EOF, or decoder.ErrMD5Mismatch if the decoded audio
// does not match the digest STREAMINFO declared.
func (s *Stream) Next() (*frame.Frame, error) {
	return s.dec.Next()
}

// Seek positions the stream so that the next call to Next returns a frame
// whose first sample is exactly sampleNum. The underlying source must
// support seeking.
func (s *Stream) Seek(sampleNum uint64) error {
	return s.dec.SeekAbsolute(sampleNum)
}

// Close releases the file underlying an Open'd stream; it is a no-op for
// streams over caller-owned readers.
func (s *Stream) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// NewEncoder returns an encoder writing a FLAC stream to w; see
// encoder.Options for the full configuration surface. It exists so callers
// encoding and decoding both need only this package.
func NewEncoder(w io.Writer, opts encoder.Options) (*encoder.Encoder, error) {
	return encoder.New(w, opts)
}
