package meta

import (
	"encoding/binary"
	"fmt"

	"github.com/mewkiz/flac/internal/bitio"
)

// PictureType identifies the role of a Picture block, per the ID3v2 APIC
// frame's type enumeration; there may be at most one each of
// PictureFileIcon and PictureOtherFileIcon in a stream.
type PictureType uint32

// Picture types relevant to legality checks; the format defines 21 in
// total (0-20), the rest (Cover, Artist, ...) are accepted without a named
// constant.
const (
	PictureOther         PictureType = 0
	PictureFileIcon      PictureType = 1
	PictureOtherFileIcon PictureType = 2
)

// Picture embeds cover art or other images associated with the stream.
type Picture struct {
	Type       PictureType
	MIME       string
	Desc       string
	Width      uint32
	Height     uint32
	ColorDepth uint32
	ColorCount uint32
	Data       []byte
}

func decodePicture(r *bitio.Reader) (*Picture, error) {
	pic := new(Picture)
	v, err := r.ReadRawUint(32)
	if err != nil {
		return nil, err
	}
	pic.Type = PictureType(v)
	if pic.Type > 20 {
		return nil, fmt.Errorf("meta.decodePicture: reserved picture type %d", pic.Type)
	}

	mime, err := readLengthPrefixedASCII(r)
	if err != nil {
		return nil, err
	}
	pic.MIME = mime

	desc, err := readLengthPrefixedUTF8(r)
	if err != nil {
		return nil, err
	}
	pic.Desc = desc

	for _, dst := range []*uint32{&pic.Width, &pic.Height, &pic.ColorDepth, &pic.ColorCount} {
		v, err := r.ReadRawUint(32)
		if err != nil {
			return nil, err
		}
		*dst = uint32(v)
	}

	dataLen, err := r.ReadRawUint(32)
	if err != nil {
		return nil, err
	}
	pic.Data = make([]byte, dataLen)
	if err := r.ReadByteBlockAlignedNoCRC(pic.Data); err != nil {
		return nil, err
	}
	return pic, nil
}

func readLengthPrefixedASCII(r *bitio.Reader) (string, error) {
	n, err := r.ReadRawUint(32)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := r.ReadByteBlockAlignedNoCRC(buf); err != nil {
		return "", err
	}
	for _, b := range buf {
		if b < 0x20 || b > 0x7E {
			return "", fmt.Errorf("meta.readLengthPrefixedASCII: invalid character 0x%02X", b)
		}
	}
	return string(buf), nil
}

func readLengthPrefixedUTF8(r *bitio.Reader) (string, error) {
	n, err := r.ReadRawUint(32)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := r.ReadByteBlockAlignedNoCRC(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func encodePicture(w *bitio.Writer, pic *Picture) error {
	if err := w.WriteRawUint(uint64(pic.Type), 32); err != nil {
		return err
	}
	if err := writeLengthPrefixed(w, pic.MIME); err != nil {
		return err
	}
	if err := writeLengthPrefixed(w, pic.Desc); err != nil {
		return err
	}
	for _, v := range []uint32{pic.Width, pic.Height, pic.ColorDepth, pic.ColorCount} {
		if err := w.WriteRawUint(uint64(v), 32); err != nil {
			return err
		}
	}
	if err := w.WriteRawUint(uint64(len(pic.Data)), 32); err != nil {
		return err
	}
	return w.WriteByteBlock(pic.Data)
}

func writeLengthPrefixed(w *bitio.Writer, s string) error {
	if err := w.WriteRawUint(uint64(len(s)), 32); err != nil {
		return err
	}
	return w.WriteByteBlock([]byte(s))
}

func pictureLength(pic *Picture) int {
	return 4 + 4 + len(pic.MIME) + 4 + len(pic.Desc) + 4*4 + 4 + len(pic.Data)
}

// IsPNG32x32 reports whether Data looks like a 32x32 PNG image, the
// legality requirement for Type == PictureFileIcon. It inspects only the
// PNG signature and the IHDR chunk, not the full image.
func (pic *Picture) IsPNG32x32() bool {
	const sig = "\x89PNG\r\n\x1a\n"
	if len(pic.Data) < len(sig)+8+13 {
		return false
	}
	if string(pic.Data[:len(sig)]) != sig {
		return false
	}
	ihdr := pic.Data[len(sig):]
	// length(4) + "IHDR"(4) + width(4) + height(4) ...
	if string(ihdr[4:8]) != "IHDR" {
		return false
	}
	width := binary.BigEndian.Uint32(ihdr[8:12])
	height := binary.BigEndian.Uint32(ihdr[12:16])
	return width == 32 && height == 32
}
