package meta

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mewkiz/flac/internal/bitio"
)

// VorbisComment is a list of human-readable name/value tags, encoded per
// the Vorbis comment specification without its framing bit. There may be
// at most one VorbisComment block in a stream.
type VorbisComment struct {
	Vendor  string
	Entries []VorbisEntry
}

// VorbisEntry is one "NAME=value" tag.
type VorbisEntry struct {
	Name  string
	Value string
}

func decodeVorbisComment(r *bitio.Reader) (*VorbisComment, error) {
	vc := new(VorbisComment)
	vendorLen, err := r.ReadUint32LittleEndian()
	if err != nil {
		return nil, err
	}
	vendor := make([]byte, vendorLen)
	if err := r.ReadByteBlockAlignedNoCRC(vendor); err != nil {
		return nil, err
	}
	vc.Vendor = string(vendor)

	count, err := r.ReadUint32LittleEndian()
	if err != nil {
		return nil, err
	}
	vc.Entries = make([]VorbisEntry, count)
	for i := range vc.Entries {
		vecLen, err := r.ReadUint32LittleEndian()
		if err != nil {
			return nil, err
		}
		buf := make([]byte, vecLen)
		if err := r.ReadByteBlockAlignedNoCRC(buf); err != nil {
			return nil, err
		}
		entry, err := parseVorbisEntry(string(buf))
		if err != nil {
			return nil, err
		}
		vc.Entries[i] = entry
	}
	return vc, nil
}

func parseVorbisEntry(vector string) (VorbisEntry, error) {
	pos := strings.IndexByte(vector, '=')
	if pos == -1 {
		return VorbisEntry{}, fmt.Errorf("meta.parseVorbisEntry: no '=' in comment vector %q", vector)
	}
	name, value := vector[:pos], vector[pos+1:]
	if err := ValidFieldName(name); err != nil {
		return VorbisEntry{}, err
	}
	if !utf8.ValidString(value) {
		return VorbisEntry{}, fmt.Errorf("meta.parseVorbisEntry: value of %q is not valid UTF-8", name)
	}
	return VorbisEntry{Name: name, Value: value}, nil
}

func encodeVorbisComment(w *bitio.Writer, vc *VorbisComment) error {
	if err := writeVorbisString(w, vc.Vendor); err != nil {
		return err
	}
	if err := w.WriteUint32LittleEndian(uint32(len(vc.Entries))); err != nil {
		return err
	}
	for _, e := range vc.Entries {
		if err := ValidFieldName(e.Name); err != nil {
			return err
		}
		if !utf8.ValidString(e.Value) {
			return fmt.Errorf("meta.encodeVorbisComment: value of %q is not valid UTF-8", e.Name)
		}
		if err := writeVorbisString(w, e.Name+"="+e.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeVorbisString(w *bitio.Writer, s string) error {
	if err := w.WriteUint32LittleEndian(uint32(len(s))); err != nil {
		return err
	}
	return w.WriteByteBlock([]byte(s))
}

func vorbisCommentLength(vc *VorbisComment) int {
	n := 4 + len(vc.Vendor) + 4
	for _, e := range vc.Entries {
		n += 4 + len(e.Name) + 1 + len(e.Value)
	}
	return n
}

// ValidFieldName reports whether name is a legal Vorbis comment field
// name: printable ASCII 0x21-0x7D excluding '=' (a space is not allowed).
func ValidFieldName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("meta.ValidFieldName: empty field name")
	}
	for _, r := range name {
		if r <= 0x20 || r > 0x7D || r == '=' {
			return fmt.Errorf("meta.ValidFieldName: invalid character %q in field name %q", r, name)
		}
	}
	return nil
}

// Get returns the value of the first entry named name (case-sensitive, per
// the format) and whether it was found.
func (vc *VorbisComment) Get(name string) (string, bool) {
	for _, e := range vc.Entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces every existing entry named name with a single entry holding
// value, appending a new entry if none existed.
func (vc *VorbisComment) Set(name, value string) error {
	if err := ValidFieldName(name); err != nil {
		return err
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("meta.VorbisComment.Set: value is not valid UTF-8")
	}
	out := vc.Entries[:0]
	replaced := false
	for _, e := range vc.Entries {
		if e.Name == name {
			if !replaced {
				out = append(out, VorbisEntry{Name: name, Value: value})
				replaced = true
			}
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, VorbisEntry{Name: name, Value: value})
	}
	vc.Entries = out
	return nil
}

// Delete removes every entry named name.
func (vc *VorbisComment) Delete(name string) {
	out := vc.Entries[:0]
	for _, e := range vc.Entries {
		if e.Name != name {
			out = append(out, e)
		}
	}
	vc.Entries = out
}
