package meta

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/mewkiz/flac/internal/bitio"
)

func roundTrip(t *testing.T, block *Block) *Block {
	t.Helper()
	w := bitio.NewWriter()
	if err := Encode(w, block); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf, _ := w.Buffer()
	r := bitio.NewReader(bytes.NewReader(buf))
	got, err := Decode(r)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestStreamInfoRoundTrip(t *testing.T) {
	si := &StreamInfo{
		MinBlockSize: 4096, MaxBlockSize: 4096,
		MinFrameSize: 100, MaxFrameSize: 200,
		SampleRate: 44100, ChannelCount: 2, BitsPerSample: 16,
		SampleCount: 123456,
		MD5sum:      [16]byte{1, 2, 3, 4},
	}
	block := &Block{Header: BlockHeader{IsLast: true, Type: TypeStreamInfo}, Body: si}
	got := roundTrip(t, block)
	if !reflect.DeepEqual(got.Body, si) {
		t.Errorf("StreamInfo round trip mismatch: got %+v, want %+v", got.Body, si)
	}
	if got.Header.Length != streamInfoLength {
		t.Errorf("computed header length = %d, want %d", got.Header.Length, streamInfoLength)
	}
}

func TestPaddingRoundTrip(t *testing.T) {
	block := &Block{Header: BlockHeader{Type: TypePadding}, Body: &Padding{Length: 17}}
	got := roundTrip(t, block)
	if got.Body.(*Padding).Length != 17 {
		t.Errorf("Padding.Length = %d, want 17", got.Body.(*Padding).Length)
	}
}

func TestApplicationRoundTrip(t *testing.T) {
	app := &Application{ID: [4]byte{'r', 'i', 'f', 'f'}, Data: []byte("hello")}
	block := &Block{Header: BlockHeader{Type: TypeApplication}, Body: app}
	got := roundTrip(t, block)
	if !reflect.DeepEqual(got.Body, app) {
		t.Errorf("Application round trip mismatch: got %+v, want %+v", got.Body, app)
	}
}

func TestSeekTableSortAndLegal(t *testing.T) {
	st := &SeekTable{Points: []SeekPoint{
		{SampleNum: 100, Offset: 10},
		{SampleNum: PlaceholderPoint},
		{SampleNum: 10, Offset: 1},
		{SampleNum: 50, Offset: 5},
	}}
	st.Sort()
	want := []uint64{10, 50, 100, PlaceholderPoint}
	for i, w := range want {
		if st.Points[i].SampleNum != w {
			t.Fatalf("Points[%d].SampleNum = %d, want %d", i, st.Points[i].SampleNum, w)
		}
	}
	if err := st.Legal(); err != nil {
		t.Errorf("Legal() after Sort = %v, want nil", err)
	}
	// Sort must be idempotent.
	before := append([]SeekPoint(nil), st.Points...)
	st.Sort()
	if !reflect.DeepEqual(before, st.Points) {
		t.Errorf("Sort is not idempotent")
	}

	block := &Block{Header: BlockHeader{Type: TypeSeekTable}, Body: st}
	got := roundTrip(t, block)
	if !reflect.DeepEqual(got.Body, st) {
		t.Errorf("SeekTable round trip mismatch: got %+v, want %+v", got.Body, st)
	}
}

func TestSeekTableResizeInsertDelete(t *testing.T) {
	st := &SeekTable{}
	st.Resize(3)
	if len(st.Points) != 3 {
		t.Fatalf("Resize(3): len = %d", len(st.Points))
	}
	st.InsertPoint(1, SeekPoint{SampleNum: 42})
	if st.Points[1].SampleNum != 42 || len(st.Points) != 4 {
		t.Fatalf("InsertPoint: %+v", st.Points)
	}
	st.DeletePoint(1)
	if len(st.Points) != 3 {
		t.Fatalf("DeletePoint: len = %d", len(st.Points))
	}
}

func TestVorbisCommentAcceptance(t *testing.T) {
	tests := []struct {
		vector string
		ok     bool
	}{
		{"TITLE=Hello", true},
		{"title with spaces=x", false},
		{"KEY=", true},
	}
	for _, tt := range tests {
		_, err := parseVorbisEntry(tt.vector)
		if (err == nil) != tt.ok {
			t.Errorf("parseVorbisEntry(%q): err = %v, want ok=%v", tt.vector, err, tt.ok)
		}
	}
	if err := parseVorbisEntry_invalidUTF8(); err == nil {
		t.Errorf("expected invalid UTF-8 value to be rejected")
	}
}

func parseVorbisEntry_invalidUTF8() error {
	_, err := parseVorbisEntry("KEY=" + string([]byte{0xff, 0xfe}))
	return err
}

func TestVorbisCommentRoundTrip(t *testing.T) {
	vc := &VorbisComment{
		Vendor: "reference libFLAC 1.4.3",
		Entries: []VorbisEntry{
			{Name: "ARTIST", Value: "Test"},
			{Name: "TITLE", Value: "Song"},
		},
	}
	block := &Block{Header: BlockHeader{Type: TypeVorbisComment}, Body: vc}
	got := roundTrip(t, block)
	if !reflect.DeepEqual(got.Body, vc) {
		t.Errorf("VorbisComment round trip mismatch: got %+v, want %+v", got.Body, vc)
	}
}

func TestVorbisCommentSetGetDelete(t *testing.T) {
	vc := &VorbisComment{Vendor: "x"}
	if err := vc.Set("TITLE", "A"); err != nil {
		t.Fatal(err)
	}
	if v, ok := vc.Get("TITLE"); !ok || v != "A" {
		t.Fatalf("Get(TITLE) = %q, %v", v, ok)
	}
	if err := vc.Set("TITLE", "B"); err != nil {
		t.Fatal(err)
	}
	if len(vc.Entries) != 1 {
		t.Fatalf("Set should replace, not append: %+v", vc.Entries)
	}
	vc.Delete("TITLE")
	if _, ok := vc.Get("TITLE"); ok {
		t.Fatalf("Delete did not remove entry")
	}
}

func TestCueSheetRoundTripAndLegal(t *testing.T) {
	cs := &CueSheet{
		MCN:               "1234567890123",
		LeadInSampleCount: 2 * 44100,
		IsCompactDisc:     true,
		Tracks: []CueSheetTrack{
			{
				Offset: 0, TrackNum: 1, IsAudio: true,
				TrackIndexes: []CueSheetTrackIndex{{Offset: 0, IndexPointNum: 1}},
			},
			{Offset: 588 * 1000, TrackNum: 170},
		},
	}
	if err := cs.Legal(); err != nil {
		t.Fatalf("Legal: %v", err)
	}
	block := &Block{Header: BlockHeader{Type: TypeCueSheet}, Body: cs}
	got := roundTrip(t, block)
	if !reflect.DeepEqual(got.Body, cs) {
		t.Errorf("CueSheet round trip mismatch:\ngot  %+v\nwant %+v", got.Body, cs)
	}
}

func TestPictureRoundTrip(t *testing.T) {
	pic := &Picture{
		Type: PictureOther, MIME: "image/png", Desc: "cover",
		Width: 10, Height: 10, ColorDepth: 24, ColorCount: 0,
		Data: []byte{1, 2, 3, 4},
	}
	block := &Block{Header: BlockHeader{Type: TypePicture}, Body: pic}
	got := roundTrip(t, block)
	if !reflect.DeepEqual(got.Body, pic) {
		t.Errorf("Picture round trip mismatch: got %+v, want %+v", got.Body, pic)
	}
}

func TestChainInsertDeleteSetBlock(t *testing.T) {
	si := &Block{Header: BlockHeader{Type: TypeStreamInfo}, Body: &StreamInfo{ChannelCount: 2, BitsPerSample: 16, SampleRate: 44100}}
	c := &Chain{Blocks: []*Block{si}}

	pad := &Block{Header: BlockHeader{Type: TypePadding}, Body: &Padding{Length: 100}}
	if err := c.InsertBlock(1, pad); err != nil {
		t.Fatal(err)
	}
	if len(c.Blocks) != 2 {
		t.Fatalf("len(Blocks) = %d, want 2", len(c.Blocks))
	}

	vc := c.VorbisComment("test-vendor")
	vc.Set("TITLE", "Hello")
	if len(c.Blocks) != 3 {
		t.Fatalf("VorbisComment() should append a block: len = %d", len(c.Blocks))
	}

	if err := c.DeleteBlock(1); err != nil {
		t.Fatal(err)
	}
	if len(c.Blocks) != 2 {
		t.Fatalf("after DeleteBlock: len = %d, want 2", len(c.Blocks))
	}

	if err := c.DeleteBlock(0); err == nil {
		t.Error("DeleteBlock(0) should refuse to delete STREAMINFO")
	}
}

func TestChainWriteRoundTrip(t *testing.T) {
	si := &StreamInfo{MinBlockSize: 4096, MaxBlockSize: 4096, SampleRate: 44100, ChannelCount: 2, BitsPerSample: 16}
	c := &Chain{Blocks: []*Block{
		{Header: BlockHeader{Type: TypeStreamInfo}, Body: si},
		{Header: BlockHeader{Type: TypePadding}, Body: &Padding{Length: 10}},
	}}
	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ReadChain(&buf)
	if err != nil {
		t.Fatalf("ReadChain: %v", err)
	}
	if len(got.Blocks) != 2 {
		t.Fatalf("len(Blocks) = %d, want 2", len(got.Blocks))
	}
	if !got.Blocks[1].Header.IsLast {
		t.Errorf("final block should have IsLast set")
	}
}
