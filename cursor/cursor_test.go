package cursor_test

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/QEStudios/TrackerLoader/cursor"
)

type testHeader struct {
	Magic  [4]byte
	Count  uint16
	Offset uint32
	Flags  uint8
}

func TestSizeOf(t *testing.T) {
	if got := cursor.SizeOf[testHeader](); got != 11 {
		t.Fatalf("expected packed size 11, got %d", got)
	}
}

func TestReadStruct(t *testing.T) {
	data := []byte{'T', 'E', 'S', 'T', 0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 0x01, 0xAA}
	c := cursor.New(data)
	var h testHeader
	if !cursor.ReadStruct(c, binary.LittleEndian, &h) {
		t.Fatalf("ReadStruct failed")
	}
	expected := testHeader{Magic: [4]byte{'T', 'E', 'S', 'T'}, Count: 0x1234, Offset: 0x12345678, Flags: 1}
	if !reflect.DeepEqual(h, expected) {
		t.Fatalf("got %+v, expected %+v", h, expected)
	}
	if c.Position() != 11 {
		t.Fatalf("expected position 11, got %d", c.Position())
	}
}

func TestReadStructShortReadZeroFills(t *testing.T) {
	data := []byte{'T', 'E', 'S', 'T', 0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 0x01}
	for n := 0; n < len(data); n++ {
		c := cursor.New(data[:n])
		h := testHeader{Count: 99, Flags: 7}
		if cursor.ReadStruct(c, binary.LittleEndian, &h) {
			t.Fatalf("ReadStruct succeeded on %d bytes", n)
		}
		if h != (testHeader{}) {
			t.Fatalf("header not zero-filled after short read of %d bytes: %+v", n, h)
		}
		if c.Position() != 0 {
			t.Fatalf("cursor moved on failed read (%d bytes)", n)
		}
	}
}

func TestReadStructPartial(t *testing.T) {
	data := []byte{'T', 'E', 'S', 'T', 0x02, 0x00, 0xFF}
	c := cursor.New(data)
	var h testHeader
	if !cursor.ReadStructPartial(c, binary.LittleEndian, &h, 6) {
		t.Fatalf("ReadStructPartial failed")
	}
	if h.Count != 2 || h.Offset != 0 || h.Flags != 0 {
		t.Fatalf("unexpected partial result %+v", h)
	}
	if c.Position() != 6 {
		t.Fatalf("expected position 6, got %d", c.Position())
	}
	if cursor.ReadStructPartial(c, binary.LittleEndian, &h, 6) {
		t.Fatalf("expected failure when partial size is not available")
	}
	if h != (testHeader{}) {
		t.Fatalf("expected zero-filled header, got %+v", h)
	}
}

func TestReadChunkBoundary(t *testing.T) {
	c := cursor.New([]byte{1, 2, 3, 4, 5, 6})
	c.Skip(1)
	chunk := c.ReadChunk(3)
	if chunk.Len() != 3 || c.Position() != 4 {
		t.Fatalf("unexpected chunk len %d / parent position %d", chunk.Len(), c.Position())
	}
	if chunk.AbsolutePosition() != 1 {
		t.Fatalf("expected chunk to start at absolute offset 1, got %d", chunk.AbsolutePosition())
	}
	if chunk.CanRead(4) {
		t.Fatalf("chunk must not read past its own boundary")
	}
	b, ok := chunk.ReadBytes(3)
	if !ok || !reflect.DeepEqual(b, []byte{2, 3, 4}) {
		t.Fatalf("unexpected chunk contents %v", b)
	}
	if chunk.ReadUint8() != 0 {
		t.Fatalf("read past chunk end returned data")
	}

	peek := c.ChunkAt(5, 10)
	if peek.Len() != 1 || c.Position() != 4 {
		t.Fatalf("ChunkAt should clamp and not move the parent")
	}
	if empty := c.ChunkAt(100, 2); empty.Len() != 0 {
		t.Fatalf("expected empty chunk for out of range position")
	}
}

func TestSeekAndSkip(t *testing.T) {
	c := cursor.New(make([]byte, 10))
	if !c.Seek(10) || c.Position() != 10 {
		t.Fatalf("seek to end should succeed")
	}
	if c.Seek(11) || c.Position() != 10 {
		t.Fatalf("seek past end must fail without moving")
	}
	c.Rewind()
	if c.Skip(11) || c.Position() != 0 {
		t.Fatalf("skip past end must fail without moving")
	}
	c.Skip(4)
	if c.SkipBack(5) || !c.SkipBack(4) || c.Position() != 0 {
		t.Fatalf("unexpected SkipBack behaviour")
	}
}

func TestIntegers(t *testing.T) {
	c := cursor.New([]byte{0x01, 0x02, 0x03, 0x01, 0x02, 0x03, 0xFF, 0xFE})
	if v := c.ReadUint24LE(); v != 0x030201 {
		t.Errorf("ReadUint24LE = %#x", v)
	}
	if v := c.ReadUint24BE(); v != 0x010203 {
		t.Errorf("ReadUint24BE = %#x", v)
	}
	if v := c.ReadInt16BE(); v != -2 {
		t.Errorf("ReadInt16BE = %d", v)
	}
	if v := c.ReadUint32LE(); v != 0 || c.Position() != 8 {
		t.Errorf("read at EOF should return 0 without moving")
	}
}

func TestReadVectorRejectsHugeCounts(t *testing.T) {
	c := cursor.New([]byte{1, 0, 2, 0})
	if _, ok := cursor.ReadVector[uint16](c, binary.LittleEndian, 1<<40); ok {
		t.Fatalf("expected huge vector read to fail")
	}
	v, ok := cursor.ReadVector[uint16](c, binary.LittleEndian, 2)
	if !ok || !reflect.DeepEqual(v, []uint16{1, 2}) {
		t.Fatalf("unexpected vector %v", v)
	}
}

func TestStrings(t *testing.T) {
	c := cursor.New([]byte("AB\x00CD  \x00 x\x03abc"))
	s, _ := c.ReadRawString(5, cursor.NullTerminated)
	if string(s) != "AB" {
		t.Errorf("NullTerminated = %q", s)
	}
	s, _ = c.ReadRawString(5, cursor.SpacePadded)
	if string(s) != "  \x00 x" {
		t.Errorf("SpacePadded = %q", s)
	}
	s, ok := c.ReadSizedString8()
	if !ok || string(s) != "abc" {
		t.Errorf("ReadSizedString8 = %q", s)
	}
	if !c.EOF() {
		t.Errorf("expected EOF")
	}
}
