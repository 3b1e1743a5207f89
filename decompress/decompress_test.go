package decompress_test

import (
	"bytes"
	"math/rand"
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/QEStudios/TrackerLoader/cursor"
	"github.com/QEStudios/TrackerLoader/decompress"
)

// bitWriter packs bit fields least significant bit first.
type bitWriter struct {
	out   []byte
	buf   uint64
	nbits uint
}

func (w *bitWriter) write(v uint32, n uint) {
	w.buf |= uint64(v&(1<<n-1)) << w.nbits
	w.nbits += n
	for w.nbits >= 8 {
		w.out = append(w.out, byte(w.buf))
		w.buf >>= 8
		w.nbits -= 8
	}
}

func (w *bitWriter) bytes() []byte {
	if w.nbits > 0 {
		w.out = append(w.out, byte(w.buf))
		w.buf, w.nbits = 0, 0
	}
	return w.out
}

// encodeLZW compresses data, tracking the decoder's dictionary size to pick code widths.
// With resetAt > 0 the dictionary is reset whenever it holds that many entries.
func encodeLZW(data []byte, resetAt int) []byte {
	var w bitWriter
	type key struct {
		prefix int
		b      byte
	}
	var dict map[key]int
	var encNext, decNext int
	var width uint
	reset := func() {
		dict = make(map[key]int)
		encNext, decNext, width = 258, 257, 9
	}
	reset()
	emit := func(code int, last bool) {
		w.write(uint32(code), width)
		if !last && decNext < 8192 {
			decNext++
			if decNext != 8192 && decNext == 1<<width {
				width++
			}
		}
	}

	prefix := -1
	for i, b := range data {
		if prefix < 0 {
			prefix = int(b)
			continue
		}
		if code, ok := dict[key{prefix, b}]; ok {
			prefix = code
			continue
		}
		emit(prefix, false)
		if encNext < 8192 {
			dict[key{prefix, b}] = encNext
			encNext++
		}
		prefix = int(b)
		if resetAt > 0 && len(dict) >= resetAt && i+1 < len(data) {
			emit(prefix, false)
			w.write(256, width)
			reset()
			prefix = -1
		}
	}
	if prefix >= 0 {
		emit(prefix, true)
	}
	w.write(257, width)
	return w.bytes()
}

func randomish(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	out := make([]byte, n)
	for i := range out {
		// small alphabet so the dictionary actually gets used
		out[i] = byte('a' + r.Intn(6))
	}
	return out
}

func TestLZWRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		resetAt int
	}{
		{"short", []byte("TOBEORNOTTOBEORTOBEORNOT"), 0},
		{"repeated byte", bytes.Repeat([]byte{7}, 1000), 0},
		{"fills dictionary", randomish(60000, 1), 0},
		{"with resets", randomish(20000, 2), 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := encodeLZW(tt.data, tt.resetAt)
			got, err := decompress.LZW(cursor.New(stream), len(tt.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Fatalf("decoded data differs from input (%d bytes)", len(tt.data))
			}
		})
	}
}

func TestLZWTruncated(t *testing.T) {
	data := randomish(5000, 3)
	stream := encodeLZW(data, 0)
	_, err := decompress.LZW(cursor.New(stream[:len(stream)-1]), len(data))
	if !errors.Is(err, decompress.ErrStreamExhausted) {
		t.Fatalf("expected ErrStreamExhausted, got %v", err)
	}
}

func TestLZWEarlyEndZeroFills(t *testing.T) {
	stream := encodeLZW([]byte("abc"), 0)
	got, err := decompress.LZW(cursor.New(stream), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, []byte{'a', 'b', 'c', 0, 0, 0}) {
		t.Errorf("got %v", got)
	}
}

func TestLZWRejectsCodesBeyondDictionary(t *testing.T) {
	var w bitWriter
	w.write('a', 9)
	w.write(400, 9)
	_, err := decompress.LZW(cursor.New(w.bytes()), 10)
	if !errors.Is(err, decompress.ErrCorruptStream) {
		t.Fatalf("expected ErrCorruptStream, got %v", err)
	}
}

func TestLZWSkipsPadding(t *testing.T) {
	stream := encodeLZW([]byte("hello"), 0)
	for len(stream)%4 != 0 {
		stream = append(stream, 0)
	}
	stream = append(stream, 0xAA)
	c := cursor.New(stream)
	if _, err := decompress.LZW(c, 5); err != nil {
		t.Fatal(err)
	}
	if c.ReadUint8() != 0xAA {
		t.Error("expected cursor after padding")
	}
}

// encodeSigmaDelta mirrors the decoder's width adaptation.
func encodeSigmaDelta(samples []byte, maxRun int) []byte {
	var w bitWriter
	w.write(uint32(maxRun), 8)
	w.write(uint32(samples[0]), 8)
	accum := samples[0]
	width, run := uint(8), maxRun
	for _, s := range samples[1:] {
		d := int(int8(s - accum))
		var v uint32
		if d < 0 {
			v = uint32(-d)<<1 | 1
		} else if d == 0 {
			v = 1
		} else {
			v = uint32(d) << 1
		}
		for v >= 1<<width {
			w.write(0, width)
			width++
			run = maxRun
		}
		w.write(v, width)
		accum = s
		if v>>(width-1) != 0 {
			run = maxRun
			continue
		}
		run--
		if run == 0 {
			width = max(width-1, 1)
			run = maxRun
		}
	}
	return w.bytes()
}

func TestSigmaDeltaWideValueKeepsWidth(t *testing.T) {
	// run length 1: a value with the top bit of its field set must not shrink the width
	stream := []byte{1, 0x80, 0x82, 0x81, 0, 0, 0, 0}
	got, err := decompress.SigmaDelta(cursor.New(stream), 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x80, 0xC1, 0x81}; !bytes.Equal(got, want) {
		t.Errorf("got % X, expected % X", got, want)
	}
}

func TestSigmaDeltaRoundTrip(t *testing.T) {
	samples := make([]byte, 3000)
	for i := range samples {
		// slow wave with a few jumps
		samples[i] = byte(128 + int(60*((i%200)-100)/100))
		if i%700 == 0 {
			samples[i] ^= 0x80
		}
	}
	for _, maxRun := range []int{1, 8, 255} {
		stream := encodeSigmaDelta(samples, maxRun)
		got, err := decompress.SigmaDelta(cursor.New(stream), len(samples))
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", maxRun, err)
		}
		if !bytes.Equal(got, samples) {
			t.Fatalf("run %d: decoded data differs from input", maxRun)
		}
		_, err = decompress.SigmaDelta(cursor.New(stream[:len(stream)-1]), len(samples))
		if !errors.Is(err, decompress.ErrStreamExhausted) {
			t.Fatalf("run %d: expected ErrStreamExhausted for truncated stream, got %v", maxRun, err)
		}
	}
}

func TestSigmaDeltaRejectsOverwideStream(t *testing.T) {
	var w bitWriter
	w.write(4, 8)
	w.write(0x80, 8)
	w.write(0, 8) // widen to 9
	w.write(0, 9) // cannot widen further
	w.write(0, 16)
	_, err := decompress.SigmaDelta(cursor.New(w.bytes()), 4)
	if !errors.Is(err, decompress.ErrCorruptStream) {
		t.Fatalf("expected ErrCorruptStream, got %v", err)
	}
}

func TestULaw(t *testing.T) {
	got := decompress.ULaw([]byte{0xFF, 0x7F, 0x80, 0x00})
	expected := []int16{0, 0, 32124, -32124}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("got %v, expected %v", got, expected)
	}
}

func TestADPCM4(t *testing.T) {
	stream := []byte{0, 1, 2, 3, 4, 5, 6, 7, 0xF8, 0xF9, 0xFA, 0xFB, 0xFC, 0xFD, 0xFE, 0xFF}
	stream = append(stream, 0x21, 0x0F, 0x03)
	got, err := decompress.ADPCM4(cursor.New(stream), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []int8{1, 3, 2, 2, 5}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("got %v, expected %v", got, expected)
	}
	if _, err := decompress.ADPCM4(cursor.New(stream[:len(stream)-1]), 5); !errors.Is(err, decompress.ErrStreamExhausted) {
		t.Errorf("expected ErrStreamExhausted, got %v", err)
	}
}

// encodeIT8 writes full-width (method 3) blocks, which every decoder must accept.
func encodeIT8(samples []int8, it215 bool) []byte {
	var out []byte
	for start := 0; start < len(samples); start += 0x8000 {
		block := samples[start:min(start+0x8000, len(samples))]
		var w bitWriter
		var mem1, mem2 int8
		for _, s := range block {
			var d int8
			if it215 {
				// s = mem2 + mem1 + d
				d = s - mem2 - mem1
			} else {
				d = s - mem1
			}
			w.write(uint32(uint8(d)), 9)
			mem1 += d
			mem2 += mem1
		}
		data := w.bytes()
		out = append(out, byte(len(data)), byte(len(data)>>8))
		out = append(out, data...)
	}
	return out
}

func TestIT8RoundTrip(t *testing.T) {
	samples := make([]int8, 0x8000+100)
	r := rand.New(rand.NewSource(4))
	for i := range samples {
		samples[i] = int8(r.Intn(256) - 128)
	}
	for _, it215 := range []bool{false, true} {
		stream := encodeIT8(samples, it215)
		got, err := decompress.IT8(cursor.New(stream), len(samples), it215)
		if err != nil {
			t.Fatalf("it215=%v: unexpected error: %v", it215, err)
		}
		if !reflect.DeepEqual(got, samples) {
			t.Fatalf("it215=%v: decoded data differs from input", it215)
		}
		_, err = decompress.IT8(cursor.New(stream[:len(stream)-1]), len(samples), it215)
		if !errors.Is(err, decompress.ErrStreamExhausted) {
			t.Fatalf("it215=%v: expected ErrStreamExhausted, got %v", it215, err)
		}
	}
}

func TestIT8WidthChanges(t *testing.T) {
	var w bitWriter
	w.write(0x100|3, 9) // method 3: switch to width 4
	w.write(3, 4)       // +3
	w.write(0xF, 4)     // -1
	w.write(8, 4)       // method 1 escape
	w.write(7, 3)       // code 8, skipping the current width: 9 bits
	w.write(0x0FE, 9)   // -2
	data := w.bytes()
	stream := append([]byte{byte(len(data)), 0}, data...)
	got, err := decompress.IT8(cursor.New(stream), 3, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []int8{3, 2, 0}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("got %v, expected %v", got, expected)
	}
}

func TestIT16RoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 5}
	var w bitWriter
	var mem1 int16
	for _, s := range samples {
		d := s - mem1
		w.write(uint32(uint16(d)), 17)
		mem1 += d
	}
	data := w.bytes()
	stream := append([]byte{byte(len(data)), byte(len(data) >> 8)}, data...)
	got, err := decompress.IT16(cursor.New(stream), len(samples), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, samples) {
		t.Errorf("got %v, expected %v", got, samples)
	}
}
