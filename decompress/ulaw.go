package decompress

var ulawTable = func() (t [256]int16) {
	for i := range t {
		u := ^uint8(i)
		exponent := (u >> 4) & 0x07
		mantissa := int(u & 0x0F)
		magnitude := ((mantissa << 3) + 0x84) << exponent
		magnitude -= 0x84
		if u&0x80 != 0 {
			t[i] = int16(-magnitude)
		} else {
			t[i] = int16(magnitude)
		}
	}
	return t
}()

// ULaw expands G.711 µ-law bytes to 16-bit linear PCM.
func ULaw(src []byte) []int16 {
	out := make([]int16, len(src))
	for i, b := range src {
		out[i] = ulawTable[b]
	}
	return out
}

// ULawByte expands one µ-law byte.
func ULawByte(b byte) int16 {
	return ulawTable[b]
}
