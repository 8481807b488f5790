package match

// lowerTable maps every byte to its ASCII lowercase form.
var lowerTable = func() (t [256]byte) {
	for i := range t {
		b := byte(i)
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		t[i] = b
	}
	return t
}()

// Fold writes the ASCII-lowercased form of src into dst and returns dst.
// dst must be at least len(src) long; dst and src may be the same slice.
func Fold(dst, src []byte) []byte {
	dst = dst[:len(src)]
	for i, b := range src {
		dst[i] = lowerTable[b]
	}
	return dst
}

// FoldInto lowers src into buf, growing buf when it is too small, and returns
// the folded slice. Callers keep the returned slice as their next buf.
func FoldInto(buf, src []byte) []byte {
	if cap(buf) < len(src) {
		buf = make([]byte, len(src))
	}
	return Fold(buf[:len(src)], src)
}
