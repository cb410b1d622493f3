package permission

// MaxBits is the capacity of a [Mask64].
const MaxBits = 64

// Mask64 is a set of up to 64 capability bits.
type Mask64 uint64

// Has reports whether bit is set. Out-of-range bits are never set.
func (m Mask64) Has(bit int) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}
	return m&(1<<uint(bit)) != 0
}

// Set turns bit on. Out-of-range bits are ignored.
func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	*m |= 1 << uint(bit)
}

// Clear turns bit off.
func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	*m &^= 1 << uint(bit)
}

// Raw returns the underlying bits.
func (m Mask64) Raw() uint64 {
	return uint64(m)
}
