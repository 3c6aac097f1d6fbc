package permission

// Mask is a set of up to 64 permission bits.
type Mask uint64

// RootBit is the bit a reserving [Registry] holds back for the root grant.
const RootBit = 63

// Has reports whether bit is set. With rootReserved, a set root bit
// satisfies every query.
func (m Mask) Has(bit int, rootReserved bool) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	if rootReserved && m&(1<<RootBit) != 0 {
		return true
	}
	return m&(1<<bit) != 0
}

// Set turns bit on.
func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= 1 << bit
}

// Clear turns bit off.
func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= 1 << bit
}

// Raw returns the mask as an integer.
func (m Mask) Raw() uint64 {
	return uint64(m)
}
