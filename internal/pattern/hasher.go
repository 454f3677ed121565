package pattern

// DefaultPolynomial is the CRC-8 generator used by NewHasher callers that
// have no reason to pick another one.
const DefaultPolynomial byte = 0x07

const hashSeed byte = 255

// Hasher computes content fingerprints of patterns. The lookup table is built
// once on construction and is read-only afterwards, so one Hasher may be
// shared by every store.
type Hasher struct {
	table [256]byte
}

// NewHasher builds the CRC-8 table for the given polynomial.
func NewHasher(poly byte) *Hasher {
	h := &Hasher{}
	for i := 0; i < 256; i++ {
		crc := byte(i)
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		h.table[i] = crc
	}
	return h
}

// Sum folds the pattern's cells in row-major order. Structurally different
// patterns may collide.
func (h *Hasher) Sum(p *Pattern) int {
	crc := hashSeed
	for _, c := range p.cells {
		crc = h.table[crc^c]
	}
	return int(crc)
}
