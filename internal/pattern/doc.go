// Package pattern holds the decoded pattern matrix, the record that pairs it
// with a tag, the size bounds a storage accepts, the CRC-8 content hasher used
// for bucketing, and the bitmap codec that stands in for the pixel decoder.
//
// # Hashing
//
// [Hasher] folds cell values in row-major order through a CRC-8 table seeded
// with 255:
//
//	h := pattern.NewHasher(pattern.DefaultPolynomial)
//	bucket := h.Sum(p)
//
// Only 256 fingerprints exist, so collisions are routine; the store resolves
// them by record identity.
//
// # Codec
//
// [BMPCodec] maps each pixel to one cell. Dark pixels become [CellInk]:
//
//	p, err := pattern.NewBMPCodec().Decode(f)
package pattern
