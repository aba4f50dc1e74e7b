package firmware

// checksumPoly is the feedback polynomial the bootloader uses to verify
// uploaded images.
const checksumPoly = 0x1D872B41

// Checksum computes the bootloader's image checksum. The seed is 1; for
// each byte the accumulator is shifted left, folded with the polynomial
// when the high bit was set, then xored with the byte.
func Checksum(data []byte) uint32 {
	sum := uint32(1)
	for _, b := range data {
		if sum&0x80000000 != 0 {
			sum = (sum << 1) ^ checksumPoly
		} else {
			sum <<= 1
		}
		sum ^= uint32(b)
	}
	return sum
}
