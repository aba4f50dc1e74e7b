package firmware

import "testing"

func TestChecksum(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 1},
		{"single zero", []byte{0x00}, 2},
		{"two bytes", []byte{0x41, 0x42}, 0xC4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Checksum(tc.data); got != tc.want {
				t.Errorf("Checksum(%v) = %#x, want %#x", tc.data, got, tc.want)
			}
		})
	}
}

func TestChecksumHighBitFold(t *testing.T) {
	// 32 leading 0x80 bytes push the accumulator's high bit so the
	// polynomial fold path runs.
	data := make([]byte, 64)
	for i := range data {
		data[i] = 0x80
	}
	a := Checksum(data)
	data[63] = 0x81
	b := Checksum(data)
	if a == b {
		t.Error("checksum did not change with the input")
	}
}
