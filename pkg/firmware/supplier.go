package firmware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Image is a loadable firmware build.
type Image struct {
	// Firmware is the raw image uploaded with the load command.
	Firmware []byte

	// Signature is the image signature uploaded after the firmware.
	Signature []byte

	// Version is the build stamp the flashed firmware reports in its
	// version banner.
	Version int64
}

// Supplier provides the firmware image the hub flashes when it finds a
// HAT in bootloader mode or running an older build.
// Implemented by DirSupplier.
type Supplier interface {
	// Image returns the firmware build to flash.
	Image() (Image, error)
}

// DirSupplier loads a firmware build from a directory containing
// firmware.bin, signature.bin and version files.
type DirSupplier struct {
	dir string
}

// NewDirSupplier returns a Supplier reading from the given directory.
func NewDirSupplier(dir string) *DirSupplier {
	return &DirSupplier{dir: dir}
}

// Image reads the firmware build from disk.
func (s *DirSupplier) Image() (Image, error) {
	fw, err := os.ReadFile(filepath.Join(s.dir, "firmware.bin"))
	if err != nil {
		return Image{}, fmt.Errorf("read firmware image: %w", err)
	}
	sig, err := os.ReadFile(filepath.Join(s.dir, "signature.bin"))
	if err != nil {
		return Image{}, fmt.Errorf("read firmware signature: %w", err)
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, "version"))
	if err != nil {
		return Image{}, fmt.Errorf("read firmware version: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return Image{}, fmt.Errorf("parse firmware version: %w", err)
	}
	return Image{Firmware: fw, Signature: sig, Version: version}, nil
}

// Compile-time interface satisfaction check.
var _ Supplier = (*DirSupplier)(nil)
