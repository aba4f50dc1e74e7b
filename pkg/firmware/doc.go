// Package firmware provides the firmware images and integrity checksum
// used when flashing a Build HAT from its bootloader.
//
// The HAT ships with a bootloader only. On first contact the hub checks
// which program answers on the serial line: the bootloader triggers an
// upload of the firmware image and its signature, and an outdated
// firmware triggers a reboot into the bootloader first.
//
// A Supplier hands the hub the image bytes and the expected version
// stamp. DirSupplier reads them from a directory laid out as:
//
//	firmware.bin   the firmware image
//	signature.bin  the image signature
//	version        the build stamp as decimal text
package firmware
