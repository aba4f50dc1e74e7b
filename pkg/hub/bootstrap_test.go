package hub_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CDarius/buildhat-go/internal/simhub"
	"github.com/CDarius/buildhat-go/pkg/firmware"
	"github.com/CDarius/buildhat-go/pkg/hub"
)

// staticImage serves a fixed firmware image.
type staticImage struct {
	img firmware.Image
}

func (s staticImage) Image() (firmware.Image, error) {
	return s.img, nil
}

func testImage() firmware.Image {
	return firmware.Image{
		Firmware:  []byte("firmware-image-bytes"),
		Signature: []byte("signature-bytes"),
		Version:   424242,
	}
}

func TestStartFlashesFromBootloader(t *testing.T) {
	img := testImage()
	h, sim := startHub(t, testConfig(), simhub.Config{
		Mode:    simhub.ModeBootloader,
		Devices: []simhub.Device{{Port: 3, Type: 0x02}},
	}, hub.WithFirmware(staticImage{img: img}))

	assert.Equal(t, hub.BootReady, h.BootState())
	assert.EqualValues(t, 424242, h.FirmwareVersion())

	// The upload handshake ran in order.
	wantLoad := fmt.Sprintf("load %d %d", len(img.Firmware), firmware.Checksum(img.Firmware))
	wantSig := fmt.Sprintf("signature %d", len(img.Signature))
	var got []string
	for _, c := range sim.Commands() {
		switch c {
		case "clear", wantLoad, wantSig, "reboot":
			got = append(got, c)
		}
	}
	assert.Equal(t, []string{"clear", wantLoad, wantSig, "reboot"}, got)

	// Devices announced after the reboot were discovered.
	p, err := h.Port(3)
	require.NoError(t, err)
	assert.Equal(t, hub.PortConnected, p.State)

	// The freshly booted firmware answers commands.
	_, err = h.Vin(context.Background())
	require.NoError(t, err)
}

func TestStartReflashesOutdatedFirmware(t *testing.T) {
	img := testImage()
	h, sim := startHub(t, testConfig(), simhub.Config{
		FirmwareVersion: 111111,
	}, hub.WithFirmware(staticImage{img: img}))

	// The running stamp didn't match, so a reset into the bootloader
	// and a full upload followed.
	assert.EqualValues(t, img.Version, h.FirmwareVersion())

	var sawReboot bool
	for _, c := range sim.Commands() {
		if c == "reboot" {
			sawReboot = true
		}
	}
	assert.True(t, sawReboot, "no reboot after reflash")

	_, err := h.Vin(context.Background())
	require.NoError(t, err)
}

func TestStartKeepsMatchingFirmware(t *testing.T) {
	img := testImage()
	h, sim := startHub(t, testConfig(), simhub.Config{
		FirmwareVersion: img.Version,
	}, hub.WithFirmware(staticImage{img: img}))

	assert.EqualValues(t, img.Version, h.FirmwareVersion())
	for _, c := range sim.Commands() {
		assert.NotEqual(t, "clear", c, "matching firmware must not be reflashed")
		assert.NotEqual(t, "reboot", c)
	}
}

func TestStartBootloaderWithoutSupplier(t *testing.T) {
	sim, end := simhub.New(simhub.Config{Mode: simhub.ModeBootloader})
	defer sim.Close()
	h, err := hub.New(testConfig(), end)
	require.NoError(t, err)
	defer h.Close()

	err = h.Start(context.Background())
	require.ErrorIs(t, err, hub.ErrFirmwareLoad)
	assert.Equal(t, hub.BootFailed, h.BootState())
}

func TestStartNoAnswer(t *testing.T) {
	cfg := testConfig()
	cfg.BannerTimeout = 300 * time.Millisecond

	sim, end := simhub.New(simhub.Config{})
	defer sim.Close()
	sim.MuteFor(100)

	h, err := hub.New(cfg, end)
	require.NoError(t, err)
	defer h.Close()

	err = h.Start(context.Background())
	require.ErrorIs(t, err, hub.ErrNotReady)
	assert.Equal(t, hub.BootFailed, h.BootState())
}
