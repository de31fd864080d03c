package uvio

import (
	"encoding/binary"
	"fmt"
)

// Flags64 is a 64-bit capability bitmap in LSB0 bit ordering.
type Flags64 uint64

// Has reports whether the given bit is set.
func (f Flags64) Has(bit uint8) bool {
	return bit < 64 && f&(1<<bit) != 0
}

// DeviceInfo reports which uvdevice ioctls the local device driver supports
// and which Ultravisor calls the firmware supports. A request type is usable
// only when the same bit is set in both bitmaps.
//
// Bit 0 (InfoNr) is always zero in SuppUvCmds as there is no corresponding
// UV call behind the info ioctl.
type DeviceInfo struct {
	// SuppUvioCmds are the ioctls supported by the device driver.
	SuppUvioCmds Flags64 `json:"supp_uvio_cmds" cbor:"1,keyasint"`
	// SuppUvCmds are the UV calls supported by the firmware.
	SuppUvCmds Flags64 `json:"supp_uv_cmds" cbor:"2,keyasint"`
}

// DecodeDeviceInfo parses the 16-byte device-info payload.
func DecodeDeviceInfo(b []byte) (*DeviceInfo, error) {
	if len(b) != DeviceInfoLen {
		return nil, fmt.Errorf("device info must be %d bytes, got %d", DeviceInfoLen, len(b))
	}
	return &DeviceInfo{
		SuppUvioCmds: Flags64(binary.NativeEndian.Uint64(b[0:])),
		SuppUvCmds:   Flags64(binary.NativeEndian.Uint64(b[8:])),
	}, nil
}

// Supports reports whether both the device driver and the firmware support
// the request type with the given sub-number.
func (i *DeviceInfo) Supports(nr uint8) bool {
	return i.SuppUvioCmds.Has(nr) && i.SuppUvCmds.Has(nr)
}
