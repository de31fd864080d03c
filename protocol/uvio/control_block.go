package uvio

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

// ControlBlockLen is the exact byte size of the control block. It is part of
// the ioctl numbering and therefore of the kernel ABI.
const ControlBlockLen = 64

// ControlBlock is the envelope exchanged with the uvdevice on every ioctl.
// ArgumentAddr and ArgumentLen describe the in/out payload of the request,
// RC and RRC carry the response and reason response code set by the
// Ultravisor. Flags is currently unused and must be zero.
//
// The struct layout matches struct uvio_ioctl_cb of asm/uvdevice.h
// byte for byte; a control block is built per call and never reused.
type ControlBlock struct {
	Flags        uint32
	RC           uint16
	RRC          uint16
	ArgumentAddr uint64
	ArgumentLen  uint32
	reserved     [44]byte
}

// Layout is ABI. A mismatch must fail the build, not a call.
var _ [ControlBlockLen]byte = [unsafe.Sizeof(ControlBlock{})]byte{}

// NewControlBlock builds a control block describing data as the request
// payload. A nil or empty slice yields a zero address and length. It fails
// when data does not fit the 32-bit length field.
func NewControlBlock(data []byte) (*ControlBlock, error) {
	cb := &ControlBlock{}
	if len(data) == 0 {
		return cb, nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("command payload of %d bytes does not fit the 32-bit argument length", len(data))
	}
	cb.ArgumentAddr = uint64(uintptr(unsafe.Pointer(&data[0])))
	cb.ArgumentLen = uint32(len(data))
	return cb, nil
}

// MarshalBinary encodes the control block into its 64-byte wire form.
func (cb *ControlBlock) MarshalBinary() ([]byte, error) {
	b := make([]byte, ControlBlockLen)
	binary.NativeEndian.PutUint32(b[0:], cb.Flags)
	binary.NativeEndian.PutUint16(b[4:], cb.RC)
	binary.NativeEndian.PutUint16(b[6:], cb.RRC)
	binary.NativeEndian.PutUint64(b[8:], cb.ArgumentAddr)
	binary.NativeEndian.PutUint32(b[16:], cb.ArgumentLen)
	copy(b[20:], cb.reserved[:])
	return b, nil
}

// UnmarshalBinary decodes a 64-byte wire form into the control block.
func (cb *ControlBlock) UnmarshalBinary(b []byte) error {
	if len(b) != ControlBlockLen {
		return fmt.Errorf("control block must be %d bytes, got %d", ControlBlockLen, len(b))
	}
	cb.Flags = binary.NativeEndian.Uint32(b[0:])
	cb.RC = binary.NativeEndian.Uint16(b[4:])
	cb.RRC = binary.NativeEndian.Uint16(b[6:])
	cb.ArgumentAddr = binary.NativeEndian.Uint64(b[8:])
	cb.ArgumentLen = binary.NativeEndian.Uint32(b[16:])
	copy(cb.reserved[:], b[20:])
	return nil
}
