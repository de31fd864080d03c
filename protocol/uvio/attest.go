package uvio

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// AttestationLen is the exact byte size of the attestation request payload,
// struct uvio_attest of asm/uvdevice.h.
const AttestationLen = 312

// Offsets inside the attestation payload.
const (
	attArcbAddrOff    = 0
	attMeasAddrOff    = 8
	attAddDataAddrOff = 16
	attUserDataOff    = 24
	attConfigUIDOff   = 280
	attArcbLenOff     = 296
	attMeasLenOff     = 300
	attAddDataLenOff  = 304
	attUserDataLenOff = 308
)

// AttestationCmd requests an attestation measurement.
//
// The attestation request block (ARCB) and the user data are inputs for the
// Ultravisor; the measurement and the additional data are outputs it
// generates. The ARCB is a cryptographically secured request built
// elsewhere, the user data is plaintext that goes into the measurement
// calculation. The firmware parses the ARCB internals in big-endian order;
// the envelope fields here stay in host order.
//
// If the retrieve-attestation-measurement UV facility is not present, the
// Ultravisor reports an invalid-command response code.
type AttestationCmd struct {
	arcb        []byte
	measurement []byte
	additional  []byte
	block       [AttestationLen]byte
}

// NewAttestationCmd builds an attestation command. arcb is required and at
// most AttArcbMaxLen bytes; userData is optional and at most AttUserDataLen
// bytes. measurementLen and additionalLen size the output buffers the
// Ultravisor writes into; the expected sizes are configured by the ARCB.
func NewAttestationCmd(arcb, userData []byte, measurementLen, additionalLen uint32) (*AttestationCmd, error) {
	if len(arcb) == 0 {
		return nil, fmt.Errorf("attestation request block must not be empty")
	}
	if len(arcb) > AttArcbMaxLen {
		return nil, fmt.Errorf("attestation request block of %d bytes exceeds the maximum of %d", len(arcb), AttArcbMaxLen)
	}
	if len(userData) > AttUserDataLen {
		return nil, fmt.Errorf("attestation user data of %d bytes exceeds the maximum of %d", len(userData), AttUserDataLen)
	}
	if measurementLen == 0 {
		return nil, fmt.Errorf("attestation measurement length must not be zero")
	}
	if measurementLen > AttMeasurementMaxLen {
		return nil, fmt.Errorf("attestation measurement length %d exceeds the maximum of %d", measurementLen, AttMeasurementMaxLen)
	}
	if additionalLen > AttAdditionalMaxLen {
		return nil, fmt.Errorf("attestation additional data length %d exceeds the maximum of %d", additionalLen, AttAdditionalMaxLen)
	}

	c := &AttestationCmd{
		arcb:        arcb,
		measurement: make([]byte, measurementLen),
	}
	if additionalLen > 0 {
		c.additional = make([]byte, additionalLen)
	}

	binary.NativeEndian.PutUint64(c.block[attArcbAddrOff:], sliceAddr(c.arcb))
	binary.NativeEndian.PutUint64(c.block[attMeasAddrOff:], sliceAddr(c.measurement))
	binary.NativeEndian.PutUint64(c.block[attAddDataAddrOff:], sliceAddr(c.additional))
	copy(c.block[attUserDataOff:attUserDataOff+AttUserDataLen], userData)
	binary.NativeEndian.PutUint32(c.block[attArcbLenOff:], uint32(len(c.arcb)))
	binary.NativeEndian.PutUint32(c.block[attMeasLenOff:], measurementLen)
	binary.NativeEndian.PutUint32(c.block[attAddDataLenOff:], additionalLen)
	binary.NativeEndian.PutUint16(c.block[attUserDataLenOff:], uint16(len(userData)))
	return c, nil
}

// Op implements Cmd.
func (c *AttestationCmd) Op() uint64 { return IO(AttestationNr) }

// Data implements Cmd. The payload is the attestation envelope; the output
// buffers it points to stay owned by the command for its whole lifetime.
func (c *AttestationCmd) Data() []byte { return c.block[:] }

// ReasonText implements Cmd.
func (c *AttestationCmd) ReasonText(rc, rrc uint16) (string, bool) { return "", false }

// Measurement returns the measurement buffer the Ultravisor wrote during a
// successful call.
func (c *AttestationCmd) Measurement() []byte { return c.measurement }

// AdditionalData returns the additional data buffer, or nil if none was
// requested.
func (c *AttestationCmd) AdditionalData() []byte { return c.additional }

// ConfigUID returns the configuration unique identifier of the secure
// execution guest, set by the Ultravisor during a successful call.
func (c *AttestationCmd) ConfigUID() [AttUIDLen]byte {
	var uid [AttUIDLen]byte
	copy(uid[:], c.block[attConfigUIDOff:attConfigUIDOff+AttUIDLen])
	return uid
}

// sliceAddr returns the address of the first byte of b, or zero for an
// empty slice.
func sliceAddr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}
