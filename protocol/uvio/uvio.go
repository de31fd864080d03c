// Package uvio implements the ioctl wire protocol of the Linux uvdevice.
// It mirrors asm/uvdevice.h: the fixed 64-byte control block exchanged on
// every call, the ioctl numbering, and the payload structures for the
// device-info and attestation requests.
//
// The control block and the device-info bitmap are read by the same process
// that writes them and use host byte order. Payloads the Ultravisor firmware
// parses internally are big-endian by contract.
package uvio

// TypeUVC is the ioctl type letter of the uvdevice, ASCII 'u'.
const TypeUVC = 117

// ioctl sub-numbers of the uvdevice.
const (
	// InfoNr queries the capability bitmaps of device and firmware.
	InfoNr uint8 = 0
	// AttestationNr requests an attestation measurement.
	AttestationNr uint8 = 1
	// AddSecretNr injects an add-secret request into the Ultravisor.
	AddSecretNr uint8 = 2
	// ListSecretsNr retrieves the list of stored retrievable secrets.
	ListSecretsNr uint8 = 3
	// LockSecretsNr disables all further add-secret requests.
	LockSecretsNr uint8 = 4
)

// Payload size limits of the uvdevice requests.
const (
	// DeviceInfoLen is the size of the device-info bitmap payload.
	DeviceInfoLen = 16
	// AttArcbMaxLen is the maximum size of an attestation request block.
	AttArcbMaxLen = 0x100000
	// AttMeasurementMaxLen is the maximum size of a measurement result.
	AttMeasurementMaxLen = 0x8000
	// AttAdditionalMaxLen is the maximum size of the additional data output.
	AttAdditionalMaxLen = 0x8000
	// AttUserDataLen is the size of the user-data field of an attestation
	// request.
	AttUserDataLen = 0x100
	// AttUIDLen is the size of the configuration unique identifier.
	AttUIDLen = 0x10
	// AddSecretMaxLen is the maximum size of an add-secret request.
	AddSecretMaxLen = 0x100000
	// ListSecretsLen is the size of the buffer for list-secrets requests.
	ListSecretsLen = 0x1000
)

// Constants and calculation from linux: asm-generic/ioctl.h.
const (
	iocWrite     = 1
	iocRead      = 2
	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

// IO returns the ioctl operation number for the given uvdevice sub-number.
// All uvdevice ioctls are read-write and carry a control block as argument,
// so the control block size is part of the encoding. It corresponds to the
// UV_IOCTL macro of asm/uvdevice.h.
func IO(nr uint8) uint64 {
	return uint64(iocRead|iocWrite)<<iocDirShift |
		uint64(TypeUVC)<<iocTypeShift |
		uint64(nr)<<iocNrShift |
		uint64(ControlBlockLen)<<iocSizeShift
}

func init() {
	// Changing the control block size silently changes every operation
	// number, so verify the well-known attestation encoding at startup.
	if op := IO(AttestationNr); op != 0xc0407501 {
		panic("uvio: attestation ioctl number mismatch")
	}
}

// Cmd is an Ultravisor command that can be sent through the uvdevice.
// Concrete commands supply the ioctl operation number, the optional argument
// payload, and human-readable text for response codes outside the generic
// vocabulary.
type Cmd interface {
	// Op returns the ioctl operation number of this command,
	// usually IO(nr).
	Op() uint64
	// Data returns the argument payload of this command, or nil if the
	// command carries none. The device may overwrite the returned buffer
	// in place.
	Data() []byte
	// ReasonText translates a command-specific response code pair into
	// human-readable text. There is no need to handle the codes covered
	// by GenericText or the two success codes.
	ReasonText(rc, rrc uint16) (string, bool)
}
