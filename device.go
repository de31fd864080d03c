// Package uvdevice provides a high-level interface to the Ultravisor of
// s390x machines from userspace programs running inside an IBM Secure
// Execution guest. It supports querying device capabilities, requesting
// attestation measurements, and managing retrievable secrets through the
// /dev/uv ioctl device.
package uvdevice

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sertonix/go-uvdevice/protocol/secret"
	"github.com/sertonix/go-uvdevice/protocol/uvio"
)

// Path is the uvdevice special file. Opening it only succeeds on a machine
// with the uvdevice kernel module loaded.
const Path = "/dev/uv"

// Status reports how a command completed. The Ultravisor has two response
// codes that represent a successful execution; both map to a Status, never
// to an error.
type Status uint16

const (
	// StatusSuccess means the command executed successfully.
	StatusSuccess Status = Status(uvio.RCSuccess)
	// StatusMoreData means the command executed successfully, but the
	// buffer was too small to hold everything. What was written is still
	// valid and meaningful.
	StatusMoreData Status = Status(uvio.RCMoreData)
)

// MoreData reports whether the device had more data available than the
// command's buffer could hold.
func (s Status) MoreData() bool { return s == StatusMoreData }

// doIoctl performs the blocking control operation. Swapped out in tests.
var doIoctl = func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(op), uintptr(unsafe.Pointer(cb)))
	if errno != 0 {
		return errno
	}
	return nil
}

// Device is a handle to the uvdevice. It owns exactly one open connection
// for its lifetime; SendCmd calls on the same handle are serialized.
type Device struct {
	f      *os.File
	mu     sync.Mutex
	closed bool
}

// Open opens the uvdevice located at /dev/uv.
func Open() (*Device, error) {
	return OpenPath(Path)
}

// OpenPath opens the uvdevice at the given path for read and write.
func OpenPath(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, newErrorMessage(ErrFileAccess, fmt.Sprintf("cannot open %s: %v", path, err))
	}
	return &Device{f: f}, nil
}

// Close closes the connection to the uvdevice.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.f.Close()
}

// SendCmd sends an Ultravisor command via this uvdevice.
//
// It builds a control block around the command's payload, performs exactly
// one blocking ioctl, and interprets the response code pair the Ultravisor
// wrote back. The command's payload buffer may be overwritten in place by
// the device; a successful Status means the buffer now holds output. No
// failure is ever retried.
func (d *Device) SendCmd(cmd uvio.Cmd) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, newErrorMessage(ErrFileAccess, "device already closed")
	}

	data := cmd.Data()
	cb, err := uvio.NewControlBlock(data)
	if err != nil {
		return 0, newErrorMessage(ErrSpecification, err.Error())
	}

	op := cmd.Op()
	slog.Debug("uv ioctl", "op", fmt.Sprintf("%#x", op), "len", cb.ArgumentLen)
	if err := doIoctl(d.f.Fd(), op, cb); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIoctl, err)
	}
	runtime.KeepAlive(data)
	runtime.KeepAlive(cmd)
	slog.Debug("uv ioctl done", "rc", fmt.Sprintf("%#06x", cb.RC), "rrc", fmt.Sprintf("%#06x", cb.RRC))

	switch cb.RC {
	case uvio.RCSuccess:
		return StatusSuccess, nil
	case uvio.RCMoreData:
		return StatusMoreData, nil
	}

	msg, ok := uvio.GenericText(cb.RC)
	if !ok {
		msg, ok = cmd.ReasonText(cb.RC, cb.RRC)
	}
	if !ok {
		msg = uvio.TextUnexpected
	}
	return 0, &CmdError{RC: cb.RC, RRC: cb.RRC, Msg: msg}
}

// Info queries which request types the device driver and the Ultravisor
// support.
func (d *Device) Info() (*uvio.DeviceInfo, error) {
	cmd := uvio.NewInfoCmd()
	if _, err := d.SendCmd(cmd); err != nil {
		return nil, err
	}
	return cmd.Info()
}

// Attest requests an attestation measurement for the given attestation
// request block and optional user data. measurementLen and additionalLen
// must match the sizes the request block was built for.
func (d *Device) Attest(arcb, userData []byte, measurementLen, additionalLen uint32) (*AttestationResult, error) {
	cmd, err := uvio.NewAttestationCmd(arcb, userData, measurementLen, additionalLen)
	if err != nil {
		return nil, newErrorMessage(ErrSpecification, err.Error())
	}
	if _, err := d.SendCmd(cmd); err != nil {
		return nil, err
	}
	return &AttestationResult{
		Measurement:    cmd.Measurement(),
		AdditionalData: cmd.AdditionalData(),
		ConfigUID:      cmd.ConfigUID(),
	}, nil
}

// AttestationResult carries the outputs of a successful attestation call.
type AttestationResult struct {
	// Measurement is the cryptographic measurement calculated by the
	// Ultravisor.
	Measurement []byte `json:"measurement" cbor:"1,keyasint"`
	// AdditionalData is extra data included in the measurement if the
	// request block asked for it, nil otherwise.
	AdditionalData []byte `json:"additional_data,omitempty" cbor:"2,keyasint,omitempty"`
	// ConfigUID identifies the secure execution guest instance.
	ConfigUID [uvio.AttUIDLen]byte `json:"config_uid" cbor:"3,keyasint"`
}

// AddSecret sends an add-secret request to the Ultravisor. The request
// block is built and cryptographically bound elsewhere; it is passed through
// opaquely.
func (d *Device) AddSecret(request []byte) error {
	cmd, err := uvio.NewAddSecretCmd(request)
	if err != nil {
		return newErrorMessage(ErrSpecification, err.Error())
	}
	_, err = d.SendCmd(cmd)
	return err
}

// ListSecrets retrieves one page of the Ultravisor's secret store. When the
// store holds more secrets than one page can carry, the returned list is a
// valid prefix and its Total field exceeds its Stored field.
func (d *Device) ListSecrets() (*secret.List, error) {
	cmd := uvio.NewListSecretsCmd()
	if _, err := d.SendCmd(cmd); err != nil {
		return nil, err
	}
	return secret.DecodeList(cmd.Page())
}

// LockSecrets disables all further add-secret requests until the next guest
// reboot.
func (d *Device) LockSecrets() error {
	_, err := d.SendCmd(uvio.NewLockSecretsCmd())
	return err
}
