package uvdevice

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/sertonix/go-uvdevice/protocol/uvio"
)

// fakeCmd is a command with configurable payload and reason texts.
type fakeCmd struct {
	op     uint64
	data   []byte
	reason func(rc, rrc uint16) (string, bool)
}

func (c *fakeCmd) Op() uint64 {
	if c.op != 0 {
		return c.op
	}
	return uvio.IO(uvio.LockSecretsNr)
}

func (c *fakeCmd) Data() []byte { return c.data }

func (c *fakeCmd) ReasonText(rc, rrc uint16) (string, bool) {
	if c.reason == nil {
		return "", false
	}
	return c.reason(rc, rrc)
}

func testDevice(t *testing.T) *Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uv")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	dev, err := OpenPath(path)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func mockIoctl(t *testing.T, fn func(fd uintptr, op uint64, cb *uvio.ControlBlock) error) {
	t.Helper()
	orig := doIoctl
	doIoctl = fn
	t.Cleanup(func() { doIoctl = orig })
}

// argument reconstructs the payload buffer a control block points to, the
// same way the kernel reaches it.
func argument(cb *uvio.ControlBlock) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(cb.ArgumentAddr))), cb.ArgumentLen)
}

func answer(rc, rrc uint16) func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
	return func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		cb.RC = rc
		cb.RRC = rrc
		return nil
	}
}

func TestSendCmdSuccess(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, answer(uvio.RCSuccess, 42))

	status, err := dev.SendCmd(&fakeCmd{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.False(t, status.MoreData())
}

func TestSendCmdMoreData(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, answer(uvio.RCMoreData, 0))

	status, err := dev.SendCmd(&fakeCmd{})
	require.NoError(t, err)
	assert.Equal(t, StatusMoreData, status)
	assert.True(t, status.MoreData())
}

func TestSendCmdGenericErrors(t *testing.T) {
	tests := []struct {
		rc   uint16
		want string
	}{
		{0x0000, "invalid rc"},
		{0x0002, "invalid UV command"},
		{0x0005, "request has an invalid size"},
		{0x0030, "home address space control bit has R-bit set to one"},
		{0x0031, "access exception"},
		{0x0032, "request contains virtual address translating to an invalid address"},
	}
	dev := testDevice(t)
	for _, tt := range tests {
		mockIoctl(t, answer(tt.rc, 7))

		_, err := dev.SendCmd(&fakeCmd{})
		var cmdErr *CmdError
		require.ErrorAs(t, err, &cmdErr, "rc %#04x", tt.rc)
		assert.Equal(t, tt.rc, cmdErr.RC)
		assert.Equal(t, uint16(7), cmdErr.RRC)
		assert.Equal(t, tt.want, cmdErr.Msg)
	}
}

func TestSendCmdUnexpectedCode(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, answer(0xbeef, 0x0001))

	_, err := dev.SendCmd(&fakeCmd{})
	var cmdErr *CmdError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "unexpected error-code", cmdErr.Msg)
}

func TestSendCmdCommandReasonText(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, answer(0x0102, 0x0001))

	cmd := &fakeCmd{reason: func(rc, rrc uint16) (string, bool) {
		if rc == 0x0102 {
			return "secret store locked", true
		}
		return "", false
	}}

	_, err := dev.SendCmd(cmd)
	var cmdErr *CmdError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "secret store locked", cmdErr.Msg)
}

func TestSendCmdGenericBeatsCommandText(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, answer(0x0002, 0))

	cmd := &fakeCmd{reason: func(rc, rrc uint16) (string, bool) {
		return "command text must not win", true
	}}

	_, err := dev.SendCmd(cmd)
	var cmdErr *CmdError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "invalid UV command", cmdErr.Msg)
}

func TestSendCmdNoPayload(t *testing.T) {
	dev := testDevice(t)

	var got uvio.ControlBlock
	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		got = *cb
		cb.RC = uvio.RCSuccess
		return nil
	})

	_, err := dev.SendCmd(&fakeCmd{})
	require.NoError(t, err)
	assert.Zero(t, got.ArgumentAddr)
	assert.Zero(t, got.ArgumentLen)
	assert.Zero(t, got.Flags)
	assert.Zero(t, got.RC)
	assert.Zero(t, got.RRC)
}

func TestSendCmdPayload(t *testing.T) {
	dev := testDevice(t)
	data := []byte{1, 2, 3, 4, 5}

	var got uvio.ControlBlock
	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		got = *cb
		cb.RC = uvio.RCSuccess
		return nil
	})

	_, err := dev.SendCmd(&fakeCmd{data: data})
	require.NoError(t, err)
	assert.Equal(t, uint64(uintptr(unsafe.Pointer(&data[0]))), got.ArgumentAddr)
	assert.Equal(t, uint32(len(data)), got.ArgumentLen)
}

func TestSendCmdPayloadTooLarge(t *testing.T) {
	dev := testDevice(t)

	called := false
	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		called = true
		return nil
	})

	// Length metadata only, the bytes are never touched.
	var backing byte
	data := unsafe.Slice(&backing, 1<<33)

	_, err := dev.SendCmd(&fakeCmd{data: data})
	assert.ErrorIs(t, err, ErrSpecification)
	assert.False(t, called, "ioctl must not be reached")
}

func TestSendCmdOsError(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		return unix.EPERM
	})

	_, err := dev.SendCmd(&fakeCmd{})
	assert.ErrorIs(t, err, ErrIoctl)
	assert.ErrorIs(t, err, unix.EPERM)

	var cmdErr *CmdError
	assert.False(t, errors.As(err, &cmdErr))
}

func TestSendCmdClosedDevice(t *testing.T) {
	dev := testDevice(t)
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close(), "close is idempotent")

	_, err := dev.SendCmd(&fakeCmd{})
	assert.ErrorIs(t, err, ErrFileAccess)
}

func TestOpenPathMissing(t *testing.T) {
	_, err := OpenPath(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, err, ErrFileAccess)
}

func TestInfo(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		assert.Equal(t, uvio.IO(uvio.InfoNr), op)
		buf := argument(cb)
		binary.NativeEndian.PutUint64(buf[0:], 0b11111)
		binary.NativeEndian.PutUint64(buf[8:], 0b11110)
		cb.RC = uvio.RCSuccess
		return nil
	})

	info, err := dev.Info()
	require.NoError(t, err)
	assert.True(t, info.Supports(uvio.ListSecretsNr))
	assert.False(t, info.Supports(uvio.InfoNr))
}

func TestListSecrets(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		assert.Equal(t, uvio.IO(uvio.ListSecretsNr), op)
		page := argument(cb)
		binary.BigEndian.PutUint16(page[0:], 1) // stored
		binary.BigEndian.PutUint16(page[2:], 1) // total
		binary.BigEndian.PutUint16(page[16:], 3)
		binary.BigEndian.PutUint16(page[18:], 6) // AES-256
		binary.BigEndian.PutUint32(page[20:], 32)
		cb.RC = uvio.RCSuccess
		return nil
	})

	list, err := dev.ListSecrets()
	require.NoError(t, err)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, uint16(3), list.Entries[0].Index)
	assert.Equal(t, "AES-256", list.Entries[0].Type.String())
	assert.Equal(t, uint32(32), list.Entries[0].Len)
}

func TestListSecretsMoreData(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		page := argument(cb)
		binary.BigEndian.PutUint16(page[0:], 0)  // stored in this page
		binary.BigEndian.PutUint16(page[2:], 99) // total in the store
		cb.RC = uvio.RCMoreData
		return nil
	})

	// More data available is a success, a partial list is still valid.
	list, err := dev.ListSecrets()
	require.NoError(t, err)
	assert.Equal(t, uint16(99), list.Total)
}

func TestAddSecretEmptyRequest(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, answer(uvio.RCSuccess, 0))

	assert.ErrorIs(t, dev.AddSecret(nil), ErrSpecification)
}

func TestAddSecret(t *testing.T) {
	dev := testDevice(t)
	request := []byte{0xde, 0xad}

	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		assert.Equal(t, uvio.IO(uvio.AddSecretNr), op)
		assert.Equal(t, request, argument(cb))
		cb.RC = uvio.RCSuccess
		return nil
	})

	require.NoError(t, dev.AddSecret(request))
}

func TestLockSecrets(t *testing.T) {
	dev := testDevice(t)
	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		assert.Equal(t, uvio.IO(uvio.LockSecretsNr), op)
		assert.Zero(t, cb.ArgumentAddr)
		assert.Zero(t, cb.ArgumentLen)
		cb.RC = uvio.RCSuccess
		return nil
	})

	require.NoError(t, dev.LockSecrets())
}

func TestAttest(t *testing.T) {
	dev := testDevice(t)
	arcb := []byte{0x01, 0x02}
	uid := [16]byte{0: 0xaa, 15: 0xbb}

	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		assert.Equal(t, uvio.IO(uvio.AttestationNr), op)
		block := argument(cb)
		require.Len(t, block, uvio.AttestationLen)

		measAddr := binary.NativeEndian.Uint64(block[8:])
		measLen := binary.NativeEndian.Uint32(block[300:])
		meas := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(measAddr))), measLen)
		for i := range meas {
			meas[i] = 0x5a
		}
		copy(block[280:], uid[:])
		cb.RC = uvio.RCSuccess
		return nil
	})

	result, err := dev.Attest(arcb, []byte("user"), 64, 0)
	require.NoError(t, err)
	assert.Equal(t, uid, result.ConfigUID)
	require.Len(t, result.Measurement, 64)
	assert.Equal(t, byte(0x5a), result.Measurement[0])
	assert.Nil(t, result.AdditionalData)
}

func TestAttestSpecificationError(t *testing.T) {
	dev := testDevice(t)

	called := false
	mockIoctl(t, func(fd uintptr, op uint64, cb *uvio.ControlBlock) error {
		called = true
		return nil
	})

	_, err := dev.Attest(nil, nil, 64, 0)
	assert.ErrorIs(t, err, ErrSpecification)
	assert.False(t, called)
}
