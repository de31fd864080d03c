package uvio

import "fmt"

// InfoCmd queries the capability bitmaps of the uvdevice and the Ultravisor.
// The whole payload is output; the device fills it during the call.
type InfoCmd struct {
	buf [DeviceInfoLen]byte
}

// NewInfoCmd returns a device-info query command.
func NewInfoCmd() *InfoCmd {
	return &InfoCmd{}
}

// Op implements Cmd.
func (c *InfoCmd) Op() uint64 { return IO(InfoNr) }

// Data implements Cmd.
func (c *InfoCmd) Data() []byte { return c.buf[:] }

// ReasonText implements Cmd. The info ioctl is answered by the device driver
// alone, so there are no command-specific response codes.
func (c *InfoCmd) ReasonText(rc, rrc uint16) (string, bool) { return "", false }

// Info decodes the bitmaps the device wrote during the call.
func (c *InfoCmd) Info() (*DeviceInfo, error) {
	return DecodeDeviceInfo(c.buf[:])
}

// AddSecretCmd sends an add-secret request. The request block is built and
// cryptographically bound elsewhere; this layer treats it as opaque bytes.
type AddSecretCmd struct {
	request []byte
}

// NewAddSecretCmd returns an add-secret command for the given request block.
// It fails when the request exceeds AddSecretMaxLen.
func NewAddSecretCmd(request []byte) (*AddSecretCmd, error) {
	if len(request) == 0 {
		return nil, fmt.Errorf("add-secret request must not be empty")
	}
	if len(request) > AddSecretMaxLen {
		return nil, fmt.Errorf("add-secret request of %d bytes exceeds the maximum of %d", len(request), AddSecretMaxLen)
	}
	return &AddSecretCmd{request: request}, nil
}

// Op implements Cmd.
func (c *AddSecretCmd) Op() uint64 { return IO(AddSecretNr) }

// Data implements Cmd.
func (c *AddSecretCmd) Data() []byte { return c.request }

// ReasonText implements Cmd.
func (c *AddSecretCmd) ReasonText(rc, rrc uint16) (string, bool) { return "", false }

// ListSecretsCmd retrieves one page of secret list entries. The whole
// payload is output.
type ListSecretsCmd struct {
	page [ListSecretsLen]byte
}

// NewListSecretsCmd returns a list-secrets command.
func NewListSecretsCmd() *ListSecretsCmd {
	return &ListSecretsCmd{}
}

// Op implements Cmd.
func (c *ListSecretsCmd) Op() uint64 { return IO(ListSecretsNr) }

// Data implements Cmd.
func (c *ListSecretsCmd) Data() []byte { return c.page[:] }

// ReasonText implements Cmd.
func (c *ListSecretsCmd) ReasonText(rc, rrc uint16) (string, bool) { return "", false }

// Page returns the list page the device wrote during the call.
func (c *ListSecretsCmd) Page() []byte { return c.page[:] }

// LockSecretsCmd disables all further add-secret requests until the next
// guest reboot. The command carries no argument data.
type LockSecretsCmd struct{}

// NewLockSecretsCmd returns a lock-secrets command.
func NewLockSecretsCmd() *LockSecretsCmd {
	return &LockSecretsCmd{}
}

// Op implements Cmd.
func (c *LockSecretsCmd) Op() uint64 { return IO(LockSecretsNr) }

// Data implements Cmd.
func (c *LockSecretsCmd) Data() []byte { return nil }

// ReasonText implements Cmd.
func (c *LockSecretsCmd) ReasonText(rc, rrc uint16) (string, bool) { return "", false }
