package uvdevice

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Ultravisor sysfs attributes exported by the kernel.
const (
	sysfsUV             = "/sys/firmware/uv"
	sysfsProtVirtGuest  = "prot_virt_guest"
	sysfsMaxRetrSecrets = "query/max_retr_secrets"
)

// IsProtVirtGuest reports whether this system runs as a secure execution
// guest. Ultravisor commands only succeed when it does.
func IsProtVirtGuest() bool {
	v, err := readSysfsUint(filepath.Join(sysfsUV, sysfsProtVirtGuest))
	return err == nil && v == 1
}

// MaxRetrievableSecrets returns the number of retrievable secrets the
// Ultravisor can store for this guest. An error indicates a kernel too old
// to support retrievable secrets.
func MaxRetrievableSecrets() (uint64, error) {
	v, err := readSysfsUint(filepath.Join(sysfsUV, sysfsMaxRetrSecrets))
	if err != nil {
		return 0, newErrorMessage(ErrFileAccess, err.Error())
	}
	return v, nil
}

func readSysfsUint(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return v, nil
}
