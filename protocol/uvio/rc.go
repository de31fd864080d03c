package uvio

// Response codes that denote a successful execution. Everything else is an
// error reported by the Ultravisor.
const (
	// RCSuccess means the command executed successfully.
	RCSuccess uint16 = 0x0001
	// RCMoreData means the command executed successfully, but there is
	// more data available than the buffer could hold. The returned data
	// is still valid.
	RCMoreData uint16 = 0x0100
)

// TextUnexpected is the fallback text for response codes neither the generic
// vocabulary nor the command itself can explain.
const TextUnexpected = "unexpected error-code"

// GenericText translates the response codes every Ultravisor command shares
// into human-readable text. Command-specific codes are left to the command's
// ReasonText.
func GenericText(rc uint16) (string, bool) {
	switch rc {
	case 0x0000:
		return "invalid rc", true
	case 0x0002:
		return "invalid UV command", true
	case 0x0005:
		return "request has an invalid size", true
	case 0x0030:
		return "home address space control bit has R-bit set to one", true
	case 0x0031:
		return "access exception", true
	case 0x0032:
		return "request contains virtual address translating to an invalid address", true
	}
	return "", false
}
