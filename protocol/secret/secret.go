// Package secret interprets list-secrets replies from the Ultravisor.
//
// A list-secrets call fills one 4 KiB page with a header and up to 85 fixed
// size entries describing the retrievable secrets stored for this secure
// execution guest. The page is produced by the firmware, so all multi-byte
// fields are big-endian.
package secret

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/sertonix/go-uvdevice/protocol/uvio"
)

const (
	// IDLen is the size of a secret identifier.
	IDLen = 32
	// EntryLen is the size of one secret list entry on the wire.
	EntryLen = 48

	headerLen  = 16
	maxEntries = (uvio.ListSecretsLen - headerLen) / EntryLen
)

// Type identifies the kind of a retrievable secret.
type Type uint16

// Secret types reported by the Ultravisor.
const (
	TypeNull          Type = 0x01
	TypeAPAssociation Type = 0x02
	TypePlainText     Type = 0x03
	TypeAES128        Type = 0x04
	TypeAES192        Type = 0x05
	TypeAES256        Type = 0x06
	TypeAESXTS128     Type = 0x07
	TypeAESXTS256     Type = 0x08
	TypeHMACSHA256    Type = 0x09
	TypeHMACSHA512    Type = 0x0a
	TypeECDSAP256     Type = 0x11
	TypeECDSAP384     Type = 0x12
	TypeECDSAP521     Type = 0x13
	TypeEdDSAED25519  Type = 0x14
	TypeEdDSAED448    Type = 0x15
)

var typeNames = map[Type]string{
	TypeNull:          "NULL",
	TypeAPAssociation: "AP-ASSOCIATION",
	TypePlainText:     "PLAIN-TEXT",
	TypeAES128:        "AES-128",
	TypeAES192:        "AES-192",
	TypeAES256:        "AES-256",
	TypeAESXTS128:     "AES-XTS-128",
	TypeAESXTS256:     "AES-XTS-256",
	TypeHMACSHA256:    "HMAC-SHA-256",
	TypeHMACSHA512:    "HMAC-SHA-512",
	TypeECDSAP256:     "ECDSA-P256",
	TypeECDSAP384:     "ECDSA-P384",
	TypeECDSAP521:     "ECDSA-P521",
	TypeEdDSAED25519:  "EDDSA-ED25519",
	TypeEdDSAED448:    "EDDSA-ED448",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "[UNKNOWN]"
}

// ID is the identifier of a retrievable secret.
type ID [IDLen]byte

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText renders the identifier as lowercase hex.
func (id ID) MarshalText() ([]byte, error) {
	dst := make([]byte, hex.EncodedLen(IDLen))
	hex.Encode(dst, id[:])
	return dst, nil
}

// UnmarshalText parses a hex-encoded identifier.
func (id *ID) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != IDLen {
		return fmt.Errorf("secret id must be %d hex bytes", IDLen)
	}
	_, err := hex.Decode(id[:], text)
	return err
}

// Entry describes one retrievable secret stored by the Ultravisor.
type Entry struct {
	// Index identifies the secret within the secret store.
	Index uint16 `json:"index" cbor:"1,keyasint"`
	// Type is the secret type.
	Type Type `json:"type" cbor:"2,keyasint"`
	// Len is the size of the secret itself in bytes.
	Len uint32 `json:"len" cbor:"3,keyasint"`
	// ID is the identifier the secret was added under.
	ID ID `json:"id" cbor:"4,keyasint"`
}

// List is one decoded page of the Ultravisor's secret store.
//
// When Total is larger than Stored the store holds more secrets than one
// page can carry; NextIndex is where a follow-up listing would continue.
type List struct {
	// Stored is the number of entries in this page.
	Stored uint16 `json:"num_secrets_stored" cbor:"1,keyasint"`
	// Total is the number of secrets in the secret store.
	Total uint16 `json:"num_secrets_total" cbor:"2,keyasint"`
	// NextIndex is the index of the next secret after this page.
	NextIndex uint16 `json:"next_secret_idx" cbor:"3,keyasint"`
	// Entries are the decoded secret entries.
	Entries []Entry `json:"secrets" cbor:"4,keyasint"`
}

// DecodeList parses a list-secrets page as filled in by the device.
func DecodeList(page []byte) (*List, error) {
	if len(page) != uvio.ListSecretsLen {
		return nil, fmt.Errorf("secret list page must be %d bytes, got %d", uvio.ListSecretsLen, len(page))
	}

	l := &List{
		Stored:    binary.BigEndian.Uint16(page[0:]),
		Total:     binary.BigEndian.Uint16(page[2:]),
		NextIndex: binary.BigEndian.Uint16(page[4:]),
	}
	n := int(l.Stored)
	if n > maxEntries {
		return nil, fmt.Errorf("secret list claims %d stored entries, page holds at most %d", n, maxEntries)
	}

	l.Entries = make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		raw := page[headerLen+i*EntryLen:]
		e := Entry{
			Index: binary.BigEndian.Uint16(raw[0:]),
			Type:  Type(binary.BigEndian.Uint16(raw[2:])),
			Len:   binary.BigEndian.Uint32(raw[4:]),
		}
		copy(e.ID[:], raw[16:16+IDLen])
		l.Entries = append(l.Entries, e)
	}
	return l, nil
}
