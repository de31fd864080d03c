package secret

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sertonix/go-uvdevice/protocol/uvio"
)

func putEntry(page []byte, i int, e Entry) {
	raw := page[headerLen+i*EntryLen:]
	binary.BigEndian.PutUint16(raw[0:], e.Index)
	binary.BigEndian.PutUint16(raw[2:], uint16(e.Type))
	binary.BigEndian.PutUint32(raw[4:], e.Len)
	copy(raw[16:], e.ID[:])
}

func TestDecodeList(t *testing.T) {
	page := make([]byte, uvio.ListSecretsLen)
	binary.BigEndian.PutUint16(page[0:], 2)  // stored
	binary.BigEndian.PutUint16(page[2:], 5)  // total
	binary.BigEndian.PutUint16(page[4:], 12) // next index

	first := Entry{Index: 1, Type: TypeAES256, Len: 32}
	first.ID[0] = 0xab
	second := Entry{Index: 2, Type: TypePlainText, Len: 7}
	second.ID[31] = 0xcd
	putEntry(page, 0, first)
	putEntry(page, 1, second)

	list, err := DecodeList(page)
	require.NoError(t, err)

	assert.Equal(t, uint16(2), list.Stored)
	assert.Equal(t, uint16(5), list.Total)
	assert.Equal(t, uint16(12), list.NextIndex)
	require.Len(t, list.Entries, 2)
	assert.Equal(t, first, list.Entries[0])
	assert.Equal(t, second, list.Entries[1])
}

func TestDecodeListEmpty(t *testing.T) {
	list, err := DecodeList(make([]byte, uvio.ListSecretsLen))
	require.NoError(t, err)
	assert.Zero(t, list.Stored)
	assert.Empty(t, list.Entries)
}

func TestDecodeListBadLength(t *testing.T) {
	_, err := DecodeList(make([]byte, uvio.ListSecretsLen-1))
	assert.Error(t, err)
}

func TestDecodeListTooManyEntries(t *testing.T) {
	page := make([]byte, uvio.ListSecretsLen)
	binary.BigEndian.PutUint16(page[0:], maxEntries+1)
	_, err := DecodeList(page)
	assert.Error(t, err)
}

func TestPageCapacity(t *testing.T) {
	// 85 entries of 48 bytes plus the header fill the page exactly.
	assert.Equal(t, 85, maxEntries)
	assert.Equal(t, uvio.ListSecretsLen, headerLen+maxEntries*EntryLen)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "AES-128", TypeAES128.String())
	assert.Equal(t, "EDDSA-ED448", TypeEdDSAED448.String())
	assert.Equal(t, "[UNKNOWN]", Type(0xfff0).String())
}

func TestIDText(t *testing.T) {
	var id ID
	id[0] = 0x0f
	id[31] = 0xf0

	text, err := id.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0f"+strings.Repeat("00", 30)+"f0", string(text))

	var parsed ID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, id, parsed)

	assert.Error(t, parsed.UnmarshalText([]byte("abcd")))
}
