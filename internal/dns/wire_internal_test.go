package dns

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		ID:      0xBEEF,
		QR:      true,
		Opcode:  OpQuery,
		AA:      true,
		TC:      false,
		RD:      true,
		RA:      true,
		RCode:   RCodeNoError,
		QDCount: 1,
		ANCount: 2,
		NSCount: 0,
		ARCount: 0,
	}

	buf := h.Encode(nil)
	require.Len(t, buf, headerLen)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 4))
	assert.Error(t, err)
}

func TestNameEncodeDecodeRoundTrip(t *testing.T) {
	for _, name := range []string{"example.com", "a.b.c.example.lan", "single"} {
		buf, err := encodeName(nil, name)
		require.NoError(t, err)

		got, next, err := decodeName(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, name, got)
		assert.Equal(t, len(buf), next)
	}
}

func TestNameDecodeLowercases(t *testing.T) {
	buf, err := encodeName(nil, "Example.COM")
	require.NoError(t, err)

	got, _, err := decodeName(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "example.com", got)
}

// TestNameDecodeFollowsCompressionPointer reproduces a minimal compressed
// message: a first name written in full, followed by a second question
// whose name is nothing but a pointer back to the first.
func TestNameDecodeFollowsCompressionPointer(t *testing.T) {
	buf, err := encodeName(nil, "example.com")
	require.NoError(t, err)
	firstNameEnd := len(buf)

	buf = append(buf, 0xC0, 0x00) // pointer to offset 0

	got, next, err := decodeName(buf, firstNameEnd)
	require.NoError(t, err)
	assert.Equal(t, "example.com", got)
	assert.Equal(t, firstNameEnd+2, next)
}

func TestNameDecodeRejectsForwardPointer(t *testing.T) {
	buf := []byte{0xC0, 0x05, 0, 0, 0, 0, 0}

	_, _, err := decodeName(buf, 0)
	assert.Error(t, err)
}

func TestNameDecodeRejectsSelfPointer(t *testing.T) {
	buf := []byte{0xC0, 0x00}

	_, _, err := decodeName(buf, 0)
	assert.Error(t, err)
}

func TestNameDecodeRejectsReadPastEnd(t *testing.T) {
	buf := []byte{5, 'h', 'e', 'l'} // label claims 5 bytes, only 3 present

	_, _, err := decodeName(buf, 0)
	assert.Error(t, err)
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg := &Message{
		Header: Header{ID: 42, RD: true, Opcode: OpQuery},
		Questions: []Question{
			{Name: "example.com", Type: TypeA, Class: ClassIN},
		},
		Answers: []Record{
			{
				Question: Question{Name: "example.com", Type: TypeA, Class: ClassIN},
				TTL:      300,
				RData:    []byte{93, 184, 216, 34},
			},
		},
	}

	buf, err := Encode(msg)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(msg.Questions, got.Questions); diff != "" {
		t.Errorf("questions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(msg.Answers, got.Answers); diff != "" {
		t.Errorf("answers mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, msg.ID, got.ID)
	assert.True(t, got.RD)
}

// TestCNAMERoundTripIsCanonical reproduces spec.md §8's CNAME round-trip
// law: a record whose rdata is a compression pointer is decoded into a
// fully decompressed, canonical name, byte-equal to a plain (uncompressed)
// encoding of the same target.
func TestCNAMERoundTripIsCanonical(t *testing.T) {
	// "target.example.com" written once at offset 0, pointed to by the
	// CNAME record's rdata instead of being spelled out again.
	buf, err := encodeName(nil, "target.example.com")
	require.NoError(t, err)

	recordStart := len(buf)

	nameBuf, err := encodeName(nil, "alias.example.com")
	require.NoError(t, err)
	buf = append(buf, nameBuf...)

	var fixed [10]byte
	fixed[0], fixed[1] = byte(TypeCNAME>>8), byte(TypeCNAME)
	fixed[2], fixed[3] = byte(ClassIN>>8), byte(ClassIN)
	// TTL left zero.
	fixed[8], fixed[9] = 0, 2 // rdlength: 2-byte compression pointer
	buf = append(buf, fixed[:]...)
	buf = append(buf, 0xC0, 0x00) // pointer to offset 0

	r, _, err := decodeRecord(buf, recordStart)
	require.NoError(t, err)

	canonical, err := encodeName(nil, "target.example.com")
	require.NoError(t, err)
	assert.Equal(t, canonical, r.RData)
}

func TestEncodeNameRejectsEmptyLabel(t *testing.T) {
	_, err := encodeName(nil, "a..b")
	assert.Error(t, err)
}
