package wifi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyInformationEncodeDecodeRoundTrip(t *testing.T) {
	ki := keyInformation{
		DescriptorVersion: 2,
		TypePairwise:      true,
		KeyIndex:          1,
		Install:           true,
		Ack:               true,
		MIC:               true,
		Secure:            true,
		Error:             false,
		Request:           false,
		EncryptedKeyData:  true,
		SMKMessage:        false,
	}

	got := decodeKeyInformation(ki.encode())
	assert.Equal(t, ki, got)
}

func TestKeyInformationBitPositionsMatch80211(t *testing.T) {
	// Descriptor version alone occupies bits 0-2.
	assert.Equal(t, uint16(2), keyInformation{DescriptorVersion: 2}.encode())
	// Pairwise is bit 3.
	assert.Equal(t, uint16(1<<3), keyInformation{TypePairwise: true}.encode())
	// Install is bit 6, Ack is bit 7.
	assert.Equal(t, uint16(1<<6), keyInformation{Install: true}.encode())
	assert.Equal(t, uint16(1<<7), keyInformation{Ack: true}.encode())
	// MIC is bit 8, Secure is bit 9.
	assert.Equal(t, uint16(1<<8), keyInformation{MIC: true}.encode())
	assert.Equal(t, uint16(1<<9), keyInformation{Secure: true}.encode())
}

func TestEAPOLKeyEncodeDecodeRoundTrip(t *testing.T) {
	k := &eapolKey{
		KeyInformation: keyInformation{DescriptorVersion: 2, TypePairwise: true, Ack: true},
		KeyLength:      16,
		ReplayCounter:  1,
		KeyData:        []byte{0x01, 0x02, 0x03},
	}
	for i := range k.Nonce {
		k.Nonce[i] = byte(i)
	}

	buf := encodeEAPOLKey(k)
	got, err := decodeEAPOLKey(buf)
	require.NoError(t, err)

	assert.Equal(t, k.KeyInformation, got.KeyInformation)
	assert.Equal(t, k.KeyLength, got.KeyLength)
	assert.Equal(t, k.ReplayCounter, got.ReplayCounter)
	assert.Equal(t, k.Nonce, got.Nonce)
	assert.Equal(t, k.KeyData, got.KeyData)
}

func TestDecodeEAPOLKeyRejectsShortFrame(t *testing.T) {
	_, err := decodeEAPOLKey(make([]byte, 10))
	assert.Error(t, err)
}

func TestDecodeEAPOLKeyRejectsWrongPacketType(t *testing.T) {
	k := &eapolKey{KeyInformation: keyInformation{DescriptorVersion: 2}}
	buf := encodeEAPOLKey(k)
	buf[1] = 0 // not "Key"

	_, err := decodeEAPOLKey(buf)
	assert.Error(t, err)
}

func TestCheckMICRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	k := &eapolKey{
		KeyInformation: keyInformation{DescriptorVersion: 2, TypePairwise: true, MIC: true},
		KeyData:        []byte("some key data"),
	}

	frame := encodeEAPOLKey(k)
	mic := computeMIC(key, frame)
	copy(frame[81:97], mic[:])

	got, err := decodeEAPOLKey(frame)
	require.NoError(t, err)
	assert.True(t, checkMIC(key, frame, got.KeyMIC))

	frame[0] ^= 0xFF // corrupt the frame
	assert.False(t, checkMIC(key, frame, got.KeyMIC))
}
