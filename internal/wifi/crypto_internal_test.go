package wifi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePSKIsDeterministic(t *testing.T) {
	a := derivePSK("correct horse battery staple", "my-network")
	b := derivePSK("correct horse battery staple", "my-network")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	c := derivePSK("a different password", "my-network")
	assert.NotEqual(t, a, c)
}

func TestDerivePTKIsOrderIndependentInInputs(t *testing.T) {
	psk := derivePSK("password1234", "ssid")
	apMAC := [6]byte{1, 2, 3, 4, 5, 6}
	staMAC := [6]byte{6, 5, 4, 3, 2, 1}
	var aNonce, sNonce [32]byte
	for i := range aNonce {
		aNonce[i] = byte(i)
		sNonce[i] = byte(31 - i)
	}

	ptk1 := derivePTK(psk, apMAC, staMAC, aNonce, sNonce)

	// Swapping which side is "AP" and which is "STA" describes the same
	// pair, so the MAC/nonce ordering inside derivePTK must cancel it out.
	ptk2 := derivePTK(psk, staMAC, apMAC, sNonce, aNonce)

	assert.Equal(t, ptk1, ptk2)
}

func TestDerivePTKChangesWithNonce(t *testing.T) {
	psk := derivePSK("password1234", "ssid")
	apMAC := [6]byte{1, 2, 3, 4, 5, 6}
	staMAC := [6]byte{6, 5, 4, 3, 2, 1}
	var aNonce, sNonce1, sNonce2 [32]byte
	sNonce2[0] = 1

	ptk1 := derivePTK(psk, apMAC, staMAC, aNonce, sNonce1)
	ptk2 := derivePTK(psk, apMAC, staMAC, aNonce, sNonce2)

	assert.NotEqual(t, ptk1, ptk2)
}

func TestKCKKEKTKPartitionPTK(t *testing.T) {
	var ptk [48]byte
	for i := range ptk {
		ptk[i] = byte(i)
	}

	assert.Equal(t, ptk[0:16], kck(ptk))
	assert.Equal(t, ptk[16:32], kek(ptk))
	assert.Equal(t, ptk[32:48], tk(ptk))
}

func TestComputeMICIsDeterministicAndKeyDependent(t *testing.T) {
	key1 := bytes.Repeat([]byte{0xAB}, 16)
	key2 := bytes.Repeat([]byte{0xCD}, 16)
	frame := []byte("some eapol-key frame bytes")

	mic1 := computeMIC(key1, frame)
	mic2 := computeMIC(key1, frame)
	assert.Equal(t, mic1, mic2)

	mic3 := computeMIC(key2, frame)
	assert.NotEqual(t, mic1, mic3)
}

func TestAESKeyWrapUnwrapRoundTrip(t *testing.T) {
	kek := bytes.Repeat([]byte{0x11}, 16)
	plaintext := bytes.Repeat([]byte{0x42}, 16) // a GTK-sized payload

	wrapped, err := aesKeyWrap(kek, plaintext)
	require.NoError(t, err)
	assert.Len(t, wrapped, len(plaintext)+8)

	unwrapped, err := aesKeyUnwrap(kek, wrapped)
	require.NoError(t, err)
	assert.Equal(t, plaintext, unwrapped)
}

func TestAESKeyWrapRejectsNonMultipleOf8(t *testing.T) {
	kek := bytes.Repeat([]byte{0x11}, 16)
	_, err := aesKeyWrap(kek, []byte{1, 2, 3})
	assert.Error(t, err)
}
