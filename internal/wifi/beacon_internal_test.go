package wifi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSNEWPA2Layout(t *testing.T) {
	rsne := rsneWPA2()

	require.Len(t, rsne, 22)
	assert.Equal(t, byte(elemRSN), rsne[0])
	assert.Equal(t, byte(len(rsne)-2), rsne[1])

	groupCipher := uint32(rsne[4])<<24 | uint32(rsne[5])<<16 | uint32(rsne[6])<<8 | uint32(rsne[7])
	assert.Equal(t, uint32(cipherCCMP), groupCipher)
}

func TestBuildBeaconContainsSSIDAndRSNE(t *testing.T) {
	bssid := [6]byte{1, 2, 3, 4, 5, 6}
	head, tail, ie := BuildBeacon(bssid, "testnet", 36, true, true)

	assert.Contains(t, string(head), "testnet")
	assert.Equal(t, byte(elemRSN), tail[0])
	assert.NotEmpty(t, ie)
}

func TestAppendElementLayout(t *testing.T) {
	buf := appendElement(nil, 7, []byte{1, 2, 3})
	assert.Equal(t, []byte{7, 3, 1, 2, 3}, buf)
}
