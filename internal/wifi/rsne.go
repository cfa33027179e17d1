package wifi

import "encoding/binary"

// Element IDs used by the beacon and EAPOL-Key frames this package builds,
// per IEEE 802.11-2016 §9.4.2.1.
const (
	elemSSID                = 0
	elemSuppRates           = 1
	elemDSSSParamSet        = 3
	elemHTCapabilities      = 45
	elemRSN                 = 48
	elemHTOperation         = 61
	elemExtendedCapa        = 127
	elemVHTCapabilities     = 191
	elemVHTOperation        = 192
	elemTxPowerEnvelope     = 195
	elemVendorSpecific      = 221
)

// cipherCCMP and akmPSK are the 4-byte (OUI + suite type) selectors used in
// the RSNE, matching nl80211.CipherCCMP/nl80211.AKMPSK.
const (
	cipherCCMP = 0x000FAC04
	akmPSK     = 0x000FAC02
)

// rsneWPA2 builds a WPA2-Personal RSN Element: group cipher CCMP, one
// pairwise cipher (CCMP), one AKM (PSK), and RSN Capabilities with a
// GTKSA replay counter usage of SIXTEEN (required by WMM), matching
// RSNE_WPA2 in wifi.cc (§9.4.2.25).
func rsneWPA2() []byte {
	buf := make([]byte, 2+2+4+2+4+2+4+2)
	i := 0

	buf[i] = elemRSN
	i++
	buf[i] = byte(len(buf) - 2)
	i++

	binary.LittleEndian.PutUint16(buf[i:], 1) // version
	i += 2

	binary.BigEndian.PutUint32(buf[i:], cipherCCMP) // group cipher suite
	i += 4

	binary.LittleEndian.PutUint16(buf[i:], 1) // pairwise cipher suite count
	i += 2
	binary.BigEndian.PutUint32(buf[i:], cipherCCMP)
	i += 4

	binary.LittleEndian.PutUint16(buf[i:], 1) // AKM suite count
	i += 2
	binary.BigEndian.PutUint32(buf[i:], akmPSK)
	i += 4

	// RSN Capabilities: bit 13-14 GTKSA replay counter usage = SIXTEEN (0b11).
	binary.LittleEndian.PutUint16(buf[i:], 0b11<<13)

	return buf
}

// appendElement appends a TLV element (1-byte id, 1-byte length, data) to
// buf, mirroring AppendElementRange in wifi.cc.
func appendElement(buf []byte, id byte, data []byte) []byte {
	buf = append(buf, id, byte(len(data)))
	buf = append(buf, data...)

	return buf
}
