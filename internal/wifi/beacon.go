package wifi

import (
	"encoding/binary"
)

// fixedRates are the supported-rate octets advertised in the beacon,
// carried over unchanged from wifi.cc's AppendElementRange call (basic
// rates flagged by the top bit, in 500 kbit/s units).
var fixedRates = []byte{0x8c, 0x12, 0x98, 0x24, 0xb0, 0x48, 0x60, 0x6c}

// beaconHeader builds the fixed 802.11 beacon frame header (frame
// control/duration/destination/source/BSSID/sequence control, with the
// destination set to broadcast), matching nl80211::BeaconHeader(iface.mac).
func beaconHeader(bssid [6]byte) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint16(buf[0:2], 0x0080) // Beacon, management frame
	// duration left zero
	for i := 0; i < 6; i++ {
		buf[4+i] = 0xFF // destination: broadcast
	}
	copy(buf[10:16], bssid[:])
	copy(buf[16:22], bssid[:])
	// sequence control left zero; the kernel fills it in

	return buf
}

// BuildBeacon returns the beacon head and tail, and the association/probe
// response information elements, for an AP announcing ssid on channel,
// with HT/VHT elements included only when hasHT/hasVHT is true, mirroring
// the element sequence built inline in AccessPoint's constructor in
// wifi.cc.
func BuildBeacon(bssid [6]byte, ssid string, channel uint8, hasHT, hasVHT bool) (head, tail, ie []byte) {
	head = beaconHeader(bssid)
	head = appendElement(head, elemSSID, []byte(ssid))
	head = appendElement(head, elemSuppRates, fixedRates)
	head = appendElement(head, elemDSSSParamSet, []byte{channel})

	tail = append(tail, rsneWPA2()...)

	if hasHT {
		tail = appendElement(tail, elemHTCapabilities, htCapabilities())
		tail = appendElement(tail, elemHTOperation, htOperation(channel))
	}

	extCapa := []byte{0x00, 0x00, 0x00, 0x02} // SSID list, per hostapd_eid_ext_capab
	tail = appendElement(tail, elemExtendedCapa, extCapa)
	ie = appendElement(ie, elemExtendedCapa, extCapa)

	if hasVHT {
		tail = appendElement(tail, elemVHTCapabilities, vhtCapabilities())
		tail = appendElement(tail, elemVHTOperation, vhtOperation(channel))
	}

	tail = appendElement(tail, elemTxPowerEnvelope, []byte{0x02, 127, 127, 127})

	tail = append(tail, wmmParameterElement()...)

	return head, tail, ie
}

// htCapabilities is a conservative fixed HT Capabilities element: no 40 MHz,
// no short GI, one spatial stream. The reference implementation copies the
// wiphy's reported HT capability bytes verbatim; this package's nl80211
// binding does not retain them (see DESIGN.md), so a single safe capability
// set is advertised instead.
func htCapabilities() []byte {
	buf := make([]byte, 2+1+16+2+4+1)
	// HT Capabilities Info left zero (no 40 MHz, no short GI, no greenfield).
	// A-MPDU Parameters left zero.
	buf[3] = 0x01 // basic MCS 0 supported (1 spatial stream)

	return buf
}

// htOperation is a fixed HT Operation element for the given primary
// channel, secondary channel offset and STA channel width both disabled
// (20 MHz only), matching the conservative "Secondary Channel Offset = 1,
// STA Channel Width = 1" byte from wifi.cc being simplified to 20 MHz-only
// operation since this package does not track 40 MHz channel pairing.
func htOperation(channel uint8) []byte {
	buf := make([]byte, 1+1+4+16)
	buf[0] = channel

	return buf
}

// vhtCapabilities is a conservative fixed VHT Capabilities element
// advertising no extra bandwidth support beyond what channel selection
// already negotiated.
func vhtCapabilities() []byte {
	return make([]byte, 4+8)
}

// vhtOperation builds a VHT Operation element for an 80 MHz channel
// centered on centerChannel, hardcoding MCS 0-7 support on a single
// spatial stream, matching the VHT_MCS_NSS_Map literal in wifi.cc.
func vhtOperation(centerChannel uint8) []byte {
	buf := make([]byte, 3+2)
	buf[0] = 1 // CHANNEL_WIDTH_80MHZ_160MHZ_80_80MHZ
	buf[1] = centerChannel
	// Segment 1 is left zero. The basic MCS map 0xFFFC advertises MCS 0-7
	// on stream 1 (00) and marks streams 2-8 not supported (11 each).
	binary.LittleEndian.PutUint16(buf[3:5], 0xFFFC)

	return buf
}

// wmmParameterElement builds the vendor-specific WMM Parameter element
// (OUI 00:50:F2, type 2, subtype 1), with the four default EDCA access
// category parameters from hostapd_eid_wmm, matching the AC_Parameter
// literals in wifi.cc.
func wmmParameterElement() []byte {
	var buf []byte
	buf = append(buf, 0x00, 0x50, 0xF2) // OUI
	buf = append(buf, 2, 1, 1)          // type, subtype, version

	// QoS Info (AP): EDCA parameter set count = 1, all other bits zero.
	buf = append(buf, 0x01)
	buf = append(buf, 0x00) // reserved

	type acParam struct {
		aifsn     uint8
		aci       uint8
		ecwMin    uint8
		ecwMax    uint8
		txopLimit uint16
	}
	acs := []acParam{
		{aifsn: 3, aci: 0, ecwMin: 4, ecwMax: 10},             // BE
		{aifsn: 7, aci: 1, ecwMin: 4, ecwMax: 10},             // BK
		{aifsn: 2, aci: 2, ecwMin: 3, ecwMax: 4, txopLimit: 94}, // VI
		{aifsn: 2, aci: 3, ecwMin: 2, ecwMax: 3, txopLimit: 47}, // VO
	}

	for _, ac := range acs {
		aifsnACI := ac.aifsn&0x0F | (ac.aci&0x3)<<5
		ecw := ac.ecwMin&0x0F | (ac.ecwMax&0x0F)<<4
		buf = append(buf, aifsnACI, ecw)
		var txop [2]byte
		binary.LittleEndian.PutUint16(txop[:], ac.txopLimit)
		buf = append(buf, txop[:]...)
	}

	ie := appendElement(nil, elemVendorSpecific, buf)

	return ie
}
