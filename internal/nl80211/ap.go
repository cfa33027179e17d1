package nl80211

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"
)

func encodeUint32Slice(vals []uint32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.NativeEndian.PutUint32(b[i*4:], v)
	}

	return b
}

// SetChannel tunes ifindex to ch, as selected by [Wiphy.ChooseChannel].
func (c *Conn) SetChannel(ifindex int, ch Channel) (err error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	ae.Uint32(attrWiphyFreq, ch.FrequencyMHz)
	ae.Uint32(attrWiphyChannelWidth, ch.Width)

	switch ch.Width {
	case ChanWidth40, ChanWidth80, ChanWidth80P80, ChanWidth160:
		ae.Uint32(attrCenterFreq1, ch.CenterFreq1)
	}

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding SET_CHANNEL: %w", err)
	}

	if err = c.do(cmdSetChannel, attrs); err != nil {
		return fmt.Errorf("SET_CHANNEL ifindex=%d freq=%d: %w", ifindex, ch.FrequencyMHz, err)
	}

	return nil
}

// BeaconParams bundles the payload of NL80211_CMD_START_AP.
type BeaconParams struct {
	BeaconHead      []byte
	BeaconTail      []byte
	BeaconInterval  uint32
	DTIMPeriod      uint32
	SSID            string
	HiddenSSID      uint32
	Privacy         bool
	AuthType        uint32
	WPAVersions     uint32
	AKMSuites       []uint32
	PairwiseCiphers []uint32
	GroupCipher     uint32
	IE              []byte
	IEProbeResp     []byte
	IEAssocResp     []byte
	SocketOwner     bool
}

// StartAP brings ifindex up as an access point with the given beacon and
// RSN parameters.
func (c *Conn) StartAP(ifindex int, p BeaconParams) (err error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	ae.Bytes(attrBeaconHead, p.BeaconHead)
	ae.Bytes(attrBeaconTail, p.BeaconTail)
	ae.Uint32(attrBeaconInterval, p.BeaconInterval)
	ae.Uint32(attrDTIMPeriod, p.DTIMPeriod)
	ae.Bytes(attrSSID, []byte(p.SSID))
	ae.Uint32(attrHiddenSSID, p.HiddenSSID)
	if p.Privacy {
		ae.Flag(attrPrivacy, true)
	}
	ae.Uint32(attrAuthType, p.AuthType)
	ae.Uint32(attrWPAVersions, p.WPAVersions)
	ae.Bytes(attrAKMSuites, encodeUint32Slice(p.AKMSuites))
	ae.Bytes(attrCipherSuitesPairwise, encodeUint32Slice(p.PairwiseCiphers))
	ae.Uint32(attrCipherSuiteGroup, p.GroupCipher)
	ae.Bytes(attrIE, p.IE)
	ae.Bytes(attrIEProbeResp, p.IEProbeResp)
	ae.Bytes(attrIEAssocResp, p.IEAssocResp)
	if p.SocketOwner {
		ae.Flag(attrSocketOwner, true)
	}

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding START_AP: %w", err)
	}

	if err = c.do(cmdStartAP, attrs); err != nil {
		return fmt.Errorf("START_AP ifindex=%d ssid=%q: %w", ifindex, p.SSID, err)
	}

	return nil
}

// StopAP tears down AP mode on ifindex.
func (c *Conn) StopAP(ifindex int) (err error) {
	attrs, err := encodeIfindex(ifindex)
	if err != nil {
		return fmt.Errorf("encoding STOP_AP: %w", err)
	}

	if err = c.do(cmdStopAP, attrs); err != nil {
		return fmt.Errorf("STOP_AP ifindex=%d: %w", ifindex, err)
	}

	return nil
}

// SetBSS adjusts basic service set parameters after [Conn.StartAP].
func (c *Conn) SetBSS(ifindex int, ctsProtection, shortPreamble, apIsolate bool, htOpmode uint16, basicRates []byte) (err error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	ae.Uint8(attrBSSCTSProt, boolToUint8(ctsProtection))
	ae.Uint8(attrBSSShortPreamble, boolToUint8(shortPreamble))
	ae.Uint16(attrBSSHTOpmode, htOpmode)
	ae.Uint8(attrAPIsolate, boolToUint8(apIsolate))
	ae.Bytes(attrBSSBasicRates, basicRates)

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding SET_BSS: %w", err)
	}

	if err = c.do(cmdSetBSS, attrs); err != nil {
		return fmt.Errorf("SET_BSS ifindex=%d: %w", ifindex, err)
	}

	return nil
}

// SetMulticastToUnicast toggles multicast-to-unicast conversion on ifindex.
func (c *Conn) SetMulticastToUnicast(ifindex int, enable bool) (err error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	if enable {
		ae.Flag(attrMulticastToUnicast, true)
	}

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding SET_MULTICAST_TO_UNICAST: %w", err)
	}

	if err = c.do(cmdSetMulticastToUnicast, attrs); err != nil {
		return fmt.Errorf("SET_MULTICAST_TO_UNICAST ifindex=%d: %w", ifindex, err)
	}

	return nil
}

// RegisterFrame asks the kernel to forward management frames matching
// frameType (e.g. EAPOL-over-the-air probe/auth subtypes) to this socket
// instead of handling them internally.
func (c *Conn) RegisterFrame(ifindex int, frameType uint16) (err error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	ae.Uint16(attrFrameType, frameType)
	ae.Bytes(attrFrameMatch, nil)

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding REGISTER_FRAME: %w", err)
	}

	if err = c.do(cmdRegisterFrame, attrs); err != nil {
		return fmt.Errorf("REGISTER_FRAME ifindex=%d type=0x%x: %w", ifindex, frameType, err)
	}

	return nil
}

// DisconnectReason carries the management subtype and reason code for
// DelStation, mirroring the reference implementation's distinction between
// deauthentication and disassociation.
type DisconnectReason struct {
	Deauthentication bool
	ReasonCode       uint16
}

// DelStation forcibly disconnects mac (or, if mac is nil, every associated
// station) from ifindex.
func (c *Conn) DelStation(ifindex int, mac *[6]byte, reason *DisconnectReason) (err error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	if mac != nil {
		ae.Bytes(attrMAC, mac[:])
	}
	if reason != nil {
		mgmtSubtype := uint8(0x0a)
		if reason.Deauthentication {
			mgmtSubtype = 0x0c
		}
		ae.Uint8(attrMgmtSubtype, mgmtSubtype)
		ae.Uint16(attrReasonCode, reason.ReasonCode)
	}

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding DEL_STATION: %w", err)
	}

	if err = c.do(cmdDelStation, attrs); err != nil {
		return fmt.Errorf("DEL_STATION ifindex=%d: %w", ifindex, err)
	}

	return nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}

	return 0
}
