package wifi

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mafik/gatekeeperd/internal/nl80211"
)

// handshakeState is which message the access point is expecting next from
// the station, matching Handshake::state in wifi.cc.
type handshakeState int

const (
	expectingEAPOL2 handshakeState = iota
	expectingEAPOL4
)

// handshake tracks one in-progress 4-way handshake, expiring after 1s of
// inactivity (matching Expirable(1s) in wifi.cc): a station that never
// completes the handshake must not hold state forever.
type handshake struct {
	mac   [6]byte
	state handshakeState
	aNonce [32]byte
	ptk    [48]byte
}

const handshakeTTL = time.Second

// OnNewStation handles a NL80211_CMD_NEW_STATION notification: it clears
// the authorized/short-preamble/WME/MFP station flags (the station is not
// yet trusted), starts a fresh handshake, and sends EAPOL-Key message 1/4.
func (ap *AccessPoint) OnNewStation(mac [6]byte) error {
	err := ap.nl.SetStation(ap.ifindex, mac, nil, []uint32{
		nl80211.StaFlagAuthorized,
		nl80211.StaFlagShortPreamble,
		nl80211.StaFlagWME,
		nl80211.StaFlagMFP,
	})
	if err != nil {
		return fmt.Errorf("wifi: clearing flags for new station %x: %w", mac, err)
	}

	h := &handshake{mac: mac, state: expectingEAPOL2}
	if _, err = rand.Read(h.aNonce[:]); err != nil {
		return fmt.Errorf("wifi: generating ANonce: %w", err)
	}

	ap.handshakes.Delete(mac)
	ap.handshakes.AddWithTTL(mac, handshakeTTL)
	ap.byMAC[mac] = h

	frame := encodeEAPOLKey(&eapolKey{
		KeyInformation: keyInformation{
			DescriptorVersion: 2,
			TypePairwise:      true,
			Ack:               true,
		},
		KeyLength:     16,
		ReplayCounter: 1,
		Nonce:         h.aNonce,
	})

	if ap.sendEAPOL == nil {
		return fmt.Errorf("wifi: no EAPOL socket bound")
	}

	return ap.sendEAPOL(mac, frame)
}

// ExpireHandshakes drops any handshake that has been waiting more than
// handshakeTTL for its next message, per spec.md §4.8's "incomplete
// handshakes are abandoned" rule.
func (ap *AccessPoint) ExpireHandshakes(now time.Time) {
	ap.handshakes.ExpireNow(now, func(mac [6]byte) {
		delete(ap.byMAC, mac)
	})
}

// HandleEAPOL dispatches an EAPOL frame received from mac to its
// in-progress handshake, if any, matching EAPOLReceiver::NotifyRead in
// wifi.cc.
func (ap *AccessPoint) HandleEAPOL(mac [6]byte, frame []byte) error {
	h, ok := ap.byMAC[mac]
	if !ok {
		return fmt.Errorf("wifi: eapol frame from station %x without an in-progress handshake", mac)
	}

	switch h.state {
	case expectingEAPOL2:
		return ap.handleEAPOL2(h, frame)
	case expectingEAPOL4:
		return ap.handleEAPOL4(h, frame)
	default:
		return fmt.Errorf("wifi: unknown handshake state for station %x", mac)
	}
}

// expectedKeyInfo23 is the Key Information field every message 2/4 and
// 4/4 from the station must present: a MIC is carried, it is a pairwise
// unicast key exchange (descriptor version 2, RSN/CCMP), and it is not an
// ack/install/request/error/SMK frame.
func expectedKeyInfo23(secure bool) keyInformation {
	return keyInformation{
		DescriptorVersion: 2,
		TypePairwise:      true,
		MIC:               true,
		Secure:            secure,
	}
}

func validateKeyInformation(got, want keyInformation) error {
	if got != want {
		return fmt.Errorf("wifi: unexpected EAPOL-Key Key Information field: got %+v, want %+v", got, want)
	}

	return nil
}

// handleEAPOL2 validates message 2/4 (the station's SNonce and MIC),
// derives the PTK, and replies with message 3/4 carrying the RSNE and the
// AES-Key-Wrapped GTK, matching Handshake::HandleEAPOL2 in wifi.cc.
func (ap *AccessPoint) handleEAPOL2(h *handshake, frame []byte) error {
	k, err := decodeEAPOLKey(frame)
	if err != nil {
		return fmt.Errorf("wifi: message 2/4 from %x: %w", h.mac, err)
	}

	if err = validateKeyInformation(k.KeyInformation, expectedKeyInfo23(false)); err != nil {
		return fmt.Errorf("wifi: message 2/4 from %x: %w", h.mac, err)
	}

	h.ptk = derivePTK(ap.psk, ap.bssid, h.mac, h.aNonce, k.Nonce)

	if !checkMIC(kck(h.ptk), frame, k.KeyMIC) {
		return fmt.Errorf("wifi: message 2/4 from %x: invalid MIC (likely a wrong Wi-Fi password)", h.mac)
	}

	h.state = expectingEAPOL4
	ap.handshakes.UpdateTTL(h.mac, handshakeTTL)

	keyData, err := ap.buildMessage3KeyData(h.ptk)
	if err != nil {
		return fmt.Errorf("wifi: message 3/4 to %x: %w", h.mac, err)
	}

	msg3 := &eapolKey{
		KeyInformation: keyInformation{
			DescriptorVersion: 2,
			TypePairwise:      true,
			Install:           true,
			Ack:               true,
			MIC:               true,
			Secure:            true,
			EncryptedKeyData:  true,
		},
		KeyLength:     16,
		ReplayCounter: 2,
		Nonce:         h.aNonce,
		KeyData:       keyData,
	}

	frame3 := encodeEAPOLKey(msg3)
	mic := computeMIC(kck(h.ptk), frame3)
	copy(frame3[81:97], mic[:])

	if ap.sendEAPOL == nil {
		return fmt.Errorf("wifi: no EAPOL socket bound")
	}

	return ap.sendEAPOL(h.mac, frame3)
}

// buildMessage3KeyData assembles the RSNE followed by the GTK KDE
// (vendor-specific element, OUI 00:0F:AC type 1, "GTK KDE format"), padded
// to a multiple of 8 bytes and wrapped with ptk's KEK, matching the
// key_data construction in Handshake::HandleEAPOL2 in wifi.cc.
func (ap *AccessPoint) buildMessage3KeyData(ptk [48]byte) (wrapped []byte, err error) {
	var keyData []byte
	keyData = append(keyData, rsneWPA2()...)

	gtkKDE := make([]byte, 0, 6+16)
	gtkKDE = append(gtkKDE, 0x00, 0x0F, 0xAC, 0x01) // OUI + type
	gtkKDE = append(gtkKDE, 0x01, 0x00)             // key id 1, tx=0, reserved
	gtkKDE = append(gtkKDE, ap.gtk[:]...)

	keyData = appendElement(keyData, elemVendorSpecific, gtkKDE)

	if len(keyData)%8 != 0 {
		keyData = append(keyData, 0xDD)
	}
	for len(keyData)%8 != 0 {
		keyData = append(keyData, 0)
	}

	return aesKeyWrap(kek(ptk), keyData)
}

// handleEAPOL4 validates message 4/4's MIC, installs the PTK's TK as the
// pairwise CCMP key, marks the station authorized, and discards the
// handshake, matching Handshake::HandleEAPOL4 in wifi.cc.
func (ap *AccessPoint) handleEAPOL4(h *handshake, frame []byte) error {
	k, err := decodeEAPOLKey(frame)
	if err != nil {
		return fmt.Errorf("wifi: message 4/4 from %x: %w", h.mac, err)
	}

	if err = validateKeyInformation(k.KeyInformation, expectedKeyInfo23(true)); err != nil {
		return fmt.Errorf("wifi: message 4/4 from %x: %w", h.mac, err)
	}

	if !checkMIC(kck(h.ptk), frame, k.KeyMIC) {
		return fmt.Errorf("wifi: message 4/4 from %x: invalid MIC (likely a wrong Wi-Fi password)", h.mac)
	}

	mac := h.mac
	if err = ap.nl.NewKey(ap.ifindex, &mac, tk(h.ptk), cipherCCMP, 0); err != nil {
		return fmt.Errorf("wifi: installing pairwise key for %x: %w", h.mac, err)
	}

	if err = ap.nl.SetStation(ap.ifindex, h.mac, []uint32{nl80211.StaFlagAuthorized}, nil); err != nil {
		return fmt.Errorf("wifi: authorizing station %x: %w", h.mac, err)
	}

	ap.handshakes.Delete(h.mac)
	delete(ap.byMAC, h.mac)

	return nil
}
