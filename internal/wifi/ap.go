package wifi

import (
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/mafik/gatekeeperd/internal/expirable"
	"github.com/mafik/gatekeeperd/internal/nl80211"
)

// Config bundles what the access point needs to know about the interface
// and network it is serving, passed in explicitly per spec.md §9.
type Config struct {
	Interface string
	SSID      string
	Password  string
}

// AccessPoint owns one wireless interface in AP mode: it brings the
// interface up with a beacon and RSNE advertising WPA2-Personal, and runs
// the per-station 4-way handshake over the EAPOL socket. Grounded on
// AccessPoint in wifi.cc.
type AccessPoint struct {
	nl  *nl80211.Conn
	log *slog.Logger

	ifindex int
	bssid   [6]byte

	psk []byte
	gtk [16]byte

	handshakes *expirable.Registry[[6]byte]
	byMAC      map[[6]byte]*handshake

	sendEAPOL func(mac [6]byte, frame []byte) error
}

// New brings ifaceName up as a WPA2-Personal access point named ssid, with
// the given passphrase. nl must already be dialed. sendEAPOL transmits a
// raw EAPOL frame to the station with the given MAC, bound in by the
// caller once the EAPOL socket exists (see [Socket]).
func New(nl *nl80211.Conn, cfg Config, log *slog.Logger) (ap *AccessPoint, err error) {
	wiphys, err := nl.GetWiphys()
	if err != nil {
		return nil, fmt.Errorf("wifi: listing wiphys: %w", err)
	}
	if len(wiphys) == 0 {
		return nil, fmt.Errorf("wifi: no wireless radios found")
	}
	wiphy := wiphys[0]

	var band *nl80211.Band
	for i := range wiphy.Bands {
		if wiphy.Bands[i].Number == 1 { // NL80211_BAND_5GHZ
			band = &wiphy.Bands[i]

			break
		}
	}
	if band == nil {
		return nil, fmt.Errorf("wifi: wiphy %s has no 5GHz band", wiphy.Name)
	}

	reg, err := nl.GetRegulatory()
	if err != nil {
		return nil, fmt.Errorf("wifi: getting regulatory domain: %w", err)
	}

	ch, ok := wiphy.ChooseChannel(reg)
	if !ok {
		return nil, fmt.Errorf("wifi: no usable channel for wiphy %s under regulatory domain %s", wiphy.Name, reg.Alpha2)
	}

	ifaces, err := nl.GetInterfaces()
	if err != nil {
		return nil, fmt.Errorf("wifi: listing interfaces: %w", err)
	}

	var iface *nl80211.Interface
	for i := range ifaces {
		if ifaces[i].Name == cfg.Interface {
			iface = &ifaces[i]

			break
		}
	}
	if iface == nil {
		return nil, fmt.Errorf("wifi: wireless interface %q not found", cfg.Interface)
	}

	if iface.Type != nl80211.IftypeAP {
		if err = nl.SetInterface(iface.Index, nl80211.IftypeAP); err != nil {
			return nil, fmt.Errorf("wifi: switching %q to AP mode: %w", cfg.Interface, err)
		}
	}

	channel := channelNumber(ch.FrequencyMHz)
	hasHT := band.HasHT
	hasVHT := band.HasVHT

	head, tail, ie := BuildBeacon(iface.MAC, cfg.SSID, channel, hasHT, hasVHT)

	if err = nl.SetChannel(iface.Index, ch); err != nil {
		return nil, fmt.Errorf("wifi: setting channel: %w", err)
	}

	err = nl.StartAP(iface.Index, nl80211.BeaconParams{
		BeaconHead:      head,
		BeaconTail:      tail,
		BeaconInterval:  100,
		DTIMPeriod:      2,
		SSID:            cfg.SSID,
		HiddenSSID:      0,
		Privacy:         true,
		AuthType:        0, // NL80211_AUTHTYPE_OPEN_SYSTEM
		WPAVersions:     2, // NL80211_WPA_VERSION_2
		AKMSuites:       []uint32{nl80211.AKMPSK},
		PairwiseCiphers: []uint32{nl80211.CipherCCMP},
		GroupCipher:     nl80211.CipherCCMP,
		IE:              ie,
		IEProbeResp:     ie,
		IEAssocResp:     ie,
		SocketOwner:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("wifi: starting AP on %q: %w", cfg.Interface, err)
	}

	// Deauthenticate every currently-associated station: a restart must
	// not leave stale associations around.
	broadcast := [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	err = nl.DelStation(iface.Index, &broadcast, &nl80211.DisconnectReason{
		Deauthentication: true,
		ReasonCode:       2, // INVALID_AUTHENTICATION
	})
	if err != nil {
		return nil, fmt.Errorf("wifi: deauthenticating stations on %q: %w", cfg.Interface, err)
	}

	var gtk [16]byte
	if _, err = rand.Read(gtk[:]); err != nil {
		return nil, fmt.Errorf("wifi: generating GTK: %w", err)
	}

	if err = nl.NewKey(iface.Index, nil, gtk[:], nl80211.CipherCCMP, 1); err != nil {
		return nil, fmt.Errorf("wifi: installing GTK: %w", err)
	}
	if err = nl.SetKey(iface.Index, 1, true, true); err != nil {
		return nil, fmt.Errorf("wifi: setting default GTK: %w", err)
	}

	ap = &AccessPoint{
		nl:         nl,
		log:        log,
		ifindex:    iface.Index,
		bssid:      iface.MAC,
		psk:        derivePSK(cfg.Password, cfg.SSID),
		gtk:        gtk,
		handshakes: expirable.New[[6]byte](),
		byMAC:      make(map[[6]byte]*handshake),
	}

	return ap, nil
}

// channelNumber converts a 5GHz frequency in MHz to an 802.11 channel
// number, per IEEE 802.11-2016 §17.3.8.4.2 (channel = (freq-5000)/5).
func channelNumber(freqMHz uint32) uint8 {
	return uint8((freqMHz - 5000) / 5)
}
