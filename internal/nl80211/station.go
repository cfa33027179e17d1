package nl80211

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"
)

func putNativeUint32(b []byte, v uint32) { binary.NativeEndian.PutUint32(b, v) }

func encodeKeyAttrs(keyData []byte, cipher uint32, keyIndex uint8, defaultUnicast, defaultMulticast bool, setDefault bool) (attrs []byte, err error) {
	ae := netlink.NewAttributeEncoder()
	if keyData != nil {
		ae.Bytes(attrKeyData, keyData)
	}
	if cipher != 0 {
		ae.Uint32(attrKeyCipher, cipher)
	}
	ae.Uint8(attrKeyIdx, keyIndex)
	if setDefault {
		ae.Flag(attrKeyDefault, true)
	}

	if defaultUnicast || defaultMulticast {
		dae := netlink.NewAttributeEncoder()
		if defaultUnicast {
			dae.Flag(keyDefaultTypeUnicast, true)
		}
		if defaultMulticast {
			dae.Flag(keyDefaultTypeMulticast, true)
		}
		defaultTypes, dErr := dae.Encode()
		if dErr != nil {
			return nil, dErr
		}
		ae.Bytes(attrKeyDefaultTypes|nlaFNested, defaultTypes)
	}

	return ae.Encode()
}

// NewKey installs a pairwise (mac non-nil) or group (mac nil) key, as used
// when delivering the PTK after a successful 4-way handshake or the GTK at
// AP bring-up.
func (c *Conn) NewKey(ifindex int, mac *[6]byte, keyData []byte, cipher uint32, keyIndex uint8) (err error) {
	keyAttrs, err := encodeKeyAttrs(keyData, cipher, keyIndex, false, false, false)
	if err != nil {
		return fmt.Errorf("encoding NEW_KEY key attrs: %w", err)
	}

	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	if mac != nil {
		ae.Bytes(attrMAC, mac[:])
	}
	ae.Bytes(keyAttrNested, keyAttrs)

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding NEW_KEY: %w", err)
	}

	if err = c.do(cmdNewKey, attrs); err != nil {
		return fmt.Errorf("NEW_KEY ifindex=%d idx=%d: %w", ifindex, keyIndex, err)
	}

	return nil
}

// SetKey marks keyIndex as the default transmit key (used for the GTK,
// since the kernel must know which key index to use for outgoing broadcast
// traffic).
func (c *Conn) SetKey(ifindex int, keyIndex uint8, defaultUnicast, defaultMulticast bool) (err error) {
	keyAttrs, err := encodeKeyAttrs(nil, 0, keyIndex, defaultUnicast, defaultMulticast, false)
	if err != nil {
		return fmt.Errorf("encoding SET_KEY key attrs: %w", err)
	}

	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	ae.Bytes(keyAttrNested, keyAttrs)

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding SET_KEY: %w", err)
	}

	if err = c.do(cmdSetKey, attrs); err != nil {
		return fmt.Errorf("SET_KEY ifindex=%d idx=%d: %w", ifindex, keyIndex, err)
	}

	return nil
}

// SetStation updates a station's sta_flags2 mask: setFlags are both masked
// and set, clearFlags are masked but cleared. Used to flip a station to
// "authorized" once the 4-way handshake completes.
func (c *Conn) SetStation(ifindex int, mac [6]byte, setFlags, clearFlags []uint32) (err error) {
	var mask, set uint32
	for _, f := range setFlags {
		mask |= 1 << f
		set |= 1 << f
	}
	for _, f := range clearFlags {
		mask |= 1 << f
	}

	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	ae.Bytes(attrMAC, mac[:])

	flagUpdate := make([]byte, 8)
	putNativeUint32(flagUpdate[0:4], mask)
	putNativeUint32(flagUpdate[4:8], set)
	ae.Bytes(attrStaFlags2, flagUpdate)

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding SET_STATION: %w", err)
	}

	if err = c.do(cmdSetStation, attrs); err != nil {
		return fmt.Errorf("SET_STATION ifindex=%d mac=%x: %w", ifindex, mac, err)
	}

	return nil
}

// keyAttrNested is NL80211_ATTR_KEY, the nested container for the
// per-key attributes built by encodeKeyAttrs.
const keyAttrNested = 80
