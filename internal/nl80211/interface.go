package nl80211

import (
	"fmt"

	"github.com/mdlayher/netlink"
)

// GetInterfaces enumerates every virtual wireless interface.
func (c *Conn) GetInterfaces() (ifaces []Interface, err error) {
	payloads, err := c.dump(cmdGetInterface, nil)
	if err != nil {
		return nil, fmt.Errorf("getting interfaces: %w", err)
	}

	for _, p := range payloads {
		iface, parseErr := parseInterface(p)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing interface dump: %w", parseErr)
		}
		ifaces = append(ifaces, iface)
	}

	return ifaces, nil
}

func parseInterface(data []byte) (iface Interface, err error) {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return Interface{}, err
	}

	for ad.Next() {
		switch ad.Type() {
		case attrIfindex:
			iface.Index = int(ad.Uint32())
		case attrWiphy:
			iface.Wiphy = int(ad.Uint32())
		case attrWiphyName:
			iface.Name = ad.String()
		case attrIftype:
			iface.Type = ad.Uint32()
		case attrMAC:
			copy(iface.MAC[:], ad.Bytes())
		}
	}

	return iface, ad.Err()
}

// SetInterface switches ifindex into iftype (e.g. [IftypeAP]).
func (c *Conn) SetInterface(ifindex int, iftype uint32) (err error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))
	ae.Uint32(attrIftype, iftype)

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding SET_INTERFACE: %w", err)
	}

	if err = c.do(cmdSetInterface, attrs); err != nil {
		return fmt.Errorf("SET_INTERFACE ifindex=%d type=%d: %w", ifindex, iftype, err)
	}

	return nil
}
