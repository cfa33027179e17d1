package nl80211

import (
	"fmt"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
)

// MulticastGroup is the nl80211 multicast group carrying station
// association/disassociation notifications.
const MulticastGroup = "mlme"

// StationEvent is a decoded NL80211_CMD_NEW_STATION or
// NL80211_CMD_DEL_STATION notification delivered over [MulticastGroup].
type StationEvent struct {
	New     bool
	Ifindex int
	MAC     [6]byte
}

// ParseStationEvent decodes msg into a [StationEvent] if it is a
// NEW_STATION or DEL_STATION notification, reporting ok=false for any
// other command so callers can ignore the rest of the "mlme" group's
// traffic (association requests, MLME frame TX status, and so on).
func ParseStationEvent(msg genetlink.Message) (ev StationEvent, ok bool, err error) {
	switch msg.Header.Command {
	case cmdNewStation:
		ev.New = true
	case cmdDelStation:
		ev.New = false
	default:
		return StationEvent{}, false, nil
	}

	ad, err := netlink.NewAttributeDecoder(msg.Data)
	if err != nil {
		return StationEvent{}, false, fmt.Errorf("nl80211: decoding station event: %w", err)
	}

	for ad.Next() {
		switch ad.Type() {
		case attrIfindex:
			ev.Ifindex = int(ad.Uint32())
		case attrMAC:
			copy(ev.MAC[:], ad.Bytes())
		}
	}
	if err = ad.Err(); err != nil {
		return StationEvent{}, false, fmt.Errorf("nl80211: decoding station event: %w", err)
	}

	return ev, true, nil
}
