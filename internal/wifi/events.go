package wifi

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/mafik/gatekeeperd/internal/nl80211"
)

// Events is the nl80211 "mlme" multicast group, demultiplexed by ifindex to
// the [AccessPoint] that owns each interface, matching how wifi.cc's
// Netlink::NotifyRead dispatches NEW_STATION notifications into
// AccessPoint::OnNewStation.
type Events struct {
	nl  *nl80211.Conn
	log *slog.Logger
	aps map[int]*AccessPoint
}

// NewEvents joins the nl80211 "mlme" group on nl, so subsequent [Events.OnRead]
// calls see every station association/disassociation across every AP mode
// interface on the host.
func NewEvents(nl *nl80211.Conn, log *slog.Logger) (e *Events, err error) {
	if err = nl.JoinGroup(nl80211.MulticastGroup); err != nil {
		return nil, fmt.Errorf("wifi: joining %q multicast group: %w", nl80211.MulticastGroup, err)
	}

	return &Events{nl: nl, log: log, aps: make(map[int]*AccessPoint)}, nil
}

// Bind registers ap to receive station events for its interface.
func (e *Events) Bind(ap *AccessPoint) { e.aps[ap.ifindex] = ap }

// Fd implements internal/reactor.Listener.
func (e *Events) Fd() int { return e.nl.Fd() }

// Name implements internal/reactor.Listener.
func (e *Events) Name() string { return "wifi-events" }

// WantWrite implements internal/reactor.Listener.
func (e *Events) WantWrite() bool { return false }

// OnWrite implements internal/reactor.Listener.
func (e *Events) OnWrite() error { return nil }

// OnRead drains every pending multicast notification, dispatching
// NEW_STATION events to the owning access point and ignoring everything
// else the "mlme" group carries.
func (e *Events) OnRead() (err error) {
	msgs, err := e.nl.Receive()
	if err != nil {
		return errors.Annotate(err, "wifi: receiving station events: %w")
	}

	for _, msg := range msgs {
		ev, ok, parseErr := nl80211.ParseStationEvent(msg)
		if parseErr != nil {
			e.log.Warn("dropping unparsable station event", "error", parseErr)

			continue
		}
		if !ok || !ev.New {
			continue
		}

		ap, ok := e.aps[ev.Ifindex]
		if !ok {
			continue
		}

		if handleErr := ap.OnNewStation(ev.MAC); handleErr != nil {
			ap.log.Warn("new station handling failed", "error", handleErr, "mac", net.HardwareAddr(ev.MAC[:]))
		}
	}

	return nil
}
