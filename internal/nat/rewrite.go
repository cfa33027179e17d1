package nat

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Config holds the LAN/WAN addressing the worker needs to classify and
// rewrite packets, mirroring the globals original_source/src/firewall.cc
// reads (lan_network, lan_ip, wan_ip).
type Config struct {
	LANNetwork netip.Prefix
	LANIP      netip.Addr
	WANIP      netip.Addr
}

// Outcome describes what a worker should do with a dequeued packet.
type Outcome struct {
	// Accept is always true: this gateway never drops TCP/UDP packets it
	// classifies, matching the reference implementation, which only ever
	// constructs `netfilter::Verdict(id, true)`.
	Accept bool
	// Rewritten is the packet payload to send back with the verdict, or nil
	// to let the original payload through unchanged.
	Rewritten []byte
}

// Classify decodes payload as an IPv4 packet and applies the gateway's NAT
// policy, translating original_source/src/firewall.cc's OnReceive body.
//
// Uninteresting packets (same-side LAN<->LAN traffic not addressed to the
// WAN IP, or anything that isn't TCP/UDP) pass through unmodified. A packet
// addressed to the WAN IP is rewritten to the LAN host currently owning that
// (protocol, destination port) pair, if any. A packet originating from the
// LAN but leaving some other way is rewritten to present the WAN IP as its
// source, and the table learns the (protocol, source port) -> LAN IP mapping
// so replies can find their way back.
func Classify(table *Table, cfg Config, payload []byte) (out Outcome, warn error) {
	out.Accept = true

	pkt := gopacket.NewPacket(payload, layers.LayerTypeIPv4, gopacket.NoCopy)
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return out, nil
	}
	ip, ok := ipLayer.(*layers.IPv4)
	if !ok {
		return out, nil
	}

	src, ok := netip.AddrFromSlice(ip.SrcIP)
	if !ok {
		return out, nil
	}
	src = src.Unmap()
	dst, ok := netip.AddrFromSlice(ip.DstIP)
	if !ok {
		return out, nil
	}
	dst = dst.Unmap()

	fromNet := cfg.LANNetwork.Contains(src)
	toNet := cfg.LANNetwork.Contains(dst)

	if fromNet == toNet && dst != cfg.WANIP {
		return out, nil
	}

	var tcp *layers.TCP
	var udp *layers.UDP
	var proto uint8

	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		tcp = l.(*layers.TCP)
		proto = ProtoTCP
	} else if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		udp = l.(*layers.UDP)
		proto = ProtoUDP
	} else {
		return out, nil
	}

	switch {
	case dst == cfg.WANIP:
		var dstPort uint16
		if tcp != nil {
			dstPort = uint16(tcp.DstPort)
		} else {
			dstPort = uint16(udp.DstPort)
		}

		lanHost, found := table.Lookup(proto, dstPort)
		if !found {
			return out, nil
		}

		ip.DstIP = lanHost.AsSlice()

	case fromNet && src != cfg.LANIP:
		var srcPort uint16
		if tcp != nil {
			srcPort = uint16(tcp.SrcPort)
		} else {
			srcPort = uint16(udp.SrcPort)
		}

		prev, collided := table.Learn(proto, srcPort, src)
		if collided {
			warn = fmt.Errorf("nat table collision: port %d already mapped to %s, remapped to %s", srcPort, prev, src)
		}

		ip.SrcIP = cfg.WANIP.AsSlice()

	default:
		return out, nil
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: false}

	if tcp != nil {
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return out, fmt.Errorf("nat: setting tcp checksum layer: %w", err)
		}

		if err := gopacket.SerializeLayers(buf, opts, ip, tcp, gopacket.Payload(tcp.Payload)); err != nil {
			return out, fmt.Errorf("nat: serializing rewritten tcp packet: %w", err)
		}
	} else {
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return out, fmt.Errorf("nat: setting udp checksum layer: %w", err)
		}

		if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(udp.Payload)); err != nil {
			return out, fmt.Errorf("nat: serializing rewritten udp packet: %w", err)
		}
	}

	out.Rewritten = buf.Bytes()

	return out, warn
}
