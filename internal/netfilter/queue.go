package netfilter

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"
	tinetfilter "github.com/ti-mo/netfilter"
)

func nfqMessage(msgType uint8, flags netlink.HeaderFlags, attrs []tinetfilter.Attribute) (msg netlink.Message, err error) {
	return tinetfilter.MarshalNetlink(
		tinetfilter.Header{
			Family:      tinetfilter.ProtoFamily(FamilyUnspec),
			SubsystemID: tinetfilter.NFSubsysQueue,
			MessageType: tinetfilter.MessageType(msgType),
			Flags:       flags,
			ResourceID:  tinetfilter.ResourceID(QueueNumber),
		},
		attrs,
	)
}

// Bind attaches this socket to [QueueNumber] and configures it to copy
// whole packets into userspace with GSO segments left intact, mirroring
// nfqueue::Bind + nfqueue::CopyPacket in the reference implementation.
func (c *Conn) Bind() (err error) {
	cmd := make([]byte, 2)
	binary.NativeEndian.PutUint16(cmd, nfqnlCfgCmdBind)

	bindMsg, err := nfqMessage(nfqnlMsgConfig, netlink.Request|netlink.Acknowledge, []tinetfilter.Attribute{
		{Type: nfqaCfgCmd, Data: cmd},
	})
	if err != nil {
		return fmt.Errorf("encoding nfqueue bind: %w", err)
	}

	if err = c.sendBatch([]netlink.Message{bindMsg}); err != nil {
		return fmt.Errorf("binding nfqueue %d: %w", QueueNumber, err)
	}

	params := make([]byte, 5)
	binary.BigEndian.PutUint32(params[0:4], 0xffff)
	params[4] = nfqnlCopyPacket

	flags := make([]byte, 4)
	binary.BigEndian.PutUint32(flags, nfqaCfgFlagGSO)
	mask := make([]byte, 4)
	binary.BigEndian.PutUint32(mask, nfqaCfgFlagGSO)

	configMsg, err := nfqMessage(nfqnlMsgConfig, netlink.Request|netlink.Acknowledge, []tinetfilter.Attribute{
		{Type: nfqaCfgParams, Data: params},
		{Type: nfqaCfgFlags, Data: flags},
		{Type: nfqaCfgMask, Data: mask},
	})
	if err != nil {
		return fmt.Errorf("encoding nfqueue config: %w", err)
	}

	if err = c.sendBatch([]netlink.Message{configMsg}); err != nil {
		return fmt.Errorf("configuring nfqueue %d: %w", QueueNumber, err)
	}

	return nil
}

// Verdict emits an ACCEPT or DROP verdict for a packet previously read via
// [Conn.ReceivePackets], optionally replacing its payload (used when the
// NAT worker rewrites addresses/ports in place).
func (c *Conn) Verdict(packetIDBE uint32, accept bool, newPayload []byte) (err error) {
	verdict := uint32(VerdictDrop)
	if accept {
		verdict = VerdictAccept
	}

	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr[0:4], verdict)
	binary.BigEndian.PutUint32(hdr[4:8], packetIDBE)

	attrs := []tinetfilter.Attribute{{Type: nfqaVerdictHdr, Data: hdr}}
	if newPayload != nil {
		attrs = append(attrs, tinetfilter.Attribute{Type: nfqaPayload, Data: newPayload})
	}

	msg, err := nfqMessage(nfqnlMsgVerdict, netlink.Request, attrs)
	if err != nil {
		return fmt.Errorf("encoding nfqueue verdict for packet %#x: %w", packetIDBE, err)
	}

	if _, err = c.nl.Send(msg); err != nil {
		return fmt.Errorf("sending nfqueue verdict for packet %#x: %w", packetIDBE, err)
	}

	return nil
}

// QueuedPacket is one packet delivered by the kernel on the bound nfqueue.
type QueuedPacket struct {
	// PacketIDBE is the opaque big-endian packet id the kernel expects back
	// unmodified in [Conn.Verdict].
	PacketIDBE uint32
	Payload    []byte
}

// ReceivePackets reads one batch of NFQNL_MSG_PACKET notifications.
func (c *Conn) ReceivePackets() (packets []QueuedPacket, err error) {
	msgs, err := c.nl.Receive()
	if err != nil {
		return nil, fmt.Errorf("receiving nfqueue packets: %w", err)
	}

	for _, m := range msgs {
		_, attrs, unmarshalErr := tinetfilter.UnmarshalNetlink(m)
		if unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshaling nfqueue packet: %w", unmarshalErr)
		}

		pkt := parseQueuedPacket(attrs)
		if pkt != nil {
			packets = append(packets, *pkt)
		}
	}

	return packets, nil
}

func parseQueuedPacket(attrs []tinetfilter.Attribute) (pkt *QueuedPacket) {
	var out QueuedPacket
	var haveHdr, havePayload bool

	for _, a := range attrs {
		switch a.Type {
		case nfqaPacketHdr:
			if len(a.Data) >= 4 {
				out.PacketIDBE = binary.BigEndian.Uint32(a.Data[0:4])
				haveHdr = true
			}
		case nfqaPayload:
			out.Payload = a.Data
			havePayload = true
		}
	}

	if !haveHdr || !havePayload {
		return nil
	}

	return &out
}
