package netfilter

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"
	tinetfilter "github.com/ti-mo/netfilter"
)

// batchBegin and batchEnd bracket a set of nftables operations as one
// transaction, exactly as `nft` does: NFNL_MSG_BATCH_BEGIN/END are sent
// under subsystem NFNL_SUBSYS_NONE, with nfgenmsg.res_id naming the
// subsystem the batch applies to. github.com/ti-mo/netfilter's Header type
// has no field for that res_id repurposing, so the batch markers are the
// one place this package builds a raw netlink.Message by hand rather than
// through tinetfilter.MarshalNetlink.
func batchBegin() netlink.Message {
	return rawMessage(msgBatchBegin, netlink.Request, nfgenmsg(FamilyUnspec, subsysNFTables))
}

func batchEnd() netlink.Message {
	return rawMessage(msgBatchEnd, netlink.Request, nfgenmsg(FamilyUnspec, subsysNFTables))
}

// nftMessage builds one nftables object message via ti-mo/netfilter's typed
// Header + Attribute marshaling, the same pattern
// internal/ipset/ipset_linux.go uses for NFSubsysIPSet.
func nftMessage(
	msgType uint8,
	family Family,
	flags netlink.HeaderFlags,
	attrs []tinetfilter.Attribute,
) (msg netlink.Message, err error) {
	return tinetfilter.MarshalNetlink(
		tinetfilter.Header{
			Family:      tinetfilter.ProtoFamily(family),
			SubsystemID: tinetfilter.NFSubsysNFTables,
			MessageType: tinetfilter.MessageType(msgType),
			Flags:       flags,
		},
		attrs,
	)
}

// NewTable creates an nftables table named name in family, wrapped in its
// own batch transaction.
func (c *Conn) NewTable(family Family, name string) (err error) {
	msg, err := nftMessage(nftMsgNewTable, family, netlink.Request|netlink.Acknowledge, []tinetfilter.Attribute{
		{Type: nftaTableName, Data: nullTerminated(name)},
	})
	if err != nil {
		return fmt.Errorf("encoding netfilter table %q: %w", name, err)
	}

	if err = c.sendBatch([]netlink.Message{batchBegin(), msg, batchEnd()}); err != nil {
		return fmt.Errorf("creating netfilter table %q: %w", name, err)
	}

	return nil
}

// DelTable deletes an nftables table.
func (c *Conn) DelTable(family Family, name string) (err error) {
	msg, err := nftMessage(nftMsgDelTable, family, netlink.Request|netlink.Acknowledge, []tinetfilter.Attribute{
		{Type: nftaTableName, Data: nullTerminated(name)},
	})
	if err != nil {
		return fmt.Errorf("encoding netfilter table deletion %q: %w", name, err)
	}

	if err = c.sendBatch([]netlink.Message{batchBegin(), msg, batchEnd()}); err != nil {
		return fmt.Errorf("deleting netfilter table %q: %w", name, err)
	}

	return nil
}

// NewChain creates a chain inside table. If hook is non-nil, the chain is a
// base chain attached at that hook point with the given priority.
func (c *Conn) NewChain(family Family, table, chain string, hook *Hook, priority int32) (err error) {
	attrs := []tinetfilter.Attribute{
		{Type: nftaTableName, Data: nullTerminated(table)},
		{Type: nftaChainName, Data: nullTerminated(chain)},
	}

	if hook != nil {
		hooknum := make([]byte, 4)
		binary.BigEndian.PutUint32(hooknum, uint32(*hook))
		prio := make([]byte, 4)
		binary.BigEndian.PutUint32(prio, uint32(priority))

		var nested []byte
		nested = append(nested, nlAttrTLV(nftaHookHooknum, hooknum)...)
		nested = append(nested, nlAttrTLV(nftaHookPriority, prio)...)

		attrs = append(attrs, tinetfilter.Attribute{Type: nftaChainHook | nlaFNested, Data: nested})
	}

	msg, err := nftMessage(nftMsgNewChain, family, netlink.Request|netlink.Acknowledge|netlink.Create, attrs)
	if err != nil {
		return fmt.Errorf("encoding chain %q in table %q: %w", chain, table, err)
	}

	if err = c.sendBatch([]netlink.Message{batchBegin(), msg, batchEnd()}); err != nil {
		return fmt.Errorf("creating chain %q in table %q: %w", chain, table, err)
	}

	return nil
}

// NewRule appends a rule built from raw nftables bytecode to chain. The
// bytecode is opaque: per the reference implementation's comment, the
// expected way to obtain it is to run `nft add rule <table> <chain> <expr>`
// under strace and copy the NFTA_RULE_EXPRESSIONS payload it sends.
func (c *Conn) NewRule(family Family, table, chain string, bytecode []byte) (err error) {
	attrs := []tinetfilter.Attribute{
		{Type: nftaRuleTable, Data: nullTerminated(table)},
		{Type: nftaRuleChain, Data: nullTerminated(chain)},
		{Type: nftaRuleExpressions | nlaFNested, Data: bytecode},
	}

	msg, err := nftMessage(nftMsgNewRule, family, netlink.Request|netlink.Acknowledge|netlink.Create|netlink.Append, attrs)
	if err != nil {
		return fmt.Errorf("encoding rule in table %q chain %q: %w", table, chain, err)
	}

	if err = c.sendBatch([]netlink.Message{batchBegin(), msg, batchEnd()}); err != nil {
		return fmt.Errorf("creating rule in table %q chain %q: %w", table, chain, err)
	}

	return nil
}

func (c *Conn) sendBatch(msgs []netlink.Message) (err error) {
	for _, m := range msgs {
		if _, err = c.nl.Send(m); err != nil {
			return err
		}
	}

	if _, err = c.nl.Receive(); err != nil {
		return err
	}

	return nil
}

func nullTerminated(s string) []byte {
	return append([]byte(s), 0)
}
