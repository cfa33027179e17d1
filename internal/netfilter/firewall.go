package netfilter

import (
	"fmt"
	"net/netip"
)

// TableName is the nftables table this daemon owns end to end: created at
// startup, torn down at shutdown. Grounded on spec.md §4.5.
const TableName = "gatekeeper"

const (
	chainPreRouting  = "PREROUTING"
	chainPostRouting = "POSTROUTING"

	// firewallPriority is -300, matching the reference's placement ahead of
	// conntrack and NAT so packets reach nfqueue before the kernel does
	// anything else with them.
	firewallPriority = -300
)

// Setup installs the `gatekeeper` table with its PREROUTING/POSTROUTING
// chains and the two enqueue rules from spec.md §4.5:
//
//	iif != <lanIfindex> ip daddr <wanIP>  notrack counter queue to 1337
//	oif != <lanIfindex> ip saddr <lanNet> notrack counter queue to 1337
//
// It also removes any pre-existing OpenWRT `fw4` table, matching the
// reference implementation's startup behavior.
func (c *Conn) Setup(lanIfindex int, wanIP netip.Addr, lanNet netip.Prefix) (err error) {
	if err = c.clearFW4(); err != nil {
		return fmt.Errorf("clearing fw4 table: %w", err)
	}

	if err = c.NewTable(FamilyIPv4, TableName); err != nil {
		return fmt.Errorf("creating table %q: %w", TableName, err)
	}

	preHook := HookPreRouting
	if err = c.NewChain(FamilyIPv4, TableName, chainPreRouting, &preHook, firewallPriority); err != nil {
		return fmt.Errorf("creating chain %q: %w", chainPreRouting, err)
	}

	postHook := HookPostRouting
	if err = c.NewChain(FamilyIPv4, TableName, chainPostRouting, &postHook, firewallPriority); err != nil {
		return fmt.Errorf("creating chain %q: %w", chainPostRouting, err)
	}

	if err = c.NewRule(FamilyIPv4, TableName, chainPreRouting, preRoutingBytecode(lanIfindex, wanIP)); err != nil {
		return fmt.Errorf("installing PREROUTING rule: %w", err)
	}

	if err = c.NewRule(FamilyIPv4, TableName, chainPostRouting, postRoutingBytecode(lanIfindex, lanNet)); err != nil {
		return fmt.Errorf("installing POSTROUTING rule: %w", err)
	}

	return nil
}

// Teardown removes the `gatekeeper` table, releasing every rule/chain it
// owns in one shot.
func (c *Conn) Teardown() (err error) {
	if err = c.DelTable(FamilyIPv4, TableName); err != nil {
		return fmt.Errorf("deleting table %q: %w", TableName, err)
	}

	return nil
}

func (c *Conn) clearFW4() (err error) {
	if err = c.DelTable(FamilyIPv4, "fw4"); err != nil {
		// Absence of a pre-existing fw4 table (the common case on a
		// non-OpenWRT box) is the overwhelmingly likely cause, so this
		// isn't reported as a Setup error; still log it so a genuine
		// failure (permission denied, no nftables support) is visible.
		c.log.Debug("clearing pre-existing fw4 table failed", "error", err)

		return nil
	}

	return nil
}

// preRoutingBytecode builds `iif != lanIfindex ip daddr wanIP notrack
// counter queue to 1337`.
func preRoutingBytecode(lanIfindex int, wanIP netip.Addr) []byte {
	addr := wanIP.As4()

	var b []byte
	b = append(b, exprMetaIif(nftReg1)...)
	b = append(b, exprCmpIfindex(nftReg1, uint32(lanIfindex), true)...)
	b = append(b, exprPayloadIPv4(nftReg1, ipv4OffsetDaddr)...)
	b = append(b, exprCmpIPv4(nftReg1, addr, false)...)
	b = append(b, exprNotrack()...)
	b = append(b, exprCounter()...)
	b = append(b, exprQueue(QueueNumber)...)

	return b
}

// postRoutingBytecode builds `oif != lanIfindex ip saddr lanNet notrack
// counter queue to 1337`.
func postRoutingBytecode(lanIfindex int, lanNet netip.Prefix) []byte {
	netAddr := lanNet.Addr().As4()
	mask := prefixMask4(lanNet.Bits())

	var b []byte
	b = append(b, exprMetaOif(nftReg1)...)
	b = append(b, exprCmpIfindex(nftReg1, uint32(lanIfindex), true)...)
	b = append(b, exprPayloadIPv4(nftReg1, ipv4OffsetSaddr)...)
	b = append(b, exprBitwiseAndIPv4(nftReg1, mask)...)
	b = append(b, exprCmpIPv4(nftReg1, netAddr, false)...)
	b = append(b, exprNotrack()...)
	b = append(b, exprCounter()...)
	b = append(b, exprQueue(QueueNumber)...)

	return b
}

func prefixMask4(bits int) (mask [4]byte) {
	for i := range mask {
		switch {
		case bits >= 8:
			mask[i] = 0xff
			bits -= 8
		case bits > 0:
			mask[i] = byte(0xff << (8 - bits))
			bits = 0
		}
	}

	return mask
}
