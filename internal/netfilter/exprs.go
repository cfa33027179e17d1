package netfilter

import (
	"encoding/binary"
)

// nftables expression-level constants (linux/netfilter/nf_tables.h). These
// back the hand-built NFTA_RULE_EXPRESSIONS bytecode in firewall.go: per
// spec.md §4.5 "rule bytecode is supplied as opaque buffers", this package
// is the one place that opaque buffer is actually assembled, expression by
// expression, the way `nft -a` would when it compiles
// `iif != lan ip daddr $wan queue to 1337` down to netlink.
const (
	nftaListElem = 1 // NFTA_LIST_ELEM, nests one expression in a list

	nftaExprName = 1 // NFTA_EXPR_NAME
	nftaExprData = 2 // NFTA_EXPR_DATA

	nftaMetaDreg = 1 // NFTA_META_DREG
	nftaMetaKey  = 2 // NFTA_META_KEY

	metaKeyIifname = 6 // NFT_META_IIFNAME
	metaKeyOifname = 7 // NFT_META_OIFNAME

	nftaCmpSreg = 1 // NFTA_CMP_SREG
	nftaCmpOp   = 2 // NFTA_CMP_OP
	nftaCmpData = 3 // NFTA_CMP_DATA

	nftCmpEq  = 0 // NFT_CMP_EQ
	nftCmpNeq = 1 // NFT_CMP_NEQ

	nftaDataValue = 1 // NFTA_DATA_VALUE, nested inside NFTA_CMP_DATA/NFTA_BITWISE_*

	nftaPayloadDreg  = 1 // NFTA_PAYLOAD_DREG
	nftaPayloadBase  = 2 // NFTA_PAYLOAD_BASE
	nftaPayloadOffset = 3 // NFTA_PAYLOAD_OFFSET
	nftaPayloadLen   = 4 // NFTA_PAYLOAD_LEN

	nftPayloadNetworkHeader = 1 // NFT_PAYLOAD_NETWORK_HEADER

	// IPv4 header field offsets/lengths, relative to the network header.
	ipv4OffsetSaddr = 12
	ipv4OffsetDaddr = 16
	ipv4AddrLen     = 4

	nftaBitwiseSreg = 1 // NFTA_BITWISE_SREG
	nftaBitwiseDreg = 2 // NFTA_BITWISE_DREG
	nftaBitwiseLen  = 3 // NFTA_BITWISE_LEN
	nftaBitwiseMask = 4 // NFTA_BITWISE_MASK
	nftaBitwiseXor  = 5 // NFTA_BITWISE_XOR

	nftaQueueNum   = 1 // NFTA_QUEUE_NUM
	nftaQueueTotal = 2 // NFTA_QUEUE_TOTAL

	nftReg1 = 1 // NFT_REG_1 (legacy 128-bit register; 0 is NFT_REG_VERDICT, and the 32-bit registers start at NFT_REG32_00 == 8)
)

// exprBuilder accumulates one expression's NFTA_EXPR_NAME + NFTA_EXPR_DATA
// pair and wraps it as one NFTA_LIST_ELEM, ready to be concatenated into the
// NFTA_RULE_EXPRESSIONS attribute's nested list.
func exprBuilder(name string, data []byte) []byte {
	var body []byte
	body = append(body, nlAttrTLV(nftaExprName, nullTerminated(name))...)
	body = append(body, nlAttrTLV(nftaExprData|nlaFNested, data)...)

	return nlAttrTLV(nftaListElem|nlaFNested, body)
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)

	return b
}

// exprMetaIif/exprMetaOif load the input/output interface index into
// a register, the way `iif`/`oif` compile.
func exprMetaIif(reg uint32) []byte {
	return exprMeta(reg, 4) // NFT_META_IIF
}

func exprMetaOif(reg uint32) []byte {
	return exprMeta(reg, 5) // NFT_META_OIF
}

func exprMeta(reg, key uint32) []byte {
	var data []byte
	data = append(data, nlAttrTLV(nftaMetaDreg, be32(reg))...)
	data = append(data, nlAttrTLV(nftaMetaKey, be32(key))...)

	return exprBuilder("meta", data)
}

// exprCmpIfindex compares the ifindex register against want, negated if neq.
func exprCmpIfindex(reg, want uint32, neq bool) []byte {
	op := uint32(nftCmpEq)
	if neq {
		op = nftCmpNeq
	}

	cmpData := nlAttrTLV(nftaDataValue, be32(want))
	var data []byte
	data = append(data, nlAttrTLV(nftaCmpSreg, be32(reg))...)
	data = append(data, nlAttrTLV(nftaCmpOp, be32(op))...)
	data = append(data, nlAttrTLV(nftaCmpData|nlaFNested, cmpData)...)

	return exprBuilder("cmp", data)
}

// exprPayloadIPv4 loads the 4-byte field at offset (src/dst address) of the
// IPv4 header into reg.
func exprPayloadIPv4(reg, offset uint32) []byte {
	var data []byte
	data = append(data, nlAttrTLV(nftaPayloadDreg, be32(reg))...)
	data = append(data, nlAttrTLV(nftaPayloadBase, be32(nftPayloadNetworkHeader))...)
	data = append(data, nlAttrTLV(nftaPayloadOffset, be32(offset))...)
	data = append(data, nlAttrTLV(nftaPayloadLen, be32(ipv4AddrLen))...)

	return exprBuilder("payload", data)
}

// exprCmpIPv4 compares a loaded 4-byte register against a literal address.
func exprCmpIPv4(reg uint32, addr [4]byte, neq bool) []byte {
	op := uint32(nftCmpEq)
	if neq {
		op = nftCmpNeq
	}

	cmpData := nlAttrTLV(nftaDataValue, addr[:])
	var data []byte
	data = append(data, nlAttrTLV(nftaCmpSreg, be32(reg))...)
	data = append(data, nlAttrTLV(nftaCmpOp, be32(op))...)
	data = append(data, nlAttrTLV(nftaCmpData|nlaFNested, cmpData)...)

	return exprBuilder("cmp", data)
}

// exprBitwiseAndIPv4 masks reg in place with mask (used for a network, as
// opposed to single-address, comparison).
func exprBitwiseAndIPv4(reg uint32, mask [4]byte) []byte {
	maskData := nlAttrTLV(nftaDataValue, mask[:])
	xorData := nlAttrTLV(nftaDataValue, []byte{0, 0, 0, 0})

	var data []byte
	data = append(data, nlAttrTLV(nftaBitwiseSreg, be32(reg))...)
	data = append(data, nlAttrTLV(nftaBitwiseDreg, be32(reg))...)
	data = append(data, nlAttrTLV(nftaBitwiseLen, be32(ipv4AddrLen))...)
	data = append(data, nlAttrTLV(nftaBitwiseMask|nlaFNested, maskData)...)
	data = append(data, nlAttrTLV(nftaBitwiseXor|nlaFNested, xorData)...)

	return exprBuilder("bitwise", data)
}

// exprNotrack disables connection tracking for the packet, matching the
// reference rule's `notrack` statement.
func exprNotrack() []byte {
	return exprBuilder("notrack", nil)
}

// exprCounter adds a packet/byte counter, matching the reference rule's
// `counter` statement.
func exprCounter() []byte {
	var data []byte
	data = append(data, nlAttrTLV(1, be32(0))...) // NFTA_COUNTER_BYTES
	data = append(data, nlAttrTLV(2, be32(0))...) // NFTA_COUNTER_PACKETS

	return exprBuilder("counter", data)
}

// exprQueue enqueues the packet on num for userspace verdicting, matching
// `queue to <num>`.
func exprQueue(num uint16) []byte {
	var data []byte
	data = append(data, nlAttrTLV(nftaQueueNum, func() []byte {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, num)

		return b
	}())...)
	data = append(data, nlAttrTLV(nftaQueueTotal, func() []byte {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, 1)

		return b
	}())...)

	return exprBuilder("queue", data)
}
