// Package netfilter drives Linux Netfilter: it installs the nftables table
// and chains that redirect WAN-facing traffic to userspace, and it operates
// the NFQUEUE the userspace NAT worker reads from.
//
// Grounded on original_source/src/netfilter.cc (table/chain/rule batch
// construction) and src/nfqueue.hh (bind/config/verdict messages), built on
// the same github.com/ti-mo/netfilter + github.com/mdlayher/netlink stack
// internal/ipset/ipset_linux.go uses for NFNL_SUBSYS_IPSET.
package netfilter

// Family is an nfgenmsg address family (nfgenmsg.nfgen_family).
type Family uint8

const (
	FamilyUnspec Family = 0
	FamilyIPv4   Family = 2
)

// Netfilter subsystem ids (NFNL_SUBSYS_*).
const (
	subsysNFTables = 10
	subsysQueue    = 3
)

// nftables message types (NFT_MSG_*), relative to subsysNFTables.
const (
	nftMsgNewTable = 0
	nftMsgDelTable = 2
	nftMsgNewChain = 3
	nftMsgNewRule  = 6
)

// Batch begin/end pseudo-messages (NFNL_MSG_BATCH_*), sent outside any
// subsystem to bracket a set of nftables operations as one transaction.
const (
	msgBatchBegin = 0x10
	msgBatchEnd   = 0x11
)

// nftables attribute types used by table/chain/rule construction.
const (
	nftaTableName = 1

	nftaChainName   = 3
	nftaChainHook   = 4
	nftaChainPolicy = 5

	nftaHookHooknum  = 1
	nftaHookPriority = 2

	nftaRuleTable       = 1
	nftaRuleChain       = 2
	nftaRuleExpressions = 4
)

// Hook is an nftables base chain hook point (NF_INET_*).
type Hook uint32

const (
	HookPreRouting Hook = 0
	HookLocalIn    Hook = 1
	HookForward    Hook = 2
	HookLocalOut   Hook = 3
	HookPostRouting Hook = 4
)

// nlaFNested marks an attribute as containing nested attributes.
const nlaFNested = 1 << 15

// QueueNumber is the nfqueue number the firewall enqueues WAN-facing
// packets on for userspace verdicting.
const QueueNumber = 1337

// nfqueue (NFNL_SUBSYS_QUEUE) message types and attributes
// (linux/netfilter/nfnetlink_queue.h).
const (
	nfqnlMsgConfig = 2
	nfqnlMsgVerdict = 1

	nfqaCfgCmd    = 1
	nfqaCfgParams = 2
	nfqaCfgMask   = 4
	nfqaCfgFlags  = 5

	nfqnlCfgCmdBind = 1

	nfqnlCopyPacket = 2

	nfqaCfgFlagGSO = 0x0004

	nfqaPacketHdr  = 1
	nfqaVerdictHdr = 2
	nfqaPayload    = 10
)

// Verdicts (NF_ACCEPT / NF_DROP).
const (
	VerdictAccept = 1
	VerdictDrop   = 0
)
