package xdpcheck

import (
	"fmt"
	"slices"
)

// SupportLevel is the XDP capability of one network interface.
type SupportLevel int

const (
	// SupportUnknown means the driver's capabilities could not be determined.
	SupportUnknown SupportLevel = iota
	// SupportNone means the interface cannot run XDP programs at all.
	SupportNone
	// SupportGenericOnly means only generic (skb) mode is available.
	SupportGenericOnly
	// SupportNativeOffload means the driver runs XDP natively or offloads it.
	SupportNativeOffload
)

func (l SupportLevel) String() string {
	switch l {
	case SupportUnknown:
		return "unknown"
	case SupportNone:
		return "none"
	case SupportGenericOnly:
		return "generic only"
	case SupportNativeOffload:
		return "native"
	default:
		return fmt.Sprintf("SupportLevel(%d)", l)
	}
}

func (l SupportLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// SupportSource records what evidence decided the support level.
type SupportSource int

const (
	SourceNone SupportSource = iota
	// SourceNetdevFeatures: the kernel's netdev XDP feature flags.
	SourceNetdevFeatures
	// SourceAttachedMode: an XDP program is already attached in driver or hw mode.
	SourceAttachedMode
	// SourceDriverTable: the driver is on the list of known native XDP drivers.
	SourceDriverTable
)

func (s SupportSource) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceNetdevFeatures:
		return "netdev features"
	case SourceAttachedMode:
		return "attached program"
	case SourceDriverTable:
		return "known driver table"
	default:
		return fmt.Sprintf("SupportSource(%d)", s)
	}
}

func (s SupportSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RingParams are the ethtool ring sizes of an interface.
type RingParams struct {
	RxPending    uint32 `json:"rx_pending"`
	RxMaxPending uint32 `json:"rx_max_pending"`
	TxPending    uint32 `json:"tx_pending"`
	TxMaxPending uint32 `json:"tx_max_pending"`
}

// InterfaceXDPSupport is the snapshot produced by the interface probe.
type InterfaceXDPSupport struct {
	Name          string `json:"name"`
	Index         int    `json:"index"`
	Driver        string `json:"driver,omitempty"`
	DriverVersion string `json:"driver_version,omitempty"`
	Firmware      string `json:"firmware,omitempty"`
	BusInfo       string `json:"bus_info,omitempty"`

	Level  SupportLevel  `json:"level"`
	Source SupportSource `json:"source"`
	// XDPFeatures lists the netdev XDP feature flags; nil when the kernel
	// could not be asked.
	XDPFeatures []string `json:"xdp_features,omitempty"`
	// ZCMaxSegs is the AF_XDP zero-copy fragment limit, 0 when unreported.
	ZCMaxSegs uint32 `json:"xsk_zc_max_segs,omitempty"`
	// Attached is the XDP program currently attached, if any.
	Attached *XDPAttachment `json:"attached,omitempty"`

	OperState  string      `json:"oper_state,omitempty"`
	MTU        int         `json:"mtu"`
	RxQueues   int         `json:"rx_queues"`
	TxQueues   int         `json:"tx_queues"`
	Ring       *RingParams `json:"ring,omitempty"`
	KnownIssue string      `json:"known_issue,omitempty"`
}

// Netdev XDP feature bits (enum netdev_xdp_act).
const (
	xdpActBasic      uint64 = 1 << 0
	xdpActRedirect   uint64 = 1 << 1
	xdpActNdoXmit    uint64 = 1 << 2
	xdpActXskZC      uint64 = 1 << 3
	xdpActHWOffload  uint64 = 1 << 4
	xdpActRxSG       uint64 = 1 << 5
	xdpActNdoXmitSG  uint64 = 1 << 6
	xdpActNativeMask        = xdpActBasic | xdpActHWOffload
)

var xdpActNames = []struct {
	bit  uint64
	name string
}{
	{xdpActBasic, "basic"},
	{xdpActRedirect, "redirect"},
	{xdpActNdoXmit, "ndo-xmit"},
	{xdpActXskZC, "xsk-zerocopy"},
	{xdpActHWOffload, "hw-offload"},
	{xdpActRxSG, "rx-sg"},
	{xdpActNdoXmitSG, "ndo-xmit-sg"},
}

// xdpFeatureNames decodes a netdev XDP feature bitmap. Unknown bits are
// rendered as hex so nothing is silently dropped.
func xdpFeatureNames(mask uint64) []string {
	names := []string{}
	for _, f := range xdpActNames {
		if mask&f.bit != 0 {
			names = append(names, f.name)
			mask &^= f.bit
		}
	}
	if mask != 0 {
		names = append(names, fmt.Sprintf("0x%x", mask))
	}
	return names
}

// nativeXDPDrivers are drivers known to implement driver-mode XDP.
var nativeXDPDrivers = []string{
	"bnxt_en",
	"i40e",
	"ice",
	"igb",
	"igc",
	"ixgbe",
	"mlx4_core",
	"mlx4_en",
	"mlx5_core",
	"nfp",
}

var driverIssues = map[string]string{
	"i40e": "multi-buffer (frags) XDP is unreliable on i40e; keep MTU at or below 3000",
}

// evidence is what the interface probe observed, before classification.
type evidence struct {
	// featuresKnown is true when the netdev family answered.
	featuresKnown bool
	features      uint64
	attachMode    AttachMode
	driver        string
}

// resolveSupport classifies an interface. Read feature flags decide, and on
// an unsupported tier they mean no XDP at all. Without them the tier may be
// a failed read, so it never turns the result into SupportNone.
func resolveSupport(ev evidence, tier XDPTier) (SupportLevel, SupportSource) {
	if ev.featuresKnown {
		if tier == TierUnsupported {
			return SupportNone, SourceNone
		}
		if ev.features&xdpActNativeMask != 0 {
			return SupportNativeOffload, SourceNetdevFeatures
		}
		return SupportGenericOnly, SourceNetdevFeatures
	}
	if ev.attachMode.Native() {
		return SupportNativeOffload, SourceAttachedMode
	}
	if tier == TierUnsupported {
		return SupportUnknown, SourceNone
	}
	if slices.Contains(nativeXDPDrivers, ev.driver) {
		return SupportNativeOffload, SourceDriverTable
	}
	return SupportUnknown, SourceNone
}
