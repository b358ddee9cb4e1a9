package xdpcheck

import "fmt"

// RLimitInfinity is the RLIM_INFINITY value as reported by getrlimit(2).
const RLimitInfinity = ^uint64(0)

// Limit is a soft/hard resource limit pair.
type Limit struct {
	Soft uint64 `json:"soft"`
	Hard uint64 `json:"hard"`
}

// Unlimited reports whether the soft limit is RLIM_INFINITY.
func (l Limit) Unlimited() bool {
	return l.Soft == RLimitInfinity
}

// AtLeast reports whether the soft limit is unlimited or not below n.
func (l Limit) AtLeast(n uint64) bool {
	return l.Unlimited() || l.Soft >= n
}

func (l Limit) String() string {
	return formatLimit(l.Soft) + " (hard " + formatLimit(l.Hard) + ")"
}

func formatLimit(v uint64) string {
	switch {
	case v == RLimitInfinity:
		return "unlimited"
	case v >= 1<<30 && v%(1<<30) == 0:
		return fmt.Sprintf("%dGiB", v>>30)
	case v >= 1<<20 && v%(1<<20) == 0:
		return fmt.Sprintf("%dMiB", v>>20)
	case v >= 1<<10 && v%(1<<10) == 0:
		return fmt.Sprintf("%dKiB", v>>10)
	default:
		return fmt.Sprintf("%d", v)
	}
}

// CheckPath records which privilege test decided [PrivilegeCheck.Granted].
type CheckPath int

const (
	// PathCapBPF: the kernel knows CAP_BPF; CAP_BPF or CAP_SYS_ADMIN grants access.
	PathCapBPF CheckPath = iota
	// PathCapSysAdmin: the kernel predates CAP_BPF; CAP_SYS_ADMIN is required.
	PathCapSysAdmin
	// PathRoot: capabilities could not be read; effective uid 0 is required.
	PathRoot
)

func (p CheckPath) String() string {
	switch p {
	case PathCapBPF:
		return "CAP_BPF"
	case PathCapSysAdmin:
		return "CAP_SYS_ADMIN"
	case PathRoot:
		return "uid 0"
	default:
		return fmt.Sprintf("CheckPath(%d)", p)
	}
}

func (p CheckPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// PrivilegeCheck is the outcome of the BPF privilege test.
type PrivilegeCheck struct {
	Path    CheckPath `json:"path"`
	Granted bool      `json:"granted"`
}

// ResourceStatus is the snapshot produced by the resource probe.
type ResourceStatus struct {
	Memlock   Limit `json:"memlock"`
	OpenFiles Limit `json:"open_files"`
	// LimitsError is set when getrlimit failed; the limits are then zero.
	LimitsError error `json:"-"`

	EUID      int            `json:"euid"`
	Privilege PrivilegeCheck `json:"privilege"`

	HasCapBPF      ProbeResult `json:"cap_bpf"`
	HasCapSysAdmin ProbeResult `json:"cap_sys_admin"`
	HasCapNetAdmin ProbeResult `json:"cap_net_admin"`
	HasCapNetRaw   ProbeResult `json:"cap_net_raw"`
	HasCapPerfmon  ProbeResult `json:"cap_perfmon"`
	// PermittedNotEffective lists capabilities the process could raise but
	// has not.
	PermittedNotEffective []string `json:"permitted_not_effective,omitempty"`

	// Supported=true means unprivileged BPF is disabled.
	UnprivilegedBPFDisabled ProbeResult `json:"unprivileged_bpf_disabled"`
	JITEnabled              ProbeResult `json:"jit_enabled"`

	Tuning HostTuning `json:"tuning"`
}

// capSets holds the effective and permitted capability bitmaps.
type capSets struct {
	effective uint64
	permitted uint64
}

func (c capSets) has(capability int) bool {
	return c.effective&(1<<uint(capability)) != 0
}

func (c capSets) permittedOnly(capability int) bool {
	bit := uint64(1) << uint(capability)
	return c.permitted&bit != 0 && c.effective&bit == 0
}

// decidePrivilege picks the check path from what the kernel exposes.
// lastCap is /proc/sys/kernel/cap_last_cap, or -1 when unknown. caps is nil
// when capget failed.
func decidePrivilege(lastCap int, caps *capSets, euid int, capBPF, capSysAdmin int) PrivilegeCheck {
	switch {
	case caps == nil:
		return PrivilegeCheck{Path: PathRoot, Granted: euid == 0}
	case lastCap >= capBPF:
		return PrivilegeCheck{Path: PathCapBPF, Granted: caps.has(capBPF) || caps.has(capSysAdmin)}
	case lastCap >= 0:
		return PrivilegeCheck{Path: PathCapSysAdmin, Granted: caps.has(capSysAdmin)}
	default:
		return PrivilegeCheck{Path: PathRoot, Granted: euid == 0}
	}
}
