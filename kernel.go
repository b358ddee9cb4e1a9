package xdpcheck

import (
	"fmt"
	"strconv"
	"strings"
)

const btfPath = "/sys/kernel/btf/vmlinux"

// KernelVersion is a parsed kernel release.
type KernelVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// KV is shorthand for building a KernelVersion.
func KV(major, minor, patch int) KernelVersion {
	return KernelVersion{Major: major, Minor: minor, Patch: patch}
}

func (v KernelVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Code returns the version in LINUX_VERSION_CODE layout. Patch saturates at 255.
func (v KernelVersion) Code() uint32 {
	return uint32(v.Major)<<16 | uint32(v.Minor)<<8 | uint32(min(v.Patch, 255))
}

// Compare orders versions by major, minor, then patch.
func (v KernelVersion) Compare(o KernelVersion) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Patch, o.Patch)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ParseKernelRelease parses a release string such as "6.1.0-18-amd64" or
// "5.15.0-1051-azure". Only the leading digits of each of the first three
// dot-separated components are used; anything after them is ignored.
// Major and minor are mandatory, a missing patch reads as 0.
func ParseKernelRelease(release string) (KernelVersion, error) {
	parts := strings.SplitN(strings.TrimSpace(release), ".", 3)
	if len(parts) < 2 {
		return KernelVersion{}, fmt.Errorf("%w: malformed release %q", ErrKernelInfoUnavailable, release)
	}

	nums := [3]int{}
	for i, p := range parts {
		digits := leadingDigits(p)
		if digits == "" {
			if i == 2 {
				break
			}
			return KernelVersion{}, fmt.Errorf("%w: malformed release %q", ErrKernelInfoUnavailable, release)
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return KernelVersion{}, fmt.Errorf("%w: release %q: %w", ErrKernelInfoUnavailable, release, err)
		}
		nums[i] = n
		// "5.15-rc1": nothing after a suffixed minor is a version component.
		if i < 2 && len(digits) != len(p) {
			break
		}
	}

	return KernelVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// XDPTier classifies how much XDP functionality a kernel offers.
type XDPTier int

const (
	// TierUnsupported kernels cannot run the target XDP program.
	TierUnsupported XDPTier = iota
	// TierGeneric kernels support generic (skb) mode XDP and AF_XDP.
	TierGeneric
	// TierNative kernels support driver-mode XDP with modern attach and privileges.
	TierNative
	// TierFull kernels meet the recommended baseline.
	TierFull
)

func (t XDPTier) String() string {
	switch t {
	case TierUnsupported:
		return "unsupported"
	case TierGeneric:
		return "generic"
	case TierNative:
		return "native"
	case TierFull:
		return "full"
	default:
		return fmt.Sprintf("XDPTier(%d)", t)
	}
}

func (t XDPTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// KernelInfo is the snapshot produced by the kernel probe.
type KernelInfo struct {
	Release string        `json:"release"`
	Version KernelVersion `json:"version"`
	Tier    XDPTier       `json:"tier"`
	BTF     ProbeResult   `json:"btf"`
	// Config is nil when no kernel config source could be read.
	Config *KernelConfig `json:"config,omitempty"`
}

// kernelInfoFromRelease builds the release-derived part of a KernelInfo.
func kernelInfoFromRelease(release string, tiers TierPolicy) (KernelInfo, error) {
	v, err := ParseKernelRelease(release)
	if err != nil {
		return KernelInfo{}, err
	}
	return KernelInfo{
		Release: release,
		Version: v,
		Tier:    tiers.TierFor(v),
	}, nil
}
