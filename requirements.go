package xdpcheck

import (
	"fmt"
	"slices"
)

// DefaultTargetName is the kernel-visible name of the program the runtime
// check looks for.
const DefaultTargetName = "agave_xdp"

// Memlock thresholds. Below MinMemlock map creation fails on kernels that
// still charge BPF memory to RLIMIT_MEMLOCK; below RecommendedMemlock large
// UMEM areas may not fit.
const (
	MinMemlock         uint64 = 64 << 20
	RecommendedMemlock uint64 = 512 << 20
)

// TierBoundary maps every kernel at or above Since to Tier.
type TierBoundary struct {
	Since  KernelVersion `json:"since"`
	Tier   XDPTier       `json:"tier"`
	Reason string        `json:"reason"`
}

// TierPolicy is an ascending table of tier boundaries. Kernels below the
// first boundary are [TierUnsupported].
type TierPolicy []TierBoundary

// DefaultTierPolicy returns the built-in tier table.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		{Since: KV(4, 18, 0), Tier: TierGeneric, Reason: "AF_XDP sockets"},
		{Since: KV(5, 9, 0), Tier: TierNative, Reason: "CAP_BPF and bpf_link XDP attach"},
		{Since: KV(6, 10, 0), Tier: TierFull, Reason: "recommended baseline"},
	}
}

// TierFor returns the tier for v. Only major and minor take part in the
// lookup.
func (p TierPolicy) TierFor(v KernelVersion) XDPTier {
	key := KV(v.Major, v.Minor, 0)
	tier := TierUnsupported
	for _, b := range p {
		if key.Compare(KV(b.Since.Major, b.Since.Minor, 0)) < 0 {
			break
		}
		tier = b.Tier
	}
	return tier
}

// MinimumFor returns the first kernel version that reaches tier, or false if
// no boundary does.
func (p TierPolicy) MinimumFor(tier XDPTier) (KernelVersion, bool) {
	for _, b := range p {
		if b.Tier >= tier {
			return b.Since, true
		}
	}
	return KernelVersion{}, false
}

// Validate rejects tables that are not strictly ascending in version or that
// lower the tier as the version grows.
func (p TierPolicy) Validate() error {
	for i := 1; i < len(p); i++ {
		if p[i-1].Since.Compare(p[i].Since) >= 0 {
			return fmt.Errorf("tier policy: boundary %s not after %s", p[i].Since, p[i-1].Since)
		}
		if p[i].Tier < p[i-1].Tier {
			return fmt.Errorf("tier policy: tier drops from %s to %s at %s", p[i-1].Tier, p[i].Tier, p[i].Since)
		}
	}
	return nil
}

// Policy holds every tunable the verdict engine consults.
type Policy struct {
	// TargetName is matched exactly against loaded program names.
	TargetName string `json:"target_name"`
	// ExpectedTag, when set, is compared against the matched program's tag.
	ExpectedTag string `json:"expected_tag,omitempty"`

	Tiers              TierPolicy `json:"tiers"`
	MinMemlock         uint64     `json:"min_memlock"`
	RecommendedMemlock uint64     `json:"recommended_memlock"`
}

// DefaultPolicy returns the policy used by the command line tool.
func DefaultPolicy() Policy {
	return Policy{
		TargetName:         DefaultTargetName,
		Tiers:              DefaultTierPolicy(),
		MinMemlock:         MinMemlock,
		RecommendedMemlock: RecommendedMemlock,
	}
}

// withDefaults fills zero fields from DefaultPolicy. A tier table that
// fails [TierPolicy.Validate] is replaced by the default one.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.TargetName == "" {
		p.TargetName = d.TargetName
	}
	if len(p.Tiers) == 0 || p.Tiers.Validate() != nil {
		p.Tiers = d.Tiers
	} else {
		p.Tiers = slices.Clone(p.Tiers)
	}
	if p.MinMemlock == 0 {
		p.MinMemlock = d.MinMemlock
	}
	if p.RecommendedMemlock == 0 {
		p.RecommendedMemlock = d.RecommendedMemlock
	}
	return p
}
