//go:build linux

package xdpcheck

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ProbeKernel reads the running kernel release and maps it to an XDP tier
// using tiers, or [DefaultTierPolicy] when tiers is empty. BTF presence and
// the kernel config are collected on a best-effort basis.
func ProbeKernel(tiers TierPolicy) (KernelInfo, error) {
	if len(tiers) == 0 {
		tiers = DefaultTierPolicy()
	}

	release, err := kernelRelease()
	if err != nil {
		return KernelInfo{}, err
	}

	ki, err := kernelInfoFromRelease(release, tiers)
	if err != nil {
		return KernelInfo{}, err
	}

	ki.BTF = probeBTF()
	// Kernel config is optional; nil means none of the sources was readable.
	ki.Config, _ = readKernelConfig(kernelConfigSources(release))
	return ki, nil
}

// kernelRelease returns the kernel release string (e.g., "6.17.0-1005-aws").
func kernelRelease() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", fmt.Errorf("%w: uname: %w", ErrKernelInfoUnavailable, err)
	}
	return unix.ByteSliceToString(uname.Release[:]), nil
}

// currentTier is a cheap, independent tier read used by the interface probe.
func currentTier(tiers TierPolicy) XDPTier {
	release, err := kernelRelease()
	if err != nil {
		return TierUnsupported
	}
	ki, err := kernelInfoFromRelease(release, tiers)
	if err != nil {
		return TierUnsupported
	}
	return ki.Tier
}

func probeBTF() ProbeResult {
	_, err := os.Stat(btfPath)
	if err == nil {
		return ProbeResult{Supported: true}
	}
	if os.IsNotExist(err) {
		return ProbeResult{Supported: false}
	}
	return ProbeResult{Supported: false, Error: err}
}
