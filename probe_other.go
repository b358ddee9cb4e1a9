//go:build !linux

package xdpcheck

import (
	"iter"

	"github.com/sirupsen/logrus"
)

func ProbeKernel(_ TierPolicy) (KernelInfo, error) {
	return KernelInfo{}, ErrUnsupportedPlatform
}

func currentTier(_ TierPolicy) XDPTier { return TierUnsupported }

func ProbeResources() ResourceStatus {
	return ResourceStatus{LimitsError: ErrUnsupportedPlatform, Privilege: PrivilegeCheck{Path: PathRoot}}
}

func probeResources(_ logrus.FieldLogger) (ResourceStatus, error) {
	return ResourceStatus{}, ErrUnsupportedPlatform
}

func ProbeInterface(_ string, _ XDPTier) (InterfaceXDPSupport, error) {
	return InterfaceXDPSupport{}, ErrUnsupportedPlatform
}

func probeInterface(_ string, _ XDPTier, _ logrus.FieldLogger) (InterfaceXDPSupport, error) {
	return InterfaceXDPSupport{}, ErrUnsupportedPlatform
}

func Programs() iter.Seq2[ProgramRecord, error] {
	return func(yield func(ProgramRecord, error) bool) {
		yield(ProgramRecord{}, ErrUnsupportedPlatform)
	}
}

func ListPrograms() ([]ProgramRecord, error) {
	return nil, ErrUnsupportedPlatform
}

func ListXDPAttachments() ([]XDPAttachment, error) {
	return nil, ErrUnsupportedPlatform
}

func ProbeInventory() (Inventory, error) {
	return Inventory{}, ErrUnsupportedPlatform
}

func probeInventory(_ logrus.FieldLogger) (Inventory, error) {
	return Inventory{}, ErrUnsupportedPlatform
}

func InterfaceNames() ([]string, error) {
	return nil, ErrUnsupportedPlatform
}
