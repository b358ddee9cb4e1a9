//go:build linux

package xdpcheck

import (
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var capNames = map[int]string{
	unix.CAP_BPF:       "CAP_BPF",
	unix.CAP_SYS_ADMIN: "CAP_SYS_ADMIN",
	unix.CAP_NET_ADMIN: "CAP_NET_ADMIN",
	unix.CAP_NET_RAW:   "CAP_NET_RAW",
	unix.CAP_PERFMON:   "CAP_PERFMON",
	unix.CAP_IPC_LOCK:  "CAP_IPC_LOCK",
}

const (
	capLastCapPath      = "/proc/sys/kernel/cap_last_cap"
	unprivilegedBPFPath = "/proc/sys/kernel/unprivileged_bpf_disabled"
	jitEnablePath       = "/proc/sys/net/core/bpf_jit_enable"
)

// ProbeResources reads resource limits, capabilities and BPF sysctls of the
// current process. It never fails: unreadable inputs are recorded in the
// returned status and steer the privilege check to the uid 0 fallback.
func ProbeResources() ResourceStatus {
	return readResourceStatus(discardLogger())
}

func probeResources(log logrus.FieldLogger) (ResourceStatus, error) {
	return readResourceStatus(log), nil
}

func readResourceStatus(log logrus.FieldLogger) ResourceStatus {
	rs := ResourceStatus{EUID: unix.Geteuid()}

	var err error
	if rs.Memlock, err = getrlimit(unix.RLIMIT_MEMLOCK); err != nil {
		rs.LimitsError = err
	}
	if rs.OpenFiles, err = getrlimit(unix.RLIMIT_NOFILE); err != nil && rs.LimitsError == nil {
		rs.LimitsError = err
	}

	caps, capErr := readCapSets()
	var capsPtr *capSets
	if capErr == nil {
		capsPtr = &caps
	}
	rs.Privilege = decidePrivilege(readLastCap(), capsPtr, rs.EUID, unix.CAP_BPF, unix.CAP_SYS_ADMIN)

	rs.HasCapBPF = capResult(caps, capErr, unix.CAP_BPF)
	rs.HasCapSysAdmin = capResult(caps, capErr, unix.CAP_SYS_ADMIN)
	rs.HasCapNetAdmin = capResult(caps, capErr, unix.CAP_NET_ADMIN)
	rs.HasCapNetRaw = capResult(caps, capErr, unix.CAP_NET_RAW)
	rs.HasCapPerfmon = capResult(caps, capErr, unix.CAP_PERFMON)
	if capErr == nil {
		for _, c := range []int{unix.CAP_BPF, unix.CAP_SYS_ADMIN, unix.CAP_NET_ADMIN, unix.CAP_NET_RAW, unix.CAP_PERFMON, unix.CAP_IPC_LOCK} {
			if caps.permittedOnly(c) {
				rs.PermittedNotEffective = append(rs.PermittedNotEffective, capNames[c])
			}
		}
	}

	rs.UnprivilegedBPFDisabled = probeUnprivilegedBPF()
	rs.JITEnabled = probeSysctlNonZero(jitEnablePath)
	rs.Tuning = readHostTuning(defaultRoots, log)
	return rs
}

func getrlimit(resource int) (Limit, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(resource, &rl); err != nil {
		return Limit{}, err
	}
	return Limit{Soft: rl.Cur, Hard: rl.Max}, nil
}

// readCapSets calls capget(2) with the v3 header. Version 3 fills two data
// words; capabilities 32 and up (CAP_PERFMON, CAP_BPF) live in the second.
func readCapSets() (capSets, error) {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return capSets{}, err
	}
	return capSets{
		effective: uint64(data[1].Effective)<<32 | uint64(data[0].Effective),
		permitted: uint64(data[1].Permitted)<<32 | uint64(data[0].Permitted),
	}, nil
}

func capResult(caps capSets, err error, capability int) ProbeResult {
	if err != nil {
		return ProbeResult{Supported: false, Error: err}
	}
	return ProbeResult{Supported: caps.has(capability)}
}

// readLastCap returns the highest capability the kernel knows, or -1.
func readLastCap() int {
	data, err := os.ReadFile(capLastCapPath)
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1
	}
	return n
}

// probeUnprivilegedBPF reads /proc/sys/kernel/unprivileged_bpf_disabled.
// Values: 0=allowed, 1=disabled, 2=disabled+locked.
func probeUnprivilegedBPF() ProbeResult {
	data, err := os.ReadFile(unprivilegedBPFPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ProbeResult{Supported: false}
		}
		return ProbeResult{Supported: false, Error: err}
	}
	val := strings.TrimSpace(string(data))
	return ProbeResult{Supported: val == "1" || val == "2"}
}

// probeSysctlNonZero reads a sysctl file and returns Supported=true
// if the value is a non-zero integer.
func probeSysctlNonZero(path string) ProbeResult {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ProbeResult{Supported: false}
		}
		return ProbeResult{Supported: false, Error: err}
	}
	val := strings.TrimSpace(string(data))
	return ProbeResult{Supported: val != "0" && val != ""}
}
