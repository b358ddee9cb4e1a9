package xdpcheck

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
	"github.com/sirupsen/logrus"
)

// HugePagePool is one huge page size and how many pages of it are free.
type HugePagePool struct {
	SizeKiB uint64 `json:"size_kib"`
	Free    uint64 `json:"free"`
}

// HostTuning holds host settings that affect XDP throughput. None of them
// takes part in a verdict; nil or zero fields were not readable.
type HostTuning struct {
	CPUs         int            `json:"cpus,omitempty"`
	Governor     string         `json:"governor,omitempty"`
	IsolatedCPUs []uint16       `json:"isolated_cpus,omitempty"`
	HugePages    []HugePagePool `json:"huge_pages,omitempty"`
	// IRQBalance is true when an irqbalance process is running.
	IRQBalance *bool    `json:"irqbalance,omitempty"`
	Load1      *float64 `json:"load1,omitempty"`
}

// HostRoots locates the proc and sys mounts the host readers use.
type HostRoots struct {
	Proc string
	Sys  string
}

var defaultRoots = HostRoots{Proc: procfs.DefaultMountPoint, Sys: sysfs.DefaultMountPoint}

// readHostTuning collects [HostTuning] best effort. Unreadable sources are
// logged at debug level and left empty.
func readHostTuning(roots HostRoots, log logrus.FieldLogger) HostTuning {
	t := HostTuning{CPUs: runtime.NumCPU()}

	pools, err := readHugePages(filepath.Join(roots.Sys, "kernel/mm/hugepages"))
	if err != nil {
		log.WithError(err).Debug("huge pages unavailable")
	}
	t.HugePages = pools

	if proc, err := procfs.NewFS(roots.Proc); err != nil {
		log.WithError(err).Debug("procfs unavailable")
	} else {
		if la, err := proc.LoadAvg(); err == nil {
			t.Load1 = &la.Load1
		} else {
			log.WithError(err).Debug("load average unavailable")
		}
		if running, err := processRunning(proc, "irqbalance"); err == nil {
			t.IRQBalance = &running
		} else {
			log.WithError(err).Debug("process list unavailable")
		}
	}

	if sys, err := sysfs.NewFS(roots.Sys); err != nil {
		log.WithError(err).Debug("sysfs unavailable")
	} else {
		if freqs, err := sys.SystemCpufreq(); err == nil && len(freqs) > 0 {
			t.Governor = freqs[0].Governor
		}
		if isolated, err := sys.IsolatedCPUs(); err == nil {
			t.IsolatedCPUs = isolated
		}
	}
	return t
}

// readHugePages reads free_hugepages of every pool under dir, ordered by
// page size. A missing dir means the kernel has no huge page support.
func readHugePages(dir string) ([]HugePagePool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	pools := []HugePagePool{}
	for _, e := range entries {
		size, ok := strings.CutPrefix(e.Name(), "hugepages-")
		if !ok {
			continue
		}
		kib, err := strconv.ParseUint(strings.TrimSuffix(size, "kB"), 10, 64)
		if err != nil {
			continue
		}
		free, err := readUint(filepath.Join(dir, e.Name(), "free_hugepages"))
		if err != nil {
			continue
		}
		pools = append(pools, HugePagePool{SizeKiB: kib, Free: free})
	}
	slices.SortFunc(pools, func(a, b HugePagePool) int { return cmpInt(int(a.SizeKiB), int(b.SizeKiB)) })
	return pools, nil
}

func processRunning(fs procfs.FS, comm string) (bool, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		if c, err := p.Comm(); err == nil && c == comm {
			return true, nil
		}
	}
	return false, nil
}

// SocketStatus holds AF_XDP socket and bpffs facts for the runtime
// category. Nil fields were not readable.
type SocketStatus struct {
	// XSKSockets counts the rows of /proc/net/xsk.
	XSKSockets *int `json:"xsk_sockets,omitempty"`
	// XSKDiag is true when the xsk_diag module is loaded.
	XSKDiag bool `json:"xsk_diag,omitempty"`
	// PinnedXDP counts bpffs entries whose name mentions xdp or xsk.
	PinnedXDP *int `json:"pinned_xdp,omitempty"`
}

// bpffsRoot is where BPF objects are conventionally pinned.
const bpffsRoot = "/sys/fs/bpf"

func readSocketStatus(roots HostRoots, bpffs string, log logrus.FieldLogger) SocketStatus {
	var s SocketStatus
	if n, err := countXSKSockets(filepath.Join(roots.Proc, "net/xsk")); err == nil {
		s.XSKSockets = &n
	} else if !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Debug("cannot read AF_XDP socket list")
	}
	if loaded, err := moduleLoaded(filepath.Join(roots.Proc, "modules"), "xsk_diag"); err == nil {
		s.XSKDiag = loaded
	}
	if n, err := countPinned(bpffs); err == nil {
		s.PinnedXDP = &n
	} else {
		log.WithError(err).Debug("cannot read bpffs")
	}
	return s
}

// countXSKSockets counts the data rows of /proc/net/xsk, which starts with
// a header line.
func countXSKSockets(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := -1
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return max(n, 0), nil
}

func moduleLoaded(path, module string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, _, _ := strings.Cut(scanner.Text(), " ")
		if name == module {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// countPinned counts top-level bpffs entries related to XDP.
func countPinned(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if strings.Contains(name, "xdp") || strings.Contains(name, "xsk") {
			n++
		}
	}
	return n, nil
}

func readUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}
