package xdpcheck

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// String returns the compact human-readable report.
func (r Report) String() string {
	var b strings.Builder
	r.write(&b, false)
	return b.String()
}

// Render writes the human-readable report to w. Verbose adds the probe
// snapshots behind each verdict. Colors follow [color.NoColor].
func (r Report) Render(w io.Writer, verbose bool) error {
	var b strings.Builder
	r.write(&b, verbose)
	_, err := io.WriteString(w, b.String())
	return err
}

func (r Report) write(b *strings.Builder, verbose bool) {
	fmt.Fprintf(b, "%s %s\n\n", bold("XDP compatibility:"), verdictLabel(r.Verdict))

	writeCategory(b, r.Kernel)
	if verbose && r.KernelInfo != nil {
		writeKernelInfo(b, r.KernelInfo)
	}
	writeCategory(b, r.Resources)
	if verbose && r.ResourceStatus != nil {
		writeResourceStatus(b, r.ResourceStatus)
	}
	if len(r.Interfaces) > 1 {
		writeCategory(b, r.Interface)
		for _, ic := range r.Interfaces {
			writeLine(b, "  "+ic.Name, ic.Result)
			if verbose && ic.Support != nil {
				writeSupport(b, ic.Support)
			}
		}
	} else {
		writeCategory(b, r.Interface)
		if verbose && len(r.Interfaces) == 1 && r.Interfaces[0].Support != nil {
			writeSupport(b, r.Interfaces[0].Support)
		}
	}
	writeCategory(b, r.Runtime.CategoryResult)
	for _, m := range r.Runtime.Matches {
		fmt.Fprintf(b, indent+"match: %s", m.Program.Fingerprint())
		if len(m.AttachedTo) > 0 {
			fmt.Fprintf(b, " on %s", strings.Join(m.AttachedTo, ", "))
		}
		b.WriteString("\n")
	}
	for _, p := range r.Runtime.Others {
		fmt.Fprintf(b, indent+"other: %q %s\n", p.Name, p.Fingerprint())
	}
	if verbose && r.Inventory != nil {
		writeInventory(b, r.Inventory)
	}
}

func verdictLabel(v Verdict) string {
	switch v {
	case VerdictPass:
		return green(v.String())
	case VerdictFail:
		return red(v.String())
	default:
		return yellow(v.String())
	}
}

// labelWidth fits the widest status label, [INDETERMINATE].
const labelWidth = len("[INDETERMINATE]")

// indent aligns detail lines with the category name column.
var indent = strings.Repeat(" ", labelWidth+1)

func statusLabel(s Status) string {
	label := fmt.Sprintf("%-*s", labelWidth, "["+strings.ToUpper(s.String())+"]")
	switch s {
	case StatusPass:
		return green(label)
	case StatusFail, StatusError:
		return red(label)
	case StatusIndeterminate:
		return yellow(label)
	case StatusInfo:
		return cyan(label)
	default:
		return label
	}
}

func writeCategory(b *strings.Builder, c CategoryResult) {
	writeLine(b, string(c.Category), c)
}

func writeLine(b *strings.Builder, name string, c CategoryResult) {
	reason := c.Reason
	if !c.Evaluated() {
		reason = "not requested"
	}
	fmt.Fprintf(b, "%s %-10s %s\n", statusLabel(c.Status), name, reason)
	for _, n := range c.Notes {
		level := cyan(string(n.Level))
		if n.Level == NoteWarn {
			level = yellow(string(n.Level))
		}
		fmt.Fprintf(b, indent+"%s: %s\n", level, n.Text)
	}
}

func writeKernelInfo(b *strings.Builder, ki *KernelInfo) {
	fmt.Fprintf(b, indent+"release: %s\n", ki.Release)
	writeResult(b, indent+"BTF", ki.BTF)
	if ki.Config != nil {
		fmt.Fprintf(b, indent+"config: %s\n", ki.Config.Source)
		writeConfig(b, indent+"  CONFIG_BPF", ki.Config.BPF)
		writeConfig(b, indent+"  CONFIG_BPF_SYSCALL", ki.Config.BPFSyscall)
		writeConfig(b, indent+"  CONFIG_XDP_SOCKETS", ki.Config.XDPSockets)
		writeConfig(b, indent+"  CONFIG_BPF_JIT", ki.Config.BPFJIT)
		writeConfig(b, indent+"  CONFIG_DEBUG_INFO_BTF", ki.Config.BTF)
	}
}

func writeResourceStatus(b *strings.Builder, rs *ResourceStatus) {
	fmt.Fprintf(b, indent+"memlock: %s\n", rs.Memlock)
	fmt.Fprintf(b, indent+"open files: %s\n", rs.OpenFiles)
	fmt.Fprintf(b, indent+"euid: %d\n", rs.EUID)
	if rs.Tuning.CPUs > 0 {
		fmt.Fprintf(b, indent+"cpus: %d\n", rs.Tuning.CPUs)
	}
	if rs.Tuning.Governor != "" {
		fmt.Fprintf(b, indent+"cpu governor: %s\n", rs.Tuning.Governor)
	}
	writeResult(b, indent+"CAP_BPF", rs.HasCapBPF)
	writeResult(b, indent+"CAP_SYS_ADMIN", rs.HasCapSysAdmin)
	writeResult(b, indent+"CAP_NET_ADMIN", rs.HasCapNetAdmin)
	writeResult(b, indent+"CAP_NET_RAW", rs.HasCapNetRaw)
	writeResult(b, indent+"CAP_PERFMON", rs.HasCapPerfmon)
	writeResult(b, indent+"Unprivileged BPF disabled", rs.UnprivilegedBPFDisabled)
	writeResult(b, indent+"BPF JIT enabled", rs.JITEnabled)
}

func writeSupport(b *strings.Builder, s *InterfaceXDPSupport) {
	fmt.Fprintf(b, indent+"ifindex %d, %s, mtu %d, queues rx %d tx %d\n", s.Index, s.OperState, s.MTU, s.RxQueues, s.TxQueues)
	if s.Driver != "" {
		fmt.Fprintf(b, indent+"driver: %s %s", s.Driver, s.DriverVersion)
		if s.Firmware != "" {
			fmt.Fprintf(b, " (firmware %s)", s.Firmware)
		}
		if s.BusInfo != "" {
			fmt.Fprintf(b, " at %s", s.BusInfo)
		}
		b.WriteString("\n")
	}
	if s.XDPFeatures != nil {
		features := "none"
		if len(s.XDPFeatures) > 0 {
			features = strings.Join(s.XDPFeatures, ", ")
		}
		fmt.Fprintf(b, indent+"xdp features: %s\n", features)
	}
	if s.ZCMaxSegs > 0 {
		fmt.Fprintf(b, indent+"xsk zero-copy max segments: %d\n", s.ZCMaxSegs)
	}
	if s.Ring != nil {
		fmt.Fprintf(b, indent+"rings: rx %d/%d tx %d/%d\n", s.Ring.RxPending, s.Ring.RxMaxPending, s.Ring.TxPending, s.Ring.TxMaxPending)
	}
}

func writeInventory(b *strings.Builder, inv *Inventory) {
	fmt.Fprintf(b, indent+"%d program(s) loaded\n", len(inv.Programs))
	for _, p := range inv.Programs {
		fmt.Fprintf(b, indent+"  %6d  %-16s %-15s %s", p.ID, p.Type, p.Name, p.Tag)
		if !p.LoadedAt.IsZero() {
			fmt.Fprintf(b, "  loaded %s", p.LoadedAt.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
	}
	for _, a := range inv.Attachments {
		fmt.Fprintf(b, indent+"xdp on %s: program %d (%s)\n", a.Interface, a.ProgramID, a.Mode)
	}
	if inv.AttachmentsError != nil {
		fmt.Fprintf(b, indent+"attachments: error: %v\n", inv.AttachmentsError)
	}
}

func writeResult(b *strings.Builder, name string, r ProbeResult) {
	status := "no"
	if r.Supported {
		status = "yes"
	}
	if r.Error != nil {
		fmt.Fprintf(b, "%s: %s (error: %v)\n", name, status, r.Error)
	} else {
		fmt.Fprintf(b, "%s: %s\n", name, status)
	}
}

func writeConfig(b *strings.Builder, name string, v ConfigValue) {
	fmt.Fprintf(b, "%s: %s\n", name, v)
}
