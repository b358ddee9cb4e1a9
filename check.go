package xdpcheck

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// probeFailure is the category result for a probe that produced no value.
func probeFailure(cat Category, status ProbeStatus, err error) CategoryResult {
	res := CategoryResult{Category: cat, Status: StatusError}
	switch status {
	case StatusDenied:
		res.Reason = "probe denied: " + errString(err)
	default:
		res.Reason = "probe unavailable: " + errString(err)
	}
	return res
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// checkKernel passes iff the kernel reaches the generic tier.
func checkKernel(o Outcome[KernelInfo], p Policy) CategoryResult {
	if !o.Ok() {
		return probeFailure(CategoryKernel, o.Status, o.Err)
	}
	ki := o.Value
	res := CategoryResult{Category: CategoryKernel}

	if ki.Tier < TierGeneric {
		res.Status = StatusFail
		res.Reason = fmt.Sprintf("kernel too old: %s", ki.Version)
		if need, ok := p.Tiers.MinimumFor(TierGeneric); ok {
			res.Reason += fmt.Sprintf(", need %d.%d or later", need.Major, need.Minor)
		}
		return res
	}

	res.Status = StatusPass
	res.Reason = fmt.Sprintf("kernel %s, XDP tier %s", ki.Version, ki.Tier)
	if ki.Tier < TierFull {
		if rec, ok := p.Tiers.MinimumFor(TierFull); ok {
			res.note(NoteInfo, "kernel %d.%d or later recommended", rec.Major, rec.Minor)
		}
	}
	if !ki.BTF.Supported {
		res.note(NoteWarn, "BTF not available at %s", btfPath)
	}
	if ki.Config != nil {
		for _, m := range missingConfig(ki.Config, XDPConfigRequirements) {
			level := NoteInfo
			if m.Required {
				level = NoteWarn
			}
			res.note(level, "CONFIG_%s not set (%s)", m.Key, m.Reason)
		}
	}
	return res
}

// checkResources passes iff memlock is unlimited or above the minimum and the
// process holds the BPF privilege.
func checkResources(o Outcome[ResourceStatus], p Policy) CategoryResult {
	if !o.Ok() {
		return probeFailure(CategoryResources, o.Status, o.Err)
	}
	rs := o.Value
	res := CategoryResult{Category: CategoryResources, Status: StatusPass}

	var problems []string
	switch {
	case rs.LimitsError != nil:
		problems = append(problems, "memlock limit unreadable: "+rs.LimitsError.Error())
	case !rs.Memlock.AtLeast(p.MinMemlock):
		problems = append(problems, fmt.Sprintf("memlock %s below %s", formatLimit(rs.Memlock.Soft), formatLimit(p.MinMemlock)))
	case !rs.Memlock.AtLeast(p.RecommendedMemlock):
		res.note(NoteWarn, "memlock %s below recommended %s", formatLimit(rs.Memlock.Soft), formatLimit(p.RecommendedMemlock))
	}

	if !rs.Privilege.Granted {
		problems = append(problems, fmt.Sprintf("insufficient privilege (%s check)", rs.Privilege.Path))
	}

	if len(problems) > 0 {
		res.Status = StatusFail
		res.Reason = strings.Join(problems, "; ")
	} else {
		res.Reason = fmt.Sprintf("memlock %s, privileged via %s", formatLimit(rs.Memlock.Soft), rs.Privilege.Path)
	}

	if !rs.HasCapNetAdmin.Supported && rs.EUID != 0 {
		res.note(NoteWarn, "CAP_NET_ADMIN missing: attaching XDP programs will fail")
	}
	if len(rs.PermittedNotEffective) > 0 {
		res.note(NoteInfo, "permitted but not effective: %s", strings.Join(rs.PermittedNotEffective, ", "))
	}
	if rs.JITEnabled.Error == nil && !rs.JITEnabled.Supported {
		res.note(NoteWarn, "BPF JIT disabled; set net.core.bpf_jit_enable=1")
	}
	tuningNotes(&res, rs.Tuning)
	return res
}

// checkInterface evaluates one interface probe outcome.
func checkInterface(o Outcome[InterfaceXDPSupport], name string) CategoryResult {
	if !o.Ok() {
		res := probeFailure(CategoryInterface, o.Status, o.Err)
		if errors.Is(o.Err, ErrInterfaceNotFound) {
			res.Reason = "interface not found"
		}
		return res
	}
	sup := o.Value
	res := CategoryResult{Category: CategoryInterface}

	driver := sup.Driver
	if driver == "" {
		driver = "unknown driver"
	}
	switch sup.Level {
	case SupportNativeOffload:
		res.Status = StatusPass
		res.Reason = fmt.Sprintf("native XDP (%s, via %s)", driver, sup.Source)
	case SupportGenericOnly:
		res.Status = StatusPass
		res.Reason = fmt.Sprintf("generic XDP only (%s)", driver)
		res.note(NoteWarn, "generic mode runs after skb allocation; expect reduced throughput")
	case SupportNone:
		res.Status = StatusFail
		res.Reason = fmt.Sprintf("no XDP support (%s)", driver)
	default:
		res.Status = StatusIndeterminate
		res.Reason = fmt.Sprintf("XDP support unknown (%s)", driver)
	}

	if sup.KnownIssue != "" {
		res.note(NoteWarn, "%s", sup.KnownIssue)
	}
	if sup.OperState != "" && sup.OperState != "up" && sup.OperState != "unknown" {
		res.note(NoteWarn, "link is %s", sup.OperState)
	}
	if sup.Attached != nil {
		res.note(NoteInfo, "XDP program %d already attached (%s mode)", sup.Attached.ProgramID, sup.Attached.Mode)
	}
	return res
}

// checkRuntime looks for the target program. An exact match of the
// kernel-visible name, the target cut to 15 bytes, on an XDP program is the
// only way to match; a matching tag on a differently named program is
// reported but never counted.
func checkRuntime(o Outcome[Inventory], inv *Inventory, p Policy) RuntimeResult {
	rr := RuntimeResult{
		CategoryResult: CategoryResult{Category: CategoryRuntime},
		Target:         p.TargetName,
		ExpectedTag:    p.ExpectedTag,
	}
	if !o.Ok() || inv == nil {
		rr.CategoryResult = probeFailure(CategoryRuntime, o.Status, o.Err)
		return rr
	}

	want := kernelName(p.TargetName)
	attached := make(map[Fingerprint][]string)
	for _, a := range inv.Attachments {
		for _, prog := range inv.Programs {
			if prog.ID == a.ProgramID {
				attached[prog.Fingerprint()] = append(attached[prog.Fingerprint()], a.Interface)
			}
		}
	}

	for _, prog := range inv.Programs {
		if !prog.IsXDP() {
			continue
		}
		if prog.Name != want {
			rr.Others = append(rr.Others, prog)
			continue
		}
		m := RuntimeMatch{Program: prog, AttachedTo: attached[prog.Fingerprint()]}
		if p.ExpectedTag != "" {
			ok := strings.EqualFold(prog.Tag, p.ExpectedTag)
			m.TagMatches = &ok
		}
		rr.Matches = append(rr.Matches, m)
	}

	switch {
	case len(rr.Matches) > 0:
		rr.Status = StatusPass
		ids := make([]string, 0, len(rr.Matches))
		for _, m := range rr.Matches {
			ids = append(ids, m.Program.Fingerprint().String())
		}
		rr.Reason = fmt.Sprintf("%s loaded (%s)", p.TargetName, strings.Join(ids, ", "))
		if len(rr.Matches) > 1 {
			rr.note(NoteWarn, "%d programs named %s are loaded", len(rr.Matches), p.TargetName)
		}
		for _, m := range rr.Matches {
			if m.TagMatches != nil && !*m.TagMatches {
				rr.note(NoteWarn, "program %d tag %s differs from expected %s", m.Program.ID, m.Program.Tag, p.ExpectedTag)
			}
		}
	case len(rr.Others) > 0:
		rr.Status = StatusInfo
		rr.Reason = fmt.Sprintf("%s not found; %d other XDP program(s) loaded", p.TargetName, len(rr.Others))
	default:
		rr.Status = StatusInfo
		rr.Reason = fmt.Sprintf("%s not found", p.TargetName)
	}

	if p.ExpectedTag != "" {
		for _, prog := range rr.Others {
			if strings.EqualFold(prog.Tag, p.ExpectedTag) {
				rr.note(NoteInfo, "program %d (%q) carries the expected tag but a different name", prog.ID, prog.Name)
			}
		}
	}
	if inv.AttachmentsError != nil {
		rr.note(NoteWarn, "XDP attachments unavailable: %v", inv.AttachmentsError)
	}
	socketNotes(&rr.CategoryResult, inv.Sockets)
	return rr
}

func socketNotes(res *CategoryResult, s SocketStatus) {
	switch {
	case s.XSKSockets != nil:
		res.note(NoteInfo, "%d AF_XDP socket(s) open", *s.XSKSockets)
	case s.XSKDiag:
		res.note(NoteInfo, "xsk_diag loaded; AF_XDP socket list unavailable")
	}
	if s.PinnedXDP != nil && *s.PinnedXDP > 0 {
		res.note(NoteInfo, "%d XDP-related object(s) pinned under %s", *s.PinnedXDP, bpffsRoot)
	}
}

// loadWarnRatio is the one-minute load per CPU above which throughput
// suffers.
const loadWarnRatio = 0.7

func tuningNotes(res *CategoryResult, t HostTuning) {
	if t.HugePages != nil {
		var free []string
		for _, p := range t.HugePages {
			if p.Free > 0 {
				free = append(free, fmt.Sprintf("%d x %s", p.Free, formatLimit(p.SizeKiB<<10)))
			}
		}
		if len(free) > 0 {
			res.note(NoteInfo, "huge pages free: %s", strings.Join(free, ", "))
		} else {
			res.note(NoteInfo, "no free huge pages; UMEM falls back to 4KiB pages")
		}
	}
	switch t.Governor {
	case "powersave", "conservative":
		res.note(NoteWarn, "CPU frequency governor %s; performance is preferred for XDP", t.Governor)
	}
	if len(t.IsolatedCPUs) > 0 {
		ids := make([]string, len(t.IsolatedCPUs))
		for i, c := range t.IsolatedCPUs {
			ids[i] = strconv.Itoa(int(c))
		}
		res.note(NoteInfo, "isolated CPUs: %s", strings.Join(ids, ","))
	}
	if t.IRQBalance != nil && *t.IRQBalance {
		res.note(NoteInfo, "irqbalance is running; consider pinning NIC queue IRQs")
	}
	if t.Load1 != nil && t.CPUs > 0 && *t.Load1/float64(t.CPUs) >= loadWarnRatio {
		res.note(NoteWarn, "load average %.2f on %d CPUs", *t.Load1, t.CPUs)
	}
}
