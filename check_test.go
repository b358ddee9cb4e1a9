package xdpcheck

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"syscall"
	"testing"

	"github.com/cilium/ebpf"
)

func kernelOutcome(release string) *Outcome[KernelInfo] {
	ki, err := kernelInfoFromRelease(release, DefaultTierPolicy())
	if err != nil {
		o := Failed[KernelInfo](err)
		return &o
	}
	ki.BTF = ProbeResult{Supported: true}
	o := OK(ki)
	return &o
}

func privilegedResources() *Outcome[ResourceStatus] {
	o := OK(ResourceStatus{
		Memlock:        Limit{Soft: RLimitInfinity, Hard: RLimitInfinity},
		OpenFiles:      Limit{Soft: 1 << 20, Hard: 1 << 20},
		Privilege:      PrivilegeCheck{Path: PathCapBPF, Granted: true},
		HasCapBPF:      ProbeResult{Supported: true},
		HasCapNetAdmin: ProbeResult{Supported: true},
		JITEnabled:     ProbeResult{Supported: true},
	})
	return &o
}

func inventoryOutcome(progs ...ProgramRecord) *Outcome[Inventory] {
	o := OK(Inventory{Programs: progs})
	return &o
}

func xdpProgram(id ebpf.ProgramID, name, tag string) ProgramRecord {
	return ProgramRecord{ID: id, Name: name, Tag: tag, Type: ebpf.XDP}
}

func TestBuildReport_HealthyHostWithoutTarget(t *testing.T) {
	r := BuildReport(Inputs{
		Kernel:    kernelOutcome("5.15.0"),
		Resources: privilegedResources(),
		Inventory: inventoryOutcome(),
	})

	if r.Verdict != VerdictPass {
		t.Errorf("Verdict = %v, want PASS", r.Verdict)
	}
	if r.Kernel.Status != StatusPass || r.Resources.Status != StatusPass {
		t.Errorf("Kernel = %v, Resources = %v, want pass", r.Kernel.Status, r.Resources.Status)
	}
	if r.Interface.Evaluated() {
		t.Errorf("Interface = %v, want skipped", r.Interface.Status)
	}
	if r.Runtime.Status != StatusInfo || r.Runtime.Reason != "agave_xdp not found" {
		t.Errorf("Runtime = %v %q, want info not found", r.Runtime.Status, r.Runtime.Reason)
	}
	if r.ExitCode() != ExitOK {
		t.Errorf("ExitCode() = %d, want %d", r.ExitCode(), ExitOK)
	}
}

func TestBuildReport_OldKernel(t *testing.T) {
	r := BuildReport(Inputs{
		Kernel:    kernelOutcome("4.15.0"),
		Resources: privilegedResources(),
		Inventory: inventoryOutcome(),
	})

	if r.Kernel.Status != StatusFail {
		t.Fatalf("Kernel = %v, want fail", r.Kernel.Status)
	}
	if !strings.Contains(r.Kernel.Reason, "kernel too old") {
		t.Errorf("Kernel.Reason = %q, want kernel too old", r.Kernel.Reason)
	}
	if r.Verdict != VerdictFail {
		t.Errorf("Verdict = %v, want FAIL", r.Verdict)
	}
	if r.ExitCode() != ExitKernel {
		t.Errorf("ExitCode() = %d, want %d", r.ExitCode(), ExitKernel)
	}
}

func TestBuildReport_RuntimeExactMatch(t *testing.T) {
	target := xdpProgram(42, "agave_xdp", "a1b2c3d4e5f60718")
	r := BuildReport(Inputs{
		Inventory: inventoryOutcome(
			ProgramRecord{ID: 7, Name: "sock", Tag: "00", Type: ebpf.SocketFilter},
			target,
		),
	})

	if r.Runtime.Status != StatusPass {
		t.Fatalf("Runtime = %v, want pass", r.Runtime.Status)
	}
	if len(r.Runtime.Matches) != 1 {
		t.Fatalf("Matches = %+v, want 1", r.Runtime.Matches)
	}
	if got := r.Runtime.Matches[0].Program.Fingerprint(); got != target.Fingerprint() {
		t.Errorf("match = %v, want %v", got, target.Fingerprint())
	}
	if !strings.Contains(r.Runtime.Reason, "id=42 tag=a1b2c3d4e5f60718") {
		t.Errorf("Reason = %q, want id and tag", r.Runtime.Reason)
	}
	if len(r.Runtime.Others) != 0 {
		t.Errorf("Others = %+v, want none", r.Runtime.Others)
	}
}

func TestBuildReport_RuntimeOtherXDPPrograms(t *testing.T) {
	r := BuildReport(Inputs{
		Inventory: inventoryOutcome(
			xdpProgram(11, "xdp_fw", "11"),
			xdpProgram(12, "xdp_lb", "12"),
		),
	})

	if r.Runtime.Status != StatusInfo {
		t.Errorf("Runtime = %v, want info", r.Runtime.Status)
	}
	if len(r.Runtime.Matches) != 0 {
		t.Errorf("Matches = %+v, want none", r.Runtime.Matches)
	}
	if len(r.Runtime.Others) != 2 {
		t.Errorf("Others = %+v, want both programs", r.Runtime.Others)
	}
	if !strings.Contains(r.Runtime.Reason, "2 other XDP program(s)") {
		t.Errorf("Reason = %q", r.Runtime.Reason)
	}
}

func TestBuildReport_RuntimeNameMustMatchExactly(t *testing.T) {
	r := BuildReport(Inputs{
		Inventory: inventoryOutcome(
			xdpProgram(1, "agave_xdp_v2", "aa"),
			xdpProgram(2, "AGAVE_XDP", "bb"),
			ProgramRecord{ID: 3, Name: "agave_xdp", Tag: "cc", Type: ebpf.Kprobe},
		),
	})
	if len(r.Runtime.Matches) != 0 {
		t.Errorf("Matches = %+v, want none", r.Runtime.Matches)
	}
}

func TestBuildReport_RuntimeLongTargetName(t *testing.T) {
	// The kernel keeps 15 bytes of a program name.
	r := BuildReport(Inputs{
		Inventory: inventoryOutcome(xdpProgram(9, "agave_xdp_progr", "99")),
		Policy:    Policy{TargetName: "agave_xdp_program"},
	})
	if r.Runtime.Status != StatusPass || len(r.Runtime.Matches) != 1 {
		t.Fatalf("Runtime = %v %+v, want one match", r.Runtime.Status, r.Runtime.Matches)
	}
	if r.Runtime.Target != "agave_xdp_program" {
		t.Errorf("Target = %q, want the name as given", r.Runtime.Target)
	}

	r = BuildReport(Inputs{
		Inventory: inventoryOutcome(xdpProgram(9, "agave_xdp_prog", "99")),
		Policy:    Policy{TargetName: "agave_xdp_program"},
	})
	if len(r.Runtime.Matches) != 0 {
		t.Errorf("Matches = %+v, want none for a shorter name", r.Runtime.Matches)
	}
}

func TestBuildReport_RuntimeSocketNotes(t *testing.T) {
	two, pinned := 2, 3
	o := OK(Inventory{
		Programs: []ProgramRecord{},
		Sockets:  SocketStatus{XSKSockets: &two, PinnedXDP: &pinned},
	})
	r := BuildReport(Inputs{Inventory: &o})

	joined := noteTexts(r.Runtime.Notes)
	if !strings.Contains(joined, "2 AF_XDP socket(s) open") {
		t.Errorf("Notes = %q, want socket count", joined)
	}
	if !strings.Contains(joined, "3 XDP-related object(s) pinned") {
		t.Errorf("Notes = %q, want pinned count", joined)
	}
	if r.Runtime.Status != StatusInfo {
		t.Errorf("Runtime = %v, want info", r.Runtime.Status)
	}

	o = OK(Inventory{Programs: []ProgramRecord{}, Sockets: SocketStatus{XSKDiag: true}})
	r = BuildReport(Inputs{Inventory: &o})
	if joined := noteTexts(r.Runtime.Notes); !strings.Contains(joined, "xsk_diag loaded") {
		t.Errorf("Notes = %q, want xsk_diag fallback", joined)
	}
}

func noteTexts(notes []Note) string {
	texts := make([]string, 0, len(notes))
	for _, n := range notes {
		texts = append(texts, n.Text)
	}
	return strings.Join(texts, "|")
}

func TestBuildReport_RuntimeExpectedTag(t *testing.T) {
	t.Run("tag on another program is not a match", func(t *testing.T) {
		r := BuildReport(Inputs{
			Inventory: inventoryOutcome(xdpProgram(5, "renamed", "feedface")),
			Policy:    Policy{ExpectedTag: "FEEDFACE"},
		})
		if len(r.Runtime.Matches) != 0 || r.Runtime.Status == StatusPass {
			t.Fatalf("Runtime = %+v, want no match", r.Runtime)
		}
		if len(r.Runtime.Notes) != 1 || !strings.Contains(r.Runtime.Notes[0].Text, "expected tag") {
			t.Errorf("Notes = %+v, want expected tag note", r.Runtime.Notes)
		}
	})

	t.Run("matched program tag compared", func(t *testing.T) {
		r := BuildReport(Inputs{
			Inventory: inventoryOutcome(xdpProgram(5, "agave_xdp", "0011")),
			Policy:    Policy{ExpectedTag: "0022"},
		})
		if len(r.Runtime.Matches) != 1 {
			t.Fatalf("Matches = %+v", r.Runtime.Matches)
		}
		tm := r.Runtime.Matches[0].TagMatches
		if tm == nil || *tm {
			t.Errorf("TagMatches = %v, want false", tm)
		}
		if r.Runtime.Status != StatusPass {
			t.Errorf("Runtime = %v, want pass", r.Runtime.Status)
		}
	})
}

func TestBuildReport_RuntimeAttachedTo(t *testing.T) {
	o := OK(Inventory{
		Programs:    []ProgramRecord{xdpProgram(9, "agave_xdp", "99")},
		Attachments: []XDPAttachment{{Interface: "eth0", Index: 2, ProgramID: 9, Mode: AttachDrv}},
	})
	r := BuildReport(Inputs{Inventory: &o})
	if got := r.Runtime.Matches[0].AttachedTo; !reflect.DeepEqual(got, []string{"eth0"}) {
		t.Errorf("AttachedTo = %v, want [eth0]", got)
	}
}

func TestBuildReport_RuntimeNeverGates(t *testing.T) {
	failed := Failed[Inventory](fmt.Errorf("%w: %w", ErrBPFQueryFailed, syscall.EPERM))
	r := BuildReport(Inputs{
		Kernel:    kernelOutcome("6.10.0"),
		Resources: privilegedResources(),
		Inventory: &failed,
	})
	if r.Runtime.Status != StatusError {
		t.Errorf("Runtime = %v, want error", r.Runtime.Status)
	}
	if !strings.HasPrefix(r.Runtime.Reason, "probe denied") {
		t.Errorf("Runtime.Reason = %q", r.Runtime.Reason)
	}
	if r.Verdict != VerdictPass || r.ExitCode() != ExitOK {
		t.Errorf("Verdict = %v, ExitCode = %d, want PASS 0", r.Verdict, r.ExitCode())
	}

	runtimeOnly := BuildReport(Inputs{Inventory: &failed})
	if runtimeOnly.ExitCode() != ExitRuntimeError {
		t.Errorf("runtime-only ExitCode() = %d, want %d", runtimeOnly.ExitCode(), ExitRuntimeError)
	}
}

func TestBuildReport_Interface(t *testing.T) {
	tests := []struct {
		name        string
		outcome     Outcome[InterfaceXDPSupport]
		wantStatus  Status
		wantVerdict Verdict
	}{
		{
			name:        "native",
			outcome:     OK(InterfaceXDPSupport{Name: "eth0", Driver: "ice", Level: SupportNativeOffload, Source: SourceNetdevFeatures}),
			wantStatus:  StatusPass,
			wantVerdict: VerdictPass,
		},
		{
			name:        "generic only",
			outcome:     OK(InterfaceXDPSupport{Name: "eth0", Driver: "virtio_net", Level: SupportGenericOnly}),
			wantStatus:  StatusPass,
			wantVerdict: VerdictPass,
		},
		{
			name:        "none",
			outcome:     OK(InterfaceXDPSupport{Name: "eth0", Level: SupportNone}),
			wantStatus:  StatusFail,
			wantVerdict: VerdictFail,
		},
		{
			name:        "unknown",
			outcome:     OK(InterfaceXDPSupport{Name: "eth0", Driver: "mystery", Level: SupportUnknown}),
			wantStatus:  StatusIndeterminate,
			wantVerdict: VerdictIndeterminate,
		},
		{
			name:        "not found",
			outcome:     Failed[InterfaceXDPSupport](fmt.Errorf("%w: eth0", ErrInterfaceNotFound)),
			wantStatus:  StatusError,
			wantVerdict: VerdictIndeterminate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BuildReport(Inputs{
				Kernel:         kernelOutcome("6.1.0"),
				Resources:      privilegedResources(),
				Interfaces:     []Outcome[InterfaceXDPSupport]{tt.outcome},
				InterfaceNames: []string{"eth0"},
			})
			if r.Interface.Status != tt.wantStatus {
				t.Errorf("Interface = %v, want %v", r.Interface.Status, tt.wantStatus)
			}
			if r.Verdict != tt.wantVerdict {
				t.Errorf("Verdict = %v, want %v", r.Verdict, tt.wantVerdict)
			}
			wantExit := ExitOK
			if tt.wantStatus != StatusPass {
				wantExit = ExitInterface
			}
			if r.ExitCode() != wantExit {
				t.Errorf("ExitCode() = %d, want %d", r.ExitCode(), wantExit)
			}
		})
	}
}

func TestBuildReport_InterfaceNotFoundReason(t *testing.T) {
	r := BuildReport(Inputs{
		Interfaces:     []Outcome[InterfaceXDPSupport]{Failed[InterfaceXDPSupport](fmt.Errorf("%w: nope0", ErrInterfaceNotFound))},
		InterfaceNames: []string{"nope0"},
	})
	if r.Interfaces[0].Result.Reason != "interface not found" {
		t.Errorf("Reason = %q", r.Interfaces[0].Result.Reason)
	}
	if r.Interface.Reason != "nope0: interface not found" {
		t.Errorf("Interface.Reason = %q, want the name once", r.Interface.Reason)
	}
}

func TestBuildReport_InterfaceAggregate(t *testing.T) {
	r := BuildReport(Inputs{
		Interfaces: []Outcome[InterfaceXDPSupport]{
			OK(InterfaceXDPSupport{Name: "eth0", Level: SupportNativeOffload}),
			OK(InterfaceXDPSupport{Name: "eth1", Level: SupportUnknown}),
			OK(InterfaceXDPSupport{Name: "eth2", Level: SupportNone}),
		},
		InterfaceNames: []string{"eth0", "eth1", "eth2"},
	})
	if r.Interface.Status != StatusFail {
		t.Errorf("Interface = %v, want fail", r.Interface.Status)
	}
	if len(r.Interfaces) != 3 {
		t.Errorf("Interfaces = %d, want 3", len(r.Interfaces))
	}
}

func TestBuildReport_Resources(t *testing.T) {
	tests := []struct {
		name       string
		rs         ResourceStatus
		wantStatus Status
		wantReason string
	}{
		{
			name:       "unlimited and privileged",
			rs:         ResourceStatus{Memlock: Limit{Soft: RLimitInfinity}, Privilege: PrivilegeCheck{Path: PathCapBPF, Granted: true}},
			wantStatus: StatusPass,
			wantReason: "memlock unlimited, privileged via CAP_BPF",
		},
		{
			name:       "low memlock",
			rs:         ResourceStatus{Memlock: Limit{Soft: 8 << 20}, Privilege: PrivilegeCheck{Path: PathRoot, Granted: true}},
			wantStatus: StatusFail,
			wantReason: "memlock 8MiB below 64MiB",
		},
		{
			name:       "unprivileged",
			rs:         ResourceStatus{Memlock: Limit{Soft: RLimitInfinity}, Privilege: PrivilegeCheck{Path: PathCapSysAdmin}},
			wantStatus: StatusFail,
			wantReason: "insufficient privilege (CAP_SYS_ADMIN check)",
		},
		{
			name:       "limits unreadable",
			rs:         ResourceStatus{LimitsError: errors.New("boom"), Privilege: PrivilegeCheck{Granted: true}},
			wantStatus: StatusFail,
			wantReason: "memlock limit unreadable: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := OK(tt.rs)
			r := BuildReport(Inputs{Resources: &o})
			if r.Resources.Status != tt.wantStatus {
				t.Errorf("Resources = %v, want %v", r.Resources.Status, tt.wantStatus)
			}
			if r.Resources.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", r.Resources.Reason, tt.wantReason)
			}
		})
	}
}

func TestBuildReport_ResourcesRecommendedNote(t *testing.T) {
	o := OK(ResourceStatus{
		Memlock:        Limit{Soft: 128 << 20},
		Privilege:      PrivilegeCheck{Path: PathCapBPF, Granted: true},
		HasCapNetAdmin: ProbeResult{Supported: true},
		JITEnabled:     ProbeResult{Supported: true},
	})
	r := BuildReport(Inputs{Resources: &o})
	if r.Resources.Status != StatusPass {
		t.Fatalf("Resources = %v, want pass", r.Resources.Status)
	}
	if len(r.Resources.Notes) != 1 || r.Resources.Notes[0].Level != NoteWarn {
		t.Errorf("Notes = %+v, want one warning", r.Resources.Notes)
	}
}

func TestBuildReport_ResourcesTuningNotes(t *testing.T) {
	load, irq := 7.5, true
	rs := privilegedResources().Value
	rs.Tuning = HostTuning{
		CPUs:         8,
		Governor:     "powersave",
		IsolatedCPUs: []uint16{2, 3},
		HugePages:    []HugePagePool{{SizeKiB: 2048, Free: 512}, {SizeKiB: 1 << 20, Free: 0}},
		IRQBalance:   &irq,
		Load1:        &load,
	}
	o := OK(rs)
	r := BuildReport(Inputs{Resources: &o})

	if r.Resources.Status != StatusPass {
		t.Fatalf("Resources = %v, want pass: tuning never gates", r.Resources.Status)
	}
	joined := noteTexts(r.Resources.Notes)
	for _, want := range []string{
		"huge pages free: 512 x 2MiB",
		"CPU frequency governor powersave",
		"isolated CPUs: 2,3",
		"irqbalance is running",
		"load average 7.50 on 8 CPUs",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("Notes = %q, want %q", joined, want)
		}
	}
	if r.Verdict != VerdictPass {
		t.Errorf("Verdict = %v, want PASS", r.Verdict)
	}
}

func TestBuildReport_ResourcesNoHugePages(t *testing.T) {
	rs := privilegedResources().Value
	rs.Tuning = HostTuning{CPUs: 4, HugePages: []HugePagePool{{SizeKiB: 2048}}}
	o := OK(rs)
	r := BuildReport(Inputs{Resources: &o})

	if joined := noteTexts(r.Resources.Notes); joined != "no free huge pages; UMEM falls back to 4KiB pages" {
		t.Errorf("Notes = %q", joined)
	}
}

func TestBuildReport_ProbeErrors(t *testing.T) {
	kernel := Failed[KernelInfo](fmt.Errorf("%w: uname: boom", ErrKernelInfoUnavailable))
	r := BuildReport(Inputs{
		Kernel:    &kernel,
		Resources: privilegedResources(),
	})
	if r.Kernel.Status != StatusError {
		t.Errorf("Kernel = %v, want error", r.Kernel.Status)
	}
	if r.Resources.Status != StatusPass {
		t.Errorf("Resources = %v, want pass despite kernel error", r.Resources.Status)
	}
	if r.Verdict == VerdictPass {
		t.Error("Verdict = PASS with a kernel probe error")
	}
	if r.KernelInfo != nil {
		t.Error("KernelInfo set for a failed probe")
	}
}

func TestBuildReport_KernelNotes(t *testing.T) {
	ki, err := kernelInfoFromRelease("5.10.0", DefaultTierPolicy())
	if err != nil {
		t.Fatal(err)
	}
	ki.Config = NewKernelConfig(map[string]ConfigValue{"BPF": ConfigBuiltin, "BPF_SYSCALL": ConfigBuiltin, "NET": ConfigBuiltin, "BPF_JIT": ConfigBuiltin, "DEBUG_INFO_BTF": ConfigBuiltin})
	ki.BTF = ProbeResult{Supported: true}
	o := OK(ki)

	r := BuildReport(Inputs{Kernel: &o})
	if r.Kernel.Status != StatusPass {
		t.Fatalf("Kernel = %v, want pass", r.Kernel.Status)
	}
	var texts []string
	for _, n := range r.Kernel.Notes {
		texts = append(texts, n.Text)
	}
	joined := strings.Join(texts, "|")
	if !strings.Contains(joined, "6.10 or later recommended") {
		t.Errorf("Notes = %q, want recommendation", joined)
	}
	if !strings.Contains(joined, "CONFIG_XDP_SOCKETS not set") {
		t.Errorf("Notes = %q, want missing XDP_SOCKETS", joined)
	}
}

func TestBuildReport_Deterministic(t *testing.T) {
	progs := []ProgramRecord{
		xdpProgram(30, "c", "03"),
		xdpProgram(10, "a", "01"),
		xdpProgram(20, "agave_xdp", "02"),
	}
	reversed := []ProgramRecord{progs[2], progs[1], progs[0]}

	a := BuildReport(Inputs{Kernel: kernelOutcome("6.6.0"), Resources: privilegedResources(), Inventory: inventoryOutcome(progs...)})
	b := BuildReport(Inputs{Kernel: kernelOutcome("6.6.0"), Resources: privilegedResources(), Inventory: inventoryOutcome(reversed...)})

	if !reflect.DeepEqual(a, b) {
		t.Errorf("BuildReport() differs with inventory order:\n%+v\n%+v", a, b)
	}
	if progs[0].ID != 30 {
		t.Error("BuildReport() reordered the caller's slice")
	}
}

func TestOverall(t *testing.T) {
	pass := CategoryResult{Status: StatusPass}
	fail := CategoryResult{Status: StatusFail}
	errored := CategoryResult{Status: StatusError}
	skipped := CategoryResult{}

	tests := []struct {
		name string
		cats []CategoryResult
		want Verdict
	}{
		{"all pass", []CategoryResult{pass, pass}, VerdictPass},
		{"skipped ignored", []CategoryResult{pass, skipped}, VerdictPass},
		{"nothing requested", []CategoryResult{skipped, skipped}, VerdictPass},
		{"fail wins over error", []CategoryResult{errored, fail}, VerdictFail},
		{"error blocks pass", []CategoryResult{pass, errored}, VerdictIndeterminate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overall(tt.cats...); got != tt.want {
				t.Errorf("overall() = %v, want %v", got, tt.want)
			}
		})
	}
}
