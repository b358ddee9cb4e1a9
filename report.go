package xdpcheck

import (
	"fmt"
	"slices"
	"strings"
)

// Status is the verdict for one category.
type Status int

const (
	// StatusSkipped means the category was not requested.
	StatusSkipped Status = iota
	StatusPass
	StatusFail
	// StatusIndeterminate means the facts were collected but do not decide.
	StatusIndeterminate
	// StatusError means the probe feeding the category failed.
	StatusError
	// StatusInfo is used by the advisory runtime category when nothing matched.
	StatusInfo
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	case StatusIndeterminate:
		return "indeterminate"
	case StatusError:
		return "error"
	case StatusInfo:
		return "info"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// severity orders statuses for aggregation: error > fail > indeterminate > pass.
func (s Status) severity() int {
	switch s {
	case StatusError:
		return 3
	case StatusFail:
		return 2
	case StatusIndeterminate:
		return 1
	default:
		return 0
	}
}

// Category names a verdict category.
type Category string

const (
	CategoryKernel    Category = "kernel"
	CategoryResources Category = "resources"
	CategoryInterface Category = "interface"
	CategoryRuntime   Category = "runtime"
)

// NoteLevel grades a note attached to a category.
type NoteLevel string

const (
	NoteInfo NoteLevel = "info"
	NoteWarn NoteLevel = "warn"
)

// Note is an advisory message that never changes a category's status.
type Note struct {
	Level NoteLevel `json:"level"`
	Text  string    `json:"text"`
}

// CategoryResult is the verdict for one category.
type CategoryResult struct {
	Category Category `json:"category"`
	Status   Status   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
	Notes    []Note   `json:"notes,omitempty"`
}

// Passed reports whether the category passed.
func (c CategoryResult) Passed() bool {
	return c.Status == StatusPass
}

// Evaluated reports whether the category was requested.
func (c CategoryResult) Evaluated() bool {
	return c.Status != StatusSkipped
}

func (c *CategoryResult) note(level NoteLevel, format string, args ...any) {
	c.Notes = append(c.Notes, Note{Level: level, Text: fmt.Sprintf(format, args...)})
}

// InterfaceCheck is the verdict for one requested interface.
type InterfaceCheck struct {
	Name    string               `json:"name"`
	Result  CategoryResult       `json:"result"`
	Support *InterfaceXDPSupport `json:"support,omitempty"`
}

// RuntimeResult is the advisory runtime-match verdict.
type RuntimeResult struct {
	CategoryResult
	Target      string `json:"target"`
	ExpectedTag string `json:"expected_tag,omitempty"`
	// Matches are the XDP programs whose name equals Target exactly.
	Matches []RuntimeMatch `json:"matches,omitempty"`
	// Others are the remaining XDP programs.
	Others []ProgramRecord `json:"others,omitempty"`
}

// RuntimeMatch is one program matching the runtime target.
type RuntimeMatch struct {
	Program ProgramRecord `json:"program"`
	// TagMatches is nil when no expected tag was configured.
	TagMatches *bool `json:"tag_matches,omitempty"`
	// AttachedTo lists interfaces the program is attached to.
	AttachedTo []string `json:"attached_to,omitempty"`
}

// Verdict is the overall outcome of a run.
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictFail
	// VerdictIndeterminate means nothing failed outright, but a required
	// category errored or could not be decided.
	VerdictIndeterminate
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "PASS"
	case VerdictFail:
		return "FAIL"
	case VerdictIndeterminate:
		return "INDETERMINATE"
	default:
		return fmt.Sprintf("Verdict(%d)", v)
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Exit codes returned by [Report.ExitCode].
const (
	ExitOK           = 0
	ExitKernel       = 2
	ExitResources    = 3
	ExitInterface    = 4
	ExitRuntimeError = 5
)

// Report aggregates the probe snapshots and the per-category verdicts of one
// run. It is not modified after [BuildReport] returns.
type Report struct {
	Verdict Verdict `json:"verdict"`

	Kernel     CategoryResult   `json:"kernel"`
	Resources  CategoryResult   `json:"resources"`
	Interface  CategoryResult   `json:"interface"`
	Interfaces []InterfaceCheck `json:"interfaces,omitempty"`
	Runtime    RuntimeResult    `json:"runtime"`

	KernelInfo     *KernelInfo     `json:"kernel_info,omitempty"`
	ResourceStatus *ResourceStatus `json:"resource_status,omitempty"`
	Inventory      *Inventory      `json:"inventory,omitempty"`
}

// Inputs are the probe outcomes the verdict engine consumes. A nil pointer
// means the category was not requested.
type Inputs struct {
	Kernel     *Outcome[KernelInfo]
	Resources  *Outcome[ResourceStatus]
	Interfaces []Outcome[InterfaceXDPSupport]
	// InterfaceNames are the requested names, aligned with Interfaces. Used
	// to label failed probes.
	InterfaceNames []string
	Inventory      *Outcome[Inventory]
	Policy         Policy
}

// BuildReport combines probe outcomes into a report. It is pure: the same
// inputs always give the same report, and inputs are not modified.
func BuildReport(in Inputs) Report {
	policy := in.Policy.withDefaults()

	r := Report{
		Kernel:    CategoryResult{Category: CategoryKernel},
		Resources: CategoryResult{Category: CategoryResources},
		Interface: CategoryResult{Category: CategoryInterface},
		Runtime:   RuntimeResult{CategoryResult: CategoryResult{Category: CategoryRuntime}},
	}

	if in.Kernel != nil {
		r.Kernel = checkKernel(*in.Kernel, policy)
		if in.Kernel.Ok() {
			ki := in.Kernel.Value
			r.KernelInfo = &ki
		}
	}
	if in.Resources != nil {
		r.Resources = checkResources(*in.Resources, policy)
		if in.Resources.Ok() {
			rs := in.Resources.Value
			rs.PermittedNotEffective = slices.Clone(rs.PermittedNotEffective)
			rs.Tuning.HugePages = slices.Clone(rs.Tuning.HugePages)
			rs.Tuning.IsolatedCPUs = slices.Clone(rs.Tuning.IsolatedCPUs)
			r.ResourceStatus = &rs
		}
	}

	if in.Inventory != nil {
		if in.Inventory.Ok() {
			inv := normalizeInventory(in.Inventory.Value)
			r.Inventory = &inv
		}
		r.Runtime = checkRuntime(*in.Inventory, r.Inventory, policy)
	}

	if len(in.Interfaces) > 0 {
		for i, o := range in.Interfaces {
			name := o.Value.Name
			if i < len(in.InterfaceNames) {
				name = in.InterfaceNames[i]
			}
			ic := InterfaceCheck{Name: name, Result: checkInterface(o, name)}
			if o.Ok() {
				sup := o.Value
				sup.XDPFeatures = slices.Clone(sup.XDPFeatures)
				ic.Support = &sup
			}
			r.Interfaces = append(r.Interfaces, ic)
		}
		r.Interface = aggregateInterfaces(r.Interfaces)
	}

	r.Verdict = overall(r.Kernel, r.Resources, r.Interface)
	return r
}

// normalizeInventory returns a copy sorted by fingerprint so that the report
// does not depend on enumeration order.
func normalizeInventory(inv Inventory) Inventory {
	out := Inventory{
		Programs:         slices.Clone(inv.Programs),
		Attachments:      slices.Clone(inv.Attachments),
		AttachmentsError: inv.AttachmentsError,
		Sockets:          inv.Sockets,
	}
	if out.Programs == nil {
		out.Programs = []ProgramRecord{}
	}
	slices.SortFunc(out.Programs, func(a, b ProgramRecord) int {
		if a.ID != b.ID {
			return cmpInt(int(a.ID), int(b.ID))
		}
		return strings.Compare(a.Tag, b.Tag)
	})
	slices.SortFunc(out.Attachments, func(a, b XDPAttachment) int {
		if c := strings.Compare(a.Interface, b.Interface); c != 0 {
			return c
		}
		return cmpInt(int(a.ProgramID), int(b.ProgramID))
	})
	return out
}

func aggregateInterfaces(checks []InterfaceCheck) CategoryResult {
	agg := CategoryResult{Category: CategoryInterface, Status: StatusPass}
	var reasons []string
	for _, ic := range checks {
		if ic.Result.Status.severity() > agg.Status.severity() {
			agg.Status = ic.Result.Status
		}
		reasons = append(reasons, ic.Name+": "+ic.Result.Reason)
		for _, n := range ic.Result.Notes {
			agg.Notes = append(agg.Notes, Note{Level: n.Level, Text: ic.Name + ": " + n.Text})
		}
	}
	agg.Reason = strings.Join(reasons, "; ")
	return agg
}

// overall passes only if every evaluated gating category passed. The
// runtime category never takes part.
func overall(gating ...CategoryResult) Verdict {
	v := VerdictPass
	for _, c := range gating {
		switch {
		case !c.Evaluated() || c.Passed():
		case c.Status == StatusFail:
			return VerdictFail
		default:
			v = VerdictIndeterminate
		}
	}
	return v
}

// Passed reports whether the overall verdict is a pass.
func (r Report) Passed() bool {
	return r.Verdict == VerdictPass
}

// ExitCode maps the report to a process exit code. The first non-passing
// gating category decides, in the order kernel, resources, interface. When
// only the runtime category was requested, an inventory failure exits with
// [ExitRuntimeError].
func (r Report) ExitCode() int {
	switch {
	case r.Kernel.Evaluated() && !r.Kernel.Passed():
		return ExitKernel
	case r.Resources.Evaluated() && !r.Resources.Passed():
		return ExitResources
	case r.Interface.Evaluated() && !r.Interface.Passed():
		return ExitInterface
	}
	gated := r.Kernel.Evaluated() || r.Resources.Evaluated() || r.Interface.Evaluated()
	if !gated && r.Runtime.Status == StatusError {
		return ExitRuntimeError
	}
	return ExitOK
}
