package xdpcheck

import (
	"errors"
	"fmt"
	"os"
)

// Probe failure kinds. Probes wrap one of these around the underlying cause
// with fmt.Errorf("%w: %w", kind, cause) so callers can match with errors.Is.
var (
	// ErrKernelInfoUnavailable means the kernel release could not be read or parsed.
	ErrKernelInfoUnavailable = errors.New("kernel info unavailable")
	// ErrInterfaceNotFound means the named network interface does not exist.
	ErrInterfaceNotFound = errors.New("interface not found")
	// ErrPermissionDenied means the kernel rejected a query for lack of privilege.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrBPFQueryFailed means the BPF program enumeration syscall was rejected.
	ErrBPFQueryFailed = errors.New("bpf program query failed")
	// ErrUnsupportedPlatform is returned by every probe on non-Linux builds.
	ErrUnsupportedPlatform = errors.New("xdp-check requires linux")
)

// ProbeResult represents the outcome of a single boolean probe.
type ProbeResult struct {
	// Supported indicates whether the feature is available.
	Supported bool `json:"supported"`
	// Error is non-nil if the probe itself failed (not just unsupported).
	Error error `json:"-"`
}

// ProbeStatus tags an [Outcome].
type ProbeStatus int

const (
	// StatusOK means the probe produced a value.
	StatusOK ProbeStatus = iota
	// StatusDenied means the probe was rejected for lack of privilege.
	StatusDenied
	// StatusUnavailable means the probe failed for any other reason.
	StatusUnavailable
)

func (s ProbeStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDenied:
		return "denied"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("ProbeStatus(%d)", s)
	}
}

func (s ProbeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the result of one probe: either a value or a classified failure.
type Outcome[T any] struct {
	Status ProbeStatus `json:"status"`
	Value  T           `json:"value"`
	Err    error       `json:"-"`
}

// OK wraps a successful probe value.
func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Status: StatusOK, Value: v}
}

// Failed wraps a probe error, classifying it as denied or unavailable.
func Failed[T any](err error) Outcome[T] {
	status := StatusUnavailable
	if isPermissionError(err) {
		status = StatusDenied
	}
	return Outcome[T]{Status: status, Err: err}
}

// OutcomeOf converts a (value, error) pair into an Outcome.
func OutcomeOf[T any](v T, err error) Outcome[T] {
	if err != nil {
		return Failed[T](err)
	}
	return OK(v)
}

// Ok reports whether the probe produced a value.
func (o Outcome[T]) Ok() bool {
	return o.Status == StatusOK
}

func isPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, os.ErrPermission)
}

// ConfigValue represents a kernel configuration option's state.
type ConfigValue int

const (
	// ConfigNotSet means the option is not set or not found.
	ConfigNotSet ConfigValue = iota
	// ConfigModule means the option is set to =m (module).
	ConfigModule
	// ConfigBuiltin means the option is set to =y (built-in).
	ConfigBuiltin
)

// IsEnabled returns true if the config option is set (either =m or =y).
func (v ConfigValue) IsEnabled() bool {
	return v == ConfigModule || v == ConfigBuiltin
}

func (v ConfigValue) String() string {
	switch v {
	case ConfigNotSet:
		return "not set"
	case ConfigModule:
		return "m"
	case ConfigBuiltin:
		return "y"
	default:
		return fmt.Sprintf("ConfigValue(%d)", v)
	}
}

func (v ConfigValue) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// KernelConfig holds parsed kernel configuration values.
type KernelConfig struct {
	raw map[string]ConfigValue

	// Source is the file the configuration was read from.
	Source string `json:"source,omitempty"`

	XDPSockets ConfigValue `json:"CONFIG_XDP_SOCKETS"`
	BPF        ConfigValue `json:"CONFIG_BPF"`
	BPFSyscall ConfigValue `json:"CONFIG_BPF_SYSCALL"`
	Net        ConfigValue `json:"CONFIG_NET"`
	BTF        ConfigValue `json:"CONFIG_DEBUG_INFO_BTF"`
	BPFJIT     ConfigValue `json:"CONFIG_BPF_JIT"`
}

// Get returns the ConfigValue for a kernel config key.
// The key should not include the CONFIG_ prefix.
func (kc *KernelConfig) Get(key string) ConfigValue {
	if kc == nil || kc.raw == nil {
		return ConfigNotSet
	}
	return kc.raw[key]
}

// IsSet returns true if the config option is enabled (=m or =y).
func (kc *KernelConfig) IsSet(key string) bool {
	return kc.Get(key).IsEnabled()
}

// NewKernelConfig creates a KernelConfig from a raw config map.
// The map is copied.
func NewKernelConfig(raw map[string]ConfigValue) *KernelConfig {
	copied := make(map[string]ConfigValue, len(raw))
	for k, v := range raw {
		copied[k] = v
	}
	return &KernelConfig{
		raw:        copied,
		XDPSockets: copied["XDP_SOCKETS"],
		BPF:        copied["BPF"],
		BPFSyscall: copied["BPF_SYSCALL"],
		Net:        copied["NET"],
		BTF:        copied["DEBUG_INFO_BTF"],
		BPFJIT:     copied["BPF_JIT"],
	}
}

// ConfigRequirement names a kernel config option XDP workloads depend on.
type ConfigRequirement struct {
	Key      string
	Required bool
	Reason   string
}

// XDPConfigRequirements are the config options inspected for the kernel notes.
var XDPConfigRequirements = []ConfigRequirement{
	{Key: "BPF", Required: true, Reason: "eBPF core"},
	{Key: "BPF_SYSCALL", Required: true, Reason: "bpf() syscall"},
	{Key: "NET", Required: true, Reason: "networking stack"},
	{Key: "XDP_SOCKETS", Required: true, Reason: "AF_XDP sockets"},
	{Key: "DEBUG_INFO_BTF", Required: false, Reason: "BTF type information for CO-RE"},
	{Key: "BPF_JIT", Required: false, Reason: "JIT compilation for line-rate XDP"},
}
