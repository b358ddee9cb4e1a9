package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	xdpcheck "github.com/ax-x2/xdp-check"
	"github.com/ax-x2/xdp-check/internal/logging"
	"github.com/leodido/structcli"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"
)

// Build metadata injected via ldflags.
// When built without ldflags (e.g., plain `go build`), these remain
// at their zero values and the version command omits them gracefully.
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := checkCmd("xdp-check")
	root.Short = "Check whether this host can run an AF_XDP/XDP program"
	root.Long = `xdp-check inspects the running kernel, process limits and privileges,
network interface drivers and the loaded BPF programs, and reports whether
the host can run the agave_xdp program.

Without a subcommand it runs the full check. Exit codes: 0 pass, 1 usage or
internal error, 2 kernel, 3 resources, 4 interface, 5 runtime query failed.`
	root.SilenceErrors = true
	root.SilenceUsage = true

	root.AddCommand(checkCmd("check"))
	root.AddCommand(runtimeCmd())
	root.AddCommand(nicCmd())
	root.AddCommand(kernelCmd())
	root.AddCommand(quickCmd())
	root.AddCommand(versionCmd())
	return root
}

// exitError carries a report's exit code out of RunE.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type outputFormat int

const (
	formatHuman outputFormat = iota
	formatJSON
)

var formatIdentifiers = map[outputFormat][]string{
	formatHuman: {"human", "text"},
	formatJSON:  {"json"},
}

func formatNames() []string {
	return []string{"human", "json"}
}

func defineFormat(fieldValue reflect.Value, descr string) (pflag.Value, string) {
	fieldPtr := fieldValue.Addr().Interface().(*outputFormat)
	return enumflag.New(fieldPtr, "format", formatIdentifiers, enumflag.EnumCaseInsensitive), descr
}

func decodeFormat(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseFormat(s)
}

func parseFormat(s string) (outputFormat, error) {
	var f outputFormat
	if err := enumflag.New(&f, "format", formatIdentifiers, enumflag.EnumCaseInsensitive).Set(strings.TrimSpace(s)); err != nil {
		return formatHuman, fmt.Errorf("unknown format: %q (available: %s)", s, strings.Join(formatNames(), ", "))
	}
	return f, nil
}

func completeFormat(toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, name := range formatNames() {
		if strings.HasPrefix(name, strings.ToLower(toComplete)) {
			out = append(out, name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// CheckOptions defines flags for the default command and check.
type CheckOptions struct {
	Interface   string       `flag:"interface" flagshort:"i" flagdescr:"Network interface to check for XDP driver support"`
	Target      string       `flag:"target" flagdescr:"Name of the XDP program to look for (default agave_xdp)"`
	ExpectTag   string       `flag:"expect-tag" flagdescr:"Expected program tag (hex)"`
	ExpectELF   string       `flag:"expect-elf" flagdescr:"Derive the expected tag from this eBPF ELF object"`
	SkipRuntime bool         `flag:"skip-runtime" flagdescr:"Do not enumerate loaded BPF programs"`
	Format      outputFormat `flag:"format" flagshort:"f" flagdescr:"Output format (human, json)" flagcustom:"true"`
	Verbose     bool         `flag:"verbose" flagshort:"v" flagdescr:"Show probe details"`
	LogLevel    string       `flag:"log-level" flagdescr:"Log level (trace, debug, info, warn, error); overrides XDP_CHECK_LOG"`
	LogFormat   string       `flag:"log-format" flagdescr:"Log format on stderr (text, json)"`
}

func (o *CheckOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *CheckOptions) DefineFormat(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	return defineFormat(fieldValue, descr)
}

func (o *CheckOptions) DecodeFormat(input any) (any, error) {
	return decodeFormat(input)
}

func (o *CheckOptions) CompleteFormat(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeFormat(toComplete)
}

func checkCmd(use string) *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   use,
		Short: "Run the kernel, resources, interface and runtime checks",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			log, err := newLogger(c, opts.LogLevel, opts.LogFormat)
			if err != nil {
				return err
			}
			policy, err := runtimePolicy(opts.Target, opts.ExpectTag, opts.ExpectELF)
			if err != nil {
				return err
			}

			report := xdpcheck.Run(checkOptions(opts, policy, log)...)
			return emit(c.OutOrStdout(), report, opts.Format, opts.Verbose)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// RuntimeOptions defines flags for the runtime subcommand.
type RuntimeOptions struct {
	Target    string       `flag:"target" flagdescr:"Name of the XDP program to look for (default agave_xdp)"`
	ExpectTag string       `flag:"expect-tag" flagdescr:"Expected program tag (hex)"`
	ExpectELF string       `flag:"expect-elf" flagdescr:"Derive the expected tag from this eBPF ELF object"`
	Format    outputFormat `flag:"format" flagshort:"f" flagdescr:"Output format (human, json)" flagcustom:"true"`
	Verbose   bool         `flag:"verbose" flagshort:"v" flagdescr:"List every loaded program"`
	LogLevel  string       `flag:"log-level" flagdescr:"Log level (trace, debug, info, warn, error); overrides XDP_CHECK_LOG"`
	LogFormat string       `flag:"log-format" flagdescr:"Log format on stderr (text, json)"`
}

func (o *RuntimeOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *RuntimeOptions) DefineFormat(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	return defineFormat(fieldValue, descr)
}

func (o *RuntimeOptions) DecodeFormat(input any) (any, error) {
	return decodeFormat(input)
}

func (o *RuntimeOptions) CompleteFormat(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeFormat(toComplete)
}

func runtimeCmd() *cobra.Command {
	opts := &RuntimeOptions{}

	cmd := &cobra.Command{
		Use:   "runtime [ifname]",
		Short: "List loaded BPF programs and look for the target XDP program",
		Long: `runtime lists the loaded BPF programs and XDP attachments and looks for
the target program. It never fails on what it finds. With an interface name
it also checks that interface, whose support then decides the exit code.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeInterfaces,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			log, err := newLogger(c, opts.LogLevel, opts.LogFormat)
			if err != nil {
				return err
			}
			policy, err := runtimePolicy(opts.Target, opts.ExpectTag, opts.ExpectELF)
			if err != nil {
				return err
			}

			probes := []xdpcheck.ProbeOption{
				xdpcheck.WithRuntime(),
				xdpcheck.WithPolicy(policy),
				xdpcheck.WithLogger(log),
			}
			if len(args) == 1 {
				probes = append(probes, xdpcheck.WithInterfaces(args[0]))
			}
			report := xdpcheck.Run(probes...)
			return emit(c.OutOrStdout(), report, opts.Format, opts.Verbose)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// ReportOptions defines flags for the nic, kernel and quick subcommands.
type ReportOptions struct {
	Format    outputFormat `flag:"format" flagshort:"f" flagdescr:"Output format (human, json)" flagcustom:"true"`
	Verbose   bool         `flag:"verbose" flagshort:"v" flagdescr:"Show probe details"`
	LogLevel  string       `flag:"log-level" flagdescr:"Log level (trace, debug, info, warn, error); overrides XDP_CHECK_LOG"`
	LogFormat string       `flag:"log-format" flagdescr:"Log format on stderr (text, json)"`
}

func (o *ReportOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *ReportOptions) DefineFormat(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	return defineFormat(fieldValue, descr)
}

func (o *ReportOptions) DecodeFormat(input any) (any, error) {
	return decodeFormat(input)
}

func (o *ReportOptions) CompleteFormat(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeFormat(toComplete)
}

func nicCmd() *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:               "nic <ifname>",
		Short:             "Check the kernel, resources and one interface's XDP driver support",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeInterfaces,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			log, err := newLogger(c, opts.LogLevel, opts.LogFormat)
			if err != nil {
				return err
			}

			report := xdpcheck.Run(
				xdpcheck.WithKernel(),
				xdpcheck.WithResources(),
				xdpcheck.WithInterfaces(args[0]),
				xdpcheck.WithLogger(log),
			)
			return emit(c.OutOrStdout(), report, opts.Format, opts.Verbose)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func kernelCmd() *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:   "kernel",
		Short: "Check the kernel version, BTF and configuration only",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			log, err := newLogger(c, opts.LogLevel, opts.LogFormat)
			if err != nil {
				return err
			}

			report := xdpcheck.Run(xdpcheck.WithKernel(), xdpcheck.WithLogger(log))
			return emit(c.OutOrStdout(), report, opts.Format, opts.Verbose)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func quickCmd() *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:   "quick",
		Short: "Check the kernel and process resources only, without enumerating programs",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			log, err := newLogger(c, opts.LogLevel, opts.LogFormat)
			if err != nil {
				return err
			}

			report := xdpcheck.Run(
				xdpcheck.WithKernel(),
				xdpcheck.WithResources(),
				xdpcheck.WithLogger(log),
			)
			return emit(c.OutOrStdout(), report, opts.Format, opts.Verbose)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show kernel and tool version",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			writeVersion(c.OutOrStdout())
			return nil
		},
	}
}

func writeVersion(w io.Writer) {
	if version != "" {
		fmt.Fprintf(w, "xdp-check %s", version)
		if commit != "" {
			fmt.Fprintf(w, " (%s)", commit)
		}
		if date != "" {
			fmt.Fprintf(w, " built %s", date)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "xdp-check (dev)")
	}

	ki, err := xdpcheck.ProbeKernel(xdpcheck.DefaultTierPolicy())
	if err != nil {
		fmt.Fprintf(w, "Kernel: unavailable (%v)\n", err)
		return
	}
	fmt.Fprintf(w, "Kernel: %s (XDP tier %s)\n", ki.Release, ki.Tier)
}

func newLogger(c *cobra.Command, cliLevel, format string) (*logrus.Logger, error) {
	f, err := logging.ParseFormat(format)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-format: %w", err)
	}
	return logging.New(logging.Options{
		CLILevel: cliLevel,
		EnvLevel: os.Getenv(logging.EnvVar),
		Format:   f,
		Output:   c.ErrOrStderr(),
	})
}

// checkOptions selects the probes of the full check.
func checkOptions(opts *CheckOptions, policy xdpcheck.Policy, log logrus.FieldLogger) []xdpcheck.ProbeOption {
	probes := []xdpcheck.ProbeOption{
		xdpcheck.WithKernel(),
		xdpcheck.WithResources(),
		xdpcheck.WithInterfaces(opts.Interface),
		xdpcheck.WithPolicy(policy),
		xdpcheck.WithLogger(log),
	}
	if !opts.SkipRuntime {
		probes = append(probes, xdpcheck.WithRuntime())
	}
	return probes
}

func completeInterfaces(c *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names, err := xdpcheck.InterfaceNames()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// runtimePolicy builds the verdict policy from the runtime flags. A tag
// derived from --expect-elf must agree with --expect-tag when both are set.
func runtimePolicy(target, expectTag, expectELF string) (xdpcheck.Policy, error) {
	p := xdpcheck.DefaultPolicy()
	if target = strings.TrimSpace(target); target != "" {
		p.TargetName = target
	}
	p.ExpectedTag = strings.ToLower(strings.TrimSpace(expectTag))

	if expectELF != "" {
		tag, err := xdpcheck.ExpectedTagFromELF(expectELF, p.TargetName)
		if err != nil {
			return xdpcheck.Policy{}, err
		}
		if p.ExpectedTag != "" && p.ExpectedTag != tag {
			return xdpcheck.Policy{}, fmt.Errorf("--expect-tag %s conflicts with tag %s from %s", p.ExpectedTag, tag, expectELF)
		}
		p.ExpectedTag = tag
	}
	return p, nil
}

// emit prints the report and turns a non-passing verdict into an exitError.
func emit(w io.Writer, report xdpcheck.Report, format outputFormat, verbose bool) error {
	var err error
	switch format {
	case formatJSON:
		err = printJSON(w, report)
	default:
		err = report.Render(w, verbose)
	}
	if err != nil {
		return err
	}
	if code := report.ExitCode(); code != xdpcheck.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func filterPrefix(items []string, prefix string) []string {
	var out []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			out = append(out, item)
		}
	}
	return out
}
