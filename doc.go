// Package xdpcheck decides whether a Linux host can run an AF_XDP/XDP
// program, and reports what it found.
//
// Four read-only probes collect point-in-time facts from the kernel. None
// of them loads a program, attaches anything, or changes a limit:
//   - [ProbeKernel]: release, XDP tier, BTF and kernel config
//   - [ProbeResources]: memlock and open-file limits, capabilities, BPF sysctls
//     and advisory host tuning (huge pages, CPU governor, load, irqbalance)
//   - [ProbeInterface]: driver identity and XDP support of one interface
//   - [ProbeInventory]: every loaded BPF program and XDP attachment, plus
//     AF_XDP socket and bpffs pin counts
//
// [BuildReport] combines their outcomes into a [Report]. It is pure, so the
// same inputs always give the same report. The kernel, resources and
// interface categories gate the overall [Verdict]; the runtime category only
// reports whether the target program is loaded.
//
// # Quick Check
//
//	report := xdpcheck.Run(xdpcheck.WithAll(), xdpcheck.WithInterfaces("eth0"))
//	fmt.Print(report)
//	os.Exit(report.ExitCode())
//
// # Probe Failures
//
// A probe that cannot run yields a failed [Outcome] rather than aborting
// the run. Its category is reported as [StatusError], distinct from
// [StatusFail], and blocks an overall pass. Errors wrap one of
// [ErrKernelInfoUnavailable], [ErrInterfaceNotFound], [ErrPermissionDenied]
// or [ErrBPFQueryFailed]:
//
//	if _, err := xdpcheck.ListPrograms(); errors.Is(err, xdpcheck.ErrPermissionDenied) {
//	    log.Fatal("run with CAP_BPF or as root")
//	}
//
// # Program Identity
//
// Program IDs are recycled by the kernel. A [Fingerprint] (id and tag)
// identifies one loaded instance; [ExpectedTagFromELF] computes the tag an
// object file will have once loaded, without loading it.
package xdpcheck
