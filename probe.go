package xdpcheck

import (
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// probeConfig holds the configuration for a probe run.
type probeConfig struct {
	kernel     bool
	resources  bool
	inventory  bool
	interfaces []string
	policy     Policy
	log        logrus.FieldLogger
}

// ProbeOption configures what [Collect] probes.
type ProbeOption func(*probeConfig)

// WithKernel probes the kernel release, tier, BTF and config.
func WithKernel() ProbeOption {
	return func(c *probeConfig) {
		c.kernel = true
	}
}

// WithResources probes resource limits and privileges.
func WithResources() ProbeOption {
	return func(c *probeConfig) {
		c.resources = true
	}
}

// WithRuntime enumerates loaded programs and XDP attachments.
func WithRuntime() ProbeOption {
	return func(c *probeConfig) {
		c.inventory = true
	}
}

// WithInterfaces probes the named network interfaces. Empty names are ignored.
func WithInterfaces(names ...string) ProbeOption {
	return func(c *probeConfig) {
		for _, n := range names {
			if n != "" {
				c.interfaces = append(c.interfaces, n)
			}
		}
	}
}

// WithPolicy sets the verdict policy. Zero fields take their defaults.
func WithPolicy(p Policy) ProbeOption {
	return func(c *probeConfig) {
		c.policy = p
	}
}

// WithLogger sets the logger used for probe diagnostics.
func WithLogger(log logrus.FieldLogger) ProbeOption {
	return func(c *probeConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithAll enables the kernel, resources and runtime probes. Interfaces are
// only probed when named with [WithInterfaces].
func WithAll() ProbeOption {
	return func(c *probeConfig) {
		c.kernel = true
		c.resources = true
		c.inventory = true
	}
}

// Collect runs the requested probes concurrently and waits for all of them.
// Probes share no state; each writes only its own slot of the result.
func Collect(opts ...ProbeOption) Inputs {
	cfg := &probeConfig{log: discardLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.policy.Tiers.Validate(); err != nil {
		cfg.log.WithError(err).Warn("ignoring tier policy, using the default table")
	}
	policy := cfg.policy.withDefaults()
	in := Inputs{Policy: policy}

	var (
		g         errgroup.Group
		kernel    Outcome[KernelInfo]
		resources Outcome[ResourceStatus]
		inventory Outcome[Inventory]
	)

	if cfg.kernel {
		g.Go(func() error {
			kernel = OutcomeOf(ProbeKernel(policy.Tiers))
			logOutcome(cfg.log, "kernel", kernel.Status, kernel.Err)
			return nil
		})
	}
	if cfg.resources {
		g.Go(func() error {
			resources = OutcomeOf(probeResources(cfg.log.WithField("component", "resources")))
			logOutcome(cfg.log, "resources", resources.Status, resources.Err)
			return nil
		})
	}
	if cfg.inventory {
		g.Go(func() error {
			inventory = OutcomeOf(probeInventory(cfg.log.WithField("component", "inventory")))
			logOutcome(cfg.log, "inventory", inventory.Status, inventory.Err)
			return nil
		})
	}

	ifaces := make([]Outcome[InterfaceXDPSupport], len(cfg.interfaces))
	for i, name := range cfg.interfaces {
		g.Go(func() error {
			log := cfg.log.WithField("component", "interface")
			ifaces[i] = OutcomeOf(probeInterface(name, currentTier(policy.Tiers), log))
			logOutcome(cfg.log, "interface "+name, ifaces[i].Status, ifaces[i].Err)
			return nil
		})
	}

	// Probes report failures through their Outcome, never through the group.
	_ = g.Wait()

	if cfg.kernel {
		in.Kernel = &kernel
	}
	if cfg.resources {
		in.Resources = &resources
	}
	if cfg.inventory {
		in.Inventory = &inventory
	}
	if len(cfg.interfaces) > 0 {
		in.Interfaces = ifaces
		in.InterfaceNames = append([]string(nil), cfg.interfaces...)
	}
	return in
}

// Run collects the requested probes and builds the report.
func Run(opts ...ProbeOption) Report {
	return BuildReport(Collect(opts...))
}

func logOutcome(log logrus.FieldLogger, probe string, status ProbeStatus, err error) {
	entry := log.WithField("component", "probe").WithField("probe", probe)
	if err != nil {
		entry.WithError(err).WithField("status", status).Warn("probe failed")
		return
	}
	entry.Debug("probe complete")
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
