package xdpcheck

import (
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestProbeOptions(t *testing.T) {
	cfg := &probeConfig{}
	for _, opt := range []ProbeOption{
		WithAll(),
		WithInterfaces("eth0", "", "eth1"),
		WithPolicy(Policy{TargetName: "fw"}),
		WithLogger(nil),
	} {
		opt(cfg)
	}

	if !cfg.kernel || !cfg.resources || !cfg.inventory {
		t.Errorf("WithAll() = %+v, want kernel, resources and inventory", cfg)
	}
	if len(cfg.interfaces) != 2 || cfg.interfaces[0] != "eth0" || cfg.interfaces[1] != "eth1" {
		t.Errorf("interfaces = %q, want [eth0 eth1]", cfg.interfaces)
	}
	if cfg.policy.TargetName != "fw" {
		t.Errorf("policy target = %q, want fw", cfg.policy.TargetName)
	}
	if cfg.log != nil {
		t.Error("WithLogger(nil) replaced the logger")
	}
}

func TestCollect_NothingRequested(t *testing.T) {
	in := Collect(WithLogger(logrus.New()))

	if in.Kernel != nil || in.Resources != nil || in.Inventory != nil || in.Interfaces != nil {
		t.Errorf("Collect() = %+v, want no outcomes", in)
	}
	if in.Policy.TargetName != DefaultTargetName {
		t.Errorf("Policy.TargetName = %q, want default", in.Policy.TargetName)
	}

	r := BuildReport(in)
	if r.Verdict != VerdictPass || r.ExitCode() != ExitOK {
		t.Errorf("empty run: Verdict = %v, ExitCode = %d", r.Verdict, r.ExitCode())
	}
	if r.Kernel.Evaluated() || r.Runtime.Evaluated() {
		t.Error("categories evaluated without being requested")
	}
}

func TestCollect_OnlyRequestedSlots(t *testing.T) {
	in := Collect(WithResources())
	if in.Resources == nil {
		t.Fatal("Resources outcome missing")
	}
	if in.Kernel != nil || in.Inventory != nil {
		t.Error("unrequested probes produced outcomes")
	}
}

func TestCollect_InterfaceAlignment(t *testing.T) {
	in := Collect(WithInterfaces("xdpchk-nope0", "xdpchk-nope1"))
	if len(in.Interfaces) != 2 || len(in.InterfaceNames) != 2 {
		t.Fatalf("Interfaces = %d, names = %d, want 2", len(in.Interfaces), len(in.InterfaceNames))
	}
	for i, o := range in.Interfaces {
		if o.Ok() {
			t.Errorf("interface %s probed ok", in.InterfaceNames[i])
		}
	}

	r := BuildReport(in)
	if r.Interfaces[1].Name != "xdpchk-nope1" {
		t.Errorf("Interfaces[1].Name = %q", r.Interfaces[1].Name)
	}
	if r.Interface.Status != StatusError {
		t.Errorf("Interface = %v, want error", r.Interface.Status)
	}
}

func TestCollect_InvalidTierPolicy(t *testing.T) {
	log, hook := test.NewNullLogger()
	unsorted := TierPolicy{
		{Since: KV(5, 9, 0), Tier: TierNative},
		{Since: KV(4, 18, 0), Tier: TierGeneric},
	}

	in := Collect(WithPolicy(Policy{Tiers: unsorted}), WithLogger(log))

	if !reflect.DeepEqual(in.Policy.Tiers, DefaultTierPolicy()) {
		t.Errorf("Policy.Tiers = %+v, want the default table", in.Policy.Tiers)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("last log entry = %+v, want a warning", entry)
	}
	if _, ok := entry.Data[logrus.ErrorKey]; !ok {
		t.Errorf("warning carries no error: %+v", entry.Data)
	}
}

func TestCollect_ValidTierPolicyKept(t *testing.T) {
	log, hook := test.NewNullLogger()
	custom := TierPolicy{{Since: KV(5, 4, 0), Tier: TierGeneric}}

	in := Collect(WithPolicy(Policy{Tiers: custom}), WithLogger(log))

	if !reflect.DeepEqual(in.Policy.Tiers, custom) {
		t.Errorf("Policy.Tiers = %+v, want %+v", in.Policy.Tiers, custom)
	}
	if len(hook.AllEntries()) != 0 {
		t.Errorf("logged %d entries for a valid policy", len(hook.AllEntries()))
	}
}
