//go:build linux

package xdpcheck

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/safchain/ethtool"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// ProbeInterface inspects one network interface and classifies its XDP
// support. tier is the kernel tier the caller observed; it decides between
// generic-only and none when the driver advertises no native support.
//
// A missing interface fails with [ErrInterfaceNotFound]; a rejected query
// with [ErrPermissionDenied]. Driver details that cannot be read are left
// empty and never fail the probe.
func ProbeInterface(name string, tier XDPTier) (InterfaceXDPSupport, error) {
	return probeInterface(name, tier, discardLogger())
}

func probeInterface(name string, tier XDPTier, log logrus.FieldLogger) (InterfaceXDPSupport, error) {
	log = log.WithField("interface", name)

	link, err := netlink.LinkByName(name)
	if err != nil {
		return InterfaceXDPSupport{}, linkError(name, err)
	}
	attrs := link.Attrs()

	sup := InterfaceXDPSupport{
		Name:      attrs.Name,
		Index:     attrs.Index,
		OperState: attrs.OperState.String(),
		MTU:       attrs.MTU,
		RxQueues:  attrs.NumRxQueues,
		TxQueues:  attrs.NumTxQueues,
	}
	ev := evidence{}
	if a, ok := attachmentOf(attrs); ok {
		sup.Attached = &a
		ev.attachMode = a.Mode
	}

	if err := readDriverInfo(&sup); err != nil {
		if isPermissionError(err) {
			return InterfaceXDPSupport{}, fmt.Errorf("%w: ethtool %s: %w", ErrPermissionDenied, name, err)
		}
		log.WithError(err).Debug("ethtool query failed")
	}
	ev.driver = sup.Driver
	sup.KnownIssue = driverIssues[sup.Driver]

	nd, err := queryNetdevXDP(attrs.Index)
	switch {
	case err == nil:
		ev.featuresKnown = true
		ev.features = nd.xdpFeatures
		sup.XDPFeatures = xdpFeatureNames(nd.xdpFeatures)
		sup.ZCMaxSegs = nd.zcMaxSegs
	case isPermissionError(err):
		return InterfaceXDPSupport{}, fmt.Errorf("%w: netdev %s: %w", ErrPermissionDenied, name, err)
	default:
		log.WithError(err).Debug("netdev XDP features unavailable")
	}

	sup.Level, sup.Source = resolveSupport(ev, tier)
	return sup, nil
}

// InterfaceNames lists the host's network interfaces, sorted by name.
func InterfaceNames() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, linkError("list links", err)
	}
	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Attrs().Name)
	}
	slices.Sort(names)
	return names, nil
}

// readDriverInfo fills driver identity and ring sizes via SIOCETHTOOL.
func readDriverInfo(sup *InterfaceXDPSupport) error {
	et, err := ethtool.NewEthtool()
	if err != nil {
		return err
	}
	defer et.Close()

	drv, err := et.DriverInfo(sup.Name)
	if err != nil {
		return err
	}
	sup.Driver = drv.Driver
	sup.DriverVersion = drv.Version
	sup.Firmware = drv.FwVersion
	sup.BusInfo = drv.BusInfo

	// Virtual devices often lack ring parameters.
	if ring, err := et.GetRing(sup.Name); err == nil {
		sup.Ring = &RingParams{
			RxPending:    ring.RxPending,
			RxMaxPending: ring.RxMaxPending,
			TxPending:    ring.TxPending,
			TxMaxPending: ring.TxMaxPending,
		}
	}
	return nil
}

// linkError maps rtnetlink failures to the probe error kinds.
func linkError(what string, err error) error {
	var notFound netlink.LinkNotFoundError
	switch {
	case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrInterfaceNotFound, what)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s: %w", ErrPermissionDenied, what, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
