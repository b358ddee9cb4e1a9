//go:build linux

package xdpcheck

import (
	"errors"
	"fmt"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
)

// Generic netlink "netdev" family (include/uapi/linux/netdev.h, kernel 6.3+).
const (
	netdevFamilyName = "netdev"

	netdevCmdDevGet = 1

	netdevAttrDevIfindex     = 1
	netdevAttrDevXDPFeatures = 3
	netdevAttrDevXDPZCMaxSeg = 4
)

// errNetdevUnavailable means the netdev family could not be queried, e.g. on
// kernels older than 6.3.
var errNetdevUnavailable = errors.New("netdev generic netlink family unavailable")

// netdevInfo is what NETDEV_CMD_DEV_GET reports for one interface.
type netdevInfo struct {
	xdpFeatures uint64
	zcMaxSegs   uint32
}

// queryNetdevXDP asks the kernel which XDP features the driver of ifindex
// advertises.
func queryNetdevXDP(ifindex int) (netdevInfo, error) {
	conn, err := genetlink.Dial(nil)
	if err != nil {
		return netdevInfo{}, fmt.Errorf("%w: dial: %w", errNetdevUnavailable, err)
	}
	defer conn.Close()

	family, err := conn.GetFamily(netdevFamilyName)
	if err != nil {
		return netdevInfo{}, fmt.Errorf("%w: %w", errNetdevUnavailable, err)
	}

	req, err := encodeDevGet(ifindex)
	if err != nil {
		return netdevInfo{}, err
	}

	msgs, err := conn.Execute(genetlink.Message{
		Header: genetlink.Header{
			Command: netdevCmdDevGet,
			Version: family.Version,
		},
		Data: req,
	}, family.ID, netlink.Request)
	if err != nil {
		return netdevInfo{}, fmt.Errorf("netdev dev-get ifindex %d: %w", ifindex, err)
	}
	if len(msgs) == 0 {
		return netdevInfo{}, fmt.Errorf("netdev dev-get ifindex %d: empty reply", ifindex)
	}
	return decodeDevGet(msgs[0].Data)
}

func encodeDevGet(ifindex int) ([]byte, error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(netdevAttrDevIfindex, uint32(ifindex))
	return ae.Encode()
}

func decodeDevGet(b []byte) (netdevInfo, error) {
	ad, err := netlink.NewAttributeDecoder(b)
	if err != nil {
		return netdevInfo{}, err
	}
	var info netdevInfo
	for ad.Next() {
		switch ad.Type() {
		case netdevAttrDevXDPFeatures:
			info.xdpFeatures = ad.Uint64()
		case netdevAttrDevXDPZCMaxSeg:
			info.zcMaxSegs = ad.Uint32()
		}
	}
	if err := ad.Err(); err != nil {
		return netdevInfo{}, fmt.Errorf("decode netdev reply: %w", err)
	}
	return info, nil
}
