//go:build linux

package xdpcheck

import (
	"testing"

	"github.com/mdlayher/netlink"
)

func TestEncodeDevGet(t *testing.T) {
	b, err := encodeDevGet(7)
	if err != nil {
		t.Fatalf("encodeDevGet() error = %v", err)
	}
	ad, err := netlink.NewAttributeDecoder(b)
	if err != nil {
		t.Fatal(err)
	}
	var ifindex uint32
	for ad.Next() {
		if ad.Type() == netdevAttrDevIfindex {
			ifindex = ad.Uint32()
		}
	}
	if err := ad.Err(); err != nil {
		t.Fatal(err)
	}
	if ifindex != 7 {
		t.Errorf("ifindex = %d, want 7", ifindex)
	}
}

func TestDecodeDevGet(t *testing.T) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(netdevAttrDevIfindex, 3)
	ae.Uint64(netdevAttrDevXDPFeatures, xdpActBasic|xdpActXskZC)
	ae.Uint32(netdevAttrDevXDPZCMaxSeg, 1)
	ae.Uint64(9, 0xffff) // unknown attributes are skipped
	b, err := ae.Encode()
	if err != nil {
		t.Fatal(err)
	}

	info, err := decodeDevGet(b)
	if err != nil {
		t.Fatalf("decodeDevGet() error = %v", err)
	}
	if info.xdpFeatures != xdpActBasic|xdpActXskZC {
		t.Errorf("xdpFeatures = %#x", info.xdpFeatures)
	}
	if info.zcMaxSegs != 1 {
		t.Errorf("zcMaxSegs = %d, want 1", info.zcMaxSegs)
	}
}

func TestDecodeDevGet_Truncated(t *testing.T) {
	if _, err := decodeDevGet([]byte{0x08, 0x00, 0x03}); err == nil {
		t.Error("decodeDevGet() on truncated input: want error")
	}
}
