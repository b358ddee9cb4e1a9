//go:build linux

package xdpcheck

import (
	"iter"
	"time"

	"github.com/cilium/ebpf"
	"github.com/prometheus/procfs"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// kernelPrograms queries the live kernel through the bpf(2) syscall.
type kernelPrograms struct{}

func (kernelPrograms) nextID(id ebpf.ProgramID) (ebpf.ProgramID, error) {
	return ebpf.ProgramGetNextID(id)
}

func (kernelPrograms) info(id ebpf.ProgramID) (*ebpf.ProgramInfo, error) {
	prog, err := ebpf.NewProgramFromID(id)
	if err != nil {
		return nil, err
	}
	defer prog.Close()
	return prog.Info()
}

func liveCursor(log logrus.FieldLogger) programCursor {
	if log == nil {
		log = discardLogger()
	}
	return programCursor{src: kernelPrograms{}, bootTime: bootTime, log: log}
}

// Programs returns a lazy sequence over every BPF program loaded in the
// kernel, in ascending id order. Programs unloaded between the id walk and
// the metadata read are skipped. Iteration stops after the first error,
// which wraps [ErrBPFQueryFailed].
func Programs() iter.Seq2[ProgramRecord, error] {
	return liveCursor(nil).all()
}

// ListPrograms returns every loaded BPF program.
func ListPrograms() ([]ProgramRecord, error) {
	return liveCursor(nil).collect()
}

// ListXDPAttachments returns every network interface with an XDP program
// attached.
func ListXDPAttachments() ([]XDPAttachment, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, linkError("list links", err)
	}
	var out []XDPAttachment
	for _, l := range links {
		if a, ok := attachmentOf(l.Attrs()); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// ProbeInventory lists loaded programs and XDP attachments. Only a failed
// program enumeration is an error.
func ProbeInventory() (Inventory, error) {
	return probeInventory(discardLogger())
}

func probeInventory(log logrus.FieldLogger) (Inventory, error) {
	progs, err := liveCursor(log).collect()
	if err != nil {
		return Inventory{}, err
	}
	inv := Inventory{Programs: progs}
	inv.Attachments, inv.AttachmentsError = ListXDPAttachments()
	if inv.AttachmentsError != nil {
		log.WithError(inv.AttachmentsError).Warn("cannot list XDP attachments")
	}
	inv.Sockets = readSocketStatus(defaultRoots, bpffsRoot, log)
	return inv, nil
}

func attachmentOf(attrs *netlink.LinkAttrs) (XDPAttachment, bool) {
	if attrs == nil || attrs.Xdp == nil || !attrs.Xdp.Attached {
		return XDPAttachment{}, false
	}
	return XDPAttachment{
		Interface: attrs.Name,
		Index:     attrs.Index,
		ProgramID: ebpf.ProgramID(attrs.Xdp.ProgId),
		Mode:      AttachMode(attrs.Xdp.AttachMode),
	}, true
}

// bootTime returns the system boot time from /proc/stat.
// Falls back to time.Now() if /proc/stat cannot be read.
func bootTime() time.Time {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return time.Now()
	}
	stat, err := fs.Stat()
	if err != nil || stat.BootTime == 0 {
		return time.Now()
	}
	return time.Unix(int64(stat.BootTime), 0)
}
