package xdpcheck

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/cilium/ebpf"
	"github.com/sirupsen/logrus"
)

// ProgramRecord describes one loaded BPF program.
type ProgramRecord struct {
	ID   ebpf.ProgramID   `json:"id"`
	Name string           `json:"name"`
	Tag  string           `json:"tag"`
	Type ebpf.ProgramType `json:"-"`
	// LoadTime is the time since boot at which the program was loaded; zero
	// when the kernel did not report it.
	LoadTime time.Duration `json:"-"`
	LoadedAt time.Time     `json:"loaded_at,omitzero"`
}

// Fingerprint identifies a program instance. Two records denote the same
// loaded program iff their fingerprints are equal.
type Fingerprint struct {
	ID  ebpf.ProgramID `json:"id"`
	Tag string         `json:"tag"`
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("id=%d tag=%s", f.ID, f.Tag)
}

// Fingerprint returns the record's identity.
func (r ProgramRecord) Fingerprint() Fingerprint {
	return Fingerprint{ID: r.ID, Tag: r.Tag}
}

// IsXDP reports whether the program is of type XDP.
func (r ProgramRecord) IsXDP() bool {
	return r.Type == ebpf.XDP
}

func (r ProgramRecord) MarshalJSON() ([]byte, error) {
	type plain ProgramRecord
	return json.Marshal(struct {
		plain
		Type string `json:"type"`
	}{plain: plain(r), Type: r.Type.String()})
}

// AttachMode is the XDP attach mode reported by rtnetlink (XDP_ATTACHED_*).
type AttachMode uint32

const (
	AttachNone  AttachMode = 0
	AttachDrv   AttachMode = 1
	AttachSKB   AttachMode = 2
	AttachHW    AttachMode = 3
	AttachMulti AttachMode = 4
)

func (m AttachMode) String() string {
	switch m {
	case AttachNone:
		return "none"
	case AttachDrv:
		return "driver"
	case AttachSKB:
		return "generic"
	case AttachHW:
		return "offload"
	case AttachMulti:
		return "multi"
	default:
		return fmt.Sprintf("AttachMode(%d)", uint32(m))
	}
}

func (m AttachMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Native reports whether the mode runs in the driver or on the NIC.
func (m AttachMode) Native() bool {
	return m == AttachDrv || m == AttachHW
}

// XDPAttachment is an XDP program attached to a network interface.
type XDPAttachment struct {
	Interface string         `json:"interface"`
	Index     int            `json:"index"`
	ProgramID ebpf.ProgramID `json:"program_id"`
	Mode      AttachMode     `json:"mode"`
}

// Inventory is the snapshot produced by the inventory probe.
type Inventory struct {
	Programs    []ProgramRecord `json:"programs"`
	Attachments []XDPAttachment `json:"attachments,omitempty"`
	// AttachmentsError is set when interfaces could not be listed. Programs
	// are still valid in that case.
	AttachmentsError error `json:"-"`

	Sockets SocketStatus `json:"sockets"`
}

// programSource is the pair of kernel queries the cursor is built from.
type programSource interface {
	// nextID returns the smallest program id greater than id, or an error
	// matching os.ErrNotExist when there is none.
	nextID(id ebpf.ProgramID) (ebpf.ProgramID, error)
	// info returns metadata for id, or an error matching os.ErrNotExist when
	// the program was unloaded in the meantime.
	info(id ebpf.ProgramID) (*ebpf.ProgramInfo, error)
}

// programCursor walks the kernel's program id space.
type programCursor struct {
	src      programSource
	bootTime func() time.Time
	log      logrus.FieldLogger
}

// all yields every program once per iteration. Each call to the returned
// sequence starts a fresh walk from id 0.
func (c programCursor) all() iter.Seq2[ProgramRecord, error] {
	return func(yield func(ProgramRecord, error) bool) {
		var (
			id   ebpf.ProgramID
			boot time.Time
		)
		for {
			next, err := c.src.nextID(id)
			if errors.Is(err, os.ErrNotExist) {
				return
			}
			if err != nil {
				yield(ProgramRecord{}, bpfQueryFailed(fmt.Errorf("next id after %d: %w", id, err)))
				return
			}
			if next <= id {
				yield(ProgramRecord{}, bpfQueryFailed(fmt.Errorf("program id %d does not follow %d", next, id)))
				return
			}
			id = next

			info, err := c.src.info(id)
			if errors.Is(err, os.ErrNotExist) {
				c.log.WithField("id", id).Debug("program unloaded during enumeration, skipping")
				continue
			}
			if err != nil {
				yield(ProgramRecord{}, bpfQueryFailed(fmt.Errorf("program %d: %w", id, err)))
				return
			}

			rec := ProgramRecord{
				ID:   id,
				Name: info.Name,
				Tag:  info.Tag,
				Type: info.Type,
			}
			if d, ok := info.LoadTime(); ok && d > 0 {
				if boot.IsZero() {
					boot = c.bootTime()
				}
				rec.LoadTime = d
				rec.LoadedAt = boot.Add(d)
			}
			c.log.WithFields(logrus.Fields{"id": id, "name": rec.Name, "type": rec.Type}).Trace("program visited")
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// collect drains the cursor into a slice. An empty, non-nil slice means no
// programs are loaded.
func (c programCursor) collect() ([]ProgramRecord, error) {
	records := []ProgramRecord{}
	for rec, err := range c.all() {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func bpfQueryFailed(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %w: %w", ErrBPFQueryFailed, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrBPFQueryFailed, err)
}
