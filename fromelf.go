package xdpcheck

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cilium/ebpf"
)

// kernelNameLen is the usable length of a program name in the kernel
// (BPF_OBJ_NAME_LEN minus the terminating NUL).
const kernelNameLen = 15

// ExpectedProgram is an XDP program found in an ELF object, named and tagged
// the way the kernel will report it once loaded.
type ExpectedProgram struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

// ExpectedFromELF lists the XDP programs of an eBPF ELF object with the tag
// the kernel computes for them. The object is parsed, never loaded.
// Output is sorted by name.
func ExpectedFromELF(path string) ([]ExpectedProgram, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("from ELF: empty path")
	}

	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("from ELF %q: load collection spec: %w", path, err)
	}

	progs, err := expectedFromCollectionSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("from ELF %q: %w", path, err)
	}
	return progs, nil
}

// ExpectedTagFromELF returns the tag of the XDP program called target in
// the ELF object at path.
func ExpectedTagFromELF(path, target string) (string, error) {
	progs, err := ExpectedFromELF(path)
	if err != nil {
		return "", err
	}
	want := kernelName(target)
	for _, p := range progs {
		if p.Name == want {
			return p.Tag, nil
		}
	}
	return "", fmt.Errorf("from ELF %q: no XDP program named %q", path, target)
}

func expectedFromCollectionSpec(spec *ebpf.CollectionSpec) ([]ExpectedProgram, error) {
	if spec == nil {
		return nil, fmt.Errorf("nil collection spec")
	}

	var out []ExpectedProgram
	for name, prog := range spec.Programs {
		if prog == nil {
			return nil, fmt.Errorf("program %q: nil program spec", name)
		}
		if prog.Type != ebpf.XDP {
			continue
		}
		tag, err := prog.Tag()
		if err != nil {
			return nil, fmt.Errorf("program %q: compute tag: %w", name, err)
		}
		progName := prog.Name
		if progName == "" {
			progName = name
		}
		out = append(out, ExpectedProgram{Name: kernelName(progName), Tag: tag})
	}

	slices.SortFunc(out, func(a, b ExpectedProgram) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// kernelName truncates name the way the kernel stores program names.
func kernelName(name string) string {
	if len(name) > kernelNameLen {
		return name[:kernelNameLen]
	}
	return name
}
