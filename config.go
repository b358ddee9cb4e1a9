package xdpcheck

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoKernelConfig is returned when no kernel config source is available.
var ErrNoKernelConfig = errors.New("no kernel config found")

type configSource struct {
	path       string
	compressed bool
}

// kernelConfigSources lists config locations in priority order:
//  1. /proc/config.gz (requires CONFIG_IKCONFIG_PROC=y)
//  2. /boot/config-<release>
//  3. /lib/modules/<release>/config
func kernelConfigSources(release string) []configSource {
	return []configSource{
		{path: "/proc/config.gz", compressed: true},
		{path: "/boot/config-" + release},
		{path: "/lib/modules/" + release + "/config"},
	}
}

// readKernelConfig returns the first kernel config that parses.
func readKernelConfig(sources []configSource) (*KernelConfig, error) {
	lastErr := errors.New("no sources")
	for _, src := range sources {
		kc, err := parseConfigFrom(src)
		if err == nil {
			kc.Source = src.path
			return kc, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrNoKernelConfig, lastErr)
}

func parseConfigFrom(src configSource) (*KernelConfig, error) {
	f, err := os.Open(src.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	if src.compressed {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		reader = gr
	}

	return parseConfig(reader)
}

// parseConfig extracts CONFIG_* entries set to y or m. String and numeric
// values are ignored.
func parseConfig(r io.Reader) (*KernelConfig, error) {
	raw := make(map[string]ConfigValue)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "CONFIG_") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimPrefix(key, "CONFIG_")

		switch value {
		case "y":
			raw[key] = ConfigBuiltin
		case "m":
			raw[key] = ConfigModule
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewKernelConfig(raw), nil
}

// missingConfig returns the requirements whose option is not enabled.
func missingConfig(kc *KernelConfig, reqs []ConfigRequirement) []ConfigRequirement {
	var missing []ConfigRequirement
	for _, req := range reqs {
		if !kc.IsSet(req.Key) {
			missing = append(missing, req)
		}
	}
	return missing
}
