package state

import (
	"fmt"
	"strings"
)

// Info declares the fixed key sets of a solver variant. Order is significant:
// it is the order used for checkpoints and printing.
type Info struct {
	Name                 string
	KeysStateSpect       []string // Evolved spectral arrays, all end in _fft
	KeysStatePhys        []string // Physical mirror held by the state
	KeysPhysNeeded       []string // Physical fields the outputs rely on
	KeysComputable       []string // Derived fields available through Compute
	KeysLinearEigenmodes []string
}

func (info Info) Validate() (err error) {
	var (
		fail = func(format string, args ...any) error {
			return fmt.Errorf("%w: %s: %s", ErrInvalidInfo, info.Name, fmt.Sprintf(format, args...))
		}
		noDuplicates = func(label string, keys []string) error {
			seen := make(map[string]bool, len(keys))
			for _, k := range keys {
				if seen[k] {
					return fail("duplicate key %q in %s", k, label)
				}
				seen[k] = true
			}
			return nil
		}
	)
	if info.Name == "" {
		return fail("missing name")
	}
	if len(info.KeysStateSpect) == 0 || len(info.KeysStatePhys) == 0 {
		return fail("empty state key set")
	}
	for label, keys := range map[string][]string{
		"KeysStateSpect":       info.KeysStateSpect,
		"KeysStatePhys":        info.KeysStatePhys,
		"KeysPhysNeeded":       info.KeysPhysNeeded,
		"KeysComputable":       info.KeysComputable,
		"KeysLinearEigenmodes": info.KeysLinearEigenmodes,
	} {
		if err = noDuplicates(label, keys); err != nil {
			return
		}
	}
	for _, k := range info.KeysStateSpect {
		if !strings.HasSuffix(k, "_fft") {
			return fail("spectral key %q does not end in _fft", k)
		}
	}
	for _, k := range info.KeysStatePhys {
		if strings.HasSuffix(k, "_fft") {
			return fail("physical key %q ends in _fft", k)
		}
		if !contains(info.KeysPhysNeeded, k) {
			return fail("physical state key %q is not in KeysPhysNeeded", k)
		}
	}
	return
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
