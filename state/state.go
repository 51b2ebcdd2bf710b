package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/operators"
)

var (
	ErrUnknownKey     = errors.New("state: unknown key")
	ErrIncomplete     = errors.New("state: incomplete state")
	ErrNotImplemented = errors.New("state: not implemented")
	ErrInvalidInfo    = errors.New("state: invalid solver info")
)

// Field holds either a physical or a spectral array
type Field struct {
	Phys  *mat.Dense
	Spect *mat.CDense
}

func (f Field) IsSpect() bool { return f.Spect != nil }

// Relation computes a derived field in closed form from the state
type Relation func(s *State) (Field, error)

type Relations map[string]Relation

// Merge returns a copy of r where the entries of override replace or extend r
func (r Relations) Merge(override Relations) (merged Relations) {
	merged = make(Relations, len(r)+len(override))
	for k, rel := range r {
		merged[k] = rel
	}
	for k, rel := range override {
		merged[k] = rel
	}
	return
}

type cached struct {
	it    int
	field Field
}

/*
	State holds the evolved spectral arrays and their physical mirror.
	The spectral arrays are authoritative after a step: the physical mirror is
	marked stale and resynced on demand through SyncPhysicalFromSpectral.
	Derived fields are memoized per step index.
*/
type State struct {
	Info       Info
	Oper       *operators.Operators2D
	It         int
	spect      map[string]*mat.CDense
	phys       map[string]*mat.Dense
	physStale  bool
	spectStale bool
	relations  Relations

	// spectFromPhys computes a spectral state key from the physical mirror
	// when the key is not simply the transform of a physical key
	spectFromPhys Relations
	cache         map[string]cached
}

func New(info Info, oper *operators.Operators2D, relations, spectFromPhys Relations) (s *State, err error) {
	if err = info.Validate(); err != nil {
		return
	}
	s = &State{
		Info:          info,
		Oper:          oper,
		spect:         make(map[string]*mat.CDense, len(info.KeysStateSpect)),
		phys:          make(map[string]*mat.Dense, len(info.KeysStatePhys)),
		relations:     BaseRelations().Merge(relations),
		spectFromPhys: spectFromPhys,
		cache:         make(map[string]cached),
	}
	for _, k := range info.KeysStateSpect {
		s.spect[k] = oper.NewSpect()
	}
	for _, k := range info.KeysStatePhys {
		s.phys[k] = oper.NewPhys()
	}
	for _, k := range append(append([]string{}, info.KeysComputable...), info.KeysPhysNeeded...) {
		if !s.resolvable(k, 0) {
			err = fmt.Errorf("%w: %s: %w: %q", ErrInvalidInfo, info.Name, ErrUnknownKey, k)
			return
		}
	}
	return
}

func (s *State) resolvable(key string, depth int) bool {
	if depth > 2 {
		return false
	}
	if s.isStateKey(key) {
		return true
	}
	if _, ok := s.relations[key]; ok {
		return true
	}
	if base, ok := strings.CutSuffix(key, "_fft"); ok {
		return s.resolvable(base, depth+1)
	}
	return s.resolvable(key+"_fft", depth+1)
}

func (s *State) isStateKey(key string) bool {
	_, inSpect := s.spect[key]
	_, inPhys := s.phys[key]
	return inSpect || inPhys
}

// Spect returns the live spectral state array, nil for other keys
func (s *State) Spect(key string) *mat.CDense { return s.spect[key] }

// PhysRaw returns the live physical mirror without resyncing it
func (s *State) PhysRaw(key string) *mat.Dense { return s.phys[key] }

// StateSpect exposes the live spectral state arrays, keyed by name
func (s *State) StateSpect() map[string]*mat.CDense { return s.spect }

func (s *State) PhysStale() bool  { return s.physStale }
func (s *State) SpectStale() bool { return s.spectStale }

// ClearComputed drops every memoized derived field
func (s *State) ClearComputed() {
	s.cache = make(map[string]cached)
}

// CommitStep records an accepted step: the step index advances, which
// invalidates the memo, and the physical mirror becomes stale
func (s *State) CommitStep() {
	s.It++
	s.physStale = true
}

// MarkSpectModified tells the state its spectral arrays were written in place
func (s *State) MarkSpectModified() {
	s.physStale = true
	s.ClearComputed()
}

// MarkPhysModified tells the state its physical mirror was written in place
func (s *State) MarkPhysModified() {
	s.spectStale = true
	s.ClearComputed()
}

// Compute resolves a key from storage, a relation or a transform of a
// resolvable key. Derived fields are memoized for the current step index.
func (s *State) Compute(key string) (f Field, err error) {
	if a, ok := s.spect[key]; ok {
		if s.spectStale {
			if err = s.SyncSpectralFromPhysical(); err != nil {
				return
			}
		}
		f.Spect = a
		return
	}
	if a, ok := s.phys[key]; ok {
		if s.physStale {
			if err = s.SyncPhysicalFromSpectral(); err != nil {
				return
			}
		}
		f.Phys = a
		return
	}
	if c, ok := s.cache[key]; ok && c.it == s.It {
		f = c.field
		return
	}
	if f, err = s.computeUncached(key); err != nil {
		return
	}
	s.cache[key] = cached{it: s.It, field: f}
	return
}

func (s *State) computeUncached(key string) (f Field, err error) {
	if rel, ok := s.relations[key]; ok {
		if f, err = rel(s); err != nil {
			err = fmt.Errorf("computing %q: %w", key, err)
		}
		return
	}
	var (
		base Field
	)
	if baseKey, ok := strings.CutSuffix(key, "_fft"); ok && s.resolvable(baseKey, 1) {
		if base, err = s.Compute(baseKey); err != nil {
			return
		}
		if base.IsSpect() {
			err = fmt.Errorf("%w: %q is not a physical field", ErrUnknownKey, baseKey)
			return
		}
		f.Spect = s.Oper.FFT2D(base.Phys)
		return
	}
	if !strings.HasSuffix(key, "_fft") && s.resolvable(key+"_fft", 1) {
		if base, err = s.Compute(key + "_fft"); err != nil {
			return
		}
		if !base.IsSpect() {
			err = fmt.Errorf("%w: %q is not a spectral field", ErrUnknownKey, key+"_fft")
			return
		}
		f.Phys = s.Oper.IFFT2D(base.Spect)
		return
	}
	err = fmt.Errorf("%w: %q for %s", ErrUnknownKey, key, s.Info.Name)
	return
}

// ComputeSpect is Compute restricted to spectral results
func (s *State) ComputeSpect(key string) (a *mat.CDense, err error) {
	var f Field
	if f, err = s.Compute(key); err != nil {
		return
	}
	if !f.IsSpect() {
		err = fmt.Errorf("%w: %q is not a spectral field", ErrUnknownKey, key)
		return
	}
	a = f.Spect
	return
}

// ComputePhys is Compute restricted to physical results
func (s *State) ComputePhys(key string) (a *mat.Dense, err error) {
	var f Field
	if f, err = s.Compute(key); err != nil {
		return
	}
	if f.IsSpect() {
		err = fmt.Errorf("%w: %q is not a physical field", ErrUnknownKey, key)
		return
	}
	a = f.Phys
	return
}

// SyncPhysicalFromSpectral recomputes the physical mirror from the spectral
// arrays. Collective.
func (s *State) SyncPhysicalFromSpectral() (err error) {
	// The mirror is recomputed through the spectral side only
	s.physStale = false
	s.ClearComputed()
	for _, k := range s.Info.KeysStatePhys {
		var a *mat.CDense
		if spect, ok := s.spect[k+"_fft"]; ok {
			a = spect
		} else if a, err = s.ComputeSpect(k + "_fft"); err != nil {
			s.physStale = true
			return
		}
		s.Oper.IFFT2DTo(s.phys[k], a)
	}
	s.ClearComputed()
	return
}

// SyncSpectralFromPhysical recomputes the spectral arrays from the physical
// mirror. Collective.
func (s *State) SyncSpectralFromPhysical() (err error) {
	var (
		fresh = make(map[string]*mat.CDense, len(s.spect))
	)
	s.spectStale = false
	s.ClearComputed()
	for _, k := range s.Info.KeysStateSpect {
		if rel, ok := s.spectFromPhys[k]; ok {
			var f Field
			if f, err = rel(s); err != nil {
				s.spectStale = true
				return
			}
			fresh[k] = f.Spect
			continue
		}
		base := strings.TrimSuffix(k, "_fft")
		phys, ok := s.phys[base]
		if !ok {
			s.spectStale = true
			err = fmt.Errorf("%w: no physical source for %q in %s", ErrUnknownKey, k, s.Info.Name)
			return
		}
		fresh[k] = s.Oper.FFT2D(phys)
	}
	for k, a := range fresh {
		operators.CopySpect(s.spect[k], a)
	}
	s.ClearComputed()
	return
}

// InitFromSpect copies a complete set of spectral arrays, dealiases them and
// populates the physical mirror
func (s *State) InitFromSpect(fields map[string]*mat.CDense) (err error) {
	var missing []string
	for _, k := range s.Info.KeysStateSpect {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) != 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s is missing %v", ErrIncomplete, s.Info.Name, missing)
	}
	for _, k := range s.Info.KeysStateSpect {
		operators.CopySpect(s.spect[k], fields[k])
		s.Oper.Dealias(s.spect[k])
	}
	s.spectStale = false
	return s.SyncPhysicalFromSpectral()
}

// InitFromPhys copies a complete physical mirror and derives the spectral
// state from it. The mirror is then rebuilt from the dealiased arrays.
func (s *State) InitFromPhys(fields map[string]*mat.Dense) (err error) {
	var missing []string
	for _, k := range s.Info.KeysStatePhys {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) != 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s is missing %v", ErrIncomplete, s.Info.Name, missing)
	}
	for _, k := range s.Info.KeysStatePhys {
		s.phys[k].Copy(fields[k])
	}
	if err = s.SyncSpectralFromPhysical(); err != nil {
		return
	}
	for _, a := range s.spect {
		s.Oper.Dealias(a)
	}
	return s.SyncPhysicalFromSpectral()
}
