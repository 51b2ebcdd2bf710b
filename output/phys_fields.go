package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/timestepping"
	"github.com/notargets/gospectral/types"
	"github.com/notargets/gospectral/utils"
)

var checkpointRE = regexp.MustCompile(`^state_phys_t(\d+\.\d+)_it=(\d+)\.nc$`)

func CheckpointName(t float64, it int) string {
	return fmt.Sprintf("state_phys_t%09.3f_it=%d.nc", t, it)
}

/*
	PhysFields saves restartable checkpoints of the state: the global
	spectral state as <key>_re and <key>_im, the physical state fields, and
	the time, step index and step size as attributes. A checkpoint is also
	saved when the run stops, unless it failed.
*/
type PhysFields struct {
	period float64
	solver string
	op     *operators.Operators2D
	Dir    string
	Files  []string
	lastIt int
}

func NewPhysFields(sv model_problems.Solver, op *operators.Operators2D, ip *InputParameters.Parameters,
	dir string) (pf *PhysFields) {
	pf = &PhysFields{
		period: ip.Output.PeriodsSave.PhysFields,
		solver: sv.Info().Name,
		op:     op,
		Dir:    dir,
		lastIt: -1,
	}
	return
}

func (pf *PhysFields) Period() float64 { return pf.period }
func (pf *PhysFields) Decimate() int   { return 1 }

func (pf *PhysFields) OnSample(s timestepping.Sample) (err error) {
	_, err = pf.Save(s)
	return
}

func (pf *PhysFields) Finalize(s timestepping.Sample) (err error) {
	if s.Status == types.Failed || s.It == pf.lastIt {
		return
	}
	_, err = pf.Save(s)
	return
}

// Save writes the checkpoint of the sample. Collective.
func (pf *PhysFields) Save(s timestepping.Sample) (path string, err error) {
	var (
		op    = pf.op
		info  = s.State.Info
		spect = make(map[string]*mat.CDense, len(info.KeysStateSpect))
		phys  = make(map[string]*mat.Dense, len(info.KeysStatePhys))
	)
	for _, key := range info.KeysStateSpect {
		spect[key] = op.GatherSpect(s.State.Spect(key))
	}
	for _, key := range info.KeysStatePhys {
		var f *mat.Dense
		if f, err = s.State.ComputePhys(key); err != nil {
			return
		}
		phys[key] = op.GatherPhys(f)
	}
	path = filepath.Join(pf.Dir, CheckpointName(s.T, s.It))
	cp := &Checkpoint{
		Path:   path,
		T:      s.T,
		DeltaT: s.DeltaT,
		It:     s.It,
		Solver: pf.solver,
		NX:     op.NX,
		NY:     op.NY,
		Lx:     op.Lx,
		Ly:     op.Ly,
		Spect:  spect,
		Phys:   phys,
	}
	if err = coordinatorDo(op.Comm, cp.write); err != nil {
		return
	}
	pf.Files = append(pf.Files, path)
	pf.lastIt = s.It
	return
}

// Checkpoint holds global fields, spectral arrays are NKX x NY and
// physical arrays NY x NX
type Checkpoint struct {
	Path      string
	T, DeltaT float64
	It        int
	Solver    string
	NX, NY    int
	Lx, Ly    float64
	Spect     map[string]*mat.CDense
	Phys      map[string]*mat.Dense
}

func sortedKeys[V any](m map[string]V) (keys []string) {
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return
}

func (cp *Checkpoint) write() (err error) {
	var (
		nkx = cp.NX/2 + 1
		ff  *os.File
		f   *cdf.File
	)
	h := cdf.NewHeader([]string{"kx", "ky", "y", "x"}, []int{nkx, cp.NY, cp.NY, cp.NX})
	h.AddAttribute("", "solver", cp.Solver)
	h.AddAttribute("", "time", []float64{cp.T})
	h.AddAttribute("", "deltat", []float64{cp.DeltaT})
	h.AddAttribute("", "it", []int32{int32(cp.It)})
	h.AddAttribute("", "nx", []int32{int32(cp.NX)})
	h.AddAttribute("", "ny", []int32{int32(cp.NY)})
	h.AddAttribute("", "Lx", []float64{cp.Lx})
	h.AddAttribute("", "Ly", []float64{cp.Ly})
	for _, key := range sortedKeys(cp.Spect) {
		h.AddVariable(key+"_re", []string{"kx", "ky"}, []float64{0})
		h.AddVariable(key+"_im", []string{"kx", "ky"}, []float64{0})
	}
	for _, key := range sortedKeys(cp.Phys) {
		h.AddVariable(key, []string{"y", "x"}, []float64{0})
	}
	if ff, f, err = createNCF(cp.Path, h); err != nil {
		return
	}
	for _, key := range sortedKeys(cp.Spect) {
		var (
			data   = cp.Spect[key].RawCMatrix().Data
			re, im = make([]float64, len(data)), make([]float64, len(data))
		)
		for i, v := range data {
			re[i], im[i] = real(v), imag(v)
		}
		if err = writeNCF(f, key+"_re", re); err != nil {
			break
		}
		if err = writeNCF(f, key+"_im", im); err != nil {
			break
		}
	}
	for _, key := range sortedKeys(cp.Phys) {
		if err != nil {
			break
		}
		err = writeNCF(f, key, cp.Phys[key].RawMatrix().Data)
	}
	if e := closeNCF(ff); err == nil {
		err = e
	}
	return
}

func LoadCheckpoint(path string) (cp *Checkpoint, err error) {
	return loadCheckpoint(path, true)
}

// LoadCheckpointInfo reads the attributes of a checkpoint without its fields
func LoadCheckpointInfo(path string) (cp *Checkpoint, err error) {
	return loadCheckpoint(path, false)
}

func loadCheckpoint(path string, withFields bool) (cp *Checkpoint, err error) {
	var (
		ff *os.File
		f  *cdf.File
	)
	if ff, err = os.Open(path); err != nil {
		return
	}
	defer ff.Close()
	if f, err = cdf.Open(ff); err != nil {
		return
	}
	cp = &Checkpoint{
		Path:  path,
		Spect: make(map[string]*mat.CDense),
		Phys:  make(map[string]*mat.Dense),
	}
	if cp.Solver, err = attrString(f, "solver"); err != nil {
		return
	}
	for name, dst := range map[string]*float64{"time": &cp.T, "deltat": &cp.DeltaT, "Lx": &cp.Lx, "Ly": &cp.Ly} {
		if *dst, err = attrFloat64(f, name); err != nil {
			return
		}
	}
	for name, dst := range map[string]*int{"it": &cp.It, "nx": &cp.NX, "ny": &cp.NY} {
		if *dst, err = attrInt(f, name); err != nil {
			return
		}
	}
	if !withFields {
		return
	}
	nkx := cp.NX/2 + 1
	for _, name := range f.Header.Variables() {
		var data []float64
		switch {
		case strings.HasSuffix(name, "_im"):
			continue
		case strings.HasSuffix(name, "_re"):
			var (
				key    = strings.TrimSuffix(name, "_re")
				re, im []float64
			)
			if re, err = readFloat64s(f, name); err != nil {
				return
			}
			if im, err = readFloat64s(f, key+"_im"); err != nil {
				return
			}
			c := make([]complex128, len(re))
			for i := range re {
				c[i] = complex(re[i], im[i])
			}
			cp.Spect[key] = mat.NewCDense(nkx, cp.NY, c)
		default:
			if data, err = readFloat64s(f, name); err != nil {
				return
			}
			cp.Phys[name] = mat.NewDense(cp.NY, cp.NX, data)
		}
	}
	return
}

/*
	FindCheckpoint returns the checkpoint of dir with the latest time not
	after tApprox, compared at the precision of the file names. A negative
	tApprox selects the latest checkpoint. Ties in time go to the largest
	step index.
*/
func FindCheckpoint(dir string, tApprox float64) (path string, err error) {
	var (
		entries []os.DirEntry
		tBest   = math.Inf(-1)
		itBest  = -1
	)
	if entries, err = os.ReadDir(dir); err != nil {
		return
	}
	limit := math.Inf(1)
	if tApprox >= 0 {
		limit = utils.RoundTo(tApprox, 3)
	}
	for _, e := range entries {
		m := checkpointRE.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		t, e1 := strconv.ParseFloat(m[1], 64)
		it, e2 := strconv.Atoi(m[2])
		if e1 != nil || e2 != nil || t > limit {
			continue
		}
		if t > tBest || (t == tBest && it > itBest) {
			tBest, itBest, path = t, it, filepath.Join(dir, e.Name())
		}
	}
	if path == "" {
		err = fmt.Errorf("%w in %s with t <= %g", ErrNoCheckpoint, dir, tApprox)
	}
	return
}
