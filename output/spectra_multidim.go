package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctessum/cdf"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/timestepping"
)

var SpectraNames = []string{"spectrumkykx_EK", "spectrumkykx_EA", "spectrumkykx_E", "spectrum2D_E"}

/*
	SpectraMultiDim buffers the kykx and isotropic energy spectra of NB
	samples, then writes them to spectra_multidim_it=<it of the first
	sample>.nc. A partial buffer is written when the run stops.
*/
type SpectraMultiDim struct {
	period   float64
	decimate int
	solver   model_problems.Solver
	op       *operators.Operators2D
	Dir      string
	NB       int // Samples per file
	Files    []string
	itStart  int
	times    []float64
	its      []int32
	spectra  map[string][]float64
}

// SpectraBytesPerSample is the storage of the spectra, time and index of
// one sample
func SpectraBytesPerSample(op *operators.Operators2D) int {
	var (
		nky = op.NY/2 + 1
		nkh = len(op.Kh())
	)
	return 8*(3*nky*op.NKX+nkh) + 8 + 4
}

/*
	NewSpectraMultiDim checks that a file fills within the whole run, from
	t = 0 to t_end, so that restarts and relaunches of the run pass the same
	checks as its first launch.
*/
func NewSpectraMultiDim(sv model_problems.Solver, op *operators.Operators2D, ip *InputParameters.Parameters,
	dir string) (sp *SpectraMultiDim, err error) {
	var (
		ts  = ip.TimeStepping
		out = ip.Output
	)
	sp = &SpectraMultiDim{
		period:   out.PeriodsSave.SpectraMultiDim,
		decimate: max(out.SpectraMultiDim.TimeDecimate, 1),
		solver:   sv,
		op:       op,
		Dir:      dir,
		spectra:  make(map[string][]float64, len(SpectraNames)),
	}
	if sp.period <= 0 {
		return
	}
	if ts.USE_CFL {
		err = fmt.Errorf("%w: periods_save.spectra_multidim = %g with USE_CFL", ErrIncompatibleCFL, sp.period)
		return
	}
	sp.NB = int(out.SpectraMultiDim.SizeMaxFile * 1024 * 1024 / float64(SpectraBytesPerSample(op)))
	if sp.NB <= 0 {
		err = fmt.Errorf("%w: size_max_file = %g MB", ErrBufferCapacity, out.SpectraMultiDim.SizeMaxFile)
		return
	}
	if span := float64(sp.NB) * sp.period * float64(sp.decimate); ts.USE_T_END && span > ts.TEnd {
		err = fmt.Errorf("%w: %d samples span %g, t_end is %g", ErrBufferUnreachable,
			sp.NB, span, ts.TEnd)
		return
	}
	return
}

func (sp *SpectraMultiDim) Period() float64 { return sp.period }
func (sp *SpectraMultiDim) Decimate() int   { return sp.decimate }

// Buffered is the number of samples waiting for the next file
func (sp *SpectraMultiDim) Buffered() int { return len(sp.times) }

// OnSample is collective, the spectra are reduced on every rank
func (sp *SpectraMultiDim) OnSample(s timestepping.Sample) (err error) {
	var (
		op       = sp.op
		EKm, EAm *mat.Dense
	)
	if EKm, EAm, err = sp.solver.EnergiesFFT(s.State); err != nil {
		return
	}
	E := op.NewSpectReal()
	E.Add(EKm, EAm)
	if len(sp.times) == 0 {
		sp.itStart = s.It
	}
	sp.times = append(sp.times, s.T)
	sp.its = append(sp.its, int32(s.It))
	for i, f := range []*mat.Dense{EKm, EAm, E} {
		name := SpectraNames[i]
		sp.spectra[name] = append(sp.spectra[name], op.SpectrumKyKx(f).RawMatrix().Data...)
	}
	sp.spectra["spectrum2D_E"] = append(sp.spectra["spectrum2D_E"], op.Spectrum2D(E)...)
	if len(sp.times) >= sp.NB {
		err = sp.flush()
	}
	return
}

func (sp *SpectraMultiDim) Finalize(s timestepping.Sample) (err error) {
	if len(sp.times) > 0 {
		err = sp.flush()
	}
	return
}

// flush writes the buffer and empties it. Collective.
func (sp *SpectraMultiDim) flush() (err error) {
	path := filepath.Join(sp.Dir, fmt.Sprintf("spectra_multidim_it=%d.nc", sp.itStart))
	err = coordinatorDo(sp.op.Comm, func() error {
		return sp.write(path)
	})
	if err == nil {
		sp.Files = append(sp.Files, path)
	}
	sp.times, sp.its = sp.times[:0], sp.its[:0]
	for name := range sp.spectra {
		sp.spectra[name] = sp.spectra[name][:0]
	}
	return
}

func (sp *SpectraMultiDim) write(path string) (err error) {
	var (
		op  = sp.op
		nky = op.NY/2 + 1
		kh  = op.Kh()
		ky  = make([]float64, nky)
		ff  *os.File
		f   *cdf.File
	)
	for n := range ky {
		ky[n] = float64(n) * op.DeltaKy
	}
	h := cdf.NewHeader([]string{"time", "ky", "kx", "kh"}, []int{len(sp.times), nky, op.NKX, len(kh)})
	h.AddAttribute("", "comment", "Energy spectra of "+sp.solver.Info().Name)
	h.AddAttribute("", "it_start", []int32{int32(sp.itStart)})
	h.AddVariable("times_arr", []string{"time"}, []float64{0})
	h.AddVariable("its_arr", []string{"time"}, []int32{0})
	h.AddVariable("kx", []string{"kx"}, []float64{0})
	h.AddVariable("ky", []string{"ky"}, []float64{0})
	h.AddVariable("kh", []string{"kh"}, []float64{0})
	for _, name := range SpectraNames[:3] {
		h.AddVariable(name, []string{"time", "ky", "kx"}, []float64{0})
	}
	h.AddVariable("spectrum2D_E", []string{"time", "kh"}, []float64{0})
	if ff, f, err = createNCF(path, h); err != nil {
		return
	}
	err = writeNCF(f, "times_arr", sp.times)
	if err == nil {
		err = writeNCF(f, "its_arr", sp.its)
	}
	if err == nil {
		err = writeNCF(f, "kx", op.Kxs[:op.NKX])
	}
	if err == nil {
		err = writeNCF(f, "ky", ky)
	}
	if err == nil {
		err = writeNCF(f, "kh", kh)
	}
	for _, name := range SpectraNames {
		if err != nil {
			break
		}
		err = writeNCF(f, name, sp.spectra[name])
	}
	if e := closeNCF(ff); err == nil {
		err = e
	}
	return
}

// SpectraFile is the content of a spectra_multidim file
type SpectraFile struct {
	ItStart    int
	Times      []float64
	Its        []int
	Kx, Ky, Kh []float64
	Spectra    map[string][]float64 // Samples are contiguous
}

// KyKx returns sample i of a kykx spectrum
func (sf *SpectraFile) KyKx(name string, i int) *mat.Dense {
	var (
		nky, nkx = len(sf.Ky), len(sf.Kx)
		size     = nky * nkx
	)
	return mat.NewDense(nky, nkx, sf.Spectra[name][i*size:(i+1)*size])
}

// Spectrum2D returns sample i of the isotropic spectrum
func (sf *SpectraFile) Spectrum2D(i int) []float64 {
	n := len(sf.Kh)
	return sf.Spectra["spectrum2D_E"][i*n : (i+1)*n]
}

func LoadSpectraMultiDim(path string) (sf *SpectraFile, err error) {
	var (
		ff  *os.File
		f   *cdf.File
		its []int32
	)
	if ff, err = os.Open(path); err != nil {
		return
	}
	defer ff.Close()
	if f, err = cdf.Open(ff); err != nil {
		return
	}
	sf = &SpectraFile{Spectra: make(map[string][]float64, len(SpectraNames))}
	if sf.ItStart, err = attrInt(f, "it_start"); err != nil {
		return
	}
	if sf.Times, err = readFloat64s(f, "times_arr"); err != nil {
		return
	}
	if its, err = readInt32s(f, "its_arr"); err != nil {
		return
	}
	for _, it := range its {
		sf.Its = append(sf.Its, int(it))
	}
	for name, dst := range map[string]*[]float64{"kx": &sf.Kx, "ky": &sf.Ky, "kh": &sf.Kh} {
		if *dst, err = readFloat64s(f, name); err != nil {
			return
		}
	}
	for _, name := range SpectraNames {
		if sf.Spectra[name], err = readFloat64s(f, name); err != nil {
			return
		}
	}
	return
}
