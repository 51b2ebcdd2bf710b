package output

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/timestepping"
)

const TemporalDataDir = "temporal_data"

var ErrNoLinearModes = errors.New("output: the solver has no linear eigenmodes")

var temporalRE = regexp.MustCompile(`^temp_array_it=(\d+)\.nc$`)

func TemporalDataName(itStart int) string {
	return fmt.Sprintf("temp_array_it=%d.nc", itStart)
}

func FrequencySpectraName(itStart int) string {
	return fmt.Sprintf("freq_spectra_it=%d.nc", itStart)
}

/*
	FrequencySpectra buffers the linear eigenmodes of the solver in physical
	space, on the grid decimated by spatial_decimate, from time_start on.
	Every NB samples the buffer is written to
	temporal_data/temp_array_it=<it of the first sample>.nc and its
	frequency spectra are computed when the run stops. Windows have a fixed
	length: a partial buffer is dropped.
*/
type FrequencySpectra struct {
	period   float64
	decimate int
	tStart   float64
	sd       int
	op       *operators.Operators2D
	keys     []string
	Dir      string // temporal_data of the run
	NB       int    // Samples per file
	Files    []string
	Spectra  []string
	n0, n1   int
	itStart  int
	times    []float64
	its      []int32
	arrays   map[string][]float64 // Coordinator only, time major
}

func decimatedLen(n, sd int) int { return (n + sd - 1) / sd }

func eigenmodeName(key string) string { return strings.TrimSuffix(key, "_fft") }

// FrequencyBytesPerSample is the storage of nkeys decimated fields, the time
// and the index of one sample
func FrequencyBytesPerSample(op *operators.Operators2D, nkeys, sd int) int {
	return 8*nkeys*decimatedLen(op.NY, sd)*decimatedLen(op.NX, sd) + 8 + 4
}

/*
	NewFrequencySpectra checks, when the output is enabled, that the solver
	has linear eigenmodes, that the step is fixed and that a file fills
	between time_start and t_end.
*/
func NewFrequencySpectra(sv model_problems.Solver, op *operators.Operators2D, ip *InputParameters.Parameters,
	dir string) (fs *FrequencySpectra, err error) {
	var (
		ts  = ip.TimeStepping
		out = ip.Output
		par = out.FrequencySpectra
		sd  = max(par.SpatialDecimate, 1)
	)
	fs = &FrequencySpectra{
		period:   out.PeriodsSave.FrequencySpectra,
		decimate: max(par.TimeDecimate, 1),
		tStart:   par.TimeStart,
		sd:       sd,
		op:       op,
		Dir:      filepath.Join(dir, TemporalDataDir),
		n0:       decimatedLen(op.NY, sd),
		n1:       decimatedLen(op.NX, sd),
		arrays:   make(map[string][]float64),
	}
	if fs.period <= 0 {
		return
	}
	if fs.keys = sv.Info().KeysLinearEigenmodes; len(fs.keys) == 0 {
		err = fmt.Errorf("%w: %s", ErrNoLinearModes, sv.Info().Name)
		return
	}
	if ts.USE_CFL {
		err = fmt.Errorf("%w: periods_save.frequency_spectra = %g with USE_CFL", ErrIncompatibleCFL, fs.period)
		return
	}
	fs.NB = int(par.SizeMaxFile * 1024 * 1024 / float64(FrequencyBytesPerSample(op, len(fs.keys), sd)))
	if fs.NB <= 0 {
		err = fmt.Errorf("%w: frequency_spectra.size_max_file = %g MB", ErrBufferCapacity, par.SizeMaxFile)
		return
	}
	span := float64(fs.NB) * fs.period * float64(fs.decimate)
	if ts.USE_T_END && math.Max(fs.tStart, 0)+span > ts.TEnd {
		err = fmt.Errorf("%w: %d samples span %g from time_start %g, t_end is %g", ErrBufferUnreachable,
			fs.NB, span, fs.tStart, ts.TEnd)
	}
	return
}

func (fs *FrequencySpectra) Period() float64 { return fs.period }
func (fs *FrequencySpectra) Decimate() int   { return fs.decimate }

// Buffered is the number of samples waiting for the next file
func (fs *FrequencySpectra) Buffered() int { return len(fs.times) }

// OnSample gathers the eigenmodes on the coordinator. Collective.
func (fs *FrequencySpectra) OnSample(s timestepping.Sample) (err error) {
	if s.T+1.e-9 < fs.tStart {
		return
	}
	var (
		op = fs.op
	)
	if len(fs.times) == 0 {
		fs.itStart = s.It
	}
	fs.times = append(fs.times, s.T)
	fs.its = append(fs.its, int32(s.It))
	for _, key := range fs.keys {
		var a *mat.CDense
		if a, err = s.State.ComputeSpect(key); err != nil {
			return
		}
		g := op.GatherPhys(op.IFFT2D(a))
		if g == nil {
			continue
		}
		name := eigenmodeName(key)
		for iy := 0; iy < op.NY; iy += fs.sd {
			for ix := 0; ix < op.NX; ix += fs.sd {
				fs.arrays[name] = append(fs.arrays[name], g.At(iy, ix))
			}
		}
	}
	if len(fs.times) >= fs.NB {
		err = fs.flush()
	}
	return
}

// Finalize computes the frequency spectra of the files of the run. Collective.
func (fs *FrequencySpectra) Finalize(s timestepping.Sample) (err error) {
	if len(fs.Files) == 0 {
		return
	}
	var spectra []string
	err = coordinatorDo(fs.op.Comm, func() (err error) {
		for _, path := range fs.Files {
			var out string
			if out, err = computeFrequencySpectra(path); err != nil {
				return
			}
			spectra = append(spectra, out)
		}
		return
	})
	if err == nil {
		fs.Spectra = fs.op.Comm.Bcast(spectra, 0).([]string)
	}
	return
}

// flush writes the buffer and empties it. Collective.
func (fs *FrequencySpectra) flush() (err error) {
	path := filepath.Join(fs.Dir, TemporalDataName(fs.itStart))
	err = coordinatorDo(fs.op.Comm, func() (err error) {
		if err = os.MkdirAll(fs.Dir, 0o755); err != nil {
			return
		}
		return fs.write(path)
	})
	if err == nil {
		fs.Files = append(fs.Files, path)
	}
	fs.times, fs.its = fs.times[:0], fs.its[:0]
	for name := range fs.arrays {
		fs.arrays[name] = fs.arrays[name][:0]
	}
	return
}

func (fs *FrequencySpectra) coords() (x, y []float64) {
	for ix := 0; ix < fs.op.NX; ix += fs.sd {
		x = append(x, float64(ix)*fs.op.Dx)
	}
	for iy := 0; iy < fs.op.NY; iy += fs.sd {
		y = append(y, float64(iy)*fs.op.Dy)
	}
	return
}

func (fs *FrequencySpectra) write(path string) (err error) {
	var (
		x, y = fs.coords()
		ff   *os.File
		f    *cdf.File
	)
	h := cdf.NewHeader([]string{"time", "y", "x"}, []int{len(fs.times), fs.n0, fs.n1})
	h.AddAttribute("", "comment", "Linear eigenmodes on a decimated grid")
	h.AddAttribute("", "it_start", []int32{int32(fs.itStart)})
	h.AddAttribute("", "deltat", []float64{fs.period * float64(fs.decimate)})
	h.AddAttribute("", "spatial_decimate", []int32{int32(fs.sd)})
	h.AddVariable("times_arr", []string{"time"}, []float64{0})
	h.AddVariable("its_arr", []string{"time"}, []int32{0})
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddVariable("y", []string{"y"}, []float64{0})
	for _, key := range fs.keys {
		h.AddVariable("temp_arr_"+eigenmodeName(key), []string{"time", "y", "x"}, []float64{0})
	}
	if ff, f, err = createNCF(path, h); err != nil {
		return
	}
	err = writeNCF(f, "times_arr", fs.times)
	if err == nil {
		err = writeNCF(f, "its_arr", fs.its)
	}
	if err == nil {
		err = writeNCF(f, "x", x)
	}
	if err == nil {
		err = writeNCF(f, "y", y)
	}
	for _, key := range fs.keys {
		if err != nil {
			break
		}
		name := eigenmodeName(key)
		err = writeNCF(f, "temp_arr_"+name, fs.arrays[name])
	}
	if e := closeNCF(ff); err == nil {
		err = e
	}
	return
}

// TemporalData is the content of a temp_array file
type TemporalData struct {
	ItStart int
	DeltaT  float64 // Time between samples
	Times   []float64
	Its     []int
	X, Y    []float64
	Fields  map[string][]float64 // Samples are contiguous
}

// At returns sample i of a field as a len(Y) x len(X) array
func (td *TemporalData) At(name string, i int) *mat.Dense {
	size := len(td.Y) * len(td.X)
	return mat.NewDense(len(td.Y), len(td.X), td.Fields[name][i*size:(i+1)*size])
}

func LoadTemporalData(path string) (td *TemporalData, err error) {
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
	td = &TemporalData{Fields: make(map[string][]float64)}
	if td.ItStart, err = attrInt(f, "it_start"); err != nil {
		return
	}
	if td.DeltaT, err = attrFloat64(f, "deltat"); err != nil {
		return
	}
	if td.Times, err = readFloat64s(f, "times_arr"); err != nil {
		return
	}
	if its, err = readInt32s(f, "its_arr"); err != nil {
		return
	}
	for _, it := range its {
		td.Its = append(td.Its, int(it))
	}
	if td.X, err = readFloat64s(f, "x"); err != nil {
		return
	}
	if td.Y, err = readFloat64s(f, "y"); err != nil {
		return
	}
	for _, v := range f.Header.Variables() {
		if name, ok := strings.CutPrefix(v, "temp_arr_"); ok {
			if td.Fields[name], err = readFloat64s(f, v); err != nil {
				return
			}
		}
	}
	return
}

// periodogram is the two sided power spectrum of real series of one
// length. The mean is removed and a periodic Hann window applied, scaled so
// that a sinusoid of amplitude A puts A^2/4 on each of its two frequencies.
type periodogram struct {
	fft  *fourier.CmplxFFT
	w    []float64
	norm float64
	seq  []complex128
}

func newPeriodogram(n int) (pg *periodogram) {
	pg = &periodogram{
		fft: fourier.NewCmplxFFT(n),
		w:   make([]float64, n+1),
		seq: make([]complex128, n),
	}
	for i := range pg.w {
		pg.w[i] = 1
	}
	if n > 1 {
		// The periodic window of n points is the symmetric one of n+1
		window.Hann(pg.w)
	}
	pg.w = pg.w[:n]
	pg.norm = 1 / math.Pow(floats.Sum(pg.w), 2)
	return
}

func (pg *periodogram) apply(p, x []float64) {
	mean := floats.Sum(x) / float64(len(x))
	for i, v := range x {
		pg.seq[i] = complex((v-mean)*pg.w[i], 0)
	}
	pg.fft.Coefficients(pg.seq, pg.seq)
	for i, c := range pg.seq {
		p[i] = (real(c)*real(c) + imag(c)*imag(c)) * pg.norm
	}
}

// freqs are in the order of the coefficients, negative ones last
func (pg *periodogram) freqs(fs float64) (f []float64) {
	f = make([]float64, pg.fft.Len())
	for i := range f {
		f[i] = pg.fft.Freq(i) * fs
	}
	return
}

// Periodogram returns the two sided power spectrum of x sampled at the
// frequency fs
func Periodogram(x []float64, fs float64) (freqs, p []float64) {
	pg := newPeriodogram(len(x))
	p = make([]float64, len(x))
	pg.apply(p, x)
	freqs = pg.freqs(fs)
	return
}

// computeFrequencySpectra writes the periodogram of every point of a
// temp_array file next to it
func computeFrequencySpectra(path string) (out string, err error) {
	var (
		td *TemporalData
		ff *os.File
		f  *cdf.File
	)
	if td, err = LoadTemporalData(path); err != nil {
		return
	}
	var (
		nt    = len(td.Times)
		npts  = len(td.X) * len(td.Y)
		pg    = newPeriodogram(nt)
		x     = make([]float64, nt)
		p     = make([]float64, nt)
		names = make([]string, 0, len(td.Fields))
	)
	for name := range td.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	h := cdf.NewHeader([]string{"freq", "y", "x"}, []int{nt, len(td.Y), len(td.X)})
	h.AddAttribute("", "comment", "Frequency spectra of the linear eigenmodes")
	h.AddAttribute("", "it_start", []int32{int32(td.ItStart)})
	h.AddVariable("freqs", []string{"freq"}, []float64{0})
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddVariable("y", []string{"y"}, []float64{0})
	for _, name := range names {
		h.AddVariable("spectra_"+name, []string{"freq", "y", "x"}, []float64{0})
	}
	out = filepath.Join(filepath.Dir(path), FrequencySpectraName(td.ItStart))
	if ff, f, err = createNCF(out, h); err != nil {
		return
	}
	err = writeNCF(f, "freqs", pg.freqs(1/td.DeltaT))
	if err == nil {
		err = writeNCF(f, "x", td.X)
	}
	if err == nil {
		err = writeNCF(f, "y", td.Y)
	}
	for _, name := range names {
		if err != nil {
			break
		}
		var (
			field   = td.Fields[name]
			spectra = make([]float64, nt*npts)
		)
		for pt := 0; pt < npts; pt++ {
			for i := range x {
				x[i] = field[i*npts+pt]
			}
			pg.apply(p, x)
			for i, v := range p {
				spectra[i*npts+pt] = v
			}
		}
		err = writeNCF(f, "spectra_"+name, spectra)
	}
	if e := closeNCF(ff); err == nil {
		err = e
	}
	return
}

// ComputeFrequencySpectra computes the spectra of every temp_array file of a
// run directory, in the order of the steps
func ComputeFrequencySpectra(dir string) (files []string, err error) {
	var (
		entries []os.DirEntry
		its     []int
	)
	if entries, err = os.ReadDir(filepath.Join(dir, TemporalDataDir)); err != nil {
		return
	}
	for _, e := range entries {
		if m := temporalRE.FindStringSubmatch(e.Name()); m != nil {
			it, _ := strconv.Atoi(m[1])
			its = append(its, it)
		}
	}
	sort.Ints(its)
	for _, it := range its {
		var out string
		if out, err = computeFrequencySpectra(filepath.Join(dir, TemporalDataDir, TemporalDataName(it))); err != nil {
			return
		}
		files = append(files, out)
	}
	return
}

// FrequencySpectraFile is the content of a freq_spectra file
type FrequencySpectraFile struct {
	ItStart int
	Freqs   []float64
	X, Y    []float64
	Spectra map[string][]float64 // Frequencies are contiguous
}

// At returns the spectrum of a field at frequency index i as a len(Y) x
// len(X) array
func (sf *FrequencySpectraFile) At(name string, i int) *mat.Dense {
	size := len(sf.Y) * len(sf.X)
	return mat.NewDense(len(sf.Y), len(sf.X), sf.Spectra[name][i*size:(i+1)*size])
}

func LoadFrequencySpectra(path string) (sf *FrequencySpectraFile, err error) {
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
	sf = &FrequencySpectraFile{Spectra: make(map[string][]float64)}
	if sf.ItStart, err = attrInt(f, "it_start"); err != nil {
		return
	}
	if sf.Freqs, err = readFloat64s(f, "freqs"); err != nil {
		return
	}
	if sf.X, err = readFloat64s(f, "x"); err != nil {
		return
	}
	if sf.Y, err = readFloat64s(f, "y"); err != nil {
		return
	}
	for _, v := range f.Header.Variables() {
		if name, ok := strings.CutPrefix(v, "spectra_"); ok {
			if sf.Spectra[name], err = readFloat64s(f, v); err != nil {
				return
			}
		}
	}
	return
}
