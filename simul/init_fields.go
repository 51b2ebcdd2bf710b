package simul

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/output"
	"github.com/notargets/gospectral/types"
)

// restartPoint is the position of the run read from a checkpoint
type restartPoint struct {
	T, DeltaT float64
	It        int
	Path      string
}

func (sim *Simul) initFields() (err error) {
	var (
		it   types.InitType
		init = sim.Params.InitFields
	)
	if it, err = types.NewInitType(init.Type); err != nil {
		return
	}
	switch it {
	case types.InitNoise:
		return sim.Solver.InitFromRotFFT(sim.State, sim.noiseRotFFT())
	case types.InitDipole:
		return sim.Solver.InitFromRotFFT(sim.State, sim.dipoleRotFFT())
	case types.InitConstant:
		fields := make(map[string]*mat.CDense)
		for _, key := range sim.State.Info.KeysStateSpect {
			fields[key] = sim.Op.NewSpect()
			if sim.Op.IKX0 == 0 {
				fields[key].Set(0, 0, complex(init.Constant.Value, 0))
			}
		}
		return sim.State.InitFromSpect(fields)
	case types.InitFromFile:
		return sim.initFromFile(init.FromFile)
	}
	return
}

func (sim *Simul) noiseLength() float64 {
	if l := sim.Params.InitFields.Noise.Length; l > 0 {
		return l
	}
	return sim.Op.Lx / 8
}

// noiseRotFFT is the vorticity of a random velocity smoothed at the noise
// length, scaled to velo_max. Collective.
func (sim *Simul) noiseRotFFT() (rot *mat.CDense) {
	var (
		op   = sim.Op
		seed = uint64(sim.Params.InitFields.Seed)
		kc   = 2 * math.Pi / sim.noiseLength()
		ux   = op.FFT2D(op.RandomPhys(2 * seed))
		uy   = op.FFT2D(op.RandomPhys(2*seed + 1))
		k2   = op.K2.RawMatrix().Data
	)
	for _, u := range []*mat.CDense{ux, uy} {
		d := u.RawCMatrix().Data
		for i := range d {
			d[i] *= complex(math.Exp(-k2[i]/(kc*kc)), 0)
		}
		op.Dealias(u)
	}
	rot = op.RotFFTFromVecFFT(ux, uy)
	sim.scaleToVeloMax(rot)
	return
}

// dipoleRotFFT is a pair of opposite Gaussian vortices moving along y,
// scaled to velo_max. Collective.
func (sim *Simul) dipoleRotFFT() (rot *mat.CDense) {
	var (
		op    = sim.Op
		sigma = sim.noiseLength() / 2
		x0    = op.Lx / 2
		y0    = op.Ly / 2
		phys  = op.NewPhys()
	)
	periodic := func(d, L float64) float64 {
		return d - L*math.Round(d/L)
	}
	for iy := 0; iy < op.NYLoc; iy++ {
		dy := periodic(op.YCoord(iy)-y0, op.Ly)
		for ix := 0; ix < op.NX; ix++ {
			var (
				dx1 = periodic(op.XCoord(ix)-(x0-sigma), op.Lx)
				dx2 = periodic(op.XCoord(ix)-(x0+sigma), op.Lx)
				r1  = (dx1*dx1 + dy*dy) / (sigma * sigma)
				r2  = (dx2*dx2 + dy*dy) / (sigma * sigma)
			)
			phys.Set(iy, ix, math.Exp(-r1)-math.Exp(-r2))
		}
	}
	rot = op.FFT2D(phys)
	op.Dealias(rot)
	sim.scaleToVeloMax(rot)
	return
}

func (sim *Simul) scaleToVeloMax(rot *mat.CDense) {
	var (
		op     = sim.Op
		ux, uy = op.VecFFTFromRotFFT(rot)
		umax   = math.Max(op.MaxAbs(op.IFFT2D(ux)), op.MaxAbs(op.IFFT2D(uy)))
	)
	if umax == 0 {
		return
	}
	scale := complex(sim.Params.InitFields.Noise.VeloMax/umax, 0)
	d := rot.RawCMatrix().Data
	for i := range d {
		d[i] *= scale
	}
}

// checkpointMeta is what every rank needs to scatter a checkpoint read by
// the coordinator
type checkpointMeta struct {
	Point restartPoint
	Keys  []string
	Err   error
}

// initFromFile loads a checkpoint on the coordinator and scatters the
// spectral state. The position of the run is restored. Collective.
func (sim *Simul) initFromFile(ff InputParameters.FromFile) (err error) {
	var (
		op   = sim.Op
		cp   *output.Checkpoint
		meta checkpointMeta
	)
	if op.Comm.IsCoordinator() {
		cp, meta = sim.loadCheckpoint(ff)
	}
	meta = op.Comm.Bcast(meta, 0).(checkpointMeta)
	if meta.Err != nil {
		return meta.Err
	}
	fields := make(map[string]*mat.CDense, len(meta.Keys))
	for _, key := range meta.Keys {
		var global *mat.CDense
		if cp != nil {
			global = cp.Spect[key]
		}
		fields[key] = op.ScatterSpect(global)
	}
	if err = sim.State.InitFromSpect(fields); err != nil {
		return
	}
	sim.restart = &meta.Point
	return
}

func (sim *Simul) loadCheckpoint(ff InputParameters.FromFile) (cp *output.Checkpoint, meta checkpointMeta) {
	var (
		path = ff.Path
		fi   os.FileInfo
		err  error
	)
	defer func() { meta.Err = err }()
	if fi, err = os.Stat(path); err != nil {
		return
	}
	if fi.IsDir() {
		if path, err = output.FindCheckpoint(path, ff.TApprox); err != nil {
			return
		}
	}
	if cp, err = output.LoadCheckpoint(path); err != nil {
		return
	}
	var (
		info = sim.State.Info
		op   = sim.Op
	)
	if cp.Solver != info.Name || cp.NX != op.NX || cp.NY != op.NY {
		err = fmt.Errorf("%w: checkpoint %s holds %s on %d x %d, the run is %s on %d x %d",
			InputParameters.ErrInvalid, path, cp.Solver, cp.NX, cp.NY, info.Name, op.NX, op.NY)
		return
	}
	for _, key := range info.KeysStateSpect {
		if _, ok := cp.Spect[key]; !ok {
			err = fmt.Errorf("checkpoint %s misses %s", path, key)
			return
		}
	}
	meta.Keys = info.KeysStateSpect
	meta.Point = restartPoint{T: cp.T, DeltaT: cp.DeltaT, It: cp.It, Path: path}
	return
}
