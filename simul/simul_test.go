package simul

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/output"
	"github.com/notargets/gospectral/types"
	"github.com/notargets/gospectral/utils"
)

func simulParams(tEnd float64) (ip *InputParameters.Parameters) {
	ip = InputParameters.NewParameters()
	ip.Oper.NX, ip.Oper.NY = 16, 16
	ip.Oper.Lx, ip.Oper.Ly = 2*math.Pi, 2*math.Pi
	ip.Nu2 = 0.01
	ip.TimeStepping.USE_CFL = false
	ip.TimeStepping.DeltaT0 = 0.1
	ip.TimeStepping.DeltaTMax = 1
	ip.TimeStepping.TEnd = tEnd
	ip.Output.PeriodsPrint.PrintStdout = 0
	ip.Output.PeriodsSave.PhysFields = 0.5
	ip.ShortNameTypeRun = "test"
	return
}

func lastCheckpoint(t *testing.T, dir string) (cp *output.Checkpoint) {
	path, err := output.FindCheckpoint(dir, -1)
	require.NoError(t, err)
	cp, err = output.LoadCheckpoint(path)
	require.NoError(t, err)
	return
}

func assertSpectEqual(t *testing.T, a, b *mat.CDense, tol float64) {
	ra, rb := a.RawCMatrix().Data, b.RawCMatrix().Data
	require.Equal(t, len(ra), len(rb))
	for i := range ra {
		assert.InDelta(t, real(ra[i]), real(rb[i]), tol)
		assert.InDelta(t, imag(ra[i]), imag(rb[i]), tol)
	}
}

func TestSimulRun(t *testing.T) {
	var (
		ctx = context.Background()
	)
	{ // Test a complete run writes its directory and final checkpoint
		var (
			root = t.TempDir()
			buf  = new(bytes.Buffer)
		)
		res := Run(ctx, simulParams(1), 1, Options{ResultsDir: root, Out: buf})
		require.NoError(t, res.Err)
		assert.Equal(t, types.Completed, res.Status)
		assert.Equal(t, 10, res.It)
		assert.InDelta(t, 1, res.T, 1.e-10)
		assert.Equal(t, 0, ExitCode(res))
		assert.DirExists(t, res.PathRun)
		assert.FileExists(t, filepath.Join(res.PathRun, output.ParamsFile))
		assert.Contains(t, buf.String(), "[COMPLETED]")
		cp := lastCheckpoint(t, res.PathRun)
		assert.Equal(t, 10, cp.It)
		assert.Equal(t, "ns2d", cp.Solver)
	}
	{ // Test two ranks reproduce the serial run
		var (
			serial   = Run(ctx, simulParams(1), 1, Options{ResultsDir: t.TempDir(), Out: new(bytes.Buffer)})
			parallel = Run(ctx, simulParams(1), 2, Options{ResultsDir: t.TempDir(), Out: new(bytes.Buffer)})
		)
		require.NoError(t, serial.Err)
		require.NoError(t, parallel.Err)
		assert.Equal(t, serial.It, parallel.It)
		var (
			a = lastCheckpoint(t, serial.PathRun)
			b = lastCheckpoint(t, parallel.PathRun)
		)
		assertSpectEqual(t, a.Spect["rot_fft"], b.Spect["rot_fft"], 1.e-10)
	}
	{ // Test every solver variant runs a few steps
		for _, solver := range InputParameters.SolverNames {
			ip := simulParams(0.3)
			ip.Solver = solver
			ip.Output.HAS_TO_SAVE = false
			res := Run(ctx, ip, 1, Options{Out: new(bytes.Buffer)})
			require.NoError(t, res.Err, solver)
			assert.Equal(t, types.Completed, res.Status, solver)
			assert.Equal(t, 3, res.It, solver)
			assert.Empty(t, res.PathRun, solver)
		}
	}
	{ // Test a cancelled context truncates the run
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		ip := simulParams(1)
		ip.Output.HAS_TO_SAVE = false
		res := Run(cctx, ip, 1, Options{Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		assert.Equal(t, types.TruncatedByDeadline, res.Status)
		assert.Equal(t, 1, res.It)
		assert.Equal(t, 99, ExitCode(res))
	}
	{ // Test invalid parameters fail before running
		ip := simulParams(1)
		ip.Oper.NX = 15
		res := Run(ctx, ip, 1, Options{ResultsDir: t.TempDir()})
		assert.ErrorIs(t, res.Err, InputParameters.ErrInvalid)
		assert.Equal(t, types.Failed, res.Status)
		assert.Equal(t, 1, ExitCode(res))
	}
}

func TestExitCode(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, 0, ExitCode(Result{Status: types.Completed}))
	assert.Equal(t, 1, ExitCode(Result{Status: types.Failed}))
	assert.Equal(t, 1, ExitCode(Result{Status: types.Initialized}))
	assert.Equal(t, 99, ExitCode(Result{Status: types.TruncatedByDeadline, PathRun: dir}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, IdempotentMarker), nil, 0644))
	assert.Equal(t, 0, ExitCode(Result{Status: types.TruncatedByDeadline, PathRun: dir}))
	assert.Equal(t, 99, ExitCode(Result{Status: types.TruncatedByDeadline}))
}

func newSimul(t *testing.T, ip *InputParameters.Parameters) (sim *Simul) {
	ip.Output.HAS_TO_SAVE = false
	sim, err := New(ip, utils.NewSerialComm(), Options{Out: new(bytes.Buffer)})
	require.NoError(t, err)
	return
}

func TestInitFields(t *testing.T) {
	{ // Test the noise is scaled to the maximum velocity
		ip := simulParams(1)
		ip.InitFields.Noise.VeloMax = 2
		sim := newSimul(t, ip)
		ux, err := sim.State.ComputePhys("ux")
		require.NoError(t, err)
		uy, err := sim.State.ComputePhys("uy")
		require.NoError(t, err)
		assert.InDelta(t, 2, math.Max(sim.Op.MaxAbs(ux), sim.Op.MaxAbs(uy)), 1.e-10)
		assert.InDelta(t, 0, sim.Op.MeanPhys(ux), 1.e-12)
	}
	{ // Test the noise depends on the seed only
		var (
			a  = newSimul(t, simulParams(1))
			b  = newSimul(t, simulParams(1))
			ip = simulParams(1)
		)
		ip.InitFields.Seed = 3
		c := newSimul(t, ip)
		assertSpectEqual(t, a.State.Spect("rot_fft"), b.State.Spect("rot_fft"), 0)
		assert.NotEqual(t, a.State.Spect("rot_fft").At(1, 1), c.State.Spect("rot_fft").At(1, 1))
	}
	{ // Test the dipole has zero circulation and is antisymmetric in x
		ip := simulParams(1)
		ip.InitFields.Type = "dipole"
		sim := newSimul(t, ip)
		rot, err := sim.State.ComputePhys("rot")
		require.NoError(t, err)
		assert.InDelta(t, 0, sim.Op.MeanPhys(rot), 1.e-10)
		ux, err := sim.State.ComputePhys("ux")
		require.NoError(t, err)
		uy, err := sim.State.ComputePhys("uy")
		require.NoError(t, err)
		assert.InDelta(t, 1, math.Max(sim.Op.MaxAbs(ux), sim.Op.MaxAbs(uy)), 1.e-10)
		var (
			nx = sim.Op.NX
			iy = sim.Op.NY / 2
		)
		for ix := 1; ix < nx/2; ix++ {
			assert.InDelta(t, rot.At(iy, nx/2-ix), -rot.At(iy, nx/2+ix), 1.e-10)
		}
	}
	{ // Test the constant init sets the mean mode only
		ip := simulParams(1)
		ip.InitFields.Type = "constant"
		ip.InitFields.Constant.Value = 0.5
		sim := newSimul(t, ip)
		rot, err := sim.State.ComputePhys("rot")
		require.NoError(t, err)
		for _, v := range rot.RawMatrix().Data {
			assert.InDelta(t, 0.5, v, 1.e-12)
		}
	}
	{ // Test a checkpoint on another grid is refused
		res := Run(context.Background(), simulParams(0.5), 1,
			Options{ResultsDir: t.TempDir(), Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		ip := simulParams(1)
		ip.Oper.NX, ip.Oper.NY = 32, 32
		ip.InitFields.Type = "from_file"
		ip.InitFields.FromFile = InputParameters.FromFile{Path: res.PathRun, TApprox: -1}
		ip.Output.HAS_TO_SAVE = false
		_, err := New(ip, utils.NewSerialComm(), Options{Out: new(bytes.Buffer)})
		assert.ErrorIs(t, err, InputParameters.ErrInvalid)
		ip.InitFields.FromFile.Path = filepath.Join(res.PathRun, "missing")
		_, err = New(ip, utils.NewSerialComm(), Options{Out: new(bytes.Buffer)})
		assert.Error(t, err)
	}
}

func TestRestart(t *testing.T) {
	var (
		ctx = context.Background()
	)
	full := Run(ctx, simulParams(1), 1, Options{ResultsDir: t.TempDir(), Out: new(bytes.Buffer)})
	require.NoError(t, full.Err)
	half := Run(ctx, simulParams(0.5), 1, Options{ResultsDir: t.TempDir(), Out: new(bytes.Buffer)})
	require.NoError(t, half.Err)
	require.Equal(t, 5, half.It)
	{ // Test conflicting end options are refused
		_, _, err := RestartParams(RestartOptions{Path: half.PathRun, TApprox: -1, TEnd: 1, AddToTEnd: 1})
		assert.ErrorIs(t, err, ErrRestartOptions)
	}
	{ // Test only checking the restart does not run it
		res := Restart(ctx, RestartOptions{Path: half.PathRun, TApprox: -1, AddToTEnd: 0.5, OnlyCheck: true},
			1, Options{Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		assert.Equal(t, types.Initialized, res.Status)
		assert.Equal(t, half.PathRun, res.PathRun)
		path, err := output.FindCheckpoint(half.PathRun, -1)
		require.NoError(t, err)
		assert.Equal(t, output.CheckpointName(0.5, 5), filepath.Base(path))
	}
	{ // Test initializing from the checkpoint leaves the run directory as is
		entries, err := os.ReadDir(half.PathRun)
		require.NoError(t, err)
		res := Restart(ctx, RestartOptions{Path: half.PathRun, TApprox: -1, OnlyInit: true},
			2, Options{Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		assert.Equal(t, types.Initialized, res.Status)
		assert.InDelta(t, 0.5, res.T, 1.e-12)
		assert.Equal(t, 5, res.It)
		assert.Equal(t, half.PathRun, res.PathRun)
		after, err := os.ReadDir(half.PathRun)
		require.NoError(t, err)
		assert.Equal(t, len(entries), len(after))
	}
	{ // Test the end options of the restarted parameters
		ip, dir, err := RestartParams(RestartOptions{Path: half.PathRun, TApprox: -1, AddToItEnd: 3})
		require.NoError(t, err)
		assert.Equal(t, half.PathRun, dir)
		// The offsets are added to the saved end of the run
		assert.True(t, ip.TimeStepping.USE_T_END)
		assert.Equal(t, 13, ip.TimeStepping.ItEnd)
		assert.Equal(t, 0.5, ip.TimeStepping.TEnd)
		assert.Equal(t, "from_file", ip.InitFields.Type)
		ip, _, err = RestartParams(RestartOptions{Path: half.PathRun, TApprox: -1, AddToTEnd: 0.5})
		require.NoError(t, err)
		assert.InDelta(t, 1, ip.TimeStepping.TEnd, 1.e-12)
		ip, _, err = RestartParams(RestartOptions{Path: half.PathRun, TApprox: -1, ItEnd: 7})
		require.NoError(t, err)
		assert.False(t, ip.TimeStepping.USE_T_END)
		assert.Equal(t, 7, ip.TimeStepping.ItEnd)
		ip, _, err = RestartParams(RestartOptions{Path: half.PathRun, TApprox: -1, TEnd: 3, MaxElapsed: "01:00:00"})
		require.NoError(t, err)
		assert.True(t, ip.TimeStepping.USE_T_END)
		assert.Equal(t, 3., ip.TimeStepping.TEnd)
		assert.Equal(t, "01:00:00", ip.TimeStepping.MaxElapsed)
	}
	{ // Test a restarted run reproduces the uninterrupted run
		res := Restart(ctx, RestartOptions{Path: half.PathRun, TApprox: -1, AddToTEnd: 0.5},
			1, Options{Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		assert.Equal(t, types.Completed, res.Status)
		assert.Equal(t, 10, res.It)
		assert.Equal(t, half.PathRun, res.PathRun)
		var (
			a = lastCheckpoint(t, full.PathRun)
			b = lastCheckpoint(t, half.PathRun)
		)
		assert.Equal(t, a.It, b.It)
		assert.InDelta(t, a.T, b.T, 1.e-10)
		assertSpectEqual(t, a.Spect["rot_fft"], b.Spect["rot_fft"], 1.e-10)
	}
	{ // Test relaunching a finished run leaves it as is
		res := Restart(ctx, RestartOptions{Path: half.PathRun, TApprox: -1},
			1, Options{Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		assert.Equal(t, types.Completed, res.Status)
		assert.Equal(t, 10, res.It)
	}
	{ // Test a restart in a new directory on two ranks
		root := t.TempDir()
		res := Restart(ctx, RestartOptions{Path: half.PathRun, TApprox: 0.7, TEnd: 1, NewDirResults: true},
			2, Options{ResultsDir: root, Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		assert.Equal(t, types.Completed, res.Status)
		rel, err := filepath.Rel(root, res.PathRun)
		require.NoError(t, err)
		assert.NotContains(t, rel, "..")
		b := lastCheckpoint(t, res.PathRun)
		assert.Equal(t, 10, b.It)
		assertSpectEqual(t, lastCheckpoint(t, full.PathRun).Spect["rot_fft"], b.Spect["rot_fft"], 1.e-10)
	}
	{ // Test a run cancelled on two ranks restarts to the uninterrupted result
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		cut := Run(cctx, simulParams(1), 2, Options{ResultsDir: t.TempDir(), Out: new(bytes.Buffer)})
		require.NoError(t, cut.Err)
		assert.Equal(t, types.TruncatedByDeadline, cut.Status)
		assert.Equal(t, 1, cut.It)
		assert.Equal(t, 99, ExitCode(cut))
		assert.Equal(t, 1, lastCheckpoint(t, cut.PathRun).It)
		ip, _, err := RestartParams(RestartOptions{Path: cut.PathRun, TApprox: -1, AddToTEnd: 0.5})
		require.NoError(t, err)
		assert.InDelta(t, 1.5, ip.TimeStepping.TEnd, 1.e-12)
		res := Restart(ctx, RestartOptions{Path: cut.PathRun, TApprox: -1}, 2, Options{Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		assert.Equal(t, types.Completed, res.Status)
		assert.Equal(t, 10, res.It)
		assert.Equal(t, 0, ExitCode(res))
		b := lastCheckpoint(t, cut.PathRun)
		assert.Equal(t, 10, b.It)
		assertSpectEqual(t, lastCheckpoint(t, full.PathRun).Spect["rot_fft"], b.Spect["rot_fft"], 1.e-10)
	}
}

func spectraParams(t *testing.T, tEnd float64, nb int) (ip *InputParameters.Parameters) {
	ip = simulParams(tEnd)
	op, err := operators.NewOperators2D(ip.Oper.NX, ip.Oper.NY, ip.Oper.Lx, ip.Oper.Ly,
		ip.Oper.CoefDealiasing, utils.NewSerialComm())
	require.NoError(t, err)
	ip.Output.PeriodsSave.SpectraMultiDim = 0.1
	ip.Output.SpectraMultiDim.SizeMaxFile = (float64(nb) + 0.5) * float64(output.SpectraBytesPerSample(op)) /
		(1024 * 1024)
	return
}

func TestRestartWithSpectra(t *testing.T) {
	var (
		ctx   = context.Background()
		files = func(dir string) []string {
			names, err := filepath.Glob(filepath.Join(dir, "spectra_multidim_it=*.nc"))
			require.NoError(t, err)
			return names
		}
	)
	{ // Test relaunching a finished run with spectra leaves it as is
		first := Run(ctx, spectraParams(t, 1, 3), 1, Options{ResultsDir: t.TempDir(), Out: new(bytes.Buffer)})
		require.NoError(t, first.Err)
		require.Equal(t, types.Completed, first.Status)
		// Three full files and the partial one written at the end
		assert.Len(t, files(first.PathRun), 4)
		res := Restart(ctx, RestartOptions{Path: first.PathRun, TApprox: -1}, 1, Options{Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		assert.Equal(t, types.Completed, res.Status)
		assert.Equal(t, 10, res.It)
		assert.Equal(t, 0, ExitCode(res))
		assert.Len(t, files(first.PathRun), 4)
	}
	{ // Test a restart with less time left than a file spans
		part := Run(ctx, spectraParams(t, 0.8, 3), 1, Options{ResultsDir: t.TempDir(), Out: new(bytes.Buffer)})
		require.NoError(t, part.Err)
		require.Equal(t, 8, part.It)
		res := Restart(ctx, RestartOptions{Path: part.PathRun, TApprox: -1, AddToTEnd: 0.2},
			1, Options{Out: new(bytes.Buffer)})
		require.NoError(t, res.Err)
		assert.Equal(t, types.Completed, res.Status)
		assert.Equal(t, 10, res.It)
		sf, err := output.LoadSpectraMultiDim(filepath.Join(part.PathRun, "spectra_multidim_it=9.nc"))
		require.NoError(t, err)
		assert.Equal(t, []int{9, 10}, sf.Its)
	}
	{ // Test a file longer than the whole run is refused
		res := Run(ctx, spectraParams(t, 1, 11), 1, Options{ResultsDir: t.TempDir(), Out: new(bytes.Buffer)})
		assert.ErrorIs(t, res.Err, output.ErrBufferUnreachable)
		assert.Equal(t, 1, ExitCode(res))
	}
}
