package simul

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/forcing"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/output"
	"github.com/notargets/gospectral/state"
	"github.com/notargets/gospectral/timestepping"
	"github.com/notargets/gospectral/types"
	"github.com/notargets/gospectral/utils"
)

// IdempotentMarker in a run directory tells the job system not to relaunch
// a truncated run
const IdempotentMarker = "IDEMPOTENT_NO_RELAUNCH"

type Options struct {
	ResultsDir string    // Root of the run directories
	Dir        string    // Existing run directory to append to, empty for a new one
	Out        io.Writer // Progress lines, stdout when nil
}

// Simul is one rank of a simulation
type Simul struct {
	Params  *InputParameters.Parameters
	Op      *operators.Operators2D
	Solver  model_problems.Solver
	State   *state.State
	Forcing *forcing.Forcing
	Stepper *timestepping.Stepper
	Output  *output.Output
	Dir     string
	restart *restartPoint
}

// New assembles a simulation from its parameters. Collective.
func New(ip *InputParameters.Parameters, comm *utils.Comm, opts Options) (sim *Simul, err error) {
	if err = ip.Validate(); err != nil {
		return
	}
	sim = &Simul{Params: ip}
	oper := ip.Oper
	if sim.Op, err = operators.NewOperators2D(oper.NX, oper.NY, oper.Lx, oper.Ly, oper.CoefDealiasing, comm); err != nil {
		return
	}
	if sim.Solver, err = NewSolver(sim.Op, ip); err != nil {
		return
	}
	if sim.State, err = state.New(sim.Solver.Info(), sim.Op, sim.Solver.Relations(), sim.Solver.SpectFromPhys()); err != nil {
		return
	}
	if ip.Forcing.Enable {
		if sim.Forcing, err = forcing.NewForcing(sim.Op, sim.Solver, ip.Forcing); err != nil {
			return
		}
	}
	if err = sim.initFields(); err != nil {
		return
	}
	if sim.Stepper, err = timestepping.NewStepper(sim.Solver, sim.State, sim.Forcing, ip); err != nil {
		return
	}
	if sim.restart != nil {
		sim.Stepper.Restore(sim.restart.T, sim.restart.DeltaT, sim.restart.It)
	}
	if ip.Output.HAS_TO_SAVE {
		if sim.Dir = opts.Dir; sim.Dir == "" {
			if sim.Dir, err = output.NewRunDir(comm, opts.ResultsDir, ip); err != nil {
				return
			}
		}
	}
	if sim.Output, err = output.NewOutput(sim.Solver, sim.Op, ip, sim.Dir, opts.Out); err != nil {
		return
	}
	for _, o := range sim.Output.Observers() {
		sim.Stepper.AddObserver(o)
	}
	return
}

// Run advances the simulation to its end condition. Collective.
func (sim *Simul) Run(ctx context.Context) (status types.RunStatus, err error) {
	sim.Output.PrintStdOut.PrintInitialization(sim.Params, sim.Stepper.Sample())
	status, err = sim.Stepper.Run(ctx)
	err = multierr.Append(err, sim.Output.Close())
	return
}

type Result struct {
	Status  types.RunStatus
	Err     error
	T       float64
	It      int
	PathRun string
}

// Run runs the simulation on nproc ranks and reports the coordinator's
// view of the outcome
func Run(ctx context.Context, ip *InputParameters.Parameters, nproc int, opts Options) (res Result) {
	var (
		results = make([]Result, nproc)
	)
	errs := utils.NewGroup(nproc).Run(func(c *utils.Comm) (err error) {
		var sim *Simul
		if sim, err = New(ip, c, opts); err != nil {
			return
		}
		r := &results[c.Rank()]
		r.Status, r.Err = sim.Run(ctx)
		r.T, r.It, r.PathRun = sim.Stepper.T, sim.State.It, sim.Dir
		return r.Err
	})
	res = results[0]
	if err := utils.FirstError(errs); err != nil {
		res.Status, res.Err = types.Failed, err
	}
	return
}

// ExitCode maps a result on the exit status expected by job systems
func ExitCode(res Result) int {
	switch res.Status {
	case types.Completed:
		return 0
	case types.TruncatedByDeadline:
		if res.PathRun != "" {
			if _, err := os.Stat(filepath.Join(res.PathRun, IdempotentMarker)); err == nil {
				return 0
			}
		}
		return 99
	}
	return 1
}

/*
	RestartOptions adjust a run restarted from one of its checkpoints. TEnd
	and ItEnd replace the saved end of the run, AddToTEnd and AddToItEnd are
	added to it. Zero values keep the saved parameters.
*/
type RestartOptions struct {
	Path          string  // Run directory or checkpoint file
	TApprox       float64 // Negative selects the latest checkpoint
	TEnd          float64
	ItEnd         int
	AddToTEnd     float64
	AddToItEnd    int
	MaxElapsed    string
	OnlyCheck     bool // Check the restart without running it
	OnlyInit      bool // Initialize the simulation without stepping it
	NewDirResults bool // Write in a new run directory
}

var ErrRestartOptions = errors.New("simul: conflicting restart options")

// RestartParams reads the parameters saved in the run directory and sets
// them up to continue from the selected checkpoint
func RestartParams(ro RestartOptions) (ip *InputParameters.Parameters, dir string, err error) {
	var (
		fi   os.FileInfo
		path = ro.Path
	)
	if (ro.TEnd > 0 && ro.AddToTEnd > 0) || (ro.ItEnd > 0 && ro.AddToItEnd > 0) {
		err = ErrRestartOptions
		return
	}
	if fi, err = os.Stat(path); err != nil {
		return
	}
	dir = path
	if fi.IsDir() {
		if path, err = output.FindCheckpoint(dir, ro.TApprox); err != nil {
			return
		}
	} else {
		dir = filepath.Dir(path)
	}
	if ip, err = output.LoadParams(dir); err != nil {
		return
	}
	var cp *output.Checkpoint
	if cp, err = output.LoadCheckpointInfo(path); err != nil {
		return
	}
	ts := &ip.TimeStepping
	ts.TEnd += ro.AddToTEnd
	ts.ItEnd += ro.AddToItEnd
	if ro.TEnd > 0 {
		ts.USE_T_END, ts.TEnd = true, ro.TEnd
	}
	if ro.ItEnd > 0 {
		ts.USE_T_END, ts.ItEnd = false, ro.ItEnd
	}
	if ro.MaxElapsed != "" {
		ts.MaxElapsed = ro.MaxElapsed
	}
	if ro.OnlyCheck || ro.OnlyInit {
		ip.Output.HAS_TO_SAVE = false
	}
	ip.InitFields.Type = types.InitFromFile.Print()
	ip.InitFields.FromFile = InputParameters.FromFile{Path: path, TApprox: cp.T}
	err = ip.Validate()
	return
}

/*
	Restart continues a saved run, in its own directory unless NewDirResults.
	With OnlyInit the simulation is built from the checkpoint on every rank
	and left Initialized without stepping.
*/
func Restart(ctx context.Context, ro RestartOptions, nproc int, opts Options) (res Result) {
	ip, dir, err := RestartParams(ro)
	if err != nil {
		res.Status, res.Err = types.Failed, err
		return
	}
	res.PathRun = dir
	switch {
	case ro.OnlyCheck:
		res.Status = types.Initialized
		return
	case ro.OnlyInit:
		return initOnly(ip, nproc, opts, dir)
	}
	if !ro.NewDirResults {
		opts.Dir = dir
	}
	return Run(ctx, ip, nproc, opts)
}

// initOnly builds the simulation on every rank and reports its position
func initOnly(ip *InputParameters.Parameters, nproc int, opts Options, dir string) (res Result) {
	var (
		results = make([]Result, nproc)
	)
	errs := utils.NewGroup(nproc).Run(func(c *utils.Comm) (err error) {
		var sim *Simul
		if sim, err = New(ip, c, opts); err != nil {
			return
		}
		results[c.Rank()] = Result{Status: sim.Stepper.Status, T: sim.Stepper.T, It: sim.State.It, PathRun: dir}
		return sim.Output.Close()
	})
	res = results[0]
	if err := utils.FirstError(errs); err != nil {
		res.Status, res.Err = types.Failed, err
	}
	return
}
