package timestepping

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/forcing"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/state"
	"github.com/notargets/gospectral/types"
	"github.com/notargets/gospectral/utils"
)

var ErrNonFinite = errors.New("timestepping: non-finite values in the state")

// Sample is the read only view handed to observers between steps
type Sample struct {
	T, DeltaT float64
	It        int
	Status    types.RunStatus
	Elapsed   time.Duration
	State     *state.State
	Forcing   *forcing.Forcing // nil without forcing
}

/*
	Observer is sampled by the stepper every Period of simulation time, once
	Decimate periods have accumulated since its last sample. A zero period
	disables the sampling. Finalize is called once when the run stops.
*/
type Observer interface {
	Period() float64
	Decimate() int
	OnSample(s Sample) error
	Finalize(s Sample) error
}

type observerSlot struct {
	Observer
	tLast float64
}

type Stepper struct {
	Solver     model_problems.Solver
	State      *state.State
	Forcing    *forcing.Forcing
	Params     InputParameters.TimeStepping
	Scheme     types.TimeScheme
	T, DeltaT  float64
	Status     types.RunStatus
	MaxElapsed time.Duration
	Margin     time.Duration
	Clock      func() time.Time
	Err        error // Reason of a failure
	start      time.Time
	elapsed    time.Duration
	rk         *rungeKutta
	observers  []*observerSlot
}

func NewStepper(sv model_problems.Solver, s *state.State, f *forcing.Forcing, ip *InputParameters.Parameters) (st *Stepper, err error) {
	var (
		tp = ip.TimeStepping
	)
	st = &Stepper{
		Solver:  sv,
		State:   s,
		Forcing: f,
		Params:  tp,
		DeltaT:  tp.DeltaT0,
		Clock:   time.Now,
		Margin:  ip.MaxElapsedMarginDuration(),
	}
	if st.Scheme, err = types.NewTimeScheme(tp.TypeTimeScheme); err != nil {
		return
	}
	if st.MaxElapsed, err = ip.MaxElapsedDuration(); err != nil {
		return
	}
	if tp.DeltaTMax <= 0 || (!tp.USE_CFL && tp.DeltaT0 <= 0) {
		err = fmt.Errorf("%w: deltat0 %g and deltat_max %g must be positive", InputParameters.ErrInvalid,
			tp.DeltaT0, tp.DeltaTMax)
		return
	}
	fd := DissipationFrequencies(s.Oper.K2, ip.Nu2, ip.Nu4, ip.Nu8, ip.NuM4)
	st.rk = newRungeKutta(st.Scheme, s.Info.KeysStateSpect, fd, s.Oper.NewSpect)
	return
}

// Restore positions the stepper on a restarted state
func (st *Stepper) Restore(t, dt float64, it int) {
	st.T, st.State.It = t, it
	if dt > 0 {
		st.DeltaT = dt
	}
}

// AddObserver registers o with its last sample on the period grid at or
// before the current time, so that a restarted run samples the same times
func (st *Stepper) AddObserver(o Observer) {
	slot := &observerSlot{Observer: o, tLast: st.T}
	if P := o.Period(); P > 0 {
		slot.tLast = P * math.Floor(st.T/P+1.e-9)
	}
	st.observers = append(st.observers, slot)
}

func (st *Stepper) Sample() Sample {
	return Sample{
		T:       st.T,
		DeltaT:  st.DeltaT,
		It:      st.State.It,
		Status:  st.Status,
		Elapsed: st.elapsed,
		State:   st.State,
		Forcing: st.Forcing,
	}
}

func (st *Stepper) tEndTolerance() float64 {
	return 1.e-10 * math.Max(1, math.Abs(st.Params.TEnd))
}

// ComputeDeltaT returns the step size for the next step. Collective.
func (st *Stepper) ComputeDeltaT() (dt float64, err error) {
	var (
		tp = st.Params
		op = st.State.Oper
	)
	dt = tp.DeltaT0
	if tp.USE_CFL {
		var (
			ux, uy *mat.Dense
		)
		if ux, err = st.State.ComputePhys("ux"); err != nil {
			return
		}
		if uy, err = st.State.ComputePhys("uy"); err != nil {
			return
		}
		var (
			c     = st.Solver.MaxWaveSpeed()
			speed = op.MaxAbs(ux)/op.Dx + op.MaxAbs(uy)/op.Dy + c/op.Dx + c/op.Dy +
				st.Solver.MaxLinearFrequency()
		)
		dt = tp.DeltaTMax
		if speed > 0 {
			dt = tp.CFL / speed
		}
	}
	dt = math.Min(dt, tp.DeltaTMax)
	if tp.USE_T_END && st.T+dt > tp.TEnd+st.tEndTolerance() {
		dt = tp.TEnd - st.T
	}
	return
}

// tendencies is the explicit right hand side of a stage, forcing included
func (st *Stepper) tendencies(spect, tend map[string]*mat.CDense) (err error) {
	if err = st.Solver.TendenciesNonlinear(spect, tend); err != nil {
		return
	}
	var (
		fk map[string]*mat.CDense
	)
	if st.Forcing != nil {
		fk = st.Forcing.Get()
	}
	for k, t := range tend {
		if f, ok := fk[k]; ok {
			td, fd := t.RawCMatrix().Data, f.RawCMatrix().Data
			for i := range td {
				td[i] += fd[i]
			}
		}
		st.State.Oper.Dealias(t)
	}
	return
}

// OneTimeStep advances the state by one accepted step. Collective.
func (st *Stepper) OneTimeStep() (err error) {
	var (
		dt float64
	)
	if dt, err = st.ComputeDeltaT(); err != nil {
		return
	}
	if !(dt > 0) {
		err = fmt.Errorf("step size %g at t = %g is not positive", dt, st.T)
		return
	}
	st.DeltaT = dt
	if st.Forcing != nil {
		st.Forcing.Compute(st.T, st.State.It, dt)
	}
	if err = st.rk.Step(st.State.StateSpect(), dt, st.tendencies); err != nil {
		return
	}
	st.State.CommitStep()
	st.T += dt
	return
}

// IsNotFinite is agreed over the process group. Collective.
func (st *Stepper) IsNotFinite() bool {
	var local float64
	for _, a := range st.State.StateSpect() {
		if utils.IsNotFinite(a.RawCMatrix().Data) {
			local = 1
			break
		}
	}
	return st.State.Oper.Comm.AllReduceMax(local) > 0
}

// CheckIfFinished applies the end conditions after a step: the end time or
// step count, then the wall clock budget. Collective.
func (st *Stepper) CheckIfFinished(ctx context.Context) (finished bool, status types.RunStatus) {
	if st.reachedEnd() {
		return true, types.Completed
	}
	var stop float64
	if st.MaxElapsed > 0 && st.elapsed >= st.MaxElapsed-st.Margin {
		stop = 1
	}
	if ctx != nil && ctx.Err() != nil {
		stop = 1
	}
	// Every process stops on the same step
	if st.State.Oper.Comm.AllReduceMax(stop) > 0 {
		return true, types.TruncatedByDeadline
	}
	return
}

func (st *Stepper) reachedEnd() bool {
	tp := st.Params
	if tp.USE_T_END {
		return st.T >= tp.TEnd-st.tEndTolerance()
	}
	return st.State.It >= tp.ItEnd
}

func (st *Stepper) notifyObservers() (err error) {
	sample := st.Sample()
	for _, o := range st.observers {
		P := o.Period()
		if P <= 0 {
			continue
		}
		n := int(math.Floor((st.T-o.tLast)/P + 1.e-9))
		if n >= max(o.Decimate(), 1) {
			o.tLast = st.T
			if err = o.OnSample(sample); err != nil {
				return
			}
		}
	}
	return
}

func (st *Stepper) finalizeObservers() (err error) {
	sample := st.Sample()
	for _, o := range st.observers {
		err = multierr.Append(err, o.Finalize(sample))
	}
	return
}

/*
	Run advances the state until an end condition. A run that already reached
	its end returns Completed without stepping, so that relaunching a finished
	run does not advance it twice. Collective.
*/
func (st *Stepper) Run(ctx context.Context) (status types.RunStatus, err error) {
	switch {
	case st.Status == types.Completed || st.Status == types.Failed:
		return st.Status, st.Err
	case st.reachedEnd():
		st.Status = types.Completed
		return st.Status, nil
	}
	st.Status = types.Running
	st.start = st.Clock()
	for {
		if err = st.OneTimeStep(); err != nil {
			st.Status = types.Failed
			break
		}
		st.elapsed = st.Clock().Sub(st.start)
		if st.IsNotFinite() {
			st.Status = types.Failed
			err = fmt.Errorf("%w at t = %g, it = %d", ErrNonFinite, st.T, st.State.It)
			break
		}
		if err = st.notifyObservers(); err != nil {
			st.Status = types.Failed
			break
		}
		var finished bool
		if finished, status = st.CheckIfFinished(ctx); finished {
			st.Status = status
			break
		}
	}
	st.Err = multierr.Append(err, st.finalizeObservers())
	status, err = st.Status, st.Err
	return
}
