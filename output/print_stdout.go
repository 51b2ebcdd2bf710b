package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/state"
	"github.com/notargets/gospectral/timestepping"
	"github.com/notargets/gospectral/utils"
)

// PrintStdOut prints the progress of the run on the coordinator, and copies
// it to stdout.txt when the run saves
type PrintStdOut struct {
	period  float64
	solver  model_problems.Solver
	op      *operators.Operators2D
	w       io.Writer // Discards on the other ranks
	file    *os.File
	itStart int
}

func NewPrintStdOut(sv model_problems.Solver, op *operators.Operators2D, ip *InputParameters.Parameters,
	dir string, w io.Writer) (po *PrintStdOut, err error) {
	po = &PrintStdOut{
		period: ip.Output.PeriodsPrint.PrintStdout,
		solver: sv,
		op:     op,
		w:      io.Discard,
	}
	err = coordinatorDo(op.Comm, func() (err error) {
		if w == nil {
			w = os.Stdout
		}
		po.w = w
		if ip.Output.HAS_TO_SAVE && dir != "" {
			po.file, err = os.OpenFile(filepath.Join(dir, StdoutFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return
			}
			po.w = io.MultiWriter(w, po.file)
		}
		return
	})
	return
}

func (po *PrintStdOut) Period() float64 { return po.period }
func (po *PrintStdOut) Decimate() int   { return 1 }

func (po *PrintStdOut) PrintInitialization(ip *InputParameters.Parameters, s timestepping.Sample) {
	po.itStart = s.It
	ip.Print(po.w)
	if ip.TimeStepping.USE_T_END {
		fmt.Fprintf(po.w, "Solving until t_end = %8.5f\n", ip.TimeStepping.TEnd)
	} else {
		fmt.Fprintf(po.w, "Solving until it_end = %d\n", ip.TimeStepping.ItEnd)
	}
	fmt.Fprintf(po.w, "    iter    time  deltat          E         EK         EA\n")
}

// OnSample is collective, every rank takes part in the energy sums
func (po *PrintStdOut) OnSample(s timestepping.Sample) (err error) {
	var (
		E, EK, EA float64
	)
	if E, EK, EA, _, _, err = energies(po.solver, po.op, s.State); err != nil {
		return
	}
	fmt.Fprintf(po.w, "%8d%8.5f%8.5f", s.It, s.T, s.DeltaT)
	format := "%11.4e"
	fmt.Fprintf(po.w, format+format+format+"\n", E, EK, EA)
	return
}

func (po *PrintStdOut) Finalize(s timestepping.Sample) (err error) {
	steps := s.It - po.itStart
	fmt.Fprintf(po.w, "\n[%s] at t = %8.5f, it = %d\n", s.Status, s.T, s.It)
	if steps > 0 {
		rate := float64(s.Elapsed.Microseconds()) / float64(po.op.NX*po.op.NY*steps)
		fmt.Fprintf(po.w, "Rate of execution = %8.5f us/(mode*iteration) over %d iterations\n", rate, steps)
	}
	fmt.Fprintf(po.w, "Memory: %s\n", utils.GetMemUsage())
	return
}

func (po *PrintStdOut) Close() (err error) {
	if po.file != nil {
		err = po.file.Close()
		po.file = nil
	}
	return
}

// energies sums the kinetic and potential energies, collective
func energies(sv model_problems.Solver, op *operators.Operators2D, s *state.State) (E, EK, EA float64,
	EKm, EAm *mat.Dense, err error) {
	if EKm, EAm, err = sv.EnergiesFFT(s); err != nil {
		return
	}
	EK, EA = op.SumWavenumbers(EKm), op.SumWavenumbers(EAm)
	E = EK + EA
	return
}
