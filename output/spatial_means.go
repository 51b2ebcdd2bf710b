package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/timestepping"
)

/*
	SpatialMeans appends one record of global means to spatial_means.txt
	per sample:
		####
		time = ...
		E    = ... ; EK = ... ; EA = ...
		EKr  = ... ; EKs = ...
		epsK = ... ; epsK_hypo = ... ; epsA = ... ; epsA_hypo = ... ; eps_tot = ...
	and with forcing
		PK1  = ... ; PK2 = ... ; PK_tot = ...
		PA1  = ... ; PA2 = ... ; PA_tot = ...
	EKr is the energy of the rotational velocity, EKs the energy of the shear
	modes kx = 0. Only the coordinator writes, the file is synced after each
	record.
*/
type SpatialMeans struct {
	period float64
	solver model_problems.Solver
	op     *operators.Operators2D
	Path   string
	file   *os.File
	fd     *mat.Dense // Dissipation frequency of the nu_2, nu_4, nu_8 terms
	fdHypo *mat.Dense // Dissipation frequency of the nu_m4 term
}

func NewSpatialMeans(sv model_problems.Solver, op *operators.Operators2D, ip *InputParameters.Parameters,
	dir string) (sm *SpatialMeans, err error) {
	var (
		fd     = timestepping.DissipationFrequencies(op.K2, ip.Nu2, ip.Nu4, ip.Nu8, 0)
		fdHypo = timestepping.DissipationFrequencies(op.K2, 0, 0, 0, ip.NuM4)
	)
	sm = &SpatialMeans{
		period: ip.Output.PeriodsSave.SpatialMeans,
		solver: sv,
		op:     op,
		Path:   filepath.Join(dir, SpatialMeansFile),
		fd:     mat.NewDense(op.NKXLoc, op.NY, fd),
		fdHypo: mat.NewDense(op.NKXLoc, op.NY, fdHypo),
	}
	if sm.period <= 0 {
		return
	}
	err = coordinatorDo(op.Comm, func() (err error) {
		sm.file, err = os.OpenFile(sm.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		return
	})
	return
}

func (sm *SpatialMeans) Period() float64 { return sm.period }
func (sm *SpatialMeans) Decimate() int   { return 1 }

// dissipation is sum(2 fd E) over the whole grid, collective
func (sm *SpatialMeans) dissipation(fd, E *mat.Dense) float64 {
	eps := sm.op.NewSpectReal()
	eps.MulElem(fd, E)
	eps.Scale(2, eps)
	return sm.op.SumWavenumbers(eps)
}

// Record computes the record of the sample, collective
func (sm *SpatialMeans) Record(s timestepping.Sample) (rec string, err error) {
	var (
		E, EK, EA float64
		EKm, EAm  *mat.Dense
		ux, uy    *mat.CDense
		b         strings.Builder
	)
	op, format := sm.op, "%11.5e"
	if E, EK, EA, EKm, EAm, err = energies(sm.solver, op, s.State); err != nil {
		return
	}
	if ux, err = s.State.ComputeSpect("ux_fft"); err != nil {
		return
	}
	if uy, err = s.State.ComputeSpect("uy_fft"); err != nil {
		return
	}
	rotX, rotY, _, _ := op.DecomposeVector(ux, uy)
	EKr := op.SumWavenumbers(op.EnergyFromSpect(rotX)) + op.SumWavenumbers(op.EnergyFromSpect(rotY))
	EKs := op.SumWavenumbersShear(EKm)
	var (
		epsK     = sm.dissipation(sm.fd, EKm)
		epsKHypo = sm.dissipation(sm.fdHypo, EKm)
		epsA     = sm.dissipation(sm.fd, EAm)
		epsAHypo = sm.dissipation(sm.fdHypo, EAm)
		epsTot   = epsK + epsKHypo + epsA + epsAHypo
	)
	fmt.Fprintf(&b, "####\ntime = "+format+"\n", s.T)
	fmt.Fprintf(&b, "E    = "+format+" ; EK = "+format+" ; EA = "+format+"\n", E, EK, EA)
	fmt.Fprintf(&b, "EKr  = "+format+" ; EKs = "+format+"\n", EKr, EKs)
	fmt.Fprintf(&b, "epsK = "+format+" ; epsK_hypo = "+format+" ; epsA = "+format+
		" ; epsA_hypo = "+format+" ; eps_tot = "+format+"\n", epsK, epsKHypo, epsA, epsAHypo, epsTot)
	if s.Forcing != nil {
		var PK1, PK2, PA1, PA2 float64
		if PK1, PK2, PA1, PA2, err = s.Forcing.InjectionRates(s.State.StateSpect()); err != nil {
			return
		}
		fmt.Fprintf(&b, "PK1  = "+format+" ; PK2 = "+format+" ; PK_tot = "+format+"\n", PK1, PK2, PK1+PK2)
		fmt.Fprintf(&b, "PA1  = "+format+" ; PA2 = "+format+" ; PA_tot = "+format+"\n", PA1, PA2, PA1+PA2)
	}
	rec = b.String()
	return
}

func (sm *SpatialMeans) OnSample(s timestepping.Sample) (err error) {
	var rec string
	if rec, err = sm.Record(s); err != nil {
		return
	}
	return coordinatorDo(sm.op.Comm, func() (err error) {
		if _, err = sm.file.WriteString(rec); err != nil {
			return
		}
		return sm.file.Sync()
	})
}

func (sm *SpatialMeans) Finalize(s timestepping.Sample) (err error) {
	return
}

func (sm *SpatialMeans) Close() (err error) {
	if sm.file != nil {
		err = sm.file.Close()
		sm.file = nil
	}
	return
}

// LoadSpatialMeans reads the records of a spatial means file into series
// by name, time is stored under "t"
func LoadSpatialMeans(path string) (means map[string][]float64, err error) {
	var (
		f *os.File
	)
	if f, err = os.Open(path); err != nil {
		return
	}
	defer f.Close()
	means = make(map[string][]float64)
	scanner := bufio.NewScanner(f)
	for ln := 1; scanner.Scan(); ln++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "####") {
			continue
		}
		for _, item := range strings.Split(line, ";") {
			kv := strings.SplitN(item, "=", 2)
			if len(kv) != 2 {
				err = fmt.Errorf("%s:%d: unable to parse %q", path, ln, item)
				return
			}
			var (
				key = strings.TrimSpace(kv[0])
				v   float64
			)
			if v, err = strconv.ParseFloat(strings.TrimSpace(kv[1]), 64); err != nil {
				err = fmt.Errorf("%s:%d: %w", path, ln, err)
				return
			}
			if key == "time" {
				key = "t"
			}
			means[key] = append(means[key], v)
		}
	}
	err = scanner.Err()
	return
}
