package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/timestepping"
	"github.com/notargets/gospectral/utils"
)

var (
	ErrBufferCapacity    = errors.New("output: spectra buffer holds no sample")
	ErrBufferUnreachable = errors.New("output: spectra buffer is never filled before t_end")
	ErrIncompatibleCFL   = errors.New("output: fixed output period with an adaptive time step")
	ErrNoCheckpoint      = errors.New("output: no checkpoint")
)

const (
	ParamsFile       = "params.yml"
	StdoutFile       = "stdout.txt"
	SpatialMeansFile = "spatial_means.txt"
)

// coordinatorDo runs fn on the coordinator and hands its error to every
// rank, so that I/O failures stop all ranks together. Collective.
func coordinatorDo(comm *utils.Comm, fn func() error) (err error) {
	if comm.IsCoordinator() {
		err = fn()
	}
	if e, ok := comm.Bcast(err, 0).(error); ok {
		err = e
	}
	return
}

// RunDirName is <solver>_<short>_<nx>x<ny>_<timestamp>
func RunDirName(ip *InputParameters.Parameters, now time.Time) string {
	parts := []string{ip.Solver}
	if ip.ShortNameTypeRun != "" {
		parts = append(parts, ip.ShortNameTypeRun)
	}
	parts = append(parts, fmt.Sprintf("%dx%d", ip.Oper.NX, ip.Oper.NY), now.Format("2006-01-02_15-04-05"))
	return strings.Join(parts, "_")
}

// NewRunDir creates the run directory under root and saves the parameters
// in it. The coordinator picks the path, every rank receives it. Collective.
func NewRunDir(comm *utils.Comm, root string, ip *InputParameters.Parameters) (path string, err error) {
	err = coordinatorDo(comm, func() (err error) {
		var (
			base = filepath.Join(root, ip.Output.SubDirectory, RunDirName(ip, time.Now()))
		)
		path = base
		for i := 1; ; i++ {
			if _, e := os.Stat(path); os.IsNotExist(e) {
				break
			}
			path = fmt.Sprintf("%s_%d", base, i)
		}
		if err = os.MkdirAll(path, 0o755); err != nil {
			return
		}
		return SaveParams(path, ip)
	})
	if err != nil {
		return
	}
	path = comm.Bcast(path, 0).(string)
	return
}

func SaveParams(dir string, ip *InputParameters.Parameters) (err error) {
	var data []byte
	if data, err = ip.Marshal(); err != nil {
		return
	}
	return os.WriteFile(filepath.Join(dir, ParamsFile), data, 0o644)
}

// LoadParams reads params.yml over the defaults
func LoadParams(dir string) (ip *InputParameters.Parameters, err error) {
	var data []byte
	if data, err = os.ReadFile(filepath.Join(dir, ParamsFile)); err != nil {
		return
	}
	ip = InputParameters.NewParameters()
	if err = ip.Parse(data); err != nil {
		err = fmt.Errorf("unable to parse %s: %w", ParamsFile, err)
	}
	return
}

// Output holds the diagnostics of a run. File based diagnostics are nil
// when the run does not save.
type Output struct {
	Dir              string
	PrintStdOut      *PrintStdOut
	SpatialMeans     *SpatialMeans
	SpectraMultiDim  *SpectraMultiDim
	FrequencySpectra *FrequencySpectra
	PhysFields       *PhysFields
}

/*
	NewOutput builds the diagnostics of a run. dir is the run directory,
	ignored when the parameters do not save. w receives the progress lines on
	the coordinator. Collective.
*/
func NewOutput(sv model_problems.Solver, op *operators.Operators2D, ip *InputParameters.Parameters,
	dir string, w io.Writer) (o *Output, err error) {
	var (
		out = ip.Output
	)
	o = &Output{Dir: dir}
	if out.HAS_TO_SAVE {
		if o.SpatialMeans, err = NewSpatialMeans(sv, op, ip, dir); err != nil {
			return
		}
		if o.SpectraMultiDim, err = NewSpectraMultiDim(sv, op, ip, dir); err != nil {
			return
		}
		if o.FrequencySpectra, err = NewFrequencySpectra(sv, op, ip, dir); err != nil {
			return
		}
		o.PhysFields = NewPhysFields(sv, op, ip, dir)
	}
	o.PrintStdOut, err = NewPrintStdOut(sv, op, ip, dir, w)
	return
}

// Observers lists the diagnostics in the order they are sampled
func (o *Output) Observers() (obs []timestepping.Observer) {
	obs = append(obs, o.PrintStdOut)
	if o.SpatialMeans != nil {
		obs = append(obs, o.SpatialMeans)
	}
	if o.SpectraMultiDim != nil {
		obs = append(obs, o.SpectraMultiDim)
	}
	if o.FrequencySpectra != nil {
		obs = append(obs, o.FrequencySpectra)
	}
	if o.PhysFields != nil {
		obs = append(obs, o.PhysFields)
	}
	return
}

// Close releases the files held open by the diagnostics
func (o *Output) Close() (err error) {
	if o.SpatialMeans != nil {
		err = o.SpatialMeans.Close()
	}
	return multierr.Append(err, o.PrintStdOut.Close())
}
