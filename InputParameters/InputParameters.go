package InputParameters

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"go.uber.org/multierr"

	"github.com/notargets/gospectral/types"
)

var ErrInvalid = errors.New("invalid parameter")

var SolverNames = []string{"ns2d", "ns2d.strat", "sw1l"}

// Parameters obtained from the YAML input file. ghodss/yaml maps YAML keys
// through the json tags.
type Parameters struct {
	Title            string       `json:"title"`
	Solver           string       `json:"solver"`
	ShortNameTypeRun string       `json:"short_name_type_run"`
	Oper             Oper         `json:"oper"`
	Nu2              float64      `json:"nu_2"`
	Nu4              float64      `json:"nu_4"`
	Nu8              float64      `json:"nu_8"`
	NuM4             float64      `json:"nu_m4"`
	N                float64      `json:"N"`    // Brunt-Vaisala frequency
	F                float64      `json:"f"`    // Coriolis parameter
	C2               float64      `json:"c2"`   // Squared gravity wave speed
	Beta             float64      `json:"beta"` // Gradient of f along y
	TimeStepping     TimeStepping `json:"time_stepping"`
	Forcing          Forcing      `json:"forcing"`
	InitFields       InitFields   `json:"init_fields"`
	Output           Output       `json:"output"`
}

type Oper struct {
	NX             int     `json:"nx"`
	NY             int     `json:"ny"`
	Lx             float64 `json:"Lx"`
	Ly             float64 `json:"Ly"`
	CoefDealiasing float64 `json:"coef_dealiasing"`
}

type TimeStepping struct {
	USE_T_END        bool    `json:"USE_T_END"`
	TEnd             float64 `json:"t_end"`
	ItEnd            int     `json:"it_end"`
	DeltaT0          float64 `json:"deltat0"`
	DeltaTMax        float64 `json:"deltat_max"`
	USE_CFL          bool    `json:"USE_CFL"`
	CFL              float64 `json:"CFL"`
	TypeTimeScheme   string  `json:"type_time_scheme"`
	MaxElapsed       string  `json:"max_elapsed"`        // HH:MM:SS or a Go duration, empty for no limit
	MaxElapsedMargin string  `json:"max_elapsed_margin"` // Go duration
}

type Forcing struct {
	Enable          bool    `json:"enable"`
	Type            string  `json:"type"`
	KeyForced       string  `json:"key_forced"`
	NKMinForcing    int     `json:"nkmin_forcing"`
	NKMaxForcing    int     `json:"nkmax_forcing"`
	ForcingRate     float64 `json:"forcing_rate"`
	Seed            int64   `json:"seed"`
	TimeCorrelation float64 `json:"time_correlation"`
}

type InitFields struct {
	Type     string   `json:"type"`
	Seed     int64    `json:"seed"`
	Noise    Noise    `json:"noise"`
	Constant Constant `json:"constant"`
	FromFile FromFile `json:"from_file"`
}

type Noise struct {
	Length  float64 `json:"length"` // Zero selects Lx/8
	VeloMax float64 `json:"velo_max"`
}

type Constant struct {
	Value float64 `json:"value"`
}

type FromFile struct {
	Path    string  `json:"path"`
	TApprox float64 `json:"t_approx"` // Negative selects the latest checkpoint
}

type Output struct {
	HAS_TO_SAVE      bool             `json:"HAS_TO_SAVE"`
	SubDirectory     string           `json:"sub_directory"`
	PeriodsSave      PeriodsSave      `json:"periods_save"`
	PeriodsPrint     PeriodsPrint     `json:"periods_print"`
	SpectraMultiDim  SpectraMultiDim  `json:"spectra_multidim"`
	FrequencySpectra FrequencySpectra `json:"frequency_spectra"`
}

// Periods are in simulation time, zero disables the output
type PeriodsSave struct {
	PhysFields       float64 `json:"phys_fields"`
	SpatialMeans     float64 `json:"spatial_means"`
	SpectraMultiDim  float64 `json:"spectra_multidim"`
	FrequencySpectra float64 `json:"frequency_spectra"`
}

type PeriodsPrint struct {
	PrintStdout float64 `json:"print_stdout"`
}

type SpectraMultiDim struct {
	SizeMaxFile  float64 `json:"size_max_file"` // MB
	TimeDecimate int     `json:"time_decimate"`
}

// FrequencySpectra buffers the linear eigenmodes on a decimated grid
type FrequencySpectra struct {
	TimeStart       float64 `json:"time_start"`
	TimeDecimate    int     `json:"time_decimate"`
	SpatialDecimate int     `json:"spatial_decimate"`
	SizeMaxFile     float64 `json:"size_max_file"` // MB
}

func NewParameters() (ip *Parameters) {
	ip = &Parameters{
		Title:  "gospectral run",
		Solver: "ns2d",
		Oper: Oper{
			NX:             32,
			NY:             32,
			Lx:             8,
			Ly:             8,
			CoefDealiasing: 2. / 3.,
		},
		N:    1,
		C2:   20,
		Beta: 0,
		TimeStepping: TimeStepping{
			USE_T_END:        true,
			TEnd:             10,
			ItEnd:            10,
			DeltaT0:          0.2,
			DeltaTMax:        0.2,
			USE_CFL:          true,
			CFL:              0.5,
			TypeTimeScheme:   "RK4",
			MaxElapsedMargin: "0s",
		},
		Forcing: Forcing{
			Type:            "random",
			KeyForced:       "rot_fft",
			NKMinForcing:    4,
			NKMaxForcing:    5,
			ForcingRate:     1,
			Seed:            1,
			TimeCorrelation: 1,
		},
		InitFields: InitFields{
			Type:     "noise",
			Seed:     1,
			Noise:    Noise{VeloMax: 1},
			FromFile: FromFile{TApprox: -1},
		},
		Output: Output{
			HAS_TO_SAVE:  true,
			PeriodsPrint: PeriodsPrint{PrintStdout: 1},
			SpectraMultiDim: SpectraMultiDim{
				SizeMaxFile:  10,
				TimeDecimate: 1,
			},
			FrequencySpectra: FrequencySpectra{
				TimeStart:       1,
				TimeDecimate:    1,
				SpatialDecimate: 2,
				SizeMaxFile:     1.e-2,
			},
		},
	}
	return
}

// Parse overlays the YAML data on the receiver, keeping values not present
// in the data
func (ip *Parameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *Parameters) Marshal() ([]byte, error) {
	return yaml.Marshal(ip)
}

func (ip *Parameters) Validate() (err error) {
	var (
		ts    = ip.TimeStepping
		oper  = ip.Oper
		check = func(ok bool, format string, args ...any) {
			if !ok {
				err = multierr.Append(err,
					fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
			}
		}
		known bool
	)
	for _, name := range SolverNames {
		known = known || name == ip.Solver
	}
	check(known, "unknown solver %q", ip.Solver)
	check(oper.NX >= 2 && oper.NX%2 == 0, "nx must be even and positive, have %d", oper.NX)
	check(oper.NY >= 2 && oper.NY%2 == 0, "ny must be even and positive, have %d", oper.NY)
	check(oper.Lx > 0 && oper.Ly > 0, "domain lengths must be positive")
	check(oper.CoefDealiasing > 0 && oper.CoefDealiasing <= 1,
		"coef_dealiasing must be in (0, 1], have %v", oper.CoefDealiasing)
	check(ip.Nu2 >= 0 && ip.Nu4 >= 0 && ip.Nu8 >= 0 && ip.NuM4 >= 0,
		"dissipation coefficients must not be negative")
	_, e := types.NewTimeScheme(ts.TypeTimeScheme)
	check(e == nil, "%v", e)
	check(ts.DeltaTMax > 0, "deltat_max must be positive")
	if ts.USE_T_END {
		check(ts.TEnd > 0, "t_end must be positive")
	} else {
		check(ts.ItEnd > 0, "it_end must be positive")
	}
	if ts.USE_CFL {
		check(ts.CFL > 0, "CFL must be positive")
	} else {
		check(ts.DeltaT0 > 0, "deltat0 must be positive")
	}
	_, e = ip.MaxElapsedDuration()
	check(e == nil, "%v", e)
	_, e = time.ParseDuration(ts.MaxElapsedMargin)
	check(e == nil || ts.MaxElapsedMargin == "", "max_elapsed_margin: %v", e)
	if ip.Forcing.Enable {
		var ft types.ForcingType
		ft, e = types.NewForcingType(ip.Forcing.Type)
		check(e == nil, "%v", e)
		check(ip.Forcing.NKMinForcing >= 0 && ip.Forcing.NKMaxForcing > ip.Forcing.NKMinForcing,
			"forcing band [%d, %d] is empty", ip.Forcing.NKMinForcing, ip.Forcing.NKMaxForcing)
		check(ip.Forcing.ForcingRate >= 0, "forcing_rate must not be negative")
		if ft == types.ForcingTimeCorrelatedRandom {
			check(ip.Forcing.TimeCorrelation > 0, "time_correlation must be positive")
		}
	}
	_, e = types.NewInitType(ip.InitFields.Type)
	check(e == nil, "%v", e)
	ps := ip.Output.PeriodsSave
	check(ps.PhysFields >= 0 && ps.SpatialMeans >= 0 && ps.SpectraMultiDim >= 0 &&
		ps.FrequencySpectra >= 0 && ip.Output.PeriodsPrint.PrintStdout >= 0, "output periods must not be negative")
	check(ip.Output.SpectraMultiDim.TimeDecimate >= 1, "time_decimate must be at least 1")
	if fs := ip.Output.FrequencySpectra; ps.FrequencySpectra > 0 {
		check(fs.TimeDecimate >= 1 && fs.SpatialDecimate >= 1,
			"frequency_spectra decimations must be at least 1, have %d and %d", fs.TimeDecimate, fs.SpatialDecimate)
	}
	return
}

// MaxElapsedDuration returns zero when no wall clock limit is set
func (ip *Parameters) MaxElapsedDuration() (d time.Duration, err error) {
	return ParseElapsed(ip.TimeStepping.MaxElapsed)
}

func (ip *Parameters) MaxElapsedMarginDuration() (d time.Duration) {
	if ip.TimeStepping.MaxElapsedMargin == "" {
		return
	}
	d, _ = time.ParseDuration(ip.TimeStepping.MaxElapsedMargin)
	return
}

// ParseElapsed accepts HH:MM:SS or a Go duration string
func ParseElapsed(txt string) (d time.Duration, err error) {
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return
	}
	if fields := strings.Split(txt, ":"); len(fields) == 3 {
		var hms [3]int
		for i, f := range fields {
			if hms[i], err = strconv.Atoi(f); err != nil || hms[i] < 0 {
				err = fmt.Errorf("unable to parse max_elapsed %q", txt)
				return
			}
		}
		d = time.Duration(hms[0])*time.Hour + time.Duration(hms[1])*time.Minute +
			time.Duration(hms[2])*time.Second
		return
	}
	if d, err = time.ParseDuration(txt); err != nil {
		err = fmt.Errorf("unable to parse max_elapsed %q", txt)
	}
	return
}

func (ip *Parameters) Print(w io.Writer) {
	var (
		ts = ip.TimeStepping
	)
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", ip.Title)
	fmt.Fprintf(w, "[%s]\t\t\t= Solver\n", ip.Solver)
	fmt.Fprintf(w, "[%d x %d]\t\t= Grid\n", ip.Oper.NX, ip.Oper.NY)
	fmt.Fprintf(w, "[%8.5f x %8.5f]\t= Domain\n", ip.Oper.Lx, ip.Oper.Ly)
	fmt.Fprintf(w, "%8.5f\t\t= Dealiasing coefficient\n", ip.Oper.CoefDealiasing)
	fmt.Fprintf(w, "[%g, %g, %g, %g]\t= nu_2, nu_4, nu_8, nu_m4\n", ip.Nu2, ip.Nu4, ip.Nu8, ip.NuM4)
	fmt.Fprintf(w, "[%s]\t\t\t= Time scheme\n", ts.TypeTimeScheme)
	if ts.USE_CFL {
		fmt.Fprintf(w, "%8.5f\t\t= CFL, deltat_max = %g\n", ts.CFL, ts.DeltaTMax)
	} else {
		fmt.Fprintf(w, "%8.5f\t\t= Fixed deltat\n", ts.DeltaT0)
	}
	if ts.USE_T_END {
		fmt.Fprintf(w, "%8.5f\t\t= t_end\n", ts.TEnd)
	} else {
		fmt.Fprintf(w, "[%d]\t\t\t= it_end\n", ts.ItEnd)
	}
	if ts.MaxElapsed != "" {
		fmt.Fprintf(w, "[%s]\t\t= Max elapsed\n", ts.MaxElapsed)
	}
	if ip.Forcing.Enable {
		fmt.Fprintf(w, "[%s] on %s, band [%d, %d], rate %g\t= Forcing\n", ip.Forcing.Type,
			ip.Forcing.KeyForced, ip.Forcing.NKMinForcing, ip.Forcing.NKMaxForcing, ip.Forcing.ForcingRate)
	}
	fmt.Fprintf(w, "[%s]\t\t\t= Init fields\n", ip.InitFields.Type)
}
