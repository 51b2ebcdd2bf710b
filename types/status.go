package types

import (
	"fmt"
	"strings"
)

type RunStatus uint8

const (
	Initialized RunStatus = iota
	Running
	Completed
	TruncatedByDeadline
	Failed
)

var RunStatusPrintNames = []string{"INITIALIZED", "RUNNING", "COMPLETED", "TRUNCATED_BY_DEADLINE", "FAILED"}

func (rs RunStatus) String() string {
	if int(rs) >= len(RunStatusPrintNames) {
		return fmt.Sprintf("RunStatus(%d)", rs)
	}
	return RunStatusPrintNames[rs]
}

func (rs RunStatus) IsTerminal() bool {
	return rs == Completed || rs == TruncatedByDeadline || rs == Failed
}

type TimeScheme uint8

const (
	Euler TimeScheme = iota
	RK2
	RK4
)

var (
	TimeSchemeNames = map[string]TimeScheme{
		"euler": Euler,
		"rk2":   RK2,
		"rk4":   RK4,
	}
	TimeSchemePrintNames = []string{"Euler", "RK2", "RK4"}
)

func (ts TimeScheme) Print() (txt string) {
	txt = TimeSchemePrintNames[ts]
	return
}

// Stages is the number of right hand side evaluations per step
func (ts TimeScheme) Stages() int {
	return [...]int{1, 2, 4}[ts]
}

func NewTimeScheme(label string) (ts TimeScheme, err error) {
	var (
		ok bool
	)
	label = strings.ToLower(strings.TrimSpace(label))
	if ts, ok = TimeSchemeNames[label]; !ok {
		err = fmt.Errorf("unable to use time scheme named %s", label)
	}
	return
}

type ForcingType uint8

const (
	ForcingRandom ForcingType = iota
	ForcingTimeCorrelatedRandom
)

var (
	ForcingNames = map[string]ForcingType{
		"random":   ForcingRandom,
		"tcrandom": ForcingTimeCorrelatedRandom,
	}
	ForcingPrintNames = []string{"random", "tcrandom"}
)

func (ft ForcingType) Print() (txt string) {
	txt = ForcingPrintNames[ft]
	return
}

func NewForcingType(label string) (ft ForcingType, err error) {
	var (
		ok bool
	)
	label = strings.ToLower(strings.TrimSpace(label))
	if ft, ok = ForcingNames[label]; !ok {
		err = fmt.Errorf("unable to use forcing named %s", label)
	}
	return
}

type InitType uint8

const (
	InitNoise InitType = iota
	InitDipole
	InitConstant
	InitFromFile
)

var (
	InitNames = map[string]InitType{
		"noise":     InitNoise,
		"dipole":    InitDipole,
		"constant":  InitConstant,
		"from_file": InitFromFile,
	}
	InitPrintNames = []string{"noise", "dipole", "constant", "from_file"}
)

func (it InitType) Print() (txt string) {
	txt = InitPrintNames[it]
	return
}

func NewInitType(label string) (it InitType, err error) {
	var (
		ok bool
	)
	label = strings.ToLower(strings.TrimSpace(label))
	if it, ok = InitNames[label]; !ok {
		err = fmt.Errorf("unable to use init type named %s", label)
	}
	return
}
