package simul

import (
	"fmt"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/model_problems/NS2D"
	"github.com/notargets/gospectral/model_problems/NS2DStrat"
	"github.com/notargets/gospectral/model_problems/SW1L"
	"github.com/notargets/gospectral/operators"
)

type solverConstructor func(op *operators.Operators2D, ip *InputParameters.Parameters) (model_problems.Solver, error)

var solvers = map[string]solverConstructor{
	"ns2d": func(op *operators.Operators2D, ip *InputParameters.Parameters) (model_problems.Solver, error) {
		return NS2D.New(op), nil
	},
	"ns2d.strat": func(op *operators.Operators2D, ip *InputParameters.Parameters) (model_problems.Solver, error) {
		return NS2DStrat.New(op, ip.N)
	},
	"sw1l": func(op *operators.Operators2D, ip *InputParameters.Parameters) (model_problems.Solver, error) {
		return SW1L.New(op, ip.F, ip.C2, ip.Beta)
	},
}

// NewSolver builds the solver variant named in the parameters
func NewSolver(op *operators.Operators2D, ip *InputParameters.Parameters) (sv model_problems.Solver, err error) {
	ctor, ok := solvers[ip.Solver]
	if !ok {
		err = fmt.Errorf("%w: unknown solver %q", InputParameters.ErrInvalid, ip.Solver)
		return
	}
	return ctor(op, ip)
}
