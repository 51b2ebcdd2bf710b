/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/simul"
)

const exampleFile = `
########################################
title: "Test Case"
solver: ns2d # Can be ns2d.strat or sw1l
oper:
  nx: 64
  ny: 64
  Lx: 6.283185307179586
  Ly: 6.283185307179586
nu_8: 1.e-14
time_stepping:
  USE_T_END: true
  t_end: 10
  USE_CFL: true
  CFL: 0.5
init_fields:
  type: noise # Can be dipole, constant or from_file
output:
  periods_save:
    phys_fields: 1
    spatial_means: 0.1
########################################
`

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation described by a YAML parameter file",
	Long: `Run a simulation described by a YAML parameter file. Parameters
absent from the file keep their default values. The process exits with 0 when
the run completes, 99 when it is truncated by its wall clock budget and 1 when
it fails.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			ip  *InputParameters.Parameters
		)
		icFile, _ := cmd.Flags().GetString("inputConditionsFile")
		if len(icFile) == 0 {
			fmt.Printf("error: must supply an input parameters file (-I, --inputConditionsFile)\n")
			fmt.Printf("Example File:%s\n", exampleFile)
			os.Exit(1)
		}
		if ip, err = readParams(icFile); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		profileMode, _ := cmd.Flags().GetString("profile")
		ctx, stop := signalContext()
		res := runSimulation(ctx, ip, profileMode)
		stop()
		os.Exit(report(res))
	},
}

func init() {
	rootCmd.AddCommand(RunCmd)
	RunCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- solver\n\t- oper (grid)\n\t- time_stepping")
	RunCmd.Flags().String("profile", "", "profile the run: cpu or mem")
}

func readParams(path string) (ip *InputParameters.Parameters, err error) {
	var data []byte
	if data, err = os.ReadFile(path); err != nil {
		return
	}
	ip = InputParameters.NewParameters()
	if err = ip.Parse(data); err != nil {
		return
	}
	err = ip.Validate()
	return
}

func startProfile(mode, dir string) interface{ Stop() } {
	switch mode {
	case "cpu":
		return profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.Quiet)
	case "mem":
		return profile.Start(profile.MemProfile, profile.ProfilePath(dir), profile.Quiet)
	}
	return nil
}

func runSimulation(ctx context.Context, ip *InputParameters.Parameters, profileMode string) (res simul.Result) {
	var (
		opts simul.Options
		err  error
	)
	if opts.ResultsDir, err = resultsDir(); err != nil {
		res.Err = err
		return
	}
	if p := startProfile(profileMode, "."); p != nil {
		defer p.Stop()
	}
	return simul.Run(ctx, ip, nproc(), opts)
}

// report prints a failure and returns the exit code of the run
func report(res simul.Result) (code int) {
	if res.Err != nil {
		fmt.Printf("error: %s\n", res.Err.Error())
	}
	return simul.ExitCode(res)
}
