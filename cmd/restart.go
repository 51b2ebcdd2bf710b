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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notargets/gospectral/simul"
)

// RestartCmd represents the restart command
var RestartCmd = &cobra.Command{
	Use:   "restart <run directory or checkpoint>",
	Short: "Continue a run from one of its checkpoints",
	Long: `Continue a run from one of its checkpoints. The parameters are read
from the run directory and the results are appended to it unless
--new-dir-results is given.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			ro  simul.RestartOptions
		)
		if ro, err = restartOptions(cmd, args[0]); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		var opts simul.Options
		if opts.ResultsDir, err = resultsDir(); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		ctx, stop := signalContext()
		res := simul.Restart(ctx, ro, nproc(), opts)
		stop()
		if res.Err == nil && ro.OnlyCheck {
			fmt.Printf("Restart from %s checked\n", res.PathRun)
			os.Exit(0)
		}
		if res.Err == nil && ro.OnlyInit {
			fmt.Printf("Initialized from %s at t = %8.5f, it = %d\n", res.PathRun, res.T, res.It)
			os.Exit(0)
		}
		os.Exit(report(res))
	},
}

func init() {
	rootCmd.AddCommand(RestartCmd)
	flags := RestartCmd.Flags()
	flags.Float64("t_approx", -1, "time of the checkpoint to restart from, the latest when negative")
	flags.Float64("t_end", 0, "new end time")
	flags.Int("it_end", 0, "new end step index")
	flags.Float64("add-to-t_end", 0, "time added to the saved end time")
	flags.Int("add-to-it_end", 0, "steps added to the saved end step index")
	flags.String("max-elapsed", "", "wall clock budget as HH:MM:SS or a Go duration")
	flags.Bool("only-check", false, "check the restart without running it")
	flags.Bool("only-init", false, "initialize the simulation from the checkpoint without running it")
	flags.Bool("new-dir-results", false, "write the results in a new run directory")
}

func restartOptions(cmd *cobra.Command, path string) (ro simul.RestartOptions, err error) {
	flags := cmd.Flags()
	ro.Path = path
	if ro.TApprox, err = flags.GetFloat64("t_approx"); err != nil {
		return
	}
	if ro.TEnd, err = flags.GetFloat64("t_end"); err != nil {
		return
	}
	if ro.ItEnd, err = flags.GetInt("it_end"); err != nil {
		return
	}
	if ro.AddToTEnd, err = flags.GetFloat64("add-to-t_end"); err != nil {
		return
	}
	if ro.AddToItEnd, err = flags.GetInt("add-to-it_end"); err != nil {
		return
	}
	if ro.MaxElapsed, err = flags.GetString("max-elapsed"); err != nil {
		return
	}
	if ro.OnlyCheck, err = flags.GetBool("only-check"); err != nil {
		return
	}
	if ro.OnlyInit, err = flags.GetBool("only-init"); err != nil {
		return
	}
	ro.NewDirResults, err = flags.GetBool("new-dir-results")
	return
}
