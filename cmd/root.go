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
	"os/signal"
	"path/filepath"
	"syscall"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gospectral",
	Short: "Pseudo-spectral solvers for periodic two dimensional flows",
	Long: `Pseudo-spectral solvers for periodic two dimensional flows:
	- ns2d: incompressible Navier-Stokes
	- ns2d.strat: stratified Boussinesq
	- sw1l: one layer shallow water on the f or beta plane

Runs are described by a YAML parameter file and write their results in a
run directory that can be restarted from its checkpoints.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gospectral.yaml)")
	rootCmd.PersistentFlags().IntP("nproc", "n", 1, "number of processes sharing the grid")
	rootCmd.PersistentFlags().String("results-dir", "", "root of the run directories (default is $HOME/Sim)")
	viper.BindPFlag("nproc", rootCmd.PersistentFlags().Lookup("nproc"))
	viper.BindPFlag("results_dir", rootCmd.PersistentFlags().Lookup("results-dir"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".gospectral" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".gospectral")
	}

	viper.SetEnvPrefix("GOSPECTRAL")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// resultsDir is where new run directories are created
func resultsDir() (dir string, err error) {
	if dir = viper.GetString("results_dir"); dir != "" {
		return homedir.Expand(dir)
	}
	var home string
	if home, err = homedir.Dir(); err != nil {
		return
	}
	dir = filepath.Join(home, "Sim")
	return
}

func nproc() (np int) {
	if np = viper.GetInt("nproc"); np < 1 {
		np = 1
	}
	return
}

// signalContext is cancelled on SIGINT or SIGTERM so that the run stops
// like on a wall clock deadline
func signalContext() (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
