package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/simul"
	"github.com/notargets/gospectral/types"
)

func TestRun(t *testing.T) {
	var (
		err error
		dir = t.TempDir()
	)
	fileInput := []byte(`
title: Test Case
solver: ns2d
short_name_type_run: cmd
oper:
  nx: 16
  ny: 16
nu_2: 0.01
time_stepping:
  USE_T_END: true
  t_end: 0.5
  USE_CFL: false
  deltat0: 0.1
output:
  periods_print:
    print_stdout: 0
  periods_save:
    phys_fields: 0.5
`)
	ff := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(ff, fileInput, 0644))
	var ip *InputParameters.Parameters
	{ // Test the parameter file overlays the defaults
		ip, err = readParams(ff)
		require.NoError(t, err)
		assert.Equal(t, "Test Case", ip.Title)
		assert.Equal(t, 16, ip.Oper.NX)
		assert.Equal(t, 8., ip.Oper.Lx)
		assert.Equal(t, "RK4", ip.TimeStepping.TypeTimeScheme)
		assert.Equal(t, 0.1, ip.TimeStepping.DeltaT0)
	}
	{ // Test an invalid parameter file is refused
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("oper:\n  nx: 15\n"), 0644))
		_, err = readParams(bad)
		assert.ErrorIs(t, err, InputParameters.ErrInvalid)
		_, err = readParams(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	}
	root := filepath.Join(dir, "results")
	viper.Set("results_dir", root)
	viper.Set("nproc", 2)
	defer viper.Reset()
	var res simul.Result
	{ // Test a run from the parameter file
		res = runSimulation(context.Background(), ip, "")
		require.NoError(t, res.Err)
		assert.Equal(t, types.Completed, res.Status)
		assert.Equal(t, 0, report(res))
		assert.DirExists(t, res.PathRun)
		assert.Equal(t, root, filepath.Dir(res.PathRun))
	}
	{ // Test the restart flags
		require.NoError(t, RestartCmd.ParseFlags([]string{"--add-to-t_end", "0.5", "--only-check"}))
		ro, err := restartOptions(RestartCmd, res.PathRun)
		require.NoError(t, err)
		assert.Equal(t, res.PathRun, ro.Path)
		assert.Equal(t, -1., ro.TApprox)
		assert.Equal(t, 0.5, ro.AddToTEnd)
		assert.True(t, ro.OnlyCheck)
		assert.False(t, ro.NewDirResults)
		check := simul.Restart(context.Background(), ro, nproc(), simul.Options{})
		require.NoError(t, check.Err)
		assert.Equal(t, res.PathRun, check.PathRun)
	}
	{ // Test the initialization flag leaves the run where it stopped
		require.NoError(t, RestartCmd.ParseFlags([]string{"--only-check=false", "--only-init"}))
		ro, err := restartOptions(RestartCmd, res.PathRun)
		require.NoError(t, err)
		assert.True(t, ro.OnlyInit)
		assert.False(t, ro.OnlyCheck)
		initRes := simul.Restart(context.Background(), ro, nproc(), simul.Options{})
		require.NoError(t, initRes.Err)
		assert.Equal(t, types.Initialized, initRes.Status)
		assert.Equal(t, res.It, initRes.It)
	}
}
