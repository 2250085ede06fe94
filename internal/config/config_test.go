package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))

	tc, err := GetTransmissionConfig()
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5, 2.0, 1.3, 1.0, 0.8}, tc.GearRatios)
	assert.InDelta(t, 1355.82, tc.MaxClutchTorque, 1e-9)
	assert.False(t, tc.Variable)

	ec, err := GetEngineConfig()
	require.NoError(t, err)
	assert.Len(t, ec.TorqueCurve, 5)
	assert.Equal(t, 3000.0, ec.TorqueCurve[2].RPM)
	assert.Equal(t, 260.0, ec.TorqueCurve[2].Torque)
	assert.Equal(t, 6500.0, ec.Redline)

	vc := GetVehicleConfig()
	assert.Equal(t, 1200.0, vc.Mass)
	assert.Equal(t, 4.0, vc.DiffRatio)
	assert.Equal(t, 0.3, vc.TireRadius)

	sc, err := GetSimConfig()
	require.NoError(t, err)
	assert.Equal(t, 120, sc.StepsPerSecond)
	assert.Equal(t, uint(10), sc.Iterations)
	assert.Equal(t, 30*time.Second, sc.Duration)
	assert.Empty(t, sc.Script)

	st := GetStorageConfig()
	assert.False(t, st.Enabled)
	assert.Equal(t, "sqlite", st.Type)
	assert.Equal(t, "5432", st.Postgres.Port)

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "http://localhost:8086", ic.URL)
	assert.Equal(t, "drivetrain", ic.Bucket)
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"transmission": { "gearRatios": [4.0, 2.5], "variable": true },
		"vehicle": { "mass": 900 },
		"sim": {
			"duration": "5s",
			"script": [
				{ "at": 0, "throttle": 1, "clutch": 1, "gear": 0 },
				{ "at": 2.5, "gear": -1 },
				{ "at": 3, "variable": true, "disk": 0.25 }
			]
		}
	}`)
	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", GetLogConfig().Level)

	tc, err := GetTransmissionConfig()
	require.NoError(t, err)
	assert.Equal(t, []float64{4.0, 2.5}, tc.GearRatios)
	assert.True(t, tc.Variable)
	assert.InDelta(t, 1355.82, tc.MaxClutchTorque, 1e-9, "sibling default survives a partial section")
	assert.Equal(t, []float64{4.0, 2.5}, tc.Parameters().GearRatios)

	vc := GetVehicleConfig()
	assert.Equal(t, 900.0, vc.Mass)
	assert.Equal(t, 4.0, vc.DiffRatio)

	sc, err := GetSimConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, sc.Duration)
	require.Len(t, sc.Script, 3)

	first := sc.Script[0]
	require.NotNil(t, first.Gear)
	assert.Equal(t, 0, *first.Gear)
	require.NotNil(t, first.Throttle)
	assert.Equal(t, 1.0, *first.Throttle)
	assert.Nil(t, first.Disk)

	require.NotNil(t, sc.Script[1].Gear)
	assert.Equal(t, -1, *sc.Script[1].Gear)
	assert.Equal(t, 2.5, sc.Script[1].At)

	require.NotNil(t, sc.Script[2].Variable)
	assert.True(t, *sc.Script[2].Variable)
	assert.Nil(t, sc.Script[2].Gear)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("ENGINESIM_VEHICLE_MASS", "1500")

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, 1500.0, GetVehicleConfig().Mass)
}

func TestLoad_DotEnvFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Cleanup(func() { os.Unsetenv("ENGINESIM_INFLUX_ORG") })

	dir := writeConfig(t, `{}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ENGINESIM_INFLUX_ORG=garage\n"), 0644))
	require.NoError(t, Load(dir))

	assert.Equal(t, "garage", GetInfluxConfig().Org)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)

	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
}
