package telemetry

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSample() Sample {
	return Sample{
		Time:           time.Unix(1700000000, 0),
		SimTime:        1.5,
		Gear:           2,
		EngineRPM:      3200,
		ClutchPressure: 1,
		MinTorque:      -500,
		MaxTorque:      500,
	}
}

func TestNewPoint(t *testing.T) {
	line := influxdb2_write.PointToLineProtocol(NewPoint(testSample()), time.Second)

	assert.True(t, strings.HasPrefix(line, "drivetrain,gear=2,mode=discrete "), line)
	assert.Contains(t, line, "engine_rpm=3200")
	assert.Contains(t, line, "max_torque=500")
	assert.Contains(t, line, "min_torque=-500")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), " 1700000000"), line)
}

func TestNewPoint_VariableMode(t *testing.T) {
	s := testSample()
	s.Variable = true
	s.Gear = -1

	line := influxdb2_write.PointToLineProtocol(NewPoint(s), time.Second)
	assert.Contains(t, line, "gear=-1")
	assert.Contains(t, line, "mode=variable")
}

func TestManager_BackupWhenUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.lp.gz")
	m := NewManager(Config{
		URL:        "http://127.0.0.1:1",
		Org:        "engine-sim",
		Bucket:     "drivetrain",
		BackupPath: path,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	require.NoError(t, m.Record(ctx, testSample()))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	assert.Contains(t, string(data), "drivetrain,gear=2,mode=discrete")
}

func TestManager_RecordWithoutConnect(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop())
	assert.Error(t, m.Record(context.Background(), testSample()))
}
