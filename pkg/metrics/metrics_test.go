package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordTraining(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())

	c.RecordTraining(1.5, 2.25, 37, 10)

	assert.Equal(t, 1.5, testutil.ToFloat64(c.TrainingMAE))
	assert.Equal(t, 2.25, testutil.ToFloat64(c.TrainingRMSE))
	assert.Equal(t, float64(37), testutil.ToFloat64(c.TrainingRows.WithLabelValues("train")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.TrainingRows.WithLabelValues("test")))
}

func TestCollector_RecordDroppedRowsIgnoresZero(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())

	c.RecordDroppedRows("invalid_timestamp", 0)
	c.RecordDroppedRows("duplicate_timestamp", 3)

	assert.Equal(t, 1, testutil.CollectAndCount(c.RowsDroppedTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.RowsDroppedTotal.WithLabelValues("duplicate_timestamp")))
}

func TestCollectorsOnSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNopCollector()
		NewNopCollector()
	})
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("optimizee", reg)
	c.LoaderFilesTotal.Add(2)

	path := filepath.Join(t.TempDir(), "optimizee.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "optimizee_loader_files_total 2")

	assert.NoError(t, WriteTextfile("", reg))
}
