package metrics_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/UpCloudLtd/recovery-volumes/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := metrics.NewRecorder()
	r.ObserveOperation("format", nil)
	r.ObserveOperation("format", errors.New("mke2fs failed"))
	r.ObserveOperation("format", nil)
	r.ObserveCommand("/sbin/mke2fs_static", 0, 2*time.Second)

	count, err := testutil.GatherAndCount(r.Gatherer(), "recovery_volume_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	path := filepath.Join(t.TempDir(), "recovery.prom")
	require.NoError(t, r.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `recovery_volume_operations_total{operation="format",result="success"} 2`)
	assert.Contains(t, string(b), `recovery_volume_operations_total{operation="format",result="failure"} 1`)
	assert.Contains(t, string(b), `recovery_volume_command_duration_seconds_count{command="mke2fs_static",exit_code="0"} 1`)
}
