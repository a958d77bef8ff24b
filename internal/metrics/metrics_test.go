package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCeremony("transaction", OutcomeSuccess, "", time.Second)
	m.RecordFactorBatch("device", OutcomeSuccess, 2, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"signer_ceremony_total",
		"signer_ceremony_duration_seconds",
		"signer_factor_source_batches_total",
		"signer_factor_source_batch_duration_seconds",
		"signer_factor_source_signatures_total",
	}, names)
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestRecordCeremony(t *testing.T) {
	m := New(nil)

	m.RecordCeremony("transaction", OutcomeSuccess, "", time.Second)
	m.RecordCeremony("transaction", OutcomeSuccess, "", time.Second)
	m.RecordCeremony("transaction", OutcomeSilent, "rejected_by_user", time.Second)
	m.RecordCeremony("auth", OutcomeFailure, "unknown_entity", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ceremonies.WithLabelValues("transaction", OutcomeSuccess, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ceremonies.WithLabelValues("transaction", OutcomeSilent, "rejected_by_user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ceremonies.WithLabelValues("auth", OutcomeFailure, "unknown_entity")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ceremonyDuration))
}

func TestRecordFactorBatch(t *testing.T) {
	m := New(nil)

	m.RecordFactorBatch("ledger_hq_hardware_wallet", OutcomeSuccess, 3, time.Second)
	m.RecordFactorBatch("ledger_hq_hardware_wallet", OutcomeFailure, 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.factorBatches.WithLabelValues("ledger_hq_hardware_wallet", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.factorBatches.WithLabelValues("ledger_hq_hardware_wallet", OutcomeFailure)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.signatures.WithLabelValues("ledger_hq_hardware_wallet")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCeremony("transaction", OutcomeSuccess, "", time.Second)
		m.RecordFactorBatch("device", OutcomeSuccess, 1, time.Second)
	})
}
