package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackDBOperationObserves(t *testing.T) {
	// A fresh label creates a new histogram series only once the
	// returned func actually observes.
	before := testutil.CollectAndCount(DBOperationDuration)
	TrackDBOperation("migration")(time.Now())
	assert.Equal(t, before+1, testutil.CollectAndCount(DBOperationDuration))

	// Re-observing the same label must not add another series.
	TrackDBOperation("migration")(time.Now())
	assert.Equal(t, before+1, testutil.CollectAndCount(DBOperationDuration))
}

func TestRecordAuthError(t *testing.T) {
	before := testutil.CollectAndCount(AuthErrorCounter)
	RecordAuthError("test_error_kind")
	assert.Equal(t, before+1, testutil.CollectAndCount(AuthErrorCounter))
}

func TestRecordTokenIssued(t *testing.T) {
	before := testutil.CollectAndCount(TokenIssuedCounter)
	RecordTokenIssued("test_token_kind")
	assert.Equal(t, before+1, testutil.CollectAndCount(TokenIssuedCounter))
}
