package logmodule

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/uber-go/tally"
)

func TestStatsReporterLogsOnClose(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   "geoquest",
		Reporter: NewStatsReporter("metrics", logrus.InfoLevel),
	}, time.Hour)

	scope.Tagged(map[string]string{"status": "SUCCESS"}).Counter("submission.outcomes").Inc(2)
	assert.NoError(t, closer.Close())

	var found *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Data["metric"] == "geoquest.submission.outcomes" {
			found = e
		}
	}
	if assert.NotNil(t, found) {
		assert.Equal(t, logrus.InfoLevel, found.Level)
		assert.Equal(t, "metrics", found.Data["prefix"])
		assert.Equal(t, "SUCCESS", found.Data["tag.status"])
		assert.Equal(t, int64(2), found.Data["count"])
		assert.Equal(t, "counter", found.Message)
	}
}

func TestStatsReporterTimerIsImmediate(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	r := NewStatsReporter("metrics", logrus.DebugLevel)
	logrus.SetLevel(logrus.DebugLevel)
	defer logrus.SetLevel(logrus.InfoLevel)

	r.ReportTimer("capture.latency", nil, 250*time.Millisecond)

	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, logrus.DebugLevel, entry.Level)
		assert.Equal(t, 250*time.Millisecond, entry.Data["duration"])
	}
	assert.True(t, r.Capabilities().Reporting())
	assert.True(t, r.Capabilities().Tagging())
}
