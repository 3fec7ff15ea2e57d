package logmodule

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// StatsReporter writes every tally report as a logrus entry at the given
// level. Counters arrive as deltas of the last interval.
type StatsReporter struct {
	logger *log.Entry
	level  log.Level
}

func NewStatsReporter(prefix string, level log.Level) *StatsReporter {
	return &StatsReporter{
		logger: log.WithField("prefix", prefix),
		level:  level,
	}
}

func (r *StatsReporter) entry(name string, tags map[string]string) *log.Entry {
	fields := log.Fields{"metric": name}
	for k, v := range tags {
		fields["tag."+k] = v
	}
	return r.logger.WithFields(fields)
}

func (r *StatsReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.entry(name, tags).WithField("count", value).Log(r.level, "counter")
}

func (r *StatsReporter) ReportGauge(name string, tags map[string]string, value float64) {
	r.entry(name, tags).WithField("value", value).Log(r.level, "gauge")
}

func (r *StatsReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	r.entry(name, tags).WithField("duration", interval).Log(r.level, "timer")
}

func (r *StatsReporter) ReportHistogramValueSamples(name string, tags map[string]string,
	_ tally.Buckets, bucketLowerBound, bucketUpperBound float64, samples int64) {
	r.entry(name, tags).WithFields(log.Fields{
		"lower":   bucketLowerBound,
		"upper":   bucketUpperBound,
		"samples": samples,
	}).Log(r.level, "histogram")
}

func (r *StatsReporter) ReportHistogramDurationSamples(name string, tags map[string]string,
	_ tally.Buckets, bucketLowerBound, bucketUpperBound time.Duration, samples int64) {
	r.entry(name, tags).WithFields(log.Fields{
		"lower":   bucketLowerBound,
		"upper":   bucketUpperBound,
		"samples": samples,
	}).Log(r.level, "histogram")
}

func (r *StatsReporter) Capabilities() tally.Capabilities {
	return r
}

func (r *StatsReporter) Reporting() bool {
	return true
}

func (r *StatsReporter) Tagging() bool {
	return true
}

// Flush is a no-op, entries are written as they are reported
func (r *StatsReporter) Flush() {}
