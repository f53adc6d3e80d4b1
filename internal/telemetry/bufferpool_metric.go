package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// BufferPoolMetrics holds the metric instruments for the buffer pool.
type BufferPoolMetrics struct {
	Fetches   metric.Int64Counter
	Hits      metric.Int64Counter
	Evictions metric.Int64Counter
	Flushes   metric.Int64Counter
}

// NewBufferPoolMetrics creates and registers the buffer pool instruments.
func NewBufferPoolMetrics(meter metric.Meter) (*BufferPoolMetrics, error) {
	fetches, err := meter.Int64Counter(
		"docustore.bufferpool.fetches_total",
		metric.WithDescription("Total number of page fetch requests."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	hits, err := meter.Int64Counter(
		"docustore.bufferpool.hits_total",
		metric.WithDescription("Fetch requests served without disk I/O."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"docustore.bufferpool.evictions_total",
		metric.WithDescription("Frames reclaimed from resident pages."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	flushes, err := meter.Int64Counter(
		"docustore.bufferpool.flushes_total",
		metric.WithDescription("Dirty pages written back to disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &BufferPoolMetrics{
		Fetches:   fetches,
		Hits:      hits,
		Evictions: evictions,
		Flushes:   flushes,
	}, nil
}
