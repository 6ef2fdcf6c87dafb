package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	descSourceBytes = prometheus.NewDesc(
		"hydra_source_bytes_total",
		"Bytes received by the source.",
		[]string{"type"}, nil)

	descDestinationBytes = prometheus.NewDesc(
		"hydra_destination_bytes_total",
		"Bytes delivered to a destination.",
		[]string{"index", "id", "type"}, nil)

	descDestinationDropped = prometheus.NewDesc(
		"hydra_destination_dropped_buffers_total",
		"Buffers dropped because the destination queue was full.",
		[]string{"index", "id"}, nil)

	descDestinationQueued = prometheus.NewDesc(
		"hydra_destination_queued_buffers",
		"Buffers waiting in the destination queue.",
		[]string{"index", "id"}, nil)

	descPipelineState = prometheus.NewDesc(
		"hydra_pipeline_state",
		"State of the pipeline graph (0=building 1=linked 2=playing 3=error-stopped 4=stopped).",
		[]string{"graph"}, nil)
)

type collector struct {
	m *Metrics
}

// Describe implements prometheus.Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSourceBytes
	ch <- descDestinationBytes
	ch <- descDestinationDropped
	ch <- descDestinationQueued
	ch <- descPipelineState
}

// Collect implements prometheus.Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	if c.m.GetProvider == nil {
		return
	}

	p := c.m.GetProvider()
	if p == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(descPipelineState, prometheus.GaugeValue,
		float64(p.State()), p.GraphID())

	totals := p.Totals()

	ch <- prometheus.MustNewConstMetric(descSourceBytes, prometheus.CounterValue,
		float64(totals.Source.Total), totals.SourceType)

	for i, b := range totals.Branches {
		ch <- prometheus.MustNewConstMetric(descDestinationBytes, prometheus.CounterValue,
			float64(b.Total), strconv.Itoa(i), b.Identity.ID, b.Identity.Type)
	}

	for _, s := range p.BranchStats() {
		id := ""
		if s.Index < len(totals.Branches) {
			id = totals.Branches[s.Index].Identity.ID
		}

		ch <- prometheus.MustNewConstMetric(descDestinationDropped, prometheus.CounterValue,
			float64(s.BuffersDropped), strconv.Itoa(s.Index), id)
		ch <- prometheus.MustNewConstMetric(descDestinationQueued, prometheus.GaugeValue,
			float64(s.Queued), strconv.Itoa(s.Index), id)
	}
}
