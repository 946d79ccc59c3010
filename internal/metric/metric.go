package metric

import (
	"context"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type Client interface {
	Add(metric Metric)
	Send(points ...*write.Point)
	Ticker(ctx context.Context, duration time.Duration)
	Close()
}

type Metric interface {
	Metric() *write.Point
}

type Fields map[string]interface{}

type Tags map[string]string

type RowMetric struct {
	Name string
	Tags Tags
}

type CounterMetric struct {
	RowMetric
	counter int64
}

func NewCounter(name string, tags Tags) *CounterMetric {
	return &CounterMetric{RowMetric: RowMetric{Name: name, Tags: tags}}
}

func (c *CounterMetric) Inc() {
	atomic.AddInt64(&c.counter, 1)
}

func (c *CounterMetric) Value() int64 {
	return atomic.LoadInt64(&c.counter)
}

func (c *CounterMetric) Metric() *write.Point {
	return influxdb2.NewPoint(c.Name, c.Tags, Fields{"counter": c.Value()}, time.Now())
}

type GaugeMetric struct {
	RowMetric
	gauge int64
}

func NewGauge(name string, tags Tags) *GaugeMetric {
	return &GaugeMetric{RowMetric: RowMetric{Name: name, Tags: tags}}
}

func (g *GaugeMetric) Add(delta int64) {
	atomic.AddInt64(&g.gauge, delta)
}

func (g *GaugeMetric) Value() int64 {
	return atomic.LoadInt64(&g.gauge)
}

func (g *GaugeMetric) Metric() *write.Point {
	return influxdb2.NewPoint(g.Name, g.Tags, Fields{"gauge": g.Value()}, time.Now())
}

type DurationMetric struct {
	RowMetric
	Duration time.Duration
}

func (d *DurationMetric) Metric() *write.Point {
	return influxdb2.NewPoint(d.Name, d.Tags, Fields{"duration": d.Duration.Seconds()}, time.Now())
}
