package repo

import (
	"context"
	"fmt"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/sentinelops/incident-engine/internal/models"
)

// InfluxMetricsBackend reads metric series for a scope from InfluxDB.
type InfluxMetricsBackend struct {
	client   influxdb2.Client
	queryAPI influxapi.QueryAPI
	bucket   string
}

// NewInfluxMetricsBackend constructs a metrics backend against the configured
// InfluxDB instance.
func NewInfluxMetricsBackend(url, token, org, bucket string, timeout time.Duration) *InfluxMetricsBackend {
	opts := influxdb2.DefaultOptions()
	if timeout > 0 {
		opts = opts.SetHTTPRequestTimeout(uint(timeout / time.Second))
	}
	client := influxdb2.NewClientWithOptions(url, token, opts)
	return &InfluxMetricsBackend{
		client:   client,
		queryAPI: client.QueryAPI(org),
		bucket:   bucket,
	}
}

// FetchMetricSeries runs a Flux query for all measurements tagged with the
// scope and groups the samples into named series.
func (b *InfluxMetricsBackend) FetchMetricSeries(ctx context.Context, scope string, start, end time.Time) ([]models.MetricSeries, error) {
	if b == nil || b.queryAPI == nil {
		return nil, fmt.Errorf("influx backend not configured")
	}

	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r["scope"] == %q)`,
		b.bucket, start.Format(time.RFC3339), end.Format(time.RFC3339), scope)

	result, err := b.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query failed: %w", err)
	}

	grouped := make(map[string]*models.MetricSeries)
	for result.Next() {
		record := result.Record()
		value, ok := record.Value().(float64)
		if !ok {
			continue
		}
		name := record.Field()
		if name == "" {
			name = record.Measurement()
		}
		series, exists := grouped[name]
		if !exists {
			unit, _ := record.ValueByKey("unit").(string)
			series = &models.MetricSeries{Name: name, Unit: unit}
			grouped[name] = series
		}
		series.Points = append(series.Points, models.MetricPoint{
			Timestamp: record.Time(),
			Value:     value,
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx result error: %w", result.Err())
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	all := make([]models.MetricSeries, 0, len(grouped))
	for _, name := range names {
		series := grouped[name]
		sort.Slice(series.Points, func(i, j int) bool {
			return series.Points[i].Timestamp.Before(series.Points[j].Timestamp)
		})
		all = append(all, *series)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("influx returned no samples for scope %s", scope)
	}
	return all, nil
}

// Close releases the underlying HTTP client.
func (b *InfluxMetricsBackend) Close() {
	if b != nil && b.client != nil {
		b.client.Close()
	}
}
