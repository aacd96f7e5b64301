package alerting

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"alertcharts/internal/chart"
	"alertcharts/internal/models"
)

const histogramAggName = "alerts_over_time"

type histogramResponse struct {
	Aggregations map[string]struct {
		Buckets []struct {
			Key      int64 `json:"key"`
			DocCount int   `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

func histogramQuery(monitorID string, window models.TimeWindow, interval chart.Interval) map[string]any {
	start, end := window.Start.UnixMilli(), window.End.UnixMilli()
	return map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"monitor_id": monitorID}},
					map[string]any{"range": map[string]any{
						"start_time": map[string]any{"gte": start, "lte": end, "format": "epoch_millis"},
					}},
				},
			},
		},
		"aggs": map[string]any{
			histogramAggName: map[string]any{
				"date_histogram": map[string]any{
					"field":           "start_time",
					"fixed_interval":  interval.Name,
					"min_doc_count":   0,
					"extended_bounds": map[string]any{"min": start, "max": end},
				},
			},
		},
	}
}

// AlertHistogram asks the backend for alert start counts per interval over window.
func (c *Client) AlertHistogram(ctx context.Context, monitorID string, window models.TimeWindow, interval chart.Interval) ([]models.HistogramBucket, error) {
	path := "/" + url.PathEscape(c.alertIndex) + "/_search"
	var resp histogramResponse
	if err := c.do(ctx, http.MethodPost, path, nil, histogramQuery(monitorID, window, interval), &resp); err != nil {
		return nil, fmt.Errorf("alert histogram: %w", err)
	}
	agg, ok := resp.Aggregations[histogramAggName]
	if !ok {
		return nil, fmt.Errorf("alert histogram: response has no %s aggregation", histogramAggName)
	}
	buckets := make([]models.HistogramBucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		start := time.UnixMilli(b.Key).UTC()
		buckets = append(buckets, models.HistogramBucket{
			Start: start,
			End:   start.Add(interval.Duration),
			Count: b.DocCount,
		})
	}
	return buckets, nil
}
