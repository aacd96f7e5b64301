package alerting

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"alertcharts/internal/models"
)

const (
	windowPageSize = 1000
	windowMaxPages = 10
)

// AlertQuery holds the listing parameters accepted by the backend.
type AlertQuery struct {
	MonitorID     string
	Size          int
	From          int
	SortField     string
	SortDirection string
	Severity      string
	State         string
	Search        string
}

func (q AlertQuery) values() url.Values {
	v := url.Values{}
	size := q.Size
	if size <= 0 {
		size = 20
	}
	v.Set("size", strconv.Itoa(size))
	v.Set("startIndex", strconv.Itoa(max(q.From, 0)))
	v.Set("sortString", lo.Ternary(q.SortField == "", "start_time", q.SortField))
	v.Set("sortOrder", lo.Ternary(strings.EqualFold(q.SortDirection, "asc"), "asc", "desc"))
	v.Set("severityLevel", lo.Ternary(q.Severity == "", "ALL", q.Severity))
	v.Set("alertState", lo.Ternary(q.State == "", "ALL", strings.ToUpper(q.State)))
	if q.Search != "" {
		v.Set("searchString", q.Search)
	}
	if q.MonitorID != "" {
		v.Set("monitorId", q.MonitorID)
	}
	return v
}

// AlertPage is one page of alert listing results.
type AlertPage struct {
	Alerts      []models.AlertRecord `json:"alerts"`
	TotalAlerts int                  `json:"totalAlerts"`
}

// SearchAlerts lists alerts matching q.
func (c *Client) SearchAlerts(ctx context.Context, q AlertQuery) (AlertPage, error) {
	var page AlertPage
	if err := c.do(ctx, http.MethodGet, alertsPath, q.values(), nil, &page); err != nil {
		return AlertPage{}, fmt.Errorf("search alerts: %w", err)
	}
	if page.Alerts == nil {
		page.Alerts = []models.AlertRecord{}
	}
	return page, nil
}

// AlertsInWindow pages through a monitor's alerts and keeps those whose
// lifetime overlaps window.
func (c *Client) AlertsInWindow(ctx context.Context, monitorID string, window models.TimeWindow) ([]models.AlertRecord, error) {
	var all []models.AlertRecord
	for page := 0; page < windowMaxPages; page++ {
		result, err := c.SearchAlerts(ctx, AlertQuery{
			MonitorID:     monitorID,
			Size:          windowPageSize,
			From:          page * windowPageSize,
			SortField:     "start_time",
			SortDirection: "desc",
		})
		if err != nil {
			return nil, err
		}
		all = append(all, result.Alerts...)

		if len(result.Alerts) < windowPageSize || len(all) >= result.TotalAlerts {
			break
		}
		// Newest first, so later pages only hold older alerts.
		oldest := result.Alerts[len(result.Alerts)-1]
		if oldest.EndTime != nil && oldest.EndTime.Before(window.Start) {
			break
		}
		if page == windowMaxPages-1 {
			c.logger.Warn("alert window truncated",
				zap.String("monitor_id", monitorID),
				zap.Int("fetched", len(all)),
				zap.Int("total", result.TotalAlerts),
			)
		}
	}
	return lo.Filter(all, func(a models.AlertRecord, _ int) bool {
		if a.StartTime.After(window.End) {
			return false
		}
		return a.EndTime == nil || !a.EndTime.Before(window.Start)
	}), nil
}

// AcknowledgeFailure names an alert the backend refused to acknowledge.
type AcknowledgeFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// AcknowledgeResult reports per-alert acknowledge outcomes.
type AcknowledgeResult struct {
	Success []string             `json:"success"`
	Failed  []AcknowledgeFailure `json:"failed"`
}

// AcknowledgeAlerts acknowledges the given alerts of a monitor.
func (c *Client) AcknowledgeAlerts(ctx context.Context, monitorID string, alertIDs []string) (AcknowledgeResult, error) {
	if strings.TrimSpace(monitorID) == "" {
		return AcknowledgeResult{}, fmt.Errorf("acknowledge alerts: monitor id is required")
	}
	ids := lo.Uniq(lo.Compact(alertIDs))
	if len(ids) == 0 {
		return AcknowledgeResult{}, fmt.Errorf("acknowledge alerts: no alert ids given")
	}
	path := monitorsPath + url.PathEscape(monitorID) + "/_acknowledge/alerts"
	var result AcknowledgeResult
	if err := c.do(ctx, http.MethodPost, path, nil, map[string][]string{"alerts": ids}, &result); err != nil {
		return AcknowledgeResult{}, fmt.Errorf("acknowledge alerts: %w", err)
	}
	if result.Success == nil {
		result.Success = []string{}
	}
	if result.Failed == nil {
		result.Failed = []AcknowledgeFailure{}
	}
	return result, nil
}
