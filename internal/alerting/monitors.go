package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"alertcharts/internal/models"
)

type monitorResponse struct {
	ID      string `json:"_id"`
	Version int64  `json:"_version"`
	Monitor struct {
		Name        string                       `json:"name"`
		MonitorType string                       `json:"monitor_type"`
		Enabled     bool                         `json:"enabled"`
		Triggers    []map[string]json.RawMessage `json:"triggers"`
	} `json:"monitor"`
}

type triggerBody struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
}

// GetMonitor fetches a monitor definition. Triggers are wrapped by their
// kind (query_level_trigger, bucket_level_trigger, ...) on the wire.
func (c *Client) GetMonitor(ctx context.Context, id string) (models.Monitor, error) {
	var resp monitorResponse
	if err := c.do(ctx, http.MethodGet, monitorsPath+url.PathEscape(id), nil, nil, &resp); err != nil {
		return models.Monitor{}, fmt.Errorf("get monitor %s: %w", id, err)
	}

	monitor := models.Monitor{
		ID:       resp.ID,
		Version:  resp.Version,
		Name:     resp.Monitor.Name,
		Type:     resp.Monitor.MonitorType,
		Enabled:  resp.Monitor.Enabled,
		Triggers: make([]models.Trigger, 0, len(resp.Monitor.Triggers)),
	}
	for _, wrapped := range resp.Monitor.Triggers {
		for _, raw := range wrapped {
			var body triggerBody
			if err := json.Unmarshal(raw, &body); err != nil {
				return models.Monitor{}, fmt.Errorf("decode trigger of monitor %s: %w", id, err)
			}
			monitor.Triggers = append(monitor.Triggers, models.Trigger{
				ID:       body.ID,
				Name:     body.Name,
				Severity: body.Severity,
			})
		}
	}
	return monitor, nil
}
