package models

// Trigger is the subset of a backend trigger definition needed for display.
type Trigger struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
}

// Monitor is a backend monitor definition reshaped for the dashboard.
type Monitor struct {
	ID       string    `json:"id"`
	Version  int64     `json:"version"`
	Name     string    `json:"name"`
	Type     string    `json:"monitor_type"`
	Enabled  bool      `json:"enabled"`
	Triggers []Trigger `json:"triggers"`
}

// TriggerName returns the configured name for a trigger id, if any.
func (m Monitor) TriggerName(id string) string {
	for _, t := range m.Triggers {
		if t.ID == id {
			return t.Name
		}
	}
	return ""
}
