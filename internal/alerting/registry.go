package alerting

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"alertcharts/internal/config"
)

// ErrUnknownDataSource is returned for ids not present in the registry.
var ErrUnknownDataSource = errors.New("unknown data source")

// Registry holds one client per enabled data source.
type Registry struct {
	clients   map[string]*Client
	defaultID string
}

// NewRegistry builds clients for every enabled data source. The first enabled
// source is the default unless one is marked default explicitly.
func NewRegistry(sources []config.DataSource, alertIndex string, logger *zap.Logger, extra ...Option) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{clients: make(map[string]*Client)}
	for _, ds := range sources {
		if !ds.Enabled {
			continue
		}
		opts := []Option{
			WithTimeout(time.Duration(ds.TimeoutSeconds) * time.Second),
			WithAlertIndex(alertIndex),
			WithLogger(logger),
		}
		if ds.APIKey != "" {
			opts = append(opts, WithAPIKey(ds.APIKey))
		} else if ds.Username != "" {
			opts = append(opts, WithBasicAuth(ds.Username, ds.Password))
		}
		opts = append(opts, extra...)
		cli, err := New(ds.ID, ds.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		r.clients[ds.ID] = cli
		if ds.Default || r.defaultID == "" {
			r.defaultID = ds.ID
		}
	}
	if len(r.clients) == 0 {
		return nil, errors.New("no enabled data sources")
	}
	return r, nil
}

// Client returns the client for id, or the default client when id is empty.
func (r *Registry) Client(id string) (*Client, error) {
	if id == "" {
		id = r.defaultID
	}
	cli, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataSource, id)
	}
	return cli, nil
}

// DefaultID returns the id of the default data source.
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// Clients returns all clients ordered by id.
func (r *Registry) Clients() []*Client {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Client, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.clients[id])
	}
	return out
}
