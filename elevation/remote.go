package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/signalsfoundry/coverage-engine/internal/logging"
	"github.com/signalsfoundry/coverage-engine/model"
)

// DefaultRemoteURL is the public OpenTopoData-compatible endpoint queried
// when local tiles cannot resolve a point.
const DefaultRemoteURL = "https://api.opentopodata.org"

// defaultDatasets are tried in order per batch; the first dataset that
// answers wins. Later entries cover regions the earlier ones do not.
var defaultDatasets = []string{"ned10m", "srtm30m", "aster30m"}

// remoteBatchLimit is the service's per-request location cap.
const remoteBatchLimit = 100

// RemoteClient queries an OpenTopoData-style HTTP elevation API:
// GET {base}/v1/{dataset}?locations=lat,lon|lat,lon|...
type RemoteClient struct {
	baseURL  string
	datasets []string
	client   *http.Client
	log      logging.Logger
}

// RemoteOption configures a RemoteClient.
type RemoteOption func(*RemoteClient)

// WithRemoteURL overrides the API base URL.
func WithRemoteURL(base string) RemoteOption {
	return func(c *RemoteClient) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithRemoteDatasets overrides the dataset fallback order.
func WithRemoteDatasets(datasets ...string) RemoteOption {
	return func(c *RemoteClient) {
		if len(datasets) > 0 {
			c.datasets = datasets
		}
	}
}

// WithRemoteHTTPClient overrides the HTTP client.
func WithRemoteHTTPClient(hc *http.Client) RemoteOption {
	return func(c *RemoteClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithRemoteLogger sets the structured logger. Defaults to Noop.
func WithRemoteLogger(l logging.Logger) RemoteOption {
	return func(c *RemoteClient) {
		if l != nil {
			c.log = l
		}
	}
}

// NewRemoteClient creates a client for the public endpoint unless
// overridden.
func NewRemoteClient(opts ...RemoteOption) *RemoteClient {
	c := &RemoteClient{
		baseURL:  DefaultRemoteURL,
		datasets: defaultDatasets,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type remoteResponse struct {
	Results []struct {
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// Lookup resolves elevations for the given points, chunked to the
// service's batch limit. Points carry ok=false when every dataset came
// back empty for them; a transport failure fails the whole call.
func (c *RemoteClient) Lookup(ctx context.Context, points []model.Point) ([]float64, []bool, error) {
	elev := make([]float64, len(points))
	ok := make([]bool, len(points))

	for start := 0; start < len(points); start += remoteBatchLimit {
		end := start + remoteBatchLimit
		if end > len(points) {
			end = len(points)
		}
		if err := c.lookupChunk(ctx, points[start:end], elev[start:end], ok[start:end]); err != nil {
			return nil, nil, err
		}
	}
	return elev, ok, nil
}

func (c *RemoteClient) lookupChunk(ctx context.Context, points []model.Point, elev []float64, ok []bool) error {
	locs := make([]string, len(points))
	for i, p := range points {
		locs[i] = fmt.Sprintf("%.6f,%.6f", p.LatDeg, p.LonDeg)
	}
	query := strings.Join(locs, "|")

	var lastErr error
	for _, dataset := range c.datasets {
		resolved, err := c.query(ctx, dataset, query, len(points))
		if err != nil {
			lastErr = err
			continue
		}
		allNull := true
		for i, v := range resolved {
			if v != nil {
				elev[i] = *v
				ok[i] = true
				allNull = false
			}
		}
		if !allNull {
			return nil
		}
		// Dataset has no coverage here; try the next one.
	}
	if lastErr != nil {
		return fmt.Errorf("remote elevation lookup: %w", lastErr)
	}
	return nil // every dataset answered, none covers these points
}

func (c *RemoteClient) query(ctx context.Context, dataset, locations string, want int) ([]*float64, error) {
	url := fmt.Sprintf("%s/v1/%s?locations=%s", c.baseURL, dataset, locations)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset %s: status %d", dataset, resp.StatusCode)
	}

	var body remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", dataset, err)
	}
	if len(body.Results) != want {
		return nil, fmt.Errorf("dataset %s: got %d results, want %d", dataset, len(body.Results), want)
	}

	out := make([]*float64, want)
	for i, r := range body.Results {
		out[i] = r.Elevation
	}
	return out, nil
}
