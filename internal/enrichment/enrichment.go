// Package enrichment fetches weather/elevation context for closed trips. The
// provider is best-effort by contract: it returns ok=false instead of an
// error, and trip closure never waits on it beyond a bounded budget.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-engine/internal/models"
)

// Provider resolves enrichment for a coordinate and moment. ok is false when
// the data is unavailable; implementations never return partial garbage.
type Provider interface {
	Fetch(ctx context.Context, lat, lon float64, ts time.Time) (e models.Enrichment, ok bool)
}

// HTTPProvider calls an external weather endpoint with a bounded timeout and
// a small number of attempts.
type HTTPProvider struct {
	baseURL  string
	attempts int
	client   *http.Client
}

// NewHTTPProvider builds a provider against baseURL. timeout bounds each
// attempt; attempts is the total number of tries.
func NewHTTPProvider(baseURL string, timeout time.Duration, attempts int) *HTTPProvider {
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPProvider{
		baseURL:  baseURL,
		attempts: attempts,
		client:   &http.Client{Timeout: timeout},
	}
}

// Fetch queries the provider. Exhausting the attempts resolves to ok=false.
func (p *HTTPProvider) Fetch(ctx context.Context, lat, lon float64, ts time.Time) (models.Enrichment, bool) {
	url := fmt.Sprintf("%s?lat=%.6f&lon=%.6f&ts=%d", p.baseURL, lat, lon, ts.Unix())
	for i := 0; i < p.attempts; i++ {
		e, err := p.fetchOnce(ctx, url)
		if err == nil {
			return e, true
		}
		log.WithError(err).WithField("attempt", i+1).Debug("enrichment fetch failed")
		if ctx.Err() != nil {
			break
		}
	}
	return models.Enrichment{}, false
}

func (p *HTTPProvider) fetchOnce(ctx context.Context, url string) (models.Enrichment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Enrichment{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return models.Enrichment{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Enrichment{}, fmt.Errorf("enrichment status %d", resp.StatusCode)
	}
	var obj struct {
		Temperature   *float64 `json:"temperature"`
		WindSpeed     *float64 `json:"wind_speed"`
		Precipitation *float64 `json:"precipitation"`
		Conditions    string   `json:"conditions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return models.Enrichment{}, err
	}
	return models.Enrichment{
		Temperature:   obj.Temperature,
		WindSpeed:     obj.WindSpeed,
		Precipitation: obj.Precipitation,
		Conditions:    obj.Conditions,
	}, nil
}

// Noop is a Provider that is always unavailable. Used when no provider is
// configured; trips close with nil enrichment.
type Noop struct{}

// Fetch always reports unavailable.
func (Noop) Fetch(ctx context.Context, lat, lon float64, ts time.Time) (models.Enrichment, bool) {
	return models.Enrichment{}, false
}
