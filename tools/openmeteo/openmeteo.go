// Package openmeteo provides the open_meteo_weather capability:
// a one day forecast for a city from the Open-Meteo geocoding and forecast APIs.
package openmeteo

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/schema"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/tools/webapi"
)

// ToolName of the capability
const ToolName = "open_meteo_weather"

// Default API locations
const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

// Examples of the tool usage
var Examples = []string{
	"open_meteo_weather('San Francisco')",
	"open_meteo_weather('Tokyo')",
	"open_meteo_weather('London')",
}

// Request is the tool input
type Request struct {
	City string `json:"city" yaml:"city" jsonschema:"title=City,description=City name like San Francisco or Tokyo."`
}

// Result is the forecast summary
type Result struct {
	City string `json:"city" yaml:"city"`
	// Found is false when the city or its forecast is not available
	Found         bool    `json:"found" yaml:"found"`
	Geocoded      bool    `json:"-" yaml:"-"`
	AvgTemp       float64 `json:"avg_temp" yaml:"avg_temp"`
	MaxTemp       float64 `json:"max_temp" yaml:"max_temp"`
	MaxPrecipProb float64 `json:"max_precip_prob" yaml:"max_precip_prob"`
}

func (r *Result) String() string {
	switch {
	case !r.Geocoded:
		return fmt.Sprintf("No geocoding results for %s.", r.City)
	case !r.Found:
		return fmt.Sprintf("Could not fetch forecast for %s.", r.City)
	}
	return fmt.Sprintf("Weather for %s: avg temp %.1fC, high %.1fC, max precip prob %s%%",
		r.City, r.AvgTemp, r.MaxTemp, strconv.FormatFloat(r.MaxPrecipProb, 'f', -1, 64))
}

type geocoding struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecast struct {
	Hourly struct {
		Temperature []*float64 `json:"temperature_2m"`
		Precip      []*float64 `json:"precipitation_probability"`
	} `json:"hourly"`
}

// Tool reports the weather
type Tool struct {
	client       *webapi.Client
	geocodingURL string
	forecastURL  string
}

var _ tools.Tool[Request, Result] = (*Tool)(nil)

// New returns the tool
func New(hc *http.Client) *Tool {
	return &Tool{
		client:       webapi.NewClient(hc),
		geocodingURL: DefaultGeocodingURL,
		forecastURL:  DefaultForecastURL,
	}
}

// Descriptor returns the deferred descriptor of the tool.
func Descriptor(t *Tool, opts ...tools.Option) *tools.Descriptor {
	opts = append([]tools.Option{tools.WithExamples(Examples...)}, opts...)
	return tools.FromTool(t, opts...)
}

// WithURLs overrides the API locations, empty values are ignored.
func (t *Tool) WithURLs(geocodingURL, forecastURL string) *Tool {
	if geocodingURL != "" {
		t.geocodingURL = geocodingURL
	}
	if forecastURL != "" {
		t.forecastURL = forecastURL
	}
	return t
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Get a 1-day forecast using Open-Meteo geocoding + forecast APIs by city name."
}

func (t *Tool) Parameters() any {
	return schema.MustFor[Request]()
}

func (t *Tool) Run(ctx context.Context, req *Request) (*Result, error) {
	city := strings.TrimSpace(req.City)
	if city == "" {
		return nil, errors.New("invalid request: empty city")
	}
	res := &Result{City: city}

	var geo geocoding
	err := t.client.GetJSON(ctx, t.geocodingURL, url.Values{
		"name":     {city},
		"count":    {"1"},
		"language": {"en"},
		"format":   {"json"},
	}, nil, &geo)
	if err != nil {
		return nil, errors.WithMessage(err, "geocoding failed")
	}
	if len(geo.Results) == 0 {
		return res, nil
	}
	res.Geocoded = true

	first := geo.Results[0]
	var fc forecast
	err = t.client.GetJSON(ctx, t.forecastURL, url.Values{
		"latitude":      {strconv.FormatFloat(first.Latitude, 'f', -1, 64)},
		"longitude":     {strconv.FormatFloat(first.Longitude, 'f', -1, 64)},
		"hourly":        {"temperature_2m,precipitation_probability"},
		"forecast_days": {"1"},
		"timezone":      {"auto"},
	}, nil, &fc)
	if err != nil {
		return nil, errors.WithMessage(err, "forecast failed")
	}

	temps := values(fc.Hourly.Temperature)
	if len(temps) == 0 {
		return res, nil
	}
	sum, high := 0.0, math.Inf(-1)
	for _, v := range temps {
		sum += v
		high = math.Max(high, v)
	}
	res.Found = true
	res.AvgTemp = math.Round(sum/float64(len(temps))*10) / 10
	res.MaxTemp = math.Round(high*10) / 10
	for _, p := range values(fc.Hourly.Precip) {
		res.MaxPrecipProb = math.Max(res.MaxPrecipProb, p)
	}
	return res, nil
}

// Call accepts {"city": "..."} or the city as plain text.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	return tools.CallText(ctx, t, input, func(r *Request, s string) { r.City = s })
}

// values skips the missing hours
func values(list []*float64) []float64 {
	res := make([]float64, 0, len(list))
	for _, v := range list {
		if v != nil {
			res = append(res, *v)
		}
	}
	return res
}
