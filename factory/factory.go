package factory

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/sandbox"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/toolscope/store"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/tools/fxrate"
	"github.com/effective-security/toolscope/tools/github"
	"github.com/effective-security/toolscope/tools/httpget"
	"github.com/effective-security/toolscope/tools/openmeteo"
	"github.com/effective-security/toolscope/tools/tavily"
	"github.com/effective-security/toolscope/tools/webapi"
	"github.com/effective-security/toolscope/tools/wikipedia"
	"github.com/effective-security/toolscope/toolset"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolscope", "factory")

// DefaultRedisPrefix is the key prefix of the Redis score cache
const DefaultRedisPrefix = "toolscope"

// Option configures the factory
type Option func(*options)

type options struct {
	httpClient *http.Client
	callback   toolset.Callback
	cache      store.ScoreCache
	extra      []*tools.Descriptor
	builtins   bool
}

// WithHTTPClient sets the client used by the built-in tools
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithCallback sets the callback of the toolset and the sandbox
func WithCallback(cb toolset.Callback) Option {
	return func(o *options) {
		o.callback = cb
	}
}

// WithScoreCache replaces the cache created from the configuration
func WithScoreCache(cache store.ScoreCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithDescriptors registers additional descriptors after the built-in tools
func WithDescriptors(list ...*tools.Descriptor) Option {
	return func(o *options) {
		o.extra = append(o.extra, list...)
	}
}

// WithoutBuiltins leaves the built-in tools out of the catalog
func WithoutBuiltins() Option {
	return func(o *options) {
		o.builtins = false
	}
}

// Load returns the toolset described by the configuration file
func Load(location string, opts ...Option) (*toolset.Toolset, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// New returns the toolset described by the configuration.
// The catalog holds the built-in tools in this order: web_search, wikipedia,
// http_get, run_orchestration, open_meteo_weather, github_repo_search, fx_rate,
// followed by the descriptors given WithDescriptors.
func New(cfg *Config, opts ...Option) (*toolset.Toolset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{builtins: true}
	for _, opt := range opts {
		opt(o)
	}

	cat := catalog.New()
	sb := NewSandbox(cfg, o.callback, cat)

	var (
		list []*tools.Descriptor
		err  error
	)
	if o.builtins {
		list, err = Builtins(cfg, o.httpClient, sb)
		if err != nil {
			return nil, err
		}
	}
	list = append(list, o.extra...)

	for _, d := range list {
		tc := cfg.Tools[d.Name()]
		if tc != nil {
			if tc.Disabled {
				logger.KV(xlog.DEBUG, "status", "tool_disabled", "tool", d.Name())
				continue
			}
			d = override(d, tc)
		}
		if err = cat.Register(d); err != nil {
			return nil, err
		}
	}
	cat.Freeze()

	sel, err := NewSelector(cfg, o.cache)
	if err != nil {
		return nil, err
	}

	tsOpts := []toolset.Option{
		toolset.WithSelector(sel),
		toolset.WithTopK(values.NumbersCoalesce(cfg.Selector.TopK, selector.DefaultTopK)),
	}
	if o.callback != nil {
		tsOpts = append(tsOpts, toolset.WithCallback(o.callback))
	}
	if !cfg.Sandbox.Disabled && !o.builtins {
		tsOpts = append(tsOpts, toolset.WithSandbox(sb))
	}

	logger.KV(xlog.INFO,
		"status", "toolset_created",
		"tools", cat.Names(),
		"scorer", sel.Scorer().Name(),
	)
	return toolset.New(cat, tsOpts...), nil
}

// NewSandbox returns a sandbox with the configured limits,
// calling the capabilities registered in cat.
// The configuration must be validated.
func NewSandbox(cfg *Config, cb tools.Callback, cat *catalog.Catalog) *sandbox.Sandbox {
	timeout, _ := parseDuration(cfg.Sandbox.Timeout)
	opts := []sandbox.Option{
		sandbox.WithCatalog(cat),
		sandbox.WithTimeout(timeout),
		sandbox.WithMaxSteps(cfg.Sandbox.MaxSteps),
		sandbox.WithMaxOutput(cfg.Sandbox.MaxOutput),
	}
	if cb != nil {
		opts = append(opts, sandbox.WithCallback(cb))
	}
	return sandbox.New(opts...)
}

// Builtins returns the descriptors of the built-in tools.
// The sandbox descriptor is left out when sb is nil or the sandbox is disabled.
func Builtins(cfg *Config, hc *http.Client, sb *sandbox.Sandbox) ([]*tools.Descriptor, error) {
	caps := cfg.Capabilities
	timeout, err := parseDuration(caps.Timeout)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid capabilities timeout")
	}
	if hc == nil {
		if timeout == 0 {
			timeout = webapi.DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	search := tavily.New(caps.Tavily.APIKey).WithHTTPClient(hc)
	if caps.Tavily.BaseURL != "" {
		search = search.WithBaseURL(caps.Tavily.BaseURL)
	}
	wiki := wikipedia.New(hc)
	if caps.Wikipedia.BaseURL != "" {
		wiki = wiki.WithBaseURL(caps.Wikipedia.BaseURL)
	}
	weather := openmeteo.New(hc).WithURLs(
		values.StringsCoalesce(caps.OpenMeteo.GeocodingURL, openmeteo.DefaultGeocodingURL),
		values.StringsCoalesce(caps.OpenMeteo.ForecastURL, openmeteo.DefaultForecastURL),
	)
	repos := github.New(hc, caps.GitHub.Token)
	if caps.GitHub.BaseURL != "" {
		repos = repos.WithBaseURL(caps.GitHub.BaseURL)
	}
	fx := fxrate.New(hc, caps.FX.AccessKey)
	if caps.FX.BaseURL != "" {
		fx = fx.WithBaseURL(caps.FX.BaseURL)
	}

	list := []*tools.Descriptor{
		tavily.Descriptor(search),
		wikipedia.Descriptor(wiki),
		httpget.Descriptor(httpget.New(hc)),
	}
	if sb != nil && !cfg.Sandbox.Disabled {
		list = append(list, sandbox.Descriptor(sb))
	}
	list = append(list,
		openmeteo.Descriptor(weather),
		github.Descriptor(repos),
		fxrate.Descriptor(fx),
	)
	return list, nil
}

// NewSelector returns the configured selector, with the score cache if any.
func NewSelector(cfg *Config, cache store.ScoreCache) (*selector.Selector, error) {
	var scorer selector.Scorer
	switch values.StringsCoalesce(cfg.Selector.Scorer, ScorerLexical) {
	case ScorerBM25:
		b := selector.DefaultBM25B
		if cfg.Selector.BM25.B != nil {
			b = *cfg.Selector.BM25.B
		}
		scorer = selector.NewBM25Scorer(cfg.Selector.BM25.K1, b)
	default:
		scorer = selector.NewLexicalScorer()
	}

	if cache == nil {
		var err error
		cache, err = NewScoreCache(&cfg.Cache)
		if err != nil {
			return nil, err
		}
	}
	if cache != nil {
		scorer = selector.NewCachedScorer(scorer, cache)
	}
	return selector.New(selector.WithScorer(scorer)), nil
}

// NewScoreCache returns the configured cache, or nil when the kind is none.
func NewScoreCache(cfg *CacheConfig) (store.ScoreCache, error) {
	switch values.StringsCoalesce(cfg.Kind, CacheNone) {
	case CacheMemory:
		return store.NewMemoryScoreCache(cfg.MaxEntries), nil
	case CacheRedis:
		ttl, err := parseDuration(cfg.TTL)
		if err != nil {
			return nil, errors.WithMessage(err, "invalid cache ttl")
		}
		ro, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid redis url")
		}
		client := redis.NewClient(ro)
		return store.NewRedisScoreCache(client, values.StringsCoalesce(cfg.Prefix, DefaultRedisPrefix), ttl), nil
	case CacheNone:
		return nil, nil
	}
	return nil, errors.Newf("unsupported cache kind: %s", cfg.Kind)
}

// Ping checks the connection of a Redis score cache
func Ping(ctx context.Context, cfg *CacheConfig) error {
	if cfg.Kind != CacheRedis {
		return nil
	}
	ro, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return errors.Wrap(err, "invalid redis url")
	}
	client := redis.NewClient(ro)
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return errors.Wrap(client.Ping(ctx).Err(), "failed to ping redis")
}

// override returns a copy of the descriptor with the configured eager flag
// and the additional examples.
func override(d *tools.Descriptor, tc *ToolConfig) *tools.Descriptor {
	info := d.Info()
	var opts []tools.Option
	if info.Eager {
		opts = append(opts, tools.Eager())
	}
	if tc.Eager != nil {
		opts = append(opts, tools.WithEager(*tc.Eager))
	}
	opts = append(opts, tools.WithExamples(info.Examples...), tools.WithExamples(tc.Examples...))
	return tools.New(info.Name, info.Description, d.Invocation(), opts...)
}
