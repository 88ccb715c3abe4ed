package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsSelectorSelections is base for counter metric for total selections made
	StatsSelectorSelections = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_selector_selections",
		Help:         "stats_selector_selections provides total tool selections made",
		RequiredTags: []string{"scorer"},
	}

	StatsSelectorDeferredSelected = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_selector_deferred_selected",
		Help:         "stats_selector_deferred_selected provides total deferred tools exposed by selections",
		RequiredTags: []string{"scorer"},
	}

	StatsSelectorInvalidRequests = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_selector_invalid_requests",
		Help:         "stats_selector_invalid_requests provides total selections rejected before scoring",
		RequiredTags: []string{"scorer"},
	}

	StatsScoreCacheHits = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_score_cache_hits",
		Help:         "stats_score_cache_hits provides total score cache hits",
		RequiredTags: []string{"scorer"},
	}

	StatsScoreCacheMisses = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_score_cache_misses",
		Help:         "stats_score_cache_misses provides total score cache misses",
		RequiredTags: []string{"scorer"},
	}

	StatsSandboxRunsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sandbox_runs_succeeded",
		Help:         "stats_sandbox_runs_succeeded provides total orchestration scripts completed",
		RequiredTags: []string{"sandbox"},
	}

	StatsSandboxRunsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sandbox_runs_failed",
		Help:         "stats_sandbox_runs_failed provides total orchestration scripts halted by a fault",
		RequiredTags: []string{"sandbox", "fault"},
	}

	StatsSandboxCapabilityCalls = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sandbox_capability_calls",
		Help:         "stats_sandbox_capability_calls provides total capability calls made from scripts",
		RequiredTags: []string{"tool"},
	}

	StatsMCPRequests = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_requests",
		Help:         "stats_mcp_requests provides total MCP requests handled",
		RequiredTags: []string{"method", "status"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfMCPRequest = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_mcp_request",
		Help:         "perf_mcp_request provides duration of MCP request",
		RequiredTags: []string{"method"},
	}

	PerfSelect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_select",
		Help:         "perf_select provides duration of tool selection",
		RequiredTags: []string{"scorer"},
	}

	PerfSandboxRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_sandbox_run",
		Help:         "perf_sandbox_run provides duration of orchestration script run",
		RequiredTags: []string{"sandbox"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfMCPRequest,
	&PerfSandboxRun,
	&PerfSelect,
	&PerfToolCall,
	&StatsMCPRequests,
	&StatsSandboxCapabilityCalls,
	&StatsSandboxRunsFailed,
	&StatsSandboxRunsSucceeded,
	&StatsScoreCacheHits,
	&StatsScoreCacheMisses,
	&StatsSelectorDeferredSelected,
	&StatsSelectorInvalidRequests,
	&StatsSelectorSelections,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
