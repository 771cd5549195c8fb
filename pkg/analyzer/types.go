package analyzer

import "time"

// Trend granularities.
const (
	GranularityDaily   = "daily"
	GranularityWeekly  = "weekly"
	GranularityMonthly = "monthly"
)

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Group-by fields accepted by UsageSummary.
const (
	GroupByAgent    = "agent_id"
	GroupByModel    = "model_id"
	GroupByIncident = "incident_id"
)

// DateRange names the inclusive days a report covers.
type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Breakdown is the cost of one group of records.
type Breakdown struct {
	Cost     float64 `json:"cost"`
	Tokens   int64   `json:"tokens"`
	Requests int     `json:"requests"`
}

// IncidentCost is the cost of one incident.
type IncidentCost struct {
	IncidentID string `json:"incident_id"`
	Breakdown
}

// CostSummary is the result of DailyReport.
type CostSummary struct {
	TotalCost               float64              `json:"total_cost"`
	TotalTokens             int64                `json:"total_tokens"`
	TotalRequests           int                  `json:"total_requests"`
	AverageCostPerRequest   float64              `json:"average_cost_per_request"`
	AverageTokensPerRequest float64              `json:"average_tokens_per_request"`
	DateRange               DateRange            `json:"date_range"`
	ByAgent                 map[string]Breakdown `json:"by_agent"`
	ByModel                 map[string]Breakdown `json:"by_model"`
	ByHour                  map[string]Breakdown `json:"by_hour"`
	TopIncidents            []IncidentCost       `json:"top_incidents"`

	// Truncated is set when the query limit was reached.
	Truncated bool `json:"truncated,omitempty"`
}

// AgentCost is one agent's entry in an AgentReport.
type AgentCost struct {
	TotalCost               float64              `json:"total_cost"`
	TotalTokens             int64                `json:"total_tokens"`
	TotalRequests           int                  `json:"total_requests"`
	AverageCostPerRequest   float64              `json:"average_cost_per_request"`
	AverageTokensPerRequest float64              `json:"average_tokens_per_request"`
	ModelsUsed              []string             `json:"models_used"`
	UniqueIncidents         int                  `json:"unique_incidents"`
	Daily                   map[string]Breakdown `json:"daily_breakdown"`
}

// AgentSummary totals an AgentReport.
type AgentSummary struct {
	TotalAgents   int     `json:"total_agents"`
	TotalCost     float64 `json:"total_cost"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalRequests int     `json:"total_requests"`
}

// AgentReport is the result of AgentBreakdown.
type AgentReport struct {
	DateRange DateRange             `json:"date_range"`
	Agents    map[string]*AgentCost `json:"agents"`
	Summary   AgentSummary          `json:"summary"`
	Truncated bool                  `json:"truncated,omitempty"`
}

// IncidentSummary totals an IncidentReport.
type IncidentSummary struct {
	TotalCost       float64   `json:"total_cost"`
	TotalTokens     int64     `json:"total_tokens"`
	TotalRequests   int       `json:"total_requests"`
	DurationMinutes float64   `json:"duration_minutes"`
	CostPerMinute   float64   `json:"cost_per_minute"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

// TimelineEntry is one call in an incident timeline.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	ModelID   string    `json:"model_id"`
	Cost      float64   `json:"cost"`
	Tokens    int64     `json:"tokens"`
}

// IncidentReport is the result of IncidentAnalysis.
type IncidentReport struct {
	IncidentID string               `json:"incident_id"`
	Summary    IncidentSummary      `json:"summary"`
	ByAgent    map[string]Breakdown `json:"by_agent"`
	ByModel    map[string]Breakdown `json:"by_model"`
	Timeline   []TimelineEntry      `json:"timeline"`
}

// GroupSummary is one group of a Summary.
type GroupSummary struct {
	TotalTokens  int64   `json:"total_tokens"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
	RequestCount int     `json:"request_count"`
}

// Summary is the result of UsageSummary.
type Summary struct {
	GroupBy       string                   `json:"group_by"`
	Groups        map[string]*GroupSummary `json:"groups"`
	TotalCost     float64                  `json:"total_cost"`
	TotalTokens   int64                    `json:"total_tokens"`
	TotalRequests int                      `json:"total_requests"`
	DateRange     DateRange                `json:"date_range"`
}

// TrendPoint is one bucket of a trend.
type TrendPoint struct {
	Period   string  `json:"date"`
	Cost     float64 `json:"cost"`
	Tokens   int64   `json:"tokens"`
	Requests int     `json:"requests"`
}

// ForecastPoint is one projected day.
type ForecastPoint struct {
	Period             string     `json:"period"`
	PredictedCost      float64    `json:"predicted_cost"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	TrendDirection     string     `json:"trend_direction"`
}

// Forecast is the result of Forecast and ForecastFrom.
type Forecast struct {
	Points []ForecastPoint `json:"points"`

	// Insufficient is set when there were fewer history buckets than
	// required; Points is then empty.
	Insufficient bool `json:"insufficient_data"`

	HistoryBuckets int     `json:"history_buckets"`
	Slope          float64 `json:"slope"`
	Intercept      float64 `json:"intercept"`
	StdDev         float64 `json:"residual_stddev"`
}

// ThresholdCheck is the result of CheckThresholds.
type ThresholdCheck struct {
	Date                    string  `json:"date"`
	DailyThresholdExceeded  bool    `json:"daily_threshold_exceeded"`
	HourlyThresholdExceeded bool    `json:"hourly_threshold_exceeded"`
	DailyCost               float64 `json:"daily_cost"`
	DailyThreshold          float64 `json:"daily_threshold"`
	CurrentHour             string  `json:"current_hour"`
	CurrentHourCost         float64 `json:"current_hour_cost"`
	HourlyThreshold         float64 `json:"hourly_threshold"`
	AlertRequired           bool    `json:"alert_required"`
}
