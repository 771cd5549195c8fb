// Package analyzer produces cost reports, trends and forecasts from stored
// usage records.
//
// The Analyzer only reads, through usage.Reader, and never mutates records.
// All monetary totals are rounded to six decimal places and per-request
// token averages to two; averages over zero requests are zero.
//
// # Reports
//
//   - DailyReport: totals for one UTC day broken down by agent, model,
//     hour of day ("HH:00") and the most expensive incidents
//   - AgentBreakdown: per-agent totals, models used and daily series
//   - IncidentAnalysis: cost, duration and timeline of one incident
//   - UsageSummary: token and cost totals grouped by agent, model or
//     incident
//
// # Trends and Forecasts
//
// Trends buckets records by day, ISO week (starting Monday) or month.
// Forecast fits an ordinary least-squares line to the daily cost buckets of
// the look-back window and projects it forward with a band of two residual
// standard deviations. Fewer than MinHistory buckets yields an empty
// forecast flagged Insufficient rather than an error.
package analyzer
