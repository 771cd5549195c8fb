package analyzer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"mercator-hq/tokenmeter/pkg/pricing"
	"mercator-hq/tokenmeter/pkg/usage"
)

const hourLayout = "15"

func hourKey(t time.Time) string {
	return t.UTC().Format(hourLayout) + ":00"
}

func (b *Breakdown) add(r *usage.Record) {
	b.Cost += r.EstimatedCost
	b.Tokens += r.TotalTokens
	b.Requests++
}

func accumulate(m map[string]Breakdown, key string, r *usage.Record) {
	b := m[key]
	b.add(r)
	m[key] = b
}

func roundBreakdowns(m map[string]Breakdown) {
	for k, b := range m {
		b.Cost = pricing.Round(b.Cost, 6)
		m[k] = b
	}
}

func averages(cost float64, tokens int64, requests int) (float64, float64) {
	if requests == 0 {
		return 0, 0
	}
	return pricing.Round(cost/float64(requests), 6), pricing.Round(float64(tokens)/float64(requests), 2)
}

func dateRange(start, end time.Time) DateRange {
	return DateRange{StartDate: usage.PartitionKey(start), EndDate: usage.PartitionKey(end)}
}

// DailyReport summarizes the spend of one UTC day, optionally restricted to
// some agents.
func (a *Analyzer) DailyReport(ctx context.Context, day time.Time, agentIDs ...string) (*CostSummary, error) {
	records, truncated, err := a.query(ctx, day, day, agentIDs)
	if err != nil {
		return nil, err
	}

	s := &CostSummary{
		DateRange: dateRange(day, day),
		ByAgent:   make(map[string]Breakdown),
		ByModel:   make(map[string]Breakdown),
		ByHour:    make(map[string]Breakdown),
		Truncated: truncated,
	}
	incidents := make(map[string]Breakdown)

	for _, r := range records {
		s.TotalCost += r.EstimatedCost
		s.TotalTokens += r.TotalTokens
		s.TotalRequests++

		accumulate(s.ByAgent, r.AgentID, r)
		accumulate(s.ByModel, r.ModelID, r)
		accumulate(s.ByHour, hourKey(r.Timestamp), r)
		if r.IncidentID != "" {
			accumulate(incidents, r.IncidentID, r)
		}
	}

	s.TotalCost = pricing.Round(s.TotalCost, 6)
	s.AverageCostPerRequest, s.AverageTokensPerRequest = averages(s.TotalCost, s.TotalTokens, s.TotalRequests)
	roundBreakdowns(s.ByAgent)
	roundBreakdowns(s.ByModel)
	roundBreakdowns(s.ByHour)
	s.TopIncidents = topIncidents(incidents, a.cfg.TopIncidents)

	a.logger.Debug("daily report generated",
		"date", s.DateRange.StartDate,
		"requests", s.TotalRequests,
		"total_cost", s.TotalCost,
	)
	return s, nil
}

// topIncidents orders incidents by cost, highest first, and keeps n.
func topIncidents(m map[string]Breakdown, n int) []IncidentCost {
	out := make([]IncidentCost, 0, len(m))
	for id, b := range m {
		b.Cost = pricing.Round(b.Cost, 6)
		out = append(out, IncidentCost{IncidentID: id, Breakdown: b})
	}
	slices.SortFunc(out, func(x, y IncidentCost) int {
		if c := cmp.Compare(y.Cost, x.Cost); c != 0 {
			return c
		}
		return cmp.Compare(x.IncidentID, y.IncidentID)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// AgentBreakdown reports per-agent spend over [start, end].
func (a *Analyzer) AgentBreakdown(ctx context.Context, start, end time.Time, agentIDs ...string) (*AgentReport, error) {
	records, truncated, err := a.query(ctx, start, end, agentIDs)
	if err != nil {
		return nil, err
	}

	rep := &AgentReport{
		DateRange: dateRange(start, end),
		Agents:    make(map[string]*AgentCost),
		Truncated: truncated,
	}
	models := make(map[string]map[string]struct{})
	incidents := make(map[string]map[string]struct{})

	for _, r := range records {
		ac, ok := rep.Agents[r.AgentID]
		if !ok {
			ac = &AgentCost{Daily: make(map[string]Breakdown)}
			rep.Agents[r.AgentID] = ac
			models[r.AgentID] = make(map[string]struct{})
			incidents[r.AgentID] = make(map[string]struct{})
		}
		ac.TotalCost += r.EstimatedCost
		ac.TotalTokens += r.TotalTokens
		ac.TotalRequests++
		accumulate(ac.Daily, r.PartitionKey(), r)

		models[r.AgentID][r.ModelID] = struct{}{}
		if r.IncidentID != "" {
			incidents[r.AgentID][r.IncidentID] = struct{}{}
		}

		rep.Summary.TotalCost += r.EstimatedCost
		rep.Summary.TotalTokens += r.TotalTokens
		rep.Summary.TotalRequests++
	}

	for id, ac := range rep.Agents {
		ac.TotalCost = pricing.Round(ac.TotalCost, 6)
		ac.AverageCostPerRequest, ac.AverageTokensPerRequest = averages(ac.TotalCost, ac.TotalTokens, ac.TotalRequests)
		ac.ModelsUsed = slices.Sorted(maps.Keys(models[id]))
		ac.UniqueIncidents = len(incidents[id])
		roundBreakdowns(ac.Daily)
	}
	rep.Summary.TotalAgents = len(rep.Agents)
	rep.Summary.TotalCost = pricing.Round(rep.Summary.TotalCost, 6)
	return rep, nil
}

// IncidentAnalysis reports the cost, duration and timeline of an incident.
func (a *Analyzer) IncidentAnalysis(ctx context.Context, incidentID string) (*IncidentReport, error) {
	if incidentID == "" {
		return nil, &usage.ValidationError{Field: "incident_id", Message: "incident id is required"}
	}

	records, err := a.reader.ByIncident(ctx, incidentID, a.cfg.QueryLimit)
	if err != nil {
		if errors.Is(err, usage.ErrNotFound) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("analyzer: query incident %s: %w", incidentID, err)
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}

	rep := &IncidentReport{
		IncidentID: incidentID,
		ByAgent:    make(map[string]Breakdown),
		ByModel:    make(map[string]Breakdown),
		Timeline:   make([]TimelineEntry, 0, len(records)),
	}
	sum := &rep.Summary
	sum.StartTime = records[0].Timestamp
	sum.EndTime = records[0].Timestamp

	for _, r := range records {
		sum.TotalCost += r.EstimatedCost
		sum.TotalTokens += r.TotalTokens
		sum.TotalRequests++
		if r.Timestamp.Before(sum.StartTime) {
			sum.StartTime = r.Timestamp
		}
		if r.Timestamp.After(sum.EndTime) {
			sum.EndTime = r.Timestamp
		}

		accumulate(rep.ByAgent, r.AgentID, r)
		accumulate(rep.ByModel, r.ModelID, r)
		rep.Timeline = append(rep.Timeline, TimelineEntry{
			Timestamp: r.Timestamp,
			AgentID:   r.AgentID,
			ModelID:   r.ModelID,
			Cost:      r.EstimatedCost,
			Tokens:    r.TotalTokens,
		})
	}

	slices.SortStableFunc(rep.Timeline, func(x, y TimelineEntry) int {
		return x.Timestamp.Compare(y.Timestamp)
	})

	minutes := sum.EndTime.Sub(sum.StartTime).Minutes()
	if minutes > 0 {
		sum.CostPerMinute = pricing.Round(sum.TotalCost/minutes, 6)
	}
	sum.DurationMinutes = pricing.Round(minutes, 2)
	sum.TotalCost = pricing.Round(sum.TotalCost, 6)
	roundBreakdowns(rep.ByAgent)
	roundBreakdowns(rep.ByModel)
	return rep, nil
}

// UsageSummary groups the records of [start, end] by groupBy, one of
// GroupByAgent, GroupByModel or GroupByIncident. Records without a value
// for the field are grouped under "unknown".
func (a *Analyzer) UsageSummary(ctx context.Context, start, end time.Time, groupBy string) (*Summary, error) {
	var key func(*usage.Record) string
	switch groupBy {
	case GroupByAgent:
		key = func(r *usage.Record) string { return r.AgentID }
	case GroupByModel:
		key = func(r *usage.Record) string { return r.ModelID }
	case GroupByIncident:
		key = func(r *usage.Record) string { return r.IncidentID }
	default:
		return nil, &usage.ValidationError{Field: "group_by", Message: fmt.Sprintf("unsupported group %q", groupBy)}
	}

	records, _, err := a.query(ctx, start, end, nil)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		GroupBy:   groupBy,
		Groups:    make(map[string]*GroupSummary),
		DateRange: dateRange(start, end),
	}
	for _, r := range records {
		k := key(r)
		if k == "" {
			k = "unknown"
		}
		g, ok := s.Groups[k]
		if !ok {
			g = &GroupSummary{}
			s.Groups[k] = g
		}
		g.TotalTokens += r.TotalTokens
		g.InputTokens += r.InputTokens
		g.OutputTokens += r.OutputTokens
		g.TotalCost += r.EstimatedCost
		g.RequestCount++

		s.TotalCost += r.EstimatedCost
		s.TotalTokens += r.TotalTokens
		s.TotalRequests++
	}
	for _, g := range s.Groups {
		g.TotalCost = pricing.Round(g.TotalCost, 6)
	}
	s.TotalCost = pricing.Round(s.TotalCost, 6)
	return s, nil
}
