package reportworker

import (
	"fmt"
	"strings"
	"time"
)

// runParams is the parsed shape of a report_runs.params document. All keys
// are optional; absent keys widen the report to everything ingested.
type runParams struct {
	windowStart *time.Time
	windowEnd   *time.Time
	devices     []string
	asOf        *time.Time
}

func parseRunParams(raw map[string]any) (runParams, error) {
	var p runParams
	if raw == nil {
		return p, nil
	}

	var err error
	if p.windowStart, err = paramTime(raw, "window_start"); err != nil {
		return p, err
	}
	if p.windowEnd, err = paramTime(raw, "window_end"); err != nil {
		return p, err
	}
	if p.asOf, err = paramTime(raw, "as_of"); err != nil {
		return p, err
	}
	if p.devices, err = paramStrings(raw, "devices"); err != nil {
		return p, err
	}

	if p.windowStart != nil && p.windowEnd != nil && p.windowEnd.Before(*p.windowStart) {
		return p, fmt.Errorf("window_end %s precedes window_start %s",
			p.windowEnd.Format(time.RFC3339), p.windowStart.Format(time.RFC3339))
	}
	return p, nil
}

func paramTime(raw map[string]any, key string) (*time.Time, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%s must be an RFC 3339 string", key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}

func paramStrings(raw map[string]any, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}

	// jsonb round-trips arrays as []any.
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of strings", key)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// statsSeed echoes the effective parameters into the run stats document.
func (p runParams) statsSeed() map[string]any {
	stats := map[string]any{}
	if p.windowStart != nil {
		stats["window_start"] = p.windowStart.UTC().Format(time.RFC3339Nano)
	}
	if p.windowEnd != nil {
		stats["window_end"] = p.windowEnd.UTC().Format(time.RFC3339Nano)
	}
	if p.asOf != nil {
		stats["as_of"] = p.asOf.UTC().Format(time.RFC3339Nano)
	}
	if len(p.devices) > 0 {
		stats["devices"] = p.devices
	}
	return stats
}
