package recorder

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Token usage sources, in lookup order.
const (
	SourceHeaders          = "headers"
	SourcePayload          = "payload.usage"
	SourceResponseMetadata = "payload.ResponseMetadata.usage"
	SourceNone             = "none"
)

// TokenUsage is the token count of one response.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64

	// Source names where the counts were found.
	Source string
}

// ExtractUsage finds the token counts of a response. The second return
// value is false when no usage information was present, in which case the
// counts are zero.
func ExtractUsage(resp *Response) (TokenUsage, bool) {
	if resp == nil {
		return TokenUsage{Source: SourceNone}, false
	}

	if in, out, ok := usageFromHeaders(resp); ok {
		return TokenUsage{InputTokens: in, OutputTokens: out, Source: SourceHeaders}, true
	}

	var payload map[string]json.RawMessage
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &payload) == nil {
		if in, out, ok := usageFromObject(payload["usage"]); ok {
			return TokenUsage{InputTokens: in, OutputTokens: out, Source: SourcePayload}, true
		}

		var meta map[string]json.RawMessage
		if raw, ok := payload["ResponseMetadata"]; ok && json.Unmarshal(raw, &meta) == nil {
			if in, out, ok := usageFromObject(meta["usage"]); ok {
				return TokenUsage{InputTokens: in, OutputTokens: out, Source: SourceResponseMetadata}, true
			}
		}
	}

	return TokenUsage{Source: SourceNone}, false
}

func usageFromHeaders(resp *Response) (int64, int64, bool) {
	inRaw := resp.Header(HeaderInputTokenCount)
	outRaw := resp.Header(HeaderOutputTokenCount)
	if inRaw == "" && outRaw == "" {
		return 0, 0, false
	}

	in, errIn := parseCount(inRaw)
	out, errOut := parseCount(outRaw)
	if errIn != nil || errOut != nil {
		return 0, 0, false
	}
	return in, out, true
}

func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// usageFromObject reads input/output counts from a usage object. A missing
// side counts as zero, but at least one side must be present.
func usageFromObject(raw json.RawMessage) (int64, int64, bool) {
	if len(raw) == 0 {
		return 0, 0, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return 0, 0, false
	}

	in, inOK := lookupCount(fields, "input_tokens", "inputTokens")
	out, outOK := lookupCount(fields, "output_tokens", "outputTokens")
	if !inOK && !outOK {
		return 0, 0, false
	}
	return in, out, true
}

func lookupCount(fields map[string]json.RawMessage, names ...string) (int64, bool) {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil || n == "" {
			continue
		}
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}
