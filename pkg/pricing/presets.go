package pricing

// Cost model preset names. A preset selects the default entry of a table.
const (
	PresetSonnet4 = "sonnet-4"
	PresetHaiku3  = "haiku-3"
	PresetOpus3   = "opus-3"
)

// Presets are the built-in cost models.
var Presets = map[string]Price{
	PresetSonnet4: {InputPerMillion: 3.0, OutputPerMillion: 15.0, Description: "Claude 3.5 Sonnet v2"},
	PresetHaiku3:  {InputPerMillion: 0.25, OutputPerMillion: 1.25, Description: "Claude 3 Haiku"},
	PresetOpus3:   {InputPerMillion: 15.0, OutputPerMillion: 75.0, Description: "Claude 3 Opus"},
}

// KnownModels are the Bedrock model ids priced out of the box.
var KnownModels = map[string]Price{
	"apac.anthropic.claude-sonnet-4-20250514-v1:0": {InputPerMillion: 3.0, OutputPerMillion: 15.0, Description: "Claude Sonnet 4 (APAC inference profile)"},
	"anthropic.claude-3-5-sonnet-20241022-v2:0":    {InputPerMillion: 3.0, OutputPerMillion: 15.0, Description: "Claude 3.5 Sonnet v2"},
	"anthropic.claude-3-sonnet-20240229-v1:0":      {InputPerMillion: 3.0, OutputPerMillion: 15.0, Description: "Claude 3 Sonnet"},
	"anthropic.claude-3-haiku-20240307-v1:0":       {InputPerMillion: 0.25, OutputPerMillion: 1.25, Description: "Claude 3 Haiku"},
	"anthropic.claude-3-opus-20240229-v1:0":        {InputPerMillion: 15.0, OutputPerMillion: 75.0, Description: "Claude 3 Opus"},
}

// DefaultTable returns a table holding the known models, with the default
// entry taken from the named preset. Unknown presets fall back to sonnet-4.
func DefaultTable(preset string) *Table {
	fallback, ok := Presets[preset]
	if !ok {
		fallback = Presets[PresetSonnet4]
	}

	t := NewTable(fallback)
	for id, p := range KnownModels {
		t.prices[id] = p
	}
	return t
}
