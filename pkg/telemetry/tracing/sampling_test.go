package tracing

import "testing"

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name    string
		sampler string
		ratio   float64
		wantErr bool
	}{
		{"always", SamplerAlways, 0, false},
		{"never", SamplerNever, 0, false},
		{"ratio zero", SamplerRatio, 0, false},
		{"ratio tenth", SamplerRatio, 0.1, false},
		{"ratio one", SamplerRatio, 1, false},
		{"ratio negative", SamplerRatio, -0.5, true},
		{"ratio above one", SamplerRatio, 2, true},
		{"empty name", "", 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := createSampler(tt.sampler, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && sampler == nil {
				t.Error("createSampler() returned nil sampler")
			}
		})
	}
}
