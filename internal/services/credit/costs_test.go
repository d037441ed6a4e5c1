package credit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

func TestCostTable_Cost(t *testing.T) {
	costs := DefaultCostTable()

	tests := []struct {
		name      string
		component models.Component
		variant   string
		units     float64
		want      float64
	}{
		{name: "ai 100 tokens", component: models.ComponentAI, units: 100, want: 3.0},
		{name: "ai 1 token", component: models.ComponentAI, units: 1, want: (0.5 + 0.005) * 3},
		{name: "stt default", component: models.ComponentSTT, variant: VariantDefault, units: 60, want: 1.8},
		{name: "stt premium", component: models.ComponentSTT, variant: "premium", units: 60, want: 3.6},
		{name: "stt unknown variant falls back", component: models.ComponentSTT, variant: "whisper-xl", units: 60, want: 1.8},
		{name: "tts default", component: models.ComponentTTS, variant: VariantDefault, units: 1000, want: 3.0},
		{name: "tts premium", component: models.ComponentTTS, variant: "premium", units: 100, want: 1.2},
		{name: "translate", component: models.ComponentTranslate, units: 50, want: 0.3},
		{name: "zero units", component: models.ComponentAI, units: 0, want: 0},
		{name: "negative units", component: models.ComponentSTT, units: -5, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, costs.Cost(tt.component, tt.variant, tt.units), 1e-9)
		})
	}
}

func TestCostTableFromConfig(t *testing.T) {
	costs := CostTableFromConfig(config.Credit{
		Multiplier:   2,
		STTPerSecond: map[string]float64{"premium": 0.05},
		TTSPerChar:   map[string]float64{"neural": 0.01},
	})

	assert.InDelta(t, 2.0, costs.Multiplier, 1e-9)
	assert.InDelta(t, 0.5, costs.AIBase, 1e-9)
	assert.InDelta(t, 0.05, costs.STTPerSecond["premium"], 1e-9)
	assert.InDelta(t, 0.01, costs.STTPerSecond[VariantDefault], 1e-9)
	assert.InDelta(t, 0.01, costs.TTSPerChar["neural"], 1e-9)

	// исходная таблица по умолчанию не меняется
	assert.NotContains(t, DefaultCostTable().TTSPerChar, "neural")
}
