package credit

import (
	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// VariantDefault вариант компонента, используемый для неизвестных типов STT/TTS.
const VariantDefault = "default"

// CostTable стоимость единицы использования по компонентам и общий множитель.
// Итог: (база + единицы * цена единицы) * множитель. База есть только у AI.
type CostTable struct {
	Multiplier       float64
	AIBase           float64
	AIPerToken       float64
	TranslatePerWord float64
	STTPerSecond     map[string]float64
	TTSPerChar       map[string]float64
}

// DefaultCostTable значения по умолчанию.
func DefaultCostTable() CostTable {
	return CostTable{
		Multiplier:       3,
		AIBase:           0.5,
		AIPerToken:       0.005,
		TranslatePerWord: 0.002,
		STTPerSecond: map[string]float64{
			VariantDefault: 0.01,
			"premium":      0.02,
		},
		TTSPerChar: map[string]float64{
			VariantDefault: 0.001,
			"premium":      0.004,
		},
	}
}

// CostTableFromConfig накладывает значения из конфига на таблицу по умолчанию.
func CostTableFromConfig(cfg config.Credit) CostTable {
	t := DefaultCostTable()
	if cfg.Multiplier > 0 {
		t.Multiplier = cfg.Multiplier
	}
	if cfg.AIBase > 0 {
		t.AIBase = cfg.AIBase
	}
	if cfg.AIPerToken > 0 {
		t.AIPerToken = cfg.AIPerToken
	}
	if cfg.TranslatePerWord > 0 {
		t.TranslatePerWord = cfg.TranslatePerWord
	}
	for k, v := range cfg.STTPerSecond {
		t.STTPerSecond[k] = v
	}
	for k, v := range cfg.TTSPerChar {
		t.TTSPerChar[k] = v
	}
	return t
}

// Cost стоимость units единиц компонента.
func (t CostTable) Cost(component models.Component, variant string, units float64) float64 {
	if units <= 0 {
		return 0
	}
	var base, perUnit float64
	switch component {
	case models.ComponentAI:
		base, perUnit = t.AIBase, t.AIPerToken
	case models.ComponentSTT:
		perUnit = lookup(t.STTPerSecond, variant)
	case models.ComponentTTS:
		perUnit = lookup(t.TTSPerChar, variant)
	case models.ComponentTranslate:
		perUnit = t.TranslatePerWord
	}
	return (base + units*perUnit) * t.Multiplier
}

func lookup(prices map[string]float64, variant string) float64 {
	if p, ok := prices[variant]; ok {
		return p
	}
	return prices[VariantDefault]
}
