package tuner

import (
	"fmt"

	"SpotAgent/internal/domain/models"
)

// DefaultLearningRate is the per-trade step applied to w_rsi and w_ema.
const DefaultLearningRate = 0.01

// UpdateWeights favours RSI and EMA after a profit and the volatility
// components after a loss: ±lr on rsi/ema, ∓lr/2 on atr/vol. Each weight is
// clamped to [WeightMin, WeightMax] and the vector renormalized within bounds.
func UpdateWeights(w models.Weights, pnlNet, lr float64) (models.Weights, string) {
	if lr <= 0 {
		lr = DefaultLearningRate
	}
	reward := -1.0
	if pnlNet > 0 {
		reward = 1.0
	}
	next := models.Weights{
		RSI: clamp(w.RSI+lr*reward, models.WeightMin, models.WeightMax),
		EMA: clamp(w.EMA+lr*reward, models.WeightMin, models.WeightMax),
		ATR: clamp(w.ATR-lr/2*reward, models.WeightMin, models.WeightMax),
		Vol: clamp(w.Vol-lr/2*reward, models.WeightMin, models.WeightMax),
	}
	next = Normalize(next)
	adj := fmt.Sprintf("reward=%+.0f rsi %+.4f ema %+.4f atr %+.4f vol %+.4f", reward,
		next.RSI-w.RSI, next.EMA-w.EMA, next.ATR-w.ATR, next.Vol-w.Vol)
	return next, adj
}

// Normalize scales w to sum 1 while keeping every weight inside
// [WeightMin, WeightMax]. Weights that hit a bound are pinned and the rest
// absorb the remainder.
func Normalize(w models.Weights) models.Weights {
	v := w.Slice()
	var pinned [4]bool
	for iter := 0; iter < len(v); iter++ {
		pinnedSum, freeSum := 0.0, 0.0
		for i, x := range v {
			if pinned[i] {
				pinnedSum += x
			} else {
				freeSum += x
			}
		}
		if freeSum <= 0 {
			break
		}
		scale := (1 - pinnedSum) / freeSum
		moved := false
		for i := range v {
			if pinned[i] {
				continue
			}
			v[i] *= scale
			switch {
			case v[i] < models.WeightMin:
				v[i], pinned[i], moved = models.WeightMin, true, true
			case v[i] > models.WeightMax:
				v[i], pinned[i], moved = models.WeightMax, true, true
			}
		}
		if !moved {
			break
		}
	}
	return models.WeightsFromSlice(v)
}
