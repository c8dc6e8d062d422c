package sentiment

// Financial news lexicon. Scores are summed per token hit and squashed into
// [-1, 1] by the token count, so long neutral articles do not drown a single
// strong word.
var lexicon = map[string]float64{
	"beat":       0.8,
	"beats":      0.8,
	"surge":      0.9,
	"surges":     0.9,
	"rally":      0.7,
	"record":     0.6,
	"profit":     0.6,
	"profits":    0.6,
	"growth":     0.6,
	"upgrade":    0.8,
	"upgraded":   0.8,
	"buyback":    0.5,
	"dividend":   0.4,
	"strong":     0.5,
	"gain":       0.5,
	"gains":      0.5,
	"rise":       0.4,
	"rises":      0.4,
	"soar":       0.9,
	"soars":      0.9,
	"outperform": 0.7,
	"bullish":    0.7,

	"miss":       -0.8,
	"misses":     -0.8,
	"plunge":     -0.9,
	"plunges":    -0.9,
	"loss":       -0.6,
	"losses":     -0.6,
	"downgrade":  -0.8,
	"downgraded": -0.8,
	"lawsuit":    -0.7,
	"probe":      -0.6,
	"fraud":      -0.9,
	"recall":     -0.6,
	"weak":       -0.5,
	"fall":       -0.4,
	"falls":      -0.4,
	"drop":       -0.4,
	"drops":      -0.4,
	"cut":        -0.4,
	"cuts":       -0.4,
	"bankruptcy": -1.0,
	"default":    -0.8,
	"warning":    -0.5,
	"bearish":    -0.7,
}

// Score rates the text in [-1, 1]. Text with no lexicon hits scores zero.
func Score(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	var sum float64
	hits := 0
	for _, t := range tokens {
		if w, ok := lexicon[t]; ok {
			sum += w
			hits++
		}
	}
	if hits == 0 {
		return 0
	}

	score := sum / float64(hits)
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score
}
