package embed

import "fmt"

// MeanPool averages token vectors into one sentence vector. mask, if not
// nil, selects which tokens count (padding tokens have mask 0).
//
// The ollama and openai providers already return pooled sentence vectors,
// so nothing in the embed pipeline calls this. It is kept for providers
// that expose per-token hidden states.
func MeanPool(tokens [][]float64, mask []int) ([]float64, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no token vectors to pool")
	}
	if mask != nil && len(mask) != len(tokens) {
		return nil, fmt.Errorf("mask has %d entries for %d tokens", len(mask), len(tokens))
	}

	dims := len(tokens[0])
	sum := make([]float64, dims)
	count := 0
	for i, tok := range tokens {
		if mask != nil && mask[i] == 0 {
			continue
		}
		if len(tok) != dims {
			return nil, fmt.Errorf("token %d has %d dimensions, want %d", i, len(tok), dims)
		}
		for k, v := range tok {
			sum[k] += v
		}
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("mask excludes every token")
	}
	for k := range sum {
		sum[k] /= float64(count)
	}
	return sum, nil
}
