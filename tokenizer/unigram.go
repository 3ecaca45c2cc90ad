package tokenizer

import "math"

var negInf = math.Inf(-1)

// EncodeIDs returns model input ids for the text, without special tokens.
func (t *Tokenizer) EncodeIDs(text string) []int32 {
	tokens := t.Encode(text)
	ids := make([]int32, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}
	return ids
}

// Encode tokenizes text using Viterbi algorithm, returning tokens with offsets.
func (t *Tokenizer) Encode(text string) []TokenInfo {
	if text == "" {
		return nil
	}

	normalized := normalize(text, t.dummyPrefix)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	n := len(runes)

	// best[i] = best log probability to tokenize runes[0:i]
	best := make([]float64, n+1)
	// parent[i] = start position of the token ending at position i
	parent := make([]int, n+1)
	// known[i] reports whether the token ending at i is in the vocabulary
	known := make([]bool, n+1)

	for i := 1; i <= n; i++ {
		best[i] = negInf
		parent[i] = -1
	}

	for i := 1; i <= n; i++ {
		maxLen := min(t.maxTokenLen, i)

		for length := 1; length <= maxLen; length++ {
			j := i - length
			if math.IsInf(best[j], -1) {
				continue
			}
			score, exists := t.scores[string(runes[j:i])]
			if !exists {
				continue
			}

			candidate := best[j] + float64(score)
			if candidate > best[i] {
				best[i] = candidate
				parent[i] = j
				known[i] = true
			}
		}

		// Fall back to a single unknown character.
		if fallback := best[i-1] + t.unkScore; fallback > best[i] {
			best[i] = fallback
			parent[i] = i - 1
			known[i] = false
		}
	}

	var tokens []TokenInfo
	pos := n
	for pos > 0 {
		start := parent[pos]
		tokenStr := string(runes[start:pos])

		spIndex := t.unkIndex
		if known[pos] {
			spIndex = t.pieces[tokenStr]
		}

		tokens = append(tokens, TokenInfo{
			ID:    t.pieceID(spIndex),
			Text:  tokenStr,
			Start: start,
			End:   pos,
		})
		pos = start
	}

	for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}

	// Adjacent unknown characters form a single unknown token.
	merged := tokens[:0]
	for _, tok := range tokens {
		if k := len(merged) - 1; k >= 0 && tok.ID == t.unkID && merged[k].ID == t.unkID {
			merged[k].Text += tok.Text
			merged[k].End = tok.End
			continue
		}
		merged = append(merged, tok)
	}

	return merged
}
