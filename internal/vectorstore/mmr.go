package vectorstore

// Dot is the inner product of two equal-length vectors. Stored vectors are
// unit length, so this is cosine similarity.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// MMR greedily selects up to k candidate indexes by Maximal Marginal
// Relevance: at each step the candidate maximizing
// lambda·sim(query, c) − (1−lambda)·max over selected s of sim(c, s).
// Ties keep the earliest candidate in first-seen order, so selection is
// deterministic. Query similarities are computed once and the per-candidate
// max-similarity-to-selected is updated incrementally, keeping the whole
// selection at O(k·n) dot products.
func MMR(queryVec []float32, candidates [][]float32, k int, lambda float64) []int {
	n := len(candidates)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	simQ := make([]float64, n)
	for i, c := range candidates {
		simQ[i] = Dot(queryVec, c)
	}

	selected := make([]int, 0, k)
	picked := make([]bool, n)
	// Floored at zero by construction: a candidate anti-correlated with
	// everything selected pays no redundancy penalty and earns no bonus.
	maxSimSel := make([]float64, n) // max similarity to any selected item

	for len(selected) < k {
		best := -1
		bestScore := 0.0
		for i := 0; i < n; i++ {
			if picked[i] {
				continue
			}
			rep := 0.0
			if len(selected) > 0 {
				rep = maxSimSel[i]
			}
			score := lambda*simQ[i] - (1-lambda)*rep
			if best == -1 || score > bestScore {
				best, bestScore = i, score
			}
		}

		picked[best] = true
		selected = append(selected, best)

		for i := 0; i < n; i++ {
			if picked[i] {
				continue
			}
			if sim := Dot(candidates[i], candidates[best]); sim > maxSimSel[i] {
				maxSimSel[i] = sim
			}
		}
	}
	return selected
}
