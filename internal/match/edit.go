package match

// EditDistance calculates the Damerau-Levenshtein distance between two strings.
// Returns -1 if distance exceeds maxDistance (early exit optimisation).
func EditDistance(a, b string, maxDistance int) int {
	if maxDistance < 0 {
		return -1
	}
	if a == b {
		return 0
	}

	lenA, lenB := len(a), len(b)

	// Quick length check
	if abs(lenA-lenB) > maxDistance {
		return -1
	}

	// Empty string cases
	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}

	// Ensure a is the shorter string for optimisation
	if lenA > lenB {
		a, b = b, a
		lenA, lenB = lenB, lenA
	}

	// Use only two rows of the matrix for memory efficiency
	prev := make([]int, lenA+1)
	curr := make([]int, lenA+1)
	prevPrev := make([]int, lenA+1) // For transposition

	// Initialise first row
	for i := 0; i <= lenA; i++ {
		prev[i] = i
	}

	// Fill the matrix
	for j := 1; j <= lenB; j++ {
		curr[0] = j
		minDist := j

		for i := 1; i <= lenA; i++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}

			// Standard Levenshtein operations
			curr[i] = min3(
				prev[i]+1,      // deletion
				curr[i-1]+1,    // insertion
				prev[i-1]+cost, // substitution
			)

			// Damerau transposition
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				curr[i] = min2(curr[i], prevPrev[i-2]+cost)
			}

			if curr[i] < minDist {
				minDist = curr[i]
			}
		}

		// Early exit if minimum distance in row exceeds maxDistance
		if minDist > maxDistance {
			return -1
		}

		// Rotate rows
		prevPrev, prev, curr = prev, curr, prevPrev
	}

	if prev[lenA] > maxDistance {
		return -1
	}
	return prev[lenA]
}

// EditSimilarity maps edit distance onto [0, 1], where 1 is an exact match.
func EditSimilarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	d := EditDistance(a, b, longest)
	if d < 0 {
		return 0
	}
	return 1 - float64(d)/float64(longest)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func min3(a, b, c int) int {
	return min2(min2(a, b), c)
}
