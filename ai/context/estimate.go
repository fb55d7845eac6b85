package context

import "math"

// SizeEstimator maps text to an estimated token count.
type SizeEstimator func(text string) int

// CharEstimator approximates tokens as 0.3 per byte, rounded up.
// Rounding up makes the estimate superadditive: the sum of block
// estimates never undercounts the concatenation, so a running total
// checked per block keeps the final text inside the budget.
func CharEstimator(text string) int {
	return int(math.Ceil(float64(len(text)) * 0.3))
}
