package service

import "math"

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func roundScore(v float64) int {
	return clampScore(int(math.Round(v)))
}
