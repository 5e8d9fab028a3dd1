// Package score converts raw quality metrics into bounded sub-scores and
// a 0-100 leaderboard total. All functions are pure: no I/O, no clock,
// no randomness.
package score

import (
	"regexp"
	"strconv"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// Weights for each sub-score. The total score is the sum of the six
// sub-scores and always lies in [0, 100].
const (
	WeightCoverage        = 20.0
	WeightBugs            = 15.0
	WeightVulnerabilities = 15.0
	WeightCodeSmells      = 20.0
	WeightTechnicalDebt   = 20.0
	WeightComplexity      = 10.0
)

// Scaling divisors. Code smells lose a point per 10 smells, technical
// debt a point per 4 hours, complexity a point per 50 units.
const (
	smellsPerPoint      = 10.0
	debtMinutesPerPoint = 240.0
	complexityPerPoint  = 50.0
)

// minutesPerDay follows the SonarCloud convention of an 8-hour workday.
const minutesPerDay = 8 * 60

var debtToken = regexp.MustCompile(`(\d+)\s*(min|d|h)`)

// CoverageScore scores test coverage. Higher is better; a missing value
// scores zero.
func CoverageScore(coverage *float64) float64 {
	if coverage == nil {
		return 0
	}
	return clamp(*coverage/100*WeightCoverage, WeightCoverage)
}

// BugsScore scores the bug count. Fewer is better; a missing value is
// treated as the best case.
func BugsScore(bugs *int) float64 {
	if bugs == nil {
		return WeightBugs
	}
	return clamp(WeightBugs-float64(*bugs), WeightBugs)
}

// VulnerabilitiesScore scores the vulnerability count with the same
// shape as BugsScore.
func VulnerabilitiesScore(vulnerabilities *int) float64 {
	if vulnerabilities == nil {
		return WeightVulnerabilities
	}
	return clamp(WeightVulnerabilities-float64(*vulnerabilities), WeightVulnerabilities)
}

// CodeSmellsScore scores the code-smell count, scaled so very large
// counts approach zero.
func CodeSmellsScore(smells *int) float64 {
	if smells == nil {
		return WeightCodeSmells
	}
	return clamp(WeightCodeSmells-float64(*smells)/smellsPerPoint, WeightCodeSmells)
}

// TechnicalDebtScore parses the formatted debt duration (e.g. "2d 5h")
// into minutes and scores it. A missing or unparsable value is treated
// as the best case.
func TechnicalDebtScore(debt *string) float64 {
	if debt == nil {
		return WeightTechnicalDebt
	}
	minutes, ok := ParseDebtMinutes(*debt)
	if !ok {
		return WeightTechnicalDebt
	}
	return clamp(WeightTechnicalDebt-float64(minutes)/debtMinutesPerPoint, WeightTechnicalDebt)
}

// ComplexityScore scores cognitive complexity. Lower is better.
func ComplexityScore(complexity *int) float64 {
	if complexity == nil {
		return WeightComplexity
	}
	return clamp(WeightComplexity-float64(*complexity)/complexityPerPoint, WeightComplexity)
}

// Breakdown computes all six sub-scores and their total.
func Breakdown(m models.QualityMetrics) models.ScoreBreakdown {
	b := models.ScoreBreakdown{
		Coverage:        CoverageScore(m.Coverage),
		Bugs:            BugsScore(m.Bugs),
		Vulnerabilities: VulnerabilitiesScore(m.Vulnerabilities),
		CodeSmells:      CodeSmellsScore(m.CodeSmells),
		TechnicalDebt:   TechnicalDebtScore(m.TechnicalDebt),
		Complexity:      ComplexityScore(m.Complexity),
	}
	b.Total = b.Coverage + b.Bugs + b.Vulnerabilities + b.CodeSmells + b.TechnicalDebt + b.Complexity
	return b
}

// Total computes the composite 0-100 score for a set of quality metrics.
func Total(m models.QualityMetrics) float64 {
	return Breakdown(m).Total
}

// ParseDebtMinutes parses a formatted debt duration such as "2d 5h",
// "3h 30min" or "45min" into total minutes. Days are 8-hour workdays.
// It returns false if the string contains no duration tokens.
func ParseDebtMinutes(s string) (int, bool) {
	matches := debtToken.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, false
	}

	total := 0
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		switch m[2] {
		case "d":
			total += n * minutesPerDay
		case "h":
			total += n * 60
		case "min":
			total += n
		}
	}
	return total, true
}

// FormatDebtMinutes renders minutes as a debt duration string in the
// same notation ParseDebtMinutes accepts, e.g. "2d 5h" or "45min".
func FormatDebtMinutes(minutes int) string {
	if minutes <= 0 {
		return "0min"
	}

	days := minutes / minutesPerDay
	hours := (minutes % minutesPerDay) / 60
	mins := minutes % 60

	out := ""
	if days > 0 {
		out = strconv.Itoa(days) + "d"
	}
	if hours > 0 {
		if out != "" {
			out += " "
		}
		out += strconv.Itoa(hours) + "h"
	}
	if mins > 0 {
		if out != "" {
			out += " "
		}
		out += strconv.Itoa(mins) + "min"
	}
	return out
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
