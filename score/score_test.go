package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func TestTotalAllNullIsBestCaseConstant(t *testing.T) {
	// Coverage defaults to worst case (0), every other metric to best
	// case: 0 + 15 + 15 + 20 + 20 + 10.
	total := Total(models.QualityMetrics{})
	assert.Equal(t, 80.0, total)
}

func TestTotalIsPureAndBounded(t *testing.T) {
	testCases := []struct {
		name    string
		metrics models.QualityMetrics
	}{
		{
			name:    "all null",
			metrics: models.QualityMetrics{},
		},
		{
			name: "perfect project",
			metrics: models.QualityMetrics{
				Coverage:        floatPtr(100),
				Bugs:            intPtr(0),
				Vulnerabilities: intPtr(0),
				CodeSmells:      intPtr(0),
				TechnicalDebt:   strPtr("0min"),
				Complexity:      intPtr(0),
			},
		},
		{
			name: "terrible project",
			metrics: models.QualityMetrics{
				Coverage:        floatPtr(0),
				Bugs:            intPtr(9999),
				Vulnerabilities: intPtr(9999),
				CodeSmells:      intPtr(100000),
				TechnicalDebt:   strPtr("365d"),
				Complexity:      intPtr(100000),
			},
		},
		{
			name: "out of range coverage",
			metrics: models.QualityMetrics{
				Coverage: floatPtr(250),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			first := Total(tc.metrics)
			second := Total(tc.metrics)

			assert.Equal(t, first, second, "score must be deterministic")
			assert.GreaterOrEqual(t, first, 0.0)
			assert.LessOrEqual(t, first, 100.0)
		})
	}
}

func TestPerfectProjectScoresFullMarks(t *testing.T) {
	total := Total(models.QualityMetrics{
		Coverage:        floatPtr(100),
		Bugs:            intPtr(0),
		Vulnerabilities: intPtr(0),
		CodeSmells:      intPtr(0),
		TechnicalDebt:   strPtr("0min"),
		Complexity:      intPtr(0),
	})
	assert.Equal(t, 100.0, total)
}

func TestCoverageScore(t *testing.T) {
	assert.Equal(t, 0.0, CoverageScore(nil))
	assert.Equal(t, 0.0, CoverageScore(floatPtr(0)))
	assert.Equal(t, 10.0, CoverageScore(floatPtr(50)))
	assert.Equal(t, 20.0, CoverageScore(floatPtr(100)))
	assert.Equal(t, 20.0, CoverageScore(floatPtr(150)), "capped at weight")
}

func TestBugsAndVulnerabilitiesScore(t *testing.T) {
	assert.Equal(t, 15.0, BugsScore(nil))
	assert.Equal(t, 15.0, BugsScore(intPtr(0)))
	assert.Equal(t, 10.0, BugsScore(intPtr(5)))
	assert.Equal(t, 0.0, BugsScore(intPtr(15)))
	assert.Equal(t, 0.0, BugsScore(intPtr(500)), "never negative")

	assert.Equal(t, 15.0, VulnerabilitiesScore(nil))
	assert.Equal(t, 0.0, VulnerabilitiesScore(intPtr(40)))
}

func TestCodeSmellsScoreApproachesZero(t *testing.T) {
	assert.Equal(t, 20.0, CodeSmellsScore(nil))
	assert.Equal(t, 20.0, CodeSmellsScore(intPtr(0)))
	assert.Equal(t, 10.0, CodeSmellsScore(intPtr(100)))
	assert.Equal(t, 0.0, CodeSmellsScore(intPtr(200)))
	assert.Equal(t, 0.0, CodeSmellsScore(intPtr(100000)))
}

func TestTechnicalDebtScore(t *testing.T) {
	assert.Equal(t, 20.0, TechnicalDebtScore(nil))
	assert.Equal(t, 20.0, TechnicalDebtScore(strPtr("not a duration")), "unparsable is best case")
	assert.Equal(t, 20.0, TechnicalDebtScore(strPtr("0min")))
	// 2d 5h = 1260 minutes -> 20 - 1260/240 = 14.75
	assert.Equal(t, 14.75, TechnicalDebtScore(strPtr("2d 5h")))
	assert.Equal(t, 0.0, TechnicalDebtScore(strPtr("100d")))
}

func TestComplexityScore(t *testing.T) {
	assert.Equal(t, 10.0, ComplexityScore(nil))
	assert.Equal(t, 10.0, ComplexityScore(intPtr(0)))
	assert.Equal(t, 5.0, ComplexityScore(intPtr(250)))
	assert.Equal(t, 0.0, ComplexityScore(intPtr(500)))
	assert.Equal(t, 0.0, ComplexityScore(intPtr(99999)))
}

func TestParseDebtMinutes(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
		ok       bool
	}{
		{"2d 5h", 2*480 + 5*60, true},
		{"2d5h", 2*480 + 5*60, true},
		{"3h 30min", 3*60 + 30, true},
		{"45min", 45, true},
		{"1d", 480, true},
		{"0min", 0, true},
		{"", 0, false},
		{"garbage", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			minutes, ok := ParseDebtMinutes(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, minutes)
		})
	}
}

func TestFormatDebtMinutesRoundTrips(t *testing.T) {
	testCases := []struct {
		minutes  int
		expected string
	}{
		{0, "0min"},
		{45, "45min"},
		{60, "1h"},
		{210, "3h 30min"},
		{480, "1d"},
		{1260, "2d 5h"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			formatted := FormatDebtMinutes(tc.minutes)
			assert.Equal(t, tc.expected, formatted)

			parsed, ok := ParseDebtMinutes(formatted)
			assert.True(t, ok)
			assert.Equal(t, tc.minutes, parsed)
		})
	}
}
