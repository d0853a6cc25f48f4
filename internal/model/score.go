package model

// Grade is the letter summary of a scan score.
type Grade string

const (
	GradeA  Grade = "A"
	GradeB  Grade = "B"
	GradeC  Grade = "C"
	GradeD  Grade = "D"
	GradeE  Grade = "E"
	GradeF  Grade = "F"
	GradeNA Grade = "N/A"
)

// Penalty is the number of points a finding of severity s costs.
func Penalty(s Severity) int {
	switch s {
	case SeverityCritical:
		return 40
	case SeverityHigh:
		return 25
	case SeverityMedium:
		return 10
	case SeverityLow:
		return 5
	}
	return 0
}

// Score starts at 100 and subtracts the penalty of every finding, never going
// below zero.
func Score(findings []Finding) int {
	score := 100
	for _, f := range findings {
		score -= Penalty(f.Severity)
	}
	if score < 0 {
		return 0
	}
	return score
}

// GradeFor maps a 0..100 score to a letter.
func GradeFor(score int) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	case score >= 50:
		return GradeE
	default:
		return GradeF
	}
}
