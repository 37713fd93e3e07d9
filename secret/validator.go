package secret

import (
	"fmt"
	"math"
	"strings"
)

// Strength is the aggregate tier assigned to a validated secret.
type Strength string

const (
	// StrengthWeak is assigned to scores below 40.
	StrengthWeak Strength = "weak"
	// StrengthMedium is assigned to scores from 40 to 59.
	StrengthMedium Strength = "medium"
	// StrengthGood is assigned to scores from 60 to 79.
	StrengthGood Strength = "good"
	// StrengthExcellent is assigned to scores of 80 and above.
	StrengthExcellent Strength = "excellent"
)

const (
	// MinLength is the minimum acceptable secret length in bytes.
	MinLength = 32
	// MinEntropy is the minimum acceptable Shannon entropy in bits per character.
	MinEntropy = 3.0
)

// Known-weak values rejected by exact or substring match, case-insensitive.
// Deliberately small and fixed: this is a tripwire for defaults and
// placeholders, not a password dictionary.
var knownWeak = []string{
	"secret",
	"password",
	"changeme",
	"default",
	"jwt_secret",
	"jwtsecret",
	"your-256-bit-secret",
	"supersecret",
	"letmein",
	"qwerty",
	"123456",
	"abcdef",
}

var commonLeadingSequences = []string{
	"123",
	"abc",
	"000",
	"111",
	"aaa",
	"password",
	"qwerty",
}

// Report is the outcome of validating a signing secret. It is produced once
// at boot and never persisted.
type Report struct {
	IsValid         bool
	Score           int
	Entropy         float64
	Strength        Strength
	Errors          []string
	Warnings        []string
	Recommendations []string
}

// Validate scores a JWT signing secret. IsValid is false when the secret is
// empty, too short, too low-entropy, or matches the known-weak deny-list;
// an Engine must refuse to boot on such a secret.
func Validate(value string) Report {
	report := Report{}

	if value == "" {
		report.Errors = append(report.Errors, "secret is empty")
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("generate a random secret of at least %d characters", MinLength))
		report.Strength = StrengthWeak
		return report
	}

	if len(value) < MinLength {
		report.Errors = append(report.Errors,
			fmt.Sprintf("secret length %d is below the minimum of %d", len(value), MinLength))
	}

	report.Entropy = shannonEntropy(value)
	if report.Entropy < MinEntropy {
		report.Errors = append(report.Errors,
			fmt.Sprintf("entropy %.2f bits/char is below the minimum of %.1f", report.Entropy, MinEntropy))
	}

	lower := strings.ToLower(value)
	for _, weak := range knownWeak {
		if strings.Contains(lower, weak) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("secret contains known-weak value %q", weak))
			break
		}
	}

	classes := classCount(value)
	if classes < 3 {
		report.Warnings = append(report.Warnings,
			"secret uses fewer than three character classes")
		report.Recommendations = append(report.Recommendations,
			"mix lowercase, uppercase, digits, and special characters")
	}
	if hasRepeatedRun(value, 3) {
		report.Warnings = append(report.Warnings,
			"secret contains a run of three or more repeated characters")
	}
	if hasAlternatingPairs(value) {
		report.Warnings = append(report.Warnings,
			"secret contains an alternating two-character pattern")
	}
	for _, seq := range commonLeadingSequences {
		if strings.HasPrefix(lower, seq) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("secret starts with common sequence %q", seq))
			break
		}
	}

	report.Score = score(value, report.Entropy, classes, len(report.Errors), len(report.Warnings))
	report.Strength = tierFor(report.Score)
	report.IsValid = len(report.Errors) == 0

	if report.IsValid && report.Strength != StrengthExcellent {
		report.Recommendations = append(report.Recommendations,
			"consider a longer, fully random secret for an excellent rating")
	}

	return report
}

// shannonEntropy returns -sum(p_i * log2(p_i)) over the character frequency
// distribution, in bits per character.
func shannonEntropy(value string) float64 {
	if value == "" {
		return 0
	}

	freq := make(map[rune]int)
	total := 0
	for _, r := range value {
		freq[r]++
		total++
	}

	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func classCount(value string) int {
	var lower, upper, digit, special bool
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}

	count := 0
	for _, present := range []bool{lower, upper, digit, special} {
		if present {
			count++
		}
	}
	return count
}

func hasRepeatedRun(value string, minRun int) bool {
	run := 1
	for i := 1; i < len(value); i++ {
		if value[i] == value[i-1] {
			run++
			if run >= minRun {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// hasAlternatingPairs detects a two-character period repeated at least three
// times, e.g. "ababab".
func hasAlternatingPairs(value string) bool {
	for i := 0; i+5 < len(value); i++ {
		if value[i] != value[i+1] &&
			value[i] == value[i+2] && value[i] == value[i+4] &&
			value[i+1] == value[i+3] && value[i+1] == value[i+5] {
			return true
		}
	}
	return false
}

func score(value string, entropy float64, classes, errorCount, warningCount int) int {
	// Length contributes up to 30 points, saturating at 64 characters.
	lengthScore := len(value) * 30 / 64
	if lengthScore > 30 {
		lengthScore = 30
	}

	// Entropy contributes up to 30 points, saturating at 4.5 bits/char.
	entropyScore := int(entropy / 4.5 * 30)
	if entropyScore > 30 {
		entropyScore = 30
	}

	complexityScore := classes * 10

	total := lengthScore + entropyScore + complexityScore
	total -= errorCount * 25
	total -= warningCount * 10

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	return total
}

func tierFor(score int) Strength {
	switch {
	case score >= 80:
		return StrengthExcellent
	case score >= 60:
		return StrengthGood
	case score >= 40:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}
