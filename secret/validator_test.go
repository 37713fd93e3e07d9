package secret

import (
	"math"
	"strings"
	"testing"
)

func TestValidateEmptySecretInvalid(t *testing.T) {
	report := Validate("")

	if report.IsValid {
		t.Fatal("expected empty secret to be invalid")
	}
	if len(report.Errors) == 0 {
		t.Fatal("expected at least one error for empty secret")
	}
	if report.Strength != StrengthWeak {
		t.Fatalf("expected weak strength, got %q", report.Strength)
	}
}

func TestValidateShortSecretInvalid(t *testing.T) {
	report := Validate("Ab3$Ab3$Ab3$")

	if report.IsValid {
		t.Fatal("expected short secret to be invalid")
	}

	found := false
	for _, e := range report.Errors {
		if strings.Contains(e, "below the minimum") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a length error, got %v", report.Errors)
	}
}

func TestValidateRepeatedCharacterSecretInvalid(t *testing.T) {
	// 34 identical characters: passes the length gate, fails on entropy.
	report := Validate(strings.Repeat("a", 34))

	if report.IsValid {
		t.Fatal("expected repeated-character secret to be invalid")
	}
	if report.Entropy > 0.001 {
		t.Fatalf("expected near-zero entropy, got %f", report.Entropy)
	}
}

func TestValidateKnownWeakSubstringInvalid(t *testing.T) {
	report := Validate("xK9$mPwT2#SECRETvL5&qR8!nZ4@hJ7%")

	if report.IsValid {
		t.Fatal("expected secret containing a deny-list value to be invalid")
	}
}

func TestValidateStrongSecretScoresExcellent(t *testing.T) {
	report := Validate("xK9$mPwT2#vGbRtL5&qR8!nZ4@hJ7%cWfY3^dM6*eN1-uQ0+")

	if !report.IsValid {
		t.Fatalf("expected valid secret, got errors %v", report.Errors)
	}
	if report.Strength != StrengthExcellent {
		t.Fatalf("expected excellent strength, got %q (score %d)", report.Strength, report.Score)
	}
	if report.Entropy < MinEntropy {
		t.Fatalf("expected entropy >= %f, got %f", MinEntropy, report.Entropy)
	}
}

func TestValidateWarnsOnPatterns(t *testing.T) {
	report := Validate("abababababababababababababababababab")

	warned := false
	for _, w := range report.Warnings {
		if strings.Contains(w, "alternating") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected an alternating-pattern warning, got %v", report.Warnings)
	}
}

func TestShannonEntropyUniform(t *testing.T) {
	// Four distinct characters with equal frequency: exactly 2 bits/char.
	entropy := shannonEntropy("abcdabcdabcdabcd")
	if math.Abs(entropy-2.0) > 0.0001 {
		t.Fatalf("expected entropy 2.0, got %f", entropy)
	}
}

func TestGenerateLengthExact(t *testing.T) {
	for _, length := range []int{32, 48, 64, 128} {
		value, err := Generate(length)
		if err != nil {
			t.Fatalf("Generate(%d) failed: %v", length, err)
		}
		if len(value) != length {
			t.Fatalf("expected length %d, got %d", length, len(value))
		}
	}
}

func TestGenerateBelowMinimumRejected(t *testing.T) {
	if _, err := Generate(16); err == nil {
		t.Fatal("expected error for length below minimum")
	}
}

func TestGeneratedSecretAlwaysExcellent(t *testing.T) {
	for i := 0; i < 20; i++ {
		value, err := Generate(64)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		report := Validate(value)
		if !report.IsValid {
			t.Fatalf("generated secret failed validation: %v", report.Errors)
		}
		if report.Strength != StrengthExcellent {
			t.Fatalf("expected excellent strength, got %q (score %d)", report.Strength, report.Score)
		}
	}
}

func TestGenerateCoversAllClasses(t *testing.T) {
	value, err := Generate(32)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if classCount(value) != 4 {
		t.Fatalf("expected all four character classes, got %d", classCount(value))
	}
}
