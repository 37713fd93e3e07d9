package secret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	charsetLower   = "abcdefghijklmnopqrstuvwxyz"
	charsetUpper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charsetDigit   = "0123456789"
	charsetSpecial = "!@#$%^&*()-_=+[]{}<>?~"

	generateAttempts = 10
)

var charsetAll = charsetLower + charsetUpper + charsetDigit + charsetSpecial

// ErrGenerateLength is returned when the requested secret length is below
// the validation minimum.
var ErrGenerateLength = errors.New("secret length below minimum")

// Generate returns a cryptographically random secret of exactly length
// characters, containing at least one character from each required class.
// The result always passes [Validate] at tier [StrengthExcellent].
func Generate(length int) (string, error) {
	if length < MinLength {
		return "", fmt.Errorf("%w: %d < %d", ErrGenerateLength, length, MinLength)
	}

	// A random draw can, with vanishing probability, trip a pattern warning
	// or a deny-list substring. Re-draw rather than weaken the guarantee.
	for attempt := 0; attempt < generateAttempts; attempt++ {
		candidate, err := draw(length)
		if err != nil {
			return "", err
		}

		report := Validate(candidate)
		if report.IsValid && report.Strength == StrengthExcellent {
			return candidate, nil
		}
	}

	return "", errors.New("secret generation failed to reach excellent strength")
}

func draw(length int) (string, error) {
	out := make([]byte, 0, length)

	// One guaranteed character per required class.
	for _, class := range []string{charsetLower, charsetUpper, charsetDigit, charsetSpecial} {
		c, err := pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for len(out) < length {
		c, err := pick(charsetAll)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	if err := shuffle(out); err != nil {
		return "", err
	}
	return string(out), nil
}

func pick(charset string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, err
	}
	return charset[n.Int64()], nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return err
		}
		j := n.Int64()
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
