package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lexiconary/authcore/secret"
)

// authcore-secrets validates an existing signing secret or generates a new
// one that passes the boot-time strength gate.
func main() {
	var (
		generate = flag.Bool("generate", false, "generate a new signing secret")
		length   = flag.Int("length", 64, "generated secret length")
		value    = flag.String("validate", "", "secret to validate; reads AUTHCORE_JWT_SECRET when empty")
	)
	flag.Parse()

	if *generate {
		s, err := secret.Generate(*length)
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(s)
		return
	}

	v := *value
	if v == "" {
		v = os.Getenv("AUTHCORE_JWT_SECRET")
	}
	if v == "" {
		fmt.Fprintln(os.Stderr, "nothing to validate: pass -validate or set AUTHCORE_JWT_SECRET")
		os.Exit(2)
	}

	report := secret.Validate(v)
	fmt.Printf("strength: %s (score %d, entropy %.2f bits/char)\n", report.Strength, report.Score, report.Entropy)
	for _, e := range report.Errors {
		fmt.Printf("error: %s\n", e)
	}
	for _, w := range report.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, r := range report.Recommendations {
		fmt.Printf("hint: %s\n", r)
	}
	if !report.IsValid {
		os.Exit(1)
	}
}
