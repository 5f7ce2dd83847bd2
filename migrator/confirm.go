package migrator

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirmer decides whether a destructive step may proceed. There is no
// timeout: an interactive confirmer blocks until the operator answers.
type Confirmer func(prompt string) bool

// AutoConfirmer approves every step, for unattended runs.
func AutoConfirmer() Confirmer {
	return func(string) bool { return true }
}

// StdinConfirmer prompts on out and reads a y/yes answer from in. Anything
// else, including EOF, declines.
func StdinConfirmer(in io.Reader, out io.Writer) Confirmer {
	reader := bufio.NewReader(in)
	return func(prompt string) bool {
		fmt.Fprintf(out, "%s\nProceed? [y/N]: ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
