package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// confirm asks a yes/no question. --yes answers yes; without a
// terminal on stdin the answer is no.
func (c *CLI) confirm(question string) bool {
	if c.Yes {
		return true
	}
	if c.Prompt != nil {
		return c.Prompt(question)
	}
	return c.terminalPrompt(os.Stdin, question)
}

// terminalPrompt reads a single keypress in raw mode.
func (c *CLI) terminalPrompt(in *os.File, question string) bool {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintf(c.errOut(), "%s [y/N] no (stdin is not a terminal)\n", question)
		return false
	}

	fmt.Fprintf(c.errOut(), "%s [y/N] ", question)
	state, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintln(c.errOut())
		return false
	}
	var b [1]byte
	_, err = in.Read(b[:])
	_ = term.Restore(fd, state)

	yes := err == nil && (b[0] == 'y' || b[0] == 'Y')
	if yes {
		fmt.Fprintln(c.errOut(), "yes")
	} else {
		fmt.Fprintln(c.errOut(), "no")
	}
	return yes
}
