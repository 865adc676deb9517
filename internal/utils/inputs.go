package utils

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks a yes/no question on w and reads answers from r until one is
// recognised. End of input counts as no.
func Confirm(r io.Reader, w io.Writer, question string) bool {
	sc := bufio.NewScanner(r)
	for {
		_, _ = fmt.Fprintf(w, "%s (y/n): ", question)
		if !sc.Scan() {
			_, _ = fmt.Fprintln(w)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		_, _ = fmt.Fprintln(w, "Please answer y or n.")
	}
}
