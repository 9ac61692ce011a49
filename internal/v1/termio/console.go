// Package termio provides the line-oriented console both interactive
// clients read from and print to.
package termio

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Console reads lines from one stream and writes formatted output to
// another.
type Console struct {
	r *bufio.Reader
	w io.Writer
}

// New returns a console over the given streams.
func New(r io.Reader, w io.Writer) *Console {
	return &Console{r: bufio.NewReader(r), w: w}
}

// NewStdio returns a console over stdin and stdout.
func NewStdio() *Console {
	return New(os.Stdin, os.Stdout)
}

// ReadLine blocks for the next input line, including its trailing newline.
func (c *Console) ReadLine() (string, error) {
	return c.r.ReadString('\n')
}

// Printf writes formatted output.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.w, format, args...)
}
