package console

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Printer holds the styling functions used for console output.
type Printer struct {
	NoColor       bool
	InfoString    func(format string, a ...any) string
	ErrorString   func(format string, a ...any) string
	SuccessString func(format string, a ...any) string
	WarningString func(format string, a ...any) string
}

// NewPrinter styles output for w. Colors are only used when w is a terminal
// and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	p := &Printer{
		InfoString:    color.New(color.FgCyan).SprintfFunc(),
		ErrorString:   color.New(color.FgRed).SprintfFunc(),
		SuccessString: color.New(color.FgGreen).SprintfFunc(),
		WarningString: color.New(color.FgYellow).SprintfFunc(),
	}

	isTTY := false
	if f, ok := w.(*os.File); ok {
		isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	p.NoColor = os.Getenv("NO_COLOR") != "" || !isTTY

	if p.NoColor {
		p.InfoString = fmt.Sprintf
		p.ErrorString = fmt.Sprintf
		p.SuccessString = fmt.Sprintf
		p.WarningString = fmt.Sprintf
	}
	return p
}
