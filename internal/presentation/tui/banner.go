package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the startup banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  _____ _____      __", "#818cf8"},
		{" |_   _/ __\\ \\    / /", "#a78bfa"},
		{"   | | \\__ \\\\ \\/\\/ / ", "#c084fc"},
		{"   |_| |___/ \\_/\\_/  ", "#e879f9"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  server supervisor "+version).Faint())
	fmt.Fprintln(w)
}
