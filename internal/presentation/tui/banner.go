package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	`        _                    `,
	`   ___ | | __ _ _ __ __ _   `,
	`  / __|| |/ _' | '__/ _' |  `,
	` | (__ | | (_| | | | (_| |  `,
	`  \___||_|\__,_|_|  \__,_|  `,
}

var bannerColors = []string{"#2dd4bf", "#22d3ee", "#38bdf8", "#60a5fa", "#818cf8"}

// PrintBanner writes the Clara banner and version to w.
// Colours follow the terminal profile, so redirected output stays plain.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, out.String(line).Foreground(p.Color(bannerColors[i])))
	}
	fmt.Fprintln(w, out.String("  customer support workflows "+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
