package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner for Stanza.
func PrintBanner() {
	p := termenv.ColorProfile()
	lines := []string{
		`      _                        `,
		`  ___| |_ __ _ _ __  ______ _  `,
		` / __| __/ _` + "`" + ` | '_ \|_  / _` + "`" + ` | `,
		` \__ \ || (_| | | | |/ / (_| | `,
		` |___/\__\__,_|_| |_/___\__,_| `,
	}
	colors := []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6"}

	fmt.Println()
	for i, line := range lines {
		fmt.Println(termenv.String(line).Foreground(p.Color(colors[i])))
	}
	fmt.Println()
}
