package util

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Help styles using lipgloss
var (
	lightGreen  = lipgloss.Color("#90EE90")
	gray        = lipgloss.Color("#A9A9A9")
	darkGray    = lipgloss.Color("#5A5A5A")
	brightGreen = lipgloss.Color("#00FF7F")
	orange      = lipgloss.Color("#E4572E") // matches logger prefix

	titleStyle = lipgloss.NewStyle().
			Foreground(orange).
			Bold(true).
			PaddingBottom(1).
			MarginLeft(2)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true).
			PaddingBottom(1).
			MarginLeft(2)

	sectionTitleStyle = lipgloss.NewStyle().
				Foreground(lightGreen).
				Bold(true).
				PaddingLeft(2)

	commandStyle = lipgloss.NewStyle().
			Foreground(brightGreen).
			Bold(true).
			PaddingLeft(4)

	optionStyle = lipgloss.NewStyle().
			Foreground(brightGreen).
			Bold(true).
			PaddingLeft(4)

	parameterStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	descriptionStyle = lipgloss.NewStyle().
				Foreground(gray).
				PaddingLeft(6).
				Width(80 - 6)

	separatorStyle = lipgloss.NewStyle().
			Foreground(darkGray)
)

// ShowHelp displays the formatted help message
func ShowHelp() {
	fmt.Print(HelpText())
}

// HelpText renders the help message.
func HelpText() string {
	var helpContent strings.Builder

	helpContent.WriteString(titleStyle.Render("firedl - AnimeFire episode downloader"))
	helpContent.WriteString("\n")
	helpContent.WriteString(subtitleStyle.Render("Find the quality links of AnimeFire episodes and download them without tripping the site's rate limits."))
	helpContent.WriteString("\n\n")

	// Usage section
	helpContent.WriteString(separatorStyle.Render(strings.Repeat("─", 80)))
	helpContent.WriteString("\n")
	helpContent.WriteString(sectionTitleStyle.Render("Usage:"))
	helpContent.WriteString("\n")
	helpContent.WriteString(commandStyle.Render("  firedl ") + parameterStyle.Render("[options] <episode url>..."))
	helpContent.WriteString("\n")
	helpContent.WriteString(descriptionStyle.Render("    Download the given episodes (/animes/<name>/<n> or /download/<name>/<n>)"))
	helpContent.WriteString("\n")
	helpContent.WriteString(commandStyle.Render("  firedl ") + parameterStyle.Render("[options] <anime page url>"))
	helpContent.WriteString("\n")
	helpContent.WriteString(descriptionStyle.Render("    Pick episodes of an anime (-all downloads every episode)"))
	helpContent.WriteString("\n")
	helpContent.WriteString(commandStyle.Render("  firedl ") + parameterStyle.Render("[options] <anime name>"))
	helpContent.WriteString("\n")
	helpContent.WriteString(descriptionStyle.Render("    Search the site and choose the anime from a fuzzy finder"))
	helpContent.WriteString("\n")
	helpContent.WriteString(commandStyle.Render("  firedl ") + parameterStyle.Render("-native"))
	helpContent.WriteString("\n")
	helpContent.WriteString(descriptionStyle.Render("    Serve the browser extension over native messaging"))
	helpContent.WriteString("\n\n")

	// Options section
	helpContent.WriteString(separatorStyle.Render(strings.Repeat("─", 80)))
	helpContent.WriteString("\n")
	helpContent.WriteString(sectionTitleStyle.Render("Options:"))
	helpContent.WriteString("\n")
	addOption(&helpContent, "-quality auto|SD|HD|F-HD|FullHD|ask", "Quality to download. auto picks the best one available. Default: auto.")
	addOption(&helpContent, "-o <dir>", "Output directory. Default: ~/Downloads/anime_fire.")
	addOption(&helpContent, "-conflict uniquify|overwrite", "What to do when the file already exists. Default: uniquify.")
	addOption(&helpContent, "-all", "Download every episode listed on an anime page.")
	addOption(&helpContent, "-select", "Choose the episodes of an anime page interactively.")
	addOption(&helpContent, "-pacing stealth|page", "Delay profile between episodes of a batch. Default: stealth.")
	addOption(&helpContent, "-delay <duration>", "Fixed wait between episodes, e.g. 20s. Overrides -pacing.")
	addOption(&helpContent, "-from <n> / -to <n>", "Episode range to take from an anime page. Either bound may be omitted.")
	addOption(&helpContent, "-max-retries <n>", "Retries after HTTP 429 before giving up. Default: 5.")
	addOption(&helpContent, "-limit-rate <bytes/s>", "Bandwidth cap for downloads. Default: unlimited.")
	addOption(&helpContent, "-no-progress", "Disable the progress bar.")
	addOption(&helpContent, "-base-url <url>", "Override the site root (also FIREDL_BASE_URL).")
	addOption(&helpContent, "-native", "Run as a native messaging host on stdin/stdout.")
	addOption(&helpContent, "-debug", "Enable debug logging.")
	addOption(&helpContent, "-help / -h", "Display this help message.")
	addOption(&helpContent, "-version", "Show version information.")
	helpContent.WriteString("\n")

	// Examples section
	helpContent.WriteString(separatorStyle.Render(strings.Repeat("─", 80)))
	helpContent.WriteString("\n")
	helpContent.WriteString(sectionTitleStyle.Render("Examples:"))
	helpContent.WriteString("\n")
	addOption(&helpContent, "firedl https://animefire.plus/animes/one-piece/1", "Download episode 1 of One Piece in the best quality")
	addOption(&helpContent, "firedl -quality HD https://animefire.plus/download/one-piece/2", "Download episode 2 in HD")
	addOption(&helpContent, "firedl -all https://animefire.plus/animes/one-piece-todos-os-episodios", "Download the whole series")
	addOption(&helpContent, "firedl -from 10 -to 20 -delay 30s https://animefire.plus/animes/one-piece-todos-os-episodios", "Download episodes 10 to 20, 30s apart")
	addOption(&helpContent, "firedl -quality ask \"jujutsu kaisen\"", "Search, choose episodes and choose the quality of each one")
	helpContent.WriteString("\n")

	return helpContent.String()
}

func addOption(builder *strings.Builder, opt, desc string) {
	builder.WriteString(optionStyle.Render("  " + opt))
	builder.WriteString("\n")
	builder.WriteString(descriptionStyle.Render("    " + desc))
	builder.WriteString("\n")
}
