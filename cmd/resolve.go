package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"getbox/internal/binaries"
	"getbox/internal/media"
)

var flagJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Resolve a post URL and print its downloadable items",
	Args:  cobra.ExactArgs(1),
	RunE:  resolveRun,
}

func init() {
	resolveCmd.Flags().BoolVarP(&flagJSON, "json", "j", false, "Output the result as JSON")
}

func resolveRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(background(cmd), os.Interrupt)
	defer stop()

	log := logrus.NewEntry(logger)
	t := locateTools(cfg, binaries.NewLocator())
	resolver := newResolver(cfg, t, log, nil)

	res, err := resolver.Resolve(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagJSON || !isTerminal(out) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = io.WriteString(out, renderResult(res))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	faintStyle   = lipgloss.NewStyle().Faint(true)
	tagStyle     = lipgloss.NewStyle().Bold(true).Width(7)
	qualityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

// renderResult formats res for a terminal.
func renderResult(res *media.Result) string {
	var b strings.Builder

	title := res.Meta.Title
	if title == "" {
		title = "Untitled"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	var info []string
	if res.Meta.Author != "" {
		info = append(info, "by "+res.Meta.Author)
	}
	if res.Meta.Platform != "" {
		info = append(info, res.Meta.Platform)
	}
	if res.Meta.Duration > 0 {
		info = append(info, fmt.Sprintf("%.0fs", res.Meta.Duration))
	}
	if len(info) > 0 {
		b.WriteString(faintStyle.Render(strings.Join(info, " · ")))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, it := range res.URLs {
		var flags []string
		if it.IsMuted {
			flags = append(flags, "muted")
		}
		if it.IsTranscode {
			flags = append(flags, "transcode")
		}
		line := fmt.Sprintf("%2d. %s %s", i+1, tagStyle.Render(string(it.Type)), it.Filename)
		if it.Quality != "" {
			line += " " + qualityStyle.Render(it.Quality)
		}
		if len(flags) > 0 {
			line += " " + faintStyle.Render("("+strings.Join(flags, ", ")+")")
		}
		b.WriteString(line)
		b.WriteString("\n")
		b.WriteString("    " + faintStyle.Render(it.URL))
		b.WriteString("\n")
	}
	return b.String()
}
