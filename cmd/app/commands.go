package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v3"

	"github.com/starford/jotter/internal"
	"github.com/starford/jotter/internal/models"
	"github.com/starford/jotter/internal/query"
	"github.com/starford/jotter/internal/transfer"
)

// openSession opens the collection for a one-shot command. Logs go to
// stderr so stdout stays clean for command output.
func openSession(cmd *cli.Command) (*internal.Session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	// One-shot commands must not fight a running server over the file.
	cfg.Watch.Enabled = false
	return internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write every note to a JSON backup file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output file or directory; - for stdout (default: notes-backup-<date>.json)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			name, data, err := sess.Service.Export(ctx)
			if err != nil {
				return err
			}

			out := cmd.String("out")
			if out == "-" {
				_, err := stdout(cmd).Write(data)
				return err
			}
			if out == "" {
				out = name
			} else if info, statErr := os.Stat(out); statErr == nil && info.IsDir() {
				out = filepath.Join(out, name)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write backup: %w", err)
			}
			_, _ = fmt.Fprintf(stdout(cmd), "exported to %s\n", out)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import notes from a JSON backup file",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("import: file argument is required")
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			defer f.Close()

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			report, err := sess.Service.Import(ctx, &transfer.File{
				Name: filepath.Base(path),
				Size: info.Size(),
			}, f)
			if err != nil {
				return err
			}
			if report.Skipped > 0 {
				_, _ = fmt.Fprintf(stdout(cmd), "imported %d notes (%d invalid skipped)\n", report.Imported, report.Skipped)
				return nil
			}
			_, _ = fmt.Fprintf(stdout(cmd), "imported %d notes\n", report.Imported)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List notes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "all, pinned or archived",
				Value:   string(query.ModeAll),
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Case-insensitive text to find in title or content",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print JSON instead of a table",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			mode, err := query.ParseMode(cmd.String("filter"))
			if err != nil {
				return err
			}
			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			notes, counts := sess.Service.List(ctx, mode, cmd.String("query"))
			if cmd.Bool("json") {
				enc := json.NewEncoder(stdout(cmd))
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"notes": notes, "counts": counts})
			}
			renderNotes(stdout(cmd), notes, counts)
			return nil
		},
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	pinnedStyle = cellStyle.Foreground(lipgloss.Color("214"))
	mutedStyle  = cellStyle.Foreground(lipgloss.Color("245"))
)

func renderNotes(w io.Writer, notes []models.Note, counts models.Counts) {
	rows := make([][]string, 0, len(notes))
	for _, n := range notes {
		rows = append(rows, []string{
			n.ID,
			flags(n),
			n.Title,
			preview(n.Content, 40),
			n.UpdatedAt.Local().Format(time.DateTime),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "", "TITLE", "CONTENT", "UPDATED").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row < 0 || row >= len(notes):
				return cellStyle
			case notes[row].Archived:
				return mutedStyle
			case notes[row].Pinned:
				return pinnedStyle
			default:
				return cellStyle
			}
		})

	_, _ = fmt.Fprintln(w, t.Render())
	_, _ = fmt.Fprintf(w, "all %d · pinned %d · archived %d\n", counts.All, counts.Pinned, counts.Archived)
}

func flags(n models.Note) string {
	var b strings.Builder
	if n.Pinned {
		b.WriteString("P")
	}
	if n.Archived {
		b.WriteString("A")
	}
	return b.String()
}

func preview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
