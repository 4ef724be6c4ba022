package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// newFetchCmd creates the 'fetch' subcommand, which downloads one novel
// synchronously and writes it to <title>.txt.
func newFetchCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "fetch <url-or-id>",
		Short: "Downloads one novel to a text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(context.Background()) }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			doc, err := app.Fetch(ctx, args[0])
			if err != nil {
				return err
			}
			path, err := writeDocument(outDir, doc)
			if err != nil {
				return err
			}
			zap.L().Info("novel written",
				zap.String("path", path),
				zap.Int("chapters", doc.ChapterCount),
				zap.Ints("missing_chapters", doc.MissingChapters),
			)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory the text file is written to")
	return cmd
}

func writeDocument(dir string, doc novel.Document) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, fileName(doc))
	if err := os.WriteFile(path, []byte(doc.Text), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// fileName turns the title into a safe base name, falling back to the job id.
func fileName(doc novel.Document) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(doc.Title))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = doc.JobID
	}
	return name + ".txt"
}
