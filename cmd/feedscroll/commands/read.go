package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/feedscroll/internal/logger"
	"github.com/jmylchreest/feedscroll/internal/render"
	"github.com/jmylchreest/feedscroll/internal/tui"
	"github.com/jmylchreest/feedscroll/pkg/scroll"
	"github.com/jmylchreest/feedscroll/pkg/viewport"
)

// Lines from the bottom of the terminal reader that trigger a load.
const defaultReadThreshold = 5

var readCmd = &cobra.Command{
	Use:   "read <url>",
	Short: "Read a feed in the terminal",
	Long: `Read opens the feed in a scrollable terminal view. Reaching the bottom
loads the next page. The threshold is measured in lines.

Keys: arrows/j/k/pgup/pgdn scroll, g/G jump, n loads the next page, q quits.`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)

	flags := readCmd.Flags()
	addPaginationFlags(flags)
	flags.String("render", "markdown", "item rendering: markdown, text, html")
	flags.Bool("no-images", true, "drop images from rendered items")
	flags.String("log-file", "", "write logs to this file while the reader is open")
}

func runRead(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	target := args[0]

	cfg, err := engineConfig(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}
	if !cmd.Flags().Changed("threshold") {
		cfg.Threshold = defaultReadThreshold
	}

	renderStr, _ := cmd.Flags().GetString("render")
	format, err := render.ParseFormat(renderStr)
	if err != nil {
		return err
	}
	noImages, _ := cmd.Flags().GetBool("no-images")
	renderer := render.New(format, render.WithStripImages(noImages))

	f, err := newFetcher(cmd)
	if err != nil {
		logger.Error("failed to create fetcher", "error", err)
		return err
	}
	defer func() { _ = f.Close() }()

	first, err := fetchFirstPage(ctx, f, target, cfg, fetchOptions(cmd))
	if err != nil {
		logger.Error("failed to fetch first page", "url", target, "error", err)
		return err
	}

	screen := viewport.NewVirtual(0, 0)
	engine, err := scroll.New(cfg, first.Doc, screen, engineOptions(ctx, cmd, f, cfg)...)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		return err
	}
	defer engine.Stop()

	model := tui.New(engine, screen, first.Result.Items, tui.Options{
		Title:    target,
		Renderer: renderer,
		Context:  ctx,
	})

	// Logs would draw over the alt screen.
	logOut := io.Discard
	if logPath, _ := cmd.Flags().GetString("log-file"); logPath != "" {
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //#nosec G304 -- CLI tool writes to user-specified log file
		if err != nil {
			return err
		}
		defer func() { _ = file.Close() }()
		logOut = file
	}
	logger.Init(logger.Options{
		Debug:  viper.GetBool("debug"),
		JSON:   viper.GetBool("log_json"),
		Output: logOut,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if err := model.Attach(p.Send); err != nil {
		return err
	}

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		logError("%v", err)
		return err
	}
	return nil
}
