package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/logging"
	"github.com/neurobot/backend/internal/tail"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8000/ws/", "WebSocket URL of the NeuroBot live feed")
	send := flag.String("send", "", "Comma-separated EEG samples to upload before following")
	recordID := flag.Int64("record", 0, "Print a stored record and exit")
	noColor := flag.Bool("no-color", false, "Disable coloured output")
	ui := flag.Bool("ui", false, "Full-screen live view instead of line output")
	verbose := flag.Bool("v", false, "Log connection events")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, _, err := logging.New(level, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := tail.NewHTTPClient(tail.HTTPBase(*wsURL))

	if *recordID > 0 {
		rec, err := httpClient.GetRecord(ctx, *recordID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("record %d uploaded %s mood=%q n=%d mean=%.4g std=%.4g\n",
			rec.ID, rec.UploadedAt.Format("2006-01-02 15:04:05"), rec.Mood,
			rec.Features.Length, rec.Features.Mean, rec.Features.Std)
		return
	}

	if *send != "" {
		samples, err := parseSamples(*send)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		res, err := httpClient.Upload(ctx, samples)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("uploaded record %d (mood %q)\n", res.ID, res.Mood)
	}

	tty := isatty.IsTerminal(os.Stdout.Fd())
	if *ui && tty {
		if err := runUI(ctx, *wsURL, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	client := tail.NewClient(*wsURL, tail.NewPrinter(os.Stdout, !*noColor && tty), log)
	if err := client.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runUI follows the feed inside a full-screen program. Connection logs
// would corrupt the screen, so the client logs nothing.
func runUI(ctx context.Context, wsURL string, log *zap.Logger) error {
	p := tea.NewProgram(tail.NewModel(wsURL), tea.WithAltScreen(), tea.WithContext(ctx))

	followCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	client := tail.NewClient(wsURL, tail.NewFeed(p), zap.NewNop())
	go client.Run(followCtx) //nolint:errcheck

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		log.Debug("ui stopped", zap.Error(err))
	}
	return err
}

func parseSamples(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad sample %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
