package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"report-analyzer/internal/document"
	"report-analyzer/pkg/workflow"
)

const watchDebounce = 500 * time.Millisecond

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyAnalyzeFlags(cmd, cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	analyzer, err := workflow.New(cfg, workflow.WithLogger(newLogger(cfg)))
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	defer analyzer.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	outputDir, _ := filepath.Abs(cfg.OutputDir)
	fmt.Printf("Watching %s for report changes\n", dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A burst of writes to the same report triggers one analysis.
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !triggersAnalysis(event, outputDir) {
				continue
			}
			if verbose {
				fmt.Printf("[%s] %s changed\n", time.Now().Format(time.RFC3339), event.Name)
			}
			timer.Reset(watchDebounce)
		case <-timer.C:
			fmt.Printf("[%s] Analyzing %s...\n", time.Now().Format(time.RFC3339), dir)
			startTime := time.Now()
			res, err := analyzer.Run(ctx, dir)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintf(os.Stderr, "Error analyzing %s: %v\n", dir, err)
				continue
			}
			printResult(res, time.Since(startTime))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return nil
		}
	}
}

// triggersAnalysis reports whether event wrote a loadable report outside the output directory.
func triggersAnalysis(event fsnotify.Event, outputDir string) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	if !document.IsSupported(event.Name) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return true
	}
	return outputDir == "" || !strings.HasPrefix(abs, outputDir+string(filepath.Separator))
}
