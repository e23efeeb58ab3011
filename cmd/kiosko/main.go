// CLAUDE:SUMMARY CLI entry point for kiosko — single-target, batch, and home-page edition download modes.
// Command kiosko downloads e-paper PDF editions from JS-rendered viewers.
//
// Usage:
//
//	kiosko -url https://epaper.example.com/viewer.aspx?publication=x
//	kiosko -urls targets.txt -dir descargas
//	kiosko -home https://epaper.example.com/epaper/
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/kiosko/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to kiosko.yaml config file")
	singleURL := flag.String("url", "", "download one target URL")
	urlsFile := flag.String("urls", "", "file with one target URL per line")
	homeURL := flag.String("home", "", "home page listing multiple editions")
	dir := flag.String("dir", "", "download directory (overrides config)")
	policy := flag.String("policy", "", "prefer-automation | force-fetch (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *urlsFile, *homeURL, *dir, *policy); err != nil {
		logger.Error("kiosko: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, urlsFile, homeURL, dir, policy string) error {
	cfg := &pipeline.Config{}
	if configPath != "" {
		loaded, err := pipeline.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if dir != "" {
		cfg.DownloadDir = dir
	}
	if policy != "" {
		cfg.Policy = pipeline.Policy(policy)
	}

	p := pipeline.New(cfg, logger)
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Close()

	switch {
	case singleURL != "":
		path, err := p.Run(ctx, singleURL)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil

	case urlsFile != "":
		urls, err := readLines(urlsFile)
		if err != nil {
			return err
		}
		return report(p.RunBatch(ctx, urls))

	case homeURL != "":
		results, err := p.RunHome(ctx, homeURL)
		if err != nil {
			return err
		}
		return report(results)
	}

	fmt.Fprintln(os.Stderr, "usage: kiosko -url <url> | -urls <file> | -home <url> [-config <file>]")
	os.Exit(1)
	return nil
}

// report prints one line per target. A batch never fails wholesale; partial
// results are still results.
func report(results []pipeline.Result) error {
	for _, r := range results {
		switch {
		case r.Path != "":
			fmt.Printf("ok\t%s\t%s\n", r.URL, r.Path)
		case r.Err != nil:
			fmt.Printf("fail\t%s\t%v\n", r.URL, r.Err)
		default:
			fmt.Printf("none\t%s\n", r.URL)
		}
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}
