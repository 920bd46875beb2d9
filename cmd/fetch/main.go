// Command fetch resolves quotes or searches symbols once and prints the
// result as JSON. Useful for checking providers and credentials from the
// terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"deepticker/internal/config"
	"deepticker/internal/pipeline"
	"deepticker/internal/quote"
	"deepticker/internal/secrets"
	"deepticker/pkg/logger"
)

func main() {
	var symbolsCSV string
	var search string
	var timeout int
	var configPath string

	flag.StringVar(&symbolsCSV, "symbols", os.Getenv("SYMBOLS"), "comma-separated ticker symbols to resolve")
	flag.StringVar(&search, "search", "", "free-text symbol search instead of quote resolution")
	flag.IntVar(&timeout, "timeout", 30, "overall timeout seconds")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		logger.New("info", "text").Fatalf("config: %v", err)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	pl, err := pipeline.Build(cfg, secrets.Env{}, log)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	defer pl.Close()

	if search != "" {
		results, err := pl.Resolver.Search(ctx, search)
		if err != nil {
			log.Fatalf("search: %v", err)
		}
		printJSON(struct {
			Results []quote.SearchResult `json:"results"`
		}{Results: results})
		return
	}

	symbols := splitCSV(symbolsCSV)
	if len(symbols) == 0 {
		log.Fatal("no symbols provided; use -symbols AAPL,MSFT or -search apple")
	}

	results := pl.Resolver.Refresh(ctx, symbols)
	type entry struct {
		Quote *quote.Quote `json:"quote,omitempty"`
		Error string       `json:"error,omitempty"`
	}
	out := make(map[string]entry, len(results))
	failed := 0
	for sym, res := range results {
		if res.Err != nil {
			failed++
			out[sym] = entry{Error: res.Err.Error()}
			continue
		}
		q := res.Quote
		out[sym] = entry{Quote: &q}
	}
	printJSON(struct {
		Quotes map[string]entry `json:"quotes"`
	}{Quotes: out})

	if failed == len(results) {
		os.Exit(1)
	}
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
