package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/transformahq/transforma-agent/internal/cli"
	"github.com/transformahq/transforma-agent/internal/model"
	"github.com/transformahq/transforma-agent/internal/router"
)

func routeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route [file]",
		Short: "Decide whether a document is an invoice",
		Long: `Route a PDF document through the two-tier classifier: filename
patterns first, then first-page content analysis.

Examples:
  transforma route invoice.pdf              # Route a single document
  transforma route --dir ~/Downloads        # Route every PDF in a directory
  transforma route invoice.pdf --json       # Machine-readable output`,
		RunE: runRoute,
	}

	cmd.Flags().StringP("dir", "d", "", "Route every PDF in a directory")
	cmd.Flags().String("patterns", "", "JSON file with extra filename patterns")
	cmd.Flags().Int("max-chars", 0, "Maximum characters extracted from the first page")
	cmd.Flags().Bool("json", false, "Emit results as JSON")

	_ = viper.BindPFlag("routing.max_chars", cmd.Flags().Lookup("max-chars"))

	return cmd
}

// routeOutput is the JSON shape for one routed document.
type routeOutput struct {
	File        string  `json:"file"`
	Decision    string  `json:"decision"`
	MatchedRule string  `json:"matched_rule,omitempty"`
	ClientHint  string  `json:"client_hint,omitempty"`
	Confidence  float64 `json:"confidence"`
}

func runRoute(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	patternsFile, _ := cmd.Flags().GetString("patterns")
	asJSON, _ := cmd.Flags().GetBool("json")
	maxChars := viper.GetInt("routing.max_chars")

	if dir == "" && len(args) == 0 {
		return fmt.Errorf("provide a file to route or --dir for a batch")
	}

	r, err := buildRouter(patternsFile, maxChars)
	if err != nil {
		return err
	}

	if dir != "" {
		return routeDirectory(r, dir, asJSON)
	}
	return routeSingle(r, args[0], asJSON)
}

func routeSingle(r *router.Router, path string, asJSON bool) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	result := r.Route(path)
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(toRouteOutput(path, result))
	}

	printRouteResult(path, result)
	return nil
}

func routeDirectory(r *router.Router, dir string, asJSON bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cannot read directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		fmt.Println(cli.FormatWarning("No PDF files found in " + dir))
		return nil
	}

	var bar *progressbar.ProgressBar
	if !asJSON {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Routing documents..."),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(os.Stderr)
			}),
		)
	}

	outputs := make([]routeOutput, 0, len(paths))
	counts := map[model.RouteDecision]int{}
	for _, path := range paths {
		result := r.Route(path)
		counts[result.Decision]++
		outputs = append(outputs, toRouteOutput(path, result))
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(outputs)
	}

	for _, out := range outputs {
		line := fmt.Sprintf("%-12s %s", out.Decision, filepath.Base(out.File))
		if out.MatchedRule != "" {
			line += cli.SubtleStyle.Render("  (" + out.MatchedRule + ")")
		}
		switch model.RouteDecision(out.Decision) {
		case model.RouteInvoice:
			fmt.Println(cli.StyleSuccess(line))
		case model.RouteNotInvoice:
			fmt.Println(cli.SubtleStyle.Render(line))
		default:
			fmt.Println(cli.StyleWarning(line))
		}
	}

	fmt.Println()
	fmt.Println(cli.FormatInfo(fmt.Sprintf("%d invoices, %d other, %d unknown",
		counts[model.RouteInvoice], counts[model.RouteNotInvoice], counts[model.RouteUnknown])))
	return nil
}

func toRouteOutput(path string, result model.RouteResult) routeOutput {
	return routeOutput{
		File:        path,
		Decision:    string(result.Decision),
		MatchedRule: result.MatchedRule,
		ClientHint:  result.ClientHint,
		Confidence:  result.Confidence,
	}
}

func printRouteResult(path string, result model.RouteResult) {
	var headline string
	switch result.Decision {
	case model.RouteInvoice:
		headline = cli.FormatSuccess("Invoice")
	case model.RouteNotInvoice:
		headline = cli.FormatInfo("Not an invoice")
	default:
		headline = cli.FormatWarning("Unknown")
	}

	fmt.Printf("%s  %s\n", headline, filepath.Base(path))
	if result.MatchedRule != "" {
		fmt.Printf("  Rule:       %s\n", result.MatchedRule)
	}
	if result.ClientHint != "" {
		fmt.Printf("  Client:     %s\n", result.ClientHint)
	}
	fmt.Printf("  Confidence: %.2f\n", result.Confidence)
}
