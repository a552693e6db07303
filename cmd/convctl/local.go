package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docuforge/conversion-engine/internal/convert"
	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/extract"
	"github.com/docuforge/conversion-engine/internal/indexer"
	"github.com/docuforge/conversion-engine/internal/modify"
)

// newConvertCmd creates the convert subcommand, which runs a conversion
// against local files using the same engine the workers run.
func newConvertCmd() *cobra.Command {
	var (
		toFormat string
		outDir   string
		page     int
	)

	cmd := &cobra.Command{
		Use:   "convert <input-file>",
		Short: "Convert a local document to another format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath := args[0]
			if toFormat == "" {
				return fmt.Errorf("--to is required")
			}
			if outDir == "" {
				outDir = filepath.Dir(inputPath)
			}

			from := convert.Normalize(strings.TrimPrefix(filepath.Ext(inputPath), "."))
			to := convert.Normalize(toFormat)

			engine := convert.NewEngine(cfg.Convert, logger)
			outPath, err := engine.Convert(context.Background(), inputPath, outDir, from, to, convert.Options{Page: page})
			if err != nil {
				return err
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"output": outPath})
			}
			fmt.Printf("Converted %s -> %s\n", inputPath, outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&toFormat, "to", "", "target format (pdf, docx, png, ...)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: alongside input)")
	cmd.Flags().IntVar(&page, "page", 0, "page to render for pdf-to-image conversions, 1-based")
	return cmd
}

// newExtractCmd creates the extract subcommand.
func newExtractCmd() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "extract <input.pdf>",
		Short: "Extract positioned text elements from a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			extractor := extract.New(cfg.Extract, logger)
			result, err := extractor.Extract(context.Background(), data)
			if err != nil {
				return err
			}

			elements := result.Elements
			if page > 0 {
				filtered := elements[:0:0]
				for _, el := range elements {
					if el.Page == page {
						filtered = append(filtered, el)
					}
				}
				elements = filtered
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
					"elements":     elements,
					"pageCount":    result.PageCount,
					"skippedPages": result.SkippedPages,
				})
			}

			fmt.Printf("%d pages, %d elements", result.PageCount, len(elements))
			if result.SkippedPages > 0 {
				fmt.Printf(" (%d pages skipped)", result.SkippedPages)
			}
			fmt.Println()
			for _, el := range elements {
				fmt.Printf("  p%-3d (%7.2f, %7.2f) %5.1fpt  %q\n", el.Page, el.Box.X, el.Box.Y, el.FontSize, el.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "only show elements from this page, 1-based")
	return cmd
}

// newModifyCmd creates the modify subcommand. Modifications come from a JSON
// file holding an array of operations in the same shape the API accepts.
func newModifyCmd() *cobra.Command {
	var (
		opsFile  string
		outFile  string
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "modify <input.pdf>",
		Short: "Apply content modifications to a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opsFile == "" {
				return fmt.Errorf("--ops is required")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			opsData, err := os.ReadFile(opsFile)
			if err != nil {
				return err
			}
			var mods []domain.Modification
			if err := json.Unmarshal(opsData, &mods); err != nil {
				return fmt.Errorf("parse operations file: %w", err)
			}

			extractor := extract.New(cfg.Extract, logger)
			applier := modify.NewApplier(
				&modify.DirectStrategy{},
				modify.NewOverlayStrategy(cfg.Blob.TempDir),
				modify.NewHTMLStrategy(cfg.Convert.WkhtmltopdfPath, cfg.Convert.HopTimeout, cfg.Blob.TempDir),
				extractor,
				logger,
			)

			result, err := applier.Apply(context.Background(), data, mods, modify.StrategyName(strategy))
			if err != nil {
				return err
			}

			if outFile == "" {
				ext := filepath.Ext(args[0])
				outFile = strings.TrimSuffix(args[0], ext) + ".modified" + ext
			}
			if err := os.WriteFile(outFile, result.Data, 0o644); err != nil {
				return err
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{
					"output":   outFile,
					"strategy": string(result.Strategy),
				})
			}
			fmt.Printf("Applied %d modifications via %s -> %s\n", len(mods), result.Strategy, outFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&opsFile, "ops", "", "JSON file with the modification operations")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default: <input>.modified.pdf)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "force a strategy: direct, overlay, or html")
	return cmd
}

// newIndexCmd creates the index subcommand, which reports what the content
// indexer would store for a PDF.
func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <input.pdf>",
		Short: "Extract searchable text the way the indexer does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := convert.NewEngine(cfg.Convert, logger)
			ix := indexer.New(cfg.Indexer, cfg.OCR, engine.Raster(), logger)

			outcome, err := ix.Index(context.Background(), args[0])
			if err != nil {
				return err
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(outcome)
			}
			fmt.Printf("native chars: %d, ocr attempted: %v, ocr failed: %v, truncated: %v\n",
				outcome.NativeChars, outcome.OCRAttempted, outcome.OCRFailed, outcome.Truncated)
			fmt.Println(outcome.Text)
			return nil
		},
	}
	return cmd
}
