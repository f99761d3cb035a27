package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/tally/internal/export"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/dyluth/tally/pkg/store"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportQR     bool
)

var exportCmd = &cobra.Command{
	Use:   "export CHECKLIST_ID",
	Short: "Export a checklist's shipping manifest",
	Long: `Build the shipping export of a checklist: the manifest ordered by position,
a per-grouping summary, totals and the QR manifest payload.

Output Formats:
  text     - Manifest table followed by the grouping summary (default)
  manifest - One "<code> <label>" line per item in position order
  json     - The full export document

Examples:
  tally export 3f2a9c
  tally export 3f2a9c -o json > export.json
  tally export 3f2a9c -o manifest
  tally export 3f2a9c --qr | qrencode -o manifest.png`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "text", "Output format: text, manifest or json")
	exportCmd.Flags().BoolVar(&exportQR, "qr", false, "Print only the QR manifest payload")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	switch exportOutput {
	case "text", "manifest", "json":
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", exportOutput),
			[]string{"Valid formats: text, manifest, json"},
		)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	fullID, err := resolveChecklist(ctx, client, args[0])
	if err != nil {
		return err
	}

	c, err := client.GetChecklist(ctx, fullID)
	if err != nil {
		if store.IsNotFound(err) {
			return printer.Error(fmt.Sprintf("checklist with ID '%s' not found", fullID), "", nil)
		}
		return fmt.Errorf("failed to get checklist: %w", err)
	}

	x, err := export.Build(c, time.Now())
	if err != nil {
		if fulfillment.KindOf(err) == fulfillment.KindExportValidation {
			return printer.Error(
				"checklist cannot be exported",
				err.Error(),
				[]string{"Add items to the checklist before exporting"},
			)
		}
		return err
	}

	switch {
	case exportQR:
		fmt.Fprintln(os.Stdout, x.QRPayload)
		return nil
	case exportOutput == "manifest":
		fmt.Fprint(os.Stdout, x.ManifestText())
		return nil
	case exportOutput == "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(x)
	default:
		return x.Render(os.Stdout)
	}
}
