package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zm-image/access"
	"zm-image/config"
	"zm-image/metrics"
	"zm-image/pipeline"
	"zm-image/validation"
)

var renderQuery validation.Query

var (
	renderOut      string
	renderMonitors string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Resolve, synthesize and scale one still without the HTTP service",
	Long: `Runs a single image request through the pipeline and writes the result.
The request is named either by --path or by --fid with an optional --eid.
Scaled variants are cached on disk exactly as when served over HTTP.`,
	RunE: runRender,
}

func init() {
	flags := renderCmd.Flags()
	flags.StringVar(&renderQuery.Path, "path", "", "image path below the image root")
	flags.StringVar(&renderQuery.Eid, "eid", "", "event id")
	flags.StringVar(&renderQuery.Fid, "fid", "", "frame ordinal, or global frame id without --eid")
	flags.StringVar(&renderQuery.Show, "show", "", "frame variant (default capture)")
	flags.StringVar(&renderQuery.Scale, "scale", "", "scale percent")
	flags.StringVar(&renderQuery.Width, "width", "", "target width")
	flags.StringVar(&renderQuery.Height, "height", "", "target height")
	flags.StringVarP(&renderOut, "out", "o", "", "output file (default stdout)")
	flags.StringVar(&renderMonitors, "monitors", "", "comma separated monitor ids the request may read")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, _ []string) error {
	config, err := config.Load()
	if err != nil {
		return err
	}

	counters, performance := metrics.Nop()

	components, err := build(config, counters, performance)
	if err != nil {
		return err
	}
	defer components.Close()

	params := validation.Parse(renderQuery, config.Limits)
	result := components.pipeline.Serve(cmd.Context(), params, access.ParsePermissionSet(renderMonitors))

	switch result.Outcome {
	case pipeline.PassThrough, pipeline.ServeVariant:
	default:
		return fmt.Errorf("%s: %w", result.Outcome, result.Err)
	}

	if renderOut == "" {
		_, err = cmd.OutOrStdout().Write(result.Body)
		return err
	}

	if err := os.WriteFile(renderOut, result.Body, 0o644); err != nil {
		return err
	}

	logger.Info("image rendered",
		zap.String("out", renderOut),
		zap.String("place", result.Place),
		zap.Stringer("dimensions", result.Dimensions),
		zap.Int("bytes", len(result.Body)))

	return nil
}
