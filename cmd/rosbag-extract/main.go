// Command rosbag-extract writes the synchronized image and point cloud frames of a rosbag
// to a directory and prints a JSON summary of the run.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lherman-cs/rosbag-extract/automan"
	"github.com/lherman-cs/rosbag-extract/extract"
	"github.com/lherman-cs/rosbag-extract/pcd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "rosbag-extract",
		Short:        "Extract synchronized frames from a rosbag",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			automanInfo, _ := cmd.Flags().GetString("automan-info")
			rawDataInfo, _ := cmd.Flags().GetString("raw-data-info")
			bagPath, _ := cmd.Flags().GetString("bag")
			outputDir, _ := cmd.Flags().GetString("output-dir")
			calibPath, _ := cmd.Flags().GetString("calib")
			pcdFormat, _ := cmd.Flags().GetString("pcd-format")
			debug, _ := cmd.Flags().GetBool("debug")

			logger := golog.NewDevelopmentLogger("rosbag-extract")
			if !debug {
				logger = logger.Desugar().WithOptions(zap.IncreaseLevel(zap.InfoLevel)).Sugar()
			}
			defer func() {
				_ = logger.Sync()
			}()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, automanInfo, rawDataInfo, bagPath, outputDir, calibPath, pcdFormat)
		},
	}

	rootCmd.Flags().String("automan-info", "", `service location and token, e.g. {"host": "http://localhost:8000", "jwt": "..."}`)
	rootCmd.Flags().String("raw-data-info", "", `what to extract, e.g. {"project_id": 1, "original_id": 2, "candidates": [3, 4]}`)
	rootCmd.Flags().String("bag", "", "path of the rosbag")
	rootCmd.Flags().String("output-dir", "", "directory the frames are written to, created when missing")
	rootCmd.Flags().String("calib", "", "optional OpenCV calibration file used to undistort images")
	rootCmd.Flags().String("pcd-format", string(pcd.BinaryCompressed), "point cloud data format: ascii, binary or binary_compressed")
	rootCmd.Flags().Bool("debug", false, "log every written frame")
	for _, name := range []string{"automan-info", "raw-data-info", "bag", "output-dir"} {
		cobra.CheckErr(rootCmd.MarkFlagRequired(name))
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger golog.Logger, automanInfo, rawDataInfo, bagPath, outputDir, calibPath, pcdFormat string) error {
	var info automan.Info
	if err := json.Unmarshal([]byte(automanInfo), &info); err != nil {
		return errors.Wrap(err, "invalid --automan-info")
	}

	req, err := parseRawDataInfo(rawDataInfo)
	if err != nil {
		return errors.Wrap(err, "invalid --raw-data-info")
	}

	format, err := pcd.ParseDataFormat(pcdFormat)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return err
	}

	client := automan.NewClient(info, nil, logger.Named("automan"))
	extractor := extract.NewExtractor(client, logger.Named("extract"), extract.Options{PCDFormat: format})
	res, err := extractor.Extract(ctx, req, bagPath, outputDir, calibPath)
	if err != nil {
		logger.Errorw("extraction failed", zap.Error(err))
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// parseRawDataInfo accepts ids both as JSON numbers and strings.
func parseRawDataInfo(raw string) (extract.Request, error) {
	var req extract.Request
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return req, err
	}

	var err error
	if req.ProjectID, err = cast.ToIntE(plainDecimal(fields["project_id"])); err != nil {
		return req, errors.Wrap(err, "project_id")
	}
	if req.OriginalID, err = cast.ToIntE(plainDecimal(fields["original_id"])); err != nil {
		return req, errors.Wrap(err, "original_id")
	}
	if req.CandidateIDs, err = cast.ToIntSliceE(plainDecimal(fields["candidates"])); err != nil {
		return req, errors.Wrap(err, "candidates")
	}
	return req, nil
}

// plainDecimal strips leading zeros from string ids, cast would read "010" as octal and
// "0x10" as hex.
func plainDecimal(v interface{}) interface{} {
	switch v := v.(type) {
	case string:
		trimmed := strings.TrimLeft(v, "0")
		if trimmed == "" && v != "" {
			return "0"
		}
		return trimmed
	case []interface{}:
		ids := make([]interface{}, len(v))
		for i := range v {
			ids[i] = plainDecimal(v[i])
		}
		return ids
	default:
		return v
	}
}
