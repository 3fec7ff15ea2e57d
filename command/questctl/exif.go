package main

import (
	"errors"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/bitmark-inc/geoquest-agent/external/metadata"
	"github.com/bitmark-inc/geoquest-agent/schema"
)

type exifOutput struct {
	File     string                `json:"file"`
	MimeType string                `json:"mime_type"`
	Metadata *schema.ImageMetadata `json:"metadata"`
}

func newExifCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exif <image>",
		Short: "Print the embedded location, capture time and camera of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			mimeType := mimetype.Detect(data).String()
			meta, err := metadata.New().Parse(data, mimeType)
			if err != nil && !errors.Is(err, metadata.ErrNoMetadata) {
				return err
			}

			return writeJSON(cmd, exifOutput{
				File:     args[0],
				MimeType: mimeType,
				Metadata: meta,
			})
		},
	}
}
