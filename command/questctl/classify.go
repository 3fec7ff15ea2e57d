package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bitmark-inc/geoquest-agent/external/geoinfo"
	"github.com/bitmark-inc/geoquest-agent/external/streetview"
	"github.com/bitmark-inc/geoquest-agent/geo"
	"github.com/bitmark-inc/geoquest-agent/safety"
	"github.com/bitmark-inc/geoquest-agent/schema"
)

func newClassifyCommand() *cobra.Command {
	var address string
	var types []string
	var loc schema.Location

	cmd := &cobra.Command{
		Use:   "classify --lat <lat> --lng <lng>",
		Short: "Check whether a location is suitable for a quest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loc.Validate(); err != nil {
				return err
			}

			key := viper.GetString("map.apikey")
			if key == "" {
				return fmt.Errorf("map.apikey is not configured")
			}

			client, err := geoinfo.New(key)
			if err != nil {
				return err
			}
			resolver := geo.NewGeocodingPlaceResolver(client)

			streetviewKey := viper.GetString("streetview.apikey")
			if streetviewKey == "" {
				streetviewKey = key
			}
			prober := streetview.New(streetviewKey, viper.GetString("streetview.url"), nil)

			var place *schema.PlaceInfo
			if address != "" || len(types) > 0 {
				place = &schema.PlaceInfo{FormattedAddress: address, Types: types}
			}

			classifier := safety.New(prober, resolver, viper.GetDuration("streetview.timeout"))
			verdict := classifier.Classify(cmd.Context(), loc, place)

			return writeJSON(cmd, verdict)
		},
	}

	locationFlags(cmd, &loc, "lat", "lng")
	cmd.Flags().StringVar(&address, "address", "", "Formatted address, skips reverse geocoding with --types")
	cmd.Flags().StringSliceVar(&types, "types", nil, "Place types of the location")

	return cmd
}
