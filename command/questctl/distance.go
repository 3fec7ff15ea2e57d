package main

import (
	"github.com/spf13/cobra"

	"github.com/bitmark-inc/geoquest-agent/geo"
	"github.com/bitmark-inc/geoquest-agent/geofence"
	"github.com/bitmark-inc/geoquest-agent/schema"
)

type distanceOutput struct {
	DistanceMeters float64               `json:"distance_meters"`
	State          schema.ProximityState `json:"state,omitempty"`
}

// Coordinates are taken as flags, a positional "-74.0060" would be read as
// a shorthand flag.
func locationFlags(cmd *cobra.Command, loc *schema.Location, latName, lngName string) {
	cmd.Flags().Float64Var(&loc.Latitude, latName, 0, "Latitude in decimal degrees")
	cmd.Flags().Float64Var(&loc.Longitude, lngName, 0, "Longitude in decimal degrees")
	_ = cmd.MarkFlagRequired(latName)
	_ = cmd.MarkFlagRequired(lngName)
}

func newDistanceCommand() *cobra.Command {
	var radius, accuracy float64
	var device, center schema.Location

	cmd := &cobra.Command{
		Use:   "distance --lat <lat> --lng <lng> --center-lat <lat> --center-lng <lng>",
		Short: "Measure the distance to a quest center and classify it against a radius",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := device.Validate(); err != nil {
				return err
			}
			if err := center.Validate(); err != nil {
				return err
			}

			out := distanceOutput{DistanceMeters: geo.DistanceBetween(device, center)}

			if radius > 0 {
				fence := schema.Geofence{Center: center, RadiusMeters: radius}
				if err := fence.Validate(); err != nil {
					return err
				}
				out.State, _ = geofence.Classify(schema.DeviceLocation{
					Location:       device,
					AccuracyMeters: accuracy,
				}, fence)
			}

			return writeJSON(cmd, out)
		},
	}

	locationFlags(cmd, &device, "lat", "lng")
	locationFlags(cmd, &center, "center-lat", "center-lng")
	cmd.Flags().Float64Var(&radius, "radius", 0, "Geofence radius in meters")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "Reported accuracy of the device location in meters")

	return cmd
}
