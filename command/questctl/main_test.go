package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

func run(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	return &out, cmd.Execute()
}

func TestDistanceCommand(t *testing.T) {
	out, err := run(t, "distance", "--lat", "40.7128", "--lng", "-74.0060", "--center-lat", "40.7128", "--center-lng", "-74.0060", "--radius", "50", "--accuracy", "15")
	assert.NoError(t, err)

	var result distanceOutput
	assert.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 0.0, result.DistanceMeters)
	assert.Equal(t, schema.ProximityReady, result.State)
}

func TestDistanceCommandWeakSignal(t *testing.T) {
	out, err := run(t, "distance", "--lat", "40.7128", "--lng", "-74.0060", "--center-lat", "40.7128", "--center-lng", "-74.0060", "--radius", "50", "--accuracy", "150")
	assert.NoError(t, err)

	var result distanceOutput
	assert.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, schema.ProximityWeakSignal, result.State)
}

func TestDistanceCommandSouthernHemisphere(t *testing.T) {
	out, err := run(t, "distance", "--lat", "-33.8568", "--lng", "-151.2153", "--center-lat=-33.8568", "--center-lng=-151.2153", "--radius", "50")
	assert.NoError(t, err)

	var result distanceOutput
	assert.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 0.0, result.DistanceMeters)
	assert.Equal(t, schema.ProximityReady, result.State)
}

func TestDistanceCommandWithoutRadius(t *testing.T) {
	out, err := run(t, "distance", "--lat", "40.7128", "--lng", "-74.0060", "--center-lat", "40.7138", "--center-lng", "-74.0060")
	assert.NoError(t, err)

	var result distanceOutput
	assert.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.InDelta(t, 111.2, result.DistanceMeters, 0.5)
	assert.Empty(t, result.State)
}

func TestDistanceCommandInvalidInput(t *testing.T) {
	_, err := run(t, "distance", "--lat", "north", "--lng", "-74.0060", "--center-lat", "40.7128", "--center-lng", "-74.0060")
	assert.Error(t, err)

	_, err = run(t, "distance", "--lat", "40.7128", "--lng", "-74.0060")
	assert.Error(t, err, "center is required")

	_, err = run(t, "distance", "--lat", "95", "--lng", "-74.0060", "--center-lat", "40.7128", "--center-lng", "-74.0060")
	assert.Equal(t, schema.ErrInvalidLatitude, err)

	_, err = run(t, "distance", "--lat", "40.7128", "--lng", "-74.0060", "--center-lat", "40.7128", "--center-lng", "-74.0060", "--radius", "5")
	assert.Equal(t, schema.ErrInvalidRadius, err)
}

func TestExifCommandWithoutMetadata(t *testing.T) {
	file := filepath.Join(t.TempDir(), "note.txt")
	assert.NoError(t, os.WriteFile(file, []byte("not an image"), 0600))

	out, err := run(t, "exif", file)
	assert.NoError(t, err)

	var result exifOutput
	assert.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, file, result.File)
	assert.Nil(t, result.Metadata)
}

func TestExifCommandMissingFile(t *testing.T) {
	_, err := run(t, "exif", filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}
