package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/sensorsync/pointcloud"
	"go.viam.com/sensorsync/rimage"
	"go.viam.com/sensorsync/utils"
)

func write(t *testing.T, path string, data []byte) {
	t.Helper()
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o750), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, data, 0o600), test.ShouldBeNil)
}

func TestSyncCommand(t *testing.T) {
	root := t.TempDir()
	pc, err := pointcloud.New([]r3.Vector{{X: 1, Y: 2, Z: 3}}, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	for _, name := range []string{"lidar_0_0.bin", "lidar_1_0.bin", "lidar_2_0.bin"} {
		write(t, filepath.Join(root, "lidar", name), pointcloud.ToBin(pc))
	}
	for _, name := range []string{"image_0_0.bin", "image_2_0.bin"} {
		write(t, filepath.Join(root, "images", name), rimage.ToBin(rimage.NewImage(1, 1, rimage.ChannelRGB)))
	}
	write(t, filepath.Join(root, "imu.txt"), []byte(`[
		{"timestamp": 0, "angular_velocity": {"x": 0}, "linear_acceleration": {"x": 1}},
		{"timestamp": 1, "angular_velocity": {"x": 0}, "linear_acceleration": {"x": 2}},
		{"timestamp": 2, "angular_velocity": {"x": 0}, "linear_acceleration": {"x": 3}}
	]`))
	write(t, filepath.Join(root, "gps.txt"), []byte(`[
		{"timestamp": 0, "latitude": 1, "longitude": 2},
		{"timestamp": 4, "latitude": 2, "longitude": 2}
	]`))

	var out bytes.Buffer
	err = NewApp(&out).Run([]string{"sensorsync", "--env-file", "", "sync", "--workers", "2", root})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "Reference sensor: image (mean gap 2.000000s)")
	test.That(t, out.String(), test.ShouldContainSubstring, "| gps    | interpolate |")
	test.That(t, out.String(), test.ShouldContainSubstring, "| imu    | nearest     |")
	test.That(t, out.String(), test.ShouldContainSubstring, "| image  | reference   |")
	test.That(t, out.String(), test.ShouldContainSubstring, "Wrote 2 records to "+filepath.Join(root, "synchronized_data.json"))

	err = NewApp(&out).Run([]string{"sensorsync", "--env-file", "", "sync", "--workers", "-1", root})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "workers must be non-negative")

	err = NewApp(&out).Run([]string{"sensorsync", "sync"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestProjectCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sensorsync.json")
	write(t, cfgPath, []byte(`{"bonus_image_dir": "`+filepath.Join(dir, "image_02")+`"}`))

	var out bytes.Buffer
	err := NewApp(&out).Run([]string{"sensorsync", "--config", cfgPath, "--env-file", "", "project", "5"})
	test.That(t, errors.Is(err, utils.ErrResourceNotFound), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "0000000005.png")

	err = NewApp(&out).Run([]string{"sensorsync", "project", "5", "6"})
	test.That(t, err, test.ShouldNotBeNil)
}
