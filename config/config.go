// Package config holds the directory layout and runtime settings shared by the
// synchronization and projection pipelines.
package config

import (
	"net"
	"strconv"

	"github.com/pkg/errors"

	"go.viam.com/sensorsync/pointcloud"
	"go.viam.com/sensorsync/projection"
	"go.viam.com/sensorsync/rimage"
	"go.viam.com/sensorsync/utils"
)

// DefaultBindAddress is the default address the web server listens on.
const DefaultBindAddress = "localhost:8080"

// Config is constructed once and passed to every pipeline entry point.
//
// Synchronization paths are relative to the root folder of the recording
// being synchronized. Projection paths are relative to the working directory
// unless absolute.
type Config struct {
	ImageDir     string `json:"image_dir"`
	LidarDir     string `json:"lidar_dir"`
	IMUPath      string `json:"imu_path"`
	GPSPath      string `json:"gps_path"`
	ImagesOutDir string `json:"images_out_dir"`
	LidarOutDir  string `json:"lidar_out_dir"`
	SyncOutPath  string `json:"sync_out_path"`

	BonusImageDir  string `json:"bonus_image_dir"`
	BonusLidarDir  string `json:"bonus_lidar_dir"`
	CalibVeloToCam string `json:"calib_velo_to_cam"`
	CalibCamToCam  string `json:"calib_cam_to_cam"`
	BonusOutDir    string `json:"bonus_out_dir"`

	ProjectionKeys projection.Keys `json:"projection_keys"`

	// Workers is the size of the decoding pool; 0 picks one from the CPU count.
	Workers int `json:"workers"`
	// PCDType is "binary" or "ascii".
	PCDType string `json:"pcd_type"`
	// ImageChannelOrder is how raw image bins store pixels, "rgb" or "bgr".
	ImageChannelOrder string `json:"image_channel_order"`

	BindAddress string `json:"bind_address"`

	ConfigFilePath string `json:"-"`
}

// Default returns the layout of the reference recording.
func Default() *Config {
	return &Config{
		ImageDir:     "/images",
		LidarDir:     "/lidar",
		IMUPath:      "/imu.txt",
		GPSPath:      "/gps.txt",
		ImagesOutDir: "/imagesout",
		LidarOutDir:  "/lidarout",
		SyncOutPath:  "synchronized_data.json",

		BonusImageDir:  "data_bonus/image_02",
		BonusLidarDir:  "data_bonus/lidar",
		CalibVeloToCam: "data_bonus/calib/calib_velo_to_cam.txt",
		CalibCamToCam:  "data_bonus/calib/calib_cam_to_cam.txt",
		BonusOutDir:    "lidar_overlay",

		ProjectionKeys: projection.KITTIKeys,

		PCDType:           pointcloud.PCDBinary.String(),
		ImageChannelOrder: rimage.ChannelRGB.String(),
		BindAddress:       DefaultBindAddress,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"image_dir", c.ImageDir},
		{"lidar_dir", c.LidarDir},
		{"imu_path", c.IMUPath},
		{"gps_path", c.GPSPath},
		{"images_out_dir", c.ImagesOutDir},
		{"lidar_out_dir", c.LidarOutDir},
		{"sync_out_path", c.SyncOutPath},
		{"bonus_image_dir", c.BonusImageDir},
		{"bonus_lidar_dir", c.BonusLidarDir},
		{"calib_velo_to_cam", c.CalibVeloToCam},
		{"calib_cam_to_cam", c.CalibCamToCam},
		{"bonus_out_dir", c.BonusOutDir},
	} {
		if field.value == "" {
			return utils.NewConfigValidationFieldRequiredError(path, field.name)
		}
	}
	c.ProjectionKeys = c.ProjectionKeys.WithDefaults()
	if c.Workers < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("workers must be non-negative, got %d", c.Workers))
	}
	if _, err := pointcloud.ParsePCDType(c.PCDType); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if _, err := rimage.ParseChannelOrder(c.ImageChannelOrder); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if c.BindAddress == "" {
		c.BindAddress = DefaultBindAddress
	}
	if _, port, err := net.SplitHostPort(c.BindAddress); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "error validating bind_address"))
	} else if _, err := strconv.Atoi(port); err != nil {
		return utils.NewConfigValidationError(path, errors.Errorf("bind_address port %q is not a number", port))
	}
	return nil
}

// PointCloudFormat returns the parsed PCDType. Only valid after Validate.
func (c *Config) PointCloudFormat() pointcloud.PCDType {
	//nolint:errcheck
	t, _ := pointcloud.ParsePCDType(c.PCDType)
	return t
}

// ChannelOrder returns the parsed image channel order. Only valid after Validate.
func (c *Config) ChannelOrder() rimage.ChannelOrder {
	//nolint:errcheck
	o, _ := rimage.ParseChannelOrder(c.ImageChannelOrder)
	return o
}
