package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/a8m/envsubst"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. SENSORSYNC_IMAGE_DIR.
const EnvPrefix = "SENSORSYNC_"

// Read reads a config from the given file, expanding ${VAR} references
// against the environment first. Fields absent from the file keep their
// defaults.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader decodes a JSON config on top of Default and validates it.
// originalPath is only used in error messages.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	cfg := Default()
	cfg.ConfigFilePath = originalPath
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	if err := cfg.Validate(originalPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load builds the runtime config: defaults, then the JSON file at filePath if
// given, then the dotenv file at envFile if given, then process environment
// variables. Process variables take precedence over the dotenv file. A missing
// default ".env" is not an error.
func Load(filePath, envFile string) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		var err error
		if cfg, err = Read(filePath); err != nil {
			return nil, err
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = vars
		case os.IsNotExist(err) && envFile == ".env":
		default:
			return nil, errors.Wrapf(err, "cannot read env file %q", envFile)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	path := filePath
	if path == "" {
		path = "environment"
	}
	if err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for key, dst := range map[string]*string{
		"IMAGE_DIR":           &c.ImageDir,
		"LIDAR_DIR":           &c.LidarDir,
		"IMU_PATH":            &c.IMUPath,
		"GPS_PATH":            &c.GPSPath,
		"IMAGES_OUT_DIR":      &c.ImagesOutDir,
		"LIDAR_OUT_DIR":       &c.LidarOutDir,
		"SYNC_DATA_OUT_PATH":  &c.SyncOutPath,
		"BONUS_IMAGE_DIR":     &c.BonusImageDir,
		"BONUS_LIDAR_DIR":     &c.BonusLidarDir,
		"CALIB_VELO_TO_CAM":   &c.CalibVeloToCam,
		"CALIB_CAM_TO_CAM":    &c.CalibCamToCam,
		"BONUS_OUT_DIR":       &c.BonusOutDir,
		"PCD_TYPE":            &c.PCDType,
		"IMAGE_CHANNEL_ORDER": &c.ImageChannelOrder,
		"BIND_ADDRESS":        &c.BindAddress,
	} {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sWORKERS", EnvPrefix)
		}
		c.Workers = n
	}
	return nil
}
