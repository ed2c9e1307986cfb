// Package service wires decoding, synchronization and projection into the two
// operations exposed by the command line and the web server.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/sensorsync/calibration"
	"go.viam.com/sensorsync/config"
	"go.viam.com/sensorsync/pointcloud"
	"go.viam.com/sensorsync/projection"
	"go.viam.com/sensorsync/rimage"
	"go.viam.com/sensorsync/sensordata"
	"go.viam.com/sensorsync/timesync"
	"go.viam.com/sensorsync/utils"
)

// frameIDWidth is the zero padded width of KITTI frame file names.
const frameIDWidth = 10

// Service runs the pipelines against one configuration.
type Service struct {
	cfg          *config.Config
	logger       golog.Logger
	folders      *sensordata.FolderReader
	synchronizer *timesync.Synchronizer
}

// New returns a Service. cfg must already be validated.
func New(cfg *config.Config, logger golog.Logger) *Service {
	folders := sensordata.NewFolderReader(logger.Named("decode"), cfg.Workers)
	folders.PCDType = cfg.PointCloudFormat()
	folders.ChannelOrder = cfg.ChannelOrder()
	return &Service{
		cfg:          cfg,
		logger:       logger,
		folders:      folders,
		synchronizer: timesync.NewSynchronizer(logger.Named("sync")),
	}
}

// SyncResult is what Synchronize returns to callers.
type SyncResult struct {
	*timesync.Result
	OutputPath string
}

type syncPaths struct {
	imageDir, lidarDir, imuPath, gpsPath, imagesOut, lidarOut, syncOut string
}

func (s *Service) resolveSyncPaths(root string) (*syncPaths, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, utils.NewResourceNotFoundError(fmt.Sprintf("data folder %q", root))
	}
	var p syncPaths
	for _, j := range []struct {
		dst *string
		rel string
	}{
		{&p.imageDir, s.cfg.ImageDir},
		{&p.lidarDir, s.cfg.LidarDir},
		{&p.imuPath, s.cfg.IMUPath},
		{&p.gpsPath, s.cfg.GPSPath},
		{&p.imagesOut, s.cfg.ImagesOutDir},
		{&p.lidarOut, s.cfg.LidarOutDir},
		{&p.syncOut, s.cfg.SyncOutPath},
	} {
		if *j.dst, err = utils.SafeJoinDir(root, j.rel); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// Synchronize decodes the recording under root, aligns every stream onto the
// reference sensor and writes the merged records as JSON. The folders are
// decoded concurrently and any failure fails the whole call. Decoded PCD and
// PNG files are written while decoding and are left in place on failure; the
// merged JSON is only renamed into place once every stream has aligned.
func (s *Service) Synchronize(ctx context.Context, root string) (*SyncResult, error) {
	paths, err := s.resolveSyncPaths(root)
	if err != nil {
		return nil, err
	}

	var streams timesync.Streams
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		streams.Lidar, err = s.folders.ReadLidarFolder(gctx, paths.lidarDir, paths.lidarOut)
		return err
	})
	g.Go(func() error {
		var err error
		streams.Image, err = s.folders.ReadImageFolder(gctx, paths.imageDir, paths.imagesOut)
		return err
	})
	g.Go(func() error {
		var err error
		streams.IMU, err = sensordata.ReadIMUFile(paths.imuPath)
		return err
	})
	g.Go(func() error {
		var err error
		streams.GPS, err = sensordata.ReadGPSFile(paths.gpsPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Infow("decoded recording", "root", root,
		"lidar", streams.Lidar.Len(), "image", streams.Image.Len(),
		"imu", streams.IMU.Len(), "gps", streams.GPS.Len())

	result, err := s.synchronizer.Synchronize(streams)
	if err != nil {
		return nil, err
	}
	if err := writeRecords(paths.syncOut, result.Records); err != nil {
		return nil, err
	}
	s.logger.Infof("synchronized %d records to %s", len(result.Records), paths.syncOut)
	return &SyncResult{Result: result, OutputPath: paths.syncOut}, nil
}

// writeRecords writes records to path via a temporary file so a failed write
// leaves no partial output behind.
func writeRecords(path string, records []timesync.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "cannot encode synchronized records")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		utils.RemoveFileNoError(tmp)
		return errors.Wrapf(err, "cannot write %q", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		utils.RemoveFileNoError(tmp)
		return errors.Wrapf(err, "cannot write %q", path)
	}
	return nil
}

// FrameID validates a frame number and pads it to the KITTI file name width.
func FrameID(frame string) (string, error) {
	frame = strings.TrimSpace(frame)
	if frame == "" || strings.Trim(frame, "0123456789") != "" {
		return "", utils.NewResourceNotFoundError(fmt.Sprintf("frame %q is not a frame number", frame))
	}
	if len(frame) < frameIDWidth {
		frame = strings.Repeat("0", frameIDWidth-len(frame)) + frame
	}
	return frame, nil
}

// LoadProjector reads and merges both calibration files of the config.
func LoadProjector(cfg *config.Config) (*projection.Projector, error) {
	var sets []*calibration.Set
	for _, path := range []string{cfg.CalibVeloToCam, cfg.CalibCamToCam} {
		set, err := calibration.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	merged, err := calibration.Merge(sets...)
	if err != nil {
		return nil, err
	}
	return projection.NewProjector(merged, cfg.ProjectionKeys)
}

// ProjectFrame draws the lidar scan of frame over the matching camera 2 image
// and returns the absolute path of the written overlay.
func (s *Service) ProjectFrame(ctx context.Context, frame string) (string, error) {
	id, err := FrameID(frame)
	if err != nil {
		return "", err
	}
	imagePath := filepath.Join(s.cfg.BonusImageDir, id+".png")
	lidarPath := filepath.Join(s.cfg.BonusLidarDir, id+".bin")
	for _, p := range []string{imagePath, lidarPath} {
		if _, err := os.Stat(p); err != nil {
			return "", utils.NewResourceNotFoundError(fmt.Sprintf("image or lidar file for frame %s: %s", frame, p))
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	projector, err := LoadProjector(s.cfg)
	if err != nil {
		return "", err
	}
	pc, err := pointcloud.ReadBin(lidarPath)
	if err != nil {
		return "", err
	}
	img, err := rimage.ReadImageFromFile(imagePath)
	if err != nil {
		return "", err
	}

	proj, err := projector.Project(pc)
	if err != nil {
		return "", err
	}
	drawn := projection.Overlay(img, proj)

	outPath, err := filepath.Abs(filepath.Join(s.cfg.BonusOutDir, "output_"+strings.TrimSpace(frame)+".png"))
	if err != nil {
		return "", err
	}
	if err := rimage.WriteImageToFile(outPath, img); err != nil {
		return "", err
	}
	s.logger.Infow("visualization saved", "path", outPath,
		"points", pc.Size(), "in_front", proj.Len(), "drawn", drawn)
	return outPath, nil
}
