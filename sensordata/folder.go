package sensordata

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/sensorsync/pointcloud"
	"go.viam.com/sensorsync/rimage"
	"go.viam.com/sensorsync/timeseries"
	"go.viam.com/sensorsync/utils"
)

// File prefixes of per-sample recordings.
const (
	LidarPrefix = "lidar"
	ImagePrefix = "image"
)

const binExt = ".bin"

// FolderReader decodes folders of per-sample files with a fixed pool of
// workers and writes each decoded sample to an output directory. The stream
// it returns maps every timestamp to the path of that output file.
type FolderReader struct {
	logger  golog.Logger
	workers int

	// PCDType is the encoding of written point clouds.
	PCDType pointcloud.PCDType
	// ChannelOrder is how raw image bins store their pixels.
	ChannelOrder rimage.ChannelOrder
}

// NewFolderReader returns a reader using workers goroutines; zero or less
// means utils.ParallelFactor.
func NewFolderReader(logger golog.Logger, workers int) *FolderReader {
	return &FolderReader{logger: logger, workers: workers, PCDType: pointcloud.PCDBinary, ChannelOrder: rimage.ChannelRGB}
}

type sampleFile struct {
	ts   float64
	name string
}

// listSamples returns every <prefix>_*.bin file in dir with its timestamp.
// Files with the prefix but a malformed timestamp fail the whole listing.
func listSamples(dir, prefix string) ([]sampleFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.NewResourceNotFoundError(dir)
		}
		return nil, errors.Wrapf(err, "cannot list %q", dir)
	}
	var files []sampleFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"_") || !strings.HasSuffix(name, binExt) {
			continue
		}
		ts, err := ParseTimestamp(name, prefix)
		if err != nil {
			return nil, err
		}
		files = append(files, sampleFile{ts: ts, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func (fr *FolderReader) readFolder(
	ctx context.Context,
	prefix, dir, outDir, outExt string,
	convert func(src, dst string) error,
) (*timeseries.Series[timeseries.Handle], error) {
	files, err := listSamples(dir, prefix)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "cannot create output directory %q", outDir)
	}

	acc := timeseries.NewAccumulator[timeseries.Handle](prefix)
	err = utils.RunWorkerPool(ctx, fr.workers, files, func(ctx context.Context, f sampleFile) error {
		src := filepath.Join(dir, f.name)
		dst := filepath.Join(outDir, strings.TrimSuffix(f.name, binExt)+outExt)
		if err := convert(src, dst); err != nil {
			return errors.Wrapf(err, "error decoding %q", src)
		}
		return acc.Add(f.ts, dst, f.name)
	})
	if err != nil {
		return nil, err
	}
	fr.logger.Debugw("decoded folder", "stream", prefix, "dir", dir, "files", acc.Len(), "out", outDir)
	return acc.Series(), nil
}

// ReadLidarFolder decodes every lidar_*.bin scan in dir into a pcd file in
// outDir.
func (fr *FolderReader) ReadLidarFolder(ctx context.Context, dir, outDir string) (*timeseries.Series[timeseries.Handle], error) {
	return fr.readFolder(ctx, LidarPrefix, dir, outDir, ".pcd", func(src, dst string) error {
		pc, err := pointcloud.ReadBin(src)
		if err != nil {
			return err
		}
		return pointcloud.WriteToPCDFile(pc, dst, fr.PCDType)
	})
}

// ReadImageFolder decodes every image_*.bin frame in dir into a png file in
// outDir.
func (fr *FolderReader) ReadImageFolder(ctx context.Context, dir, outDir string) (*timeseries.Series[timeseries.Handle], error) {
	return fr.readFolder(ctx, ImagePrefix, dir, outDir, ".png", func(src, dst string) error {
		img, err := rimage.ReadBin(src, fr.ChannelOrder)
		if err != nil {
			return err
		}
		return rimage.WriteImageToFile(dst, img)
	})
}
