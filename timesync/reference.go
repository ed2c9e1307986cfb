// Package timesync aligns asynchronously sampled sensor streams onto the
// timeline of a single reference sensor and merges them into one record per
// reference timestamp.
package timesync

import (
	"go.viam.com/sensorsync/timeseries"
)

// Sensor names a stream taking part in synchronization. The names double as
// the keys of the handle fields in merged records.
type Sensor string

// The four synchronized sensor streams.
const (
	SensorLidar Sensor = "lidar"
	SensorImage Sensor = "image"
	SensorIMU   Sensor = "imu"
	SensorGPS   Sensor = "gps"
)

// Reference is the stream whose timestamps define the output timeline.
type Reference struct {
	Sensor     Sensor
	Timestamps []float64
	MeanGap    float64

	// cadences that were compared
	LidarGap float64
	ImageGap float64
}

// SelectReference picks the slower of the lidar and image streams as the
// reference, comparing mean gaps over the first timeseries.GapPrefix samples.
// When both gaps are exactly equal the image stream is chosen; synchronization
// output depends on this so it must not change.
func SelectReference(lidar, image []float64) (*Reference, error) {
	lidarGap, err := timeseries.MeanGap(string(SensorLidar), lidar)
	if err != nil {
		return nil, err
	}
	imageGap, err := timeseries.MeanGap(string(SensorImage), image)
	if err != nil {
		return nil, err
	}

	ref := &Reference{LidarGap: lidarGap, ImageGap: imageGap}
	if lidarGap > imageGap {
		ref.Sensor, ref.Timestamps, ref.MeanGap = SensorLidar, lidar, lidarGap
	} else {
		ref.Sensor, ref.Timestamps, ref.MeanGap = SensorImage, image, imageGap
	}
	return ref, nil
}
