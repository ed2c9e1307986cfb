package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/sensorsync/utils"
)

// binPointSize is the size of one KITTI velodyne return: x, y, z, intensity
// as little-endian float32.
const binPointSize = 16

// maxPCDPrealloc caps the capacity reserved from an untrusted POINTS header.
const maxPCDPrealloc = 1 << 16

// ParseBin decodes a raw velodyne scan. source names the data in errors.
func ParseBin(data []byte, source string) (*PointCloud, error) {
	if len(data)%binPointSize != 0 {
		return nil, utils.NewMalformedRecordError(source,
			"length %d is not a multiple of %d bytes (4 float32 per point)", len(data), binPointSize)
	}
	n := len(data) / binPointSize
	pc := NewWithPrealloc(n)
	for i := 0; i < n; i++ {
		buf := data[i*binPointSize : (i+1)*binPointSize]
		pc.Append(r3.Vector{
			X: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))),
			Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4:]))),
			Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[8:]))),
		}, float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[12:]))))
	}
	return pc, nil
}

// ReadBin reads a raw velodyne scan from disk.
func ReadBin(path string) (*PointCloud, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.NewResourceNotFoundError(path)
		}
		return nil, err
	}
	return ParseBin(data, path)
}

// ToBin encodes the cloud in the raw velodyne layout read by ParseBin.
func ToBin(pc *PointCloud) []byte {
	out := make([]byte, pc.Size()*binPointSize)
	for i, p := range pc.Points {
		buf := out[i*binPointSize:]
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Z)))
		binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(float32(pc.Intensities[i])))
	}
	return out
}

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// ParsePCDType maps the DATA value of a pcd header to a PCDType.
func ParsePCDType(s string) (PCDType, error) {
	switch s {
	case "ascii":
		return PCDAscii, nil
	case "binary":
		return PCDBinary, nil
	default:
		return 0, errors.Errorf("unsupported pcd data type %q", s)
	}
}

func (t PCDType) String() string {
	if t == PCDBinary {
		return "binary"
	}
	return "ascii"
}

// ToPCD writes the cloud as an unorganized pcd with fields x y z intensity.
func ToPCD(pc *PointCloud, out io.Writer, outputType PCDType) error {
	if outputType != PCDAscii && outputType != PCDBinary {
		return errors.Errorf("unsupported pcd data type %d", outputType)
	}
	_, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z intensity\n"+
		"SIZE 4 4 4 4\n"+
		"TYPE F F F F\n"+
		"COUNT 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		pc.Size(), pc.Size(), outputType)
	if err != nil {
		return err
	}
	if outputType == PCDBinary {
		_, err = out.Write(ToBin(pc))
		return err
	}
	for i, p := range pc.Points {
		if _, err := fmt.Fprintf(out, "%f %f %f %f\n", p.X, p.Y, p.Z, pc.Intensities[i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteToPCDFile writes the cloud to path, truncating any existing file.
func WriteToPCDFile(pc *PointCloud, path string, outputType PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ToPCD(pc, w, outputType); err != nil {
		return errors.Wrapf(err, "error writing %q", path)
	}
	return w.Flush()
}

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

const pcdCommentChar = "#"

type pcdHeader struct {
	width  uint64
	height uint64
	points uint64
	data   PCDType
}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	if field != name {
		return fmt.Errorf("line is supposed to start with %s but is %s", name, line)
	}
	switch name {
	case "VERSION":
		if value != ".7" {
			return fmt.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if value != "x y z intensity" {
			return fmt.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if value != "4 4 4 4" {
			return fmt.Errorf("unsupported pcd sizes %s", value)
		}
	case "TYPE":
		if value != "F F F F" {
			return fmt.Errorf("unsupported pcd types %s", value)
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid WIDTH field %s: %w", value, err)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid HEIGHT field %s: %w", value, err)
		}
	case "POINTS":
		header.points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid POINTS field %s: %w", value, err)
		}
		if header.points != header.width*header.height {
			return fmt.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", header.points, header.width*header.height)
		}
	case "DATA":
		header.data, err = ParsePCDType(value)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadPCD reads a pcd written by ToPCD.
func ReadPCD(inRaw io.Reader) (*PointCloud, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("error reading header line %d: %w", headerLineCount, err)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}

	if header.data == PCDBinary {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, errors.Wrap(err, "error reading binary pcd data")
		}
		if header.points > uint64(len(data)/binPointSize) {
			return nil, fmt.Errorf("POINTS %d exceeds the %d bytes of binary data", header.points, len(data))
		}
		return ParseBin(data[:header.points*binPointSize], "pcd")
	}

	pc := NewWithPrealloc(int(min(header.points, maxPCDPrealloc)))
	for i := uint64(0); i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, err
		}
		tokens := strings.Fields(line)
		if len(tokens) != 4 {
			return nil, fmt.Errorf("unexpected number of fields in point %d", i)
		}
		var vals [4]float64
		for j, token := range tokens {
			vals[j], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid point %d field %s: %w", i, token, err)
			}
		}
		pc.Append(r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}, vals[3])
	}
	return pc, nil
}
