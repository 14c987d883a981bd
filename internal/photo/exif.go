package photo

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// CaptureTime reads the EXIF DateTimeOriginal of a JPEG/TIFF file.
// ok is false when the file has no usable EXIF block.
func CaptureTime(path string) (time.Time, bool) {
	f, err := os.Open(path) //nolint:gosec // G304: photo paths come from the discovered input set
	if err != nil {
		return time.Time{}, false
	}
	defer func() { _ = f.Close() }()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, false
	}
	tm, err := x.DateTime()
	if err != nil {
		return time.Time{}, false
	}
	return tm, true
}
