//go:build gocv

package capture

import (
	"image"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const gocvAvailable = true

// GoCVFile reads a video file through OpenCV.
type GoCVFile struct {
	closeOnce sync.Once
	video     *gocv.VideoCapture
	mat       gocv.Mat
}

func OpenGoCVFile(path string) (FrameSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrSourceNotFound, "%s", path)
	}

	video, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open video")
	}

	if !video.IsOpened() {
		video.Close()
		return nil, errors.Errorf("could not open video %s", path)
	}

	return &GoCVFile{video: video, mat: gocv.NewMat()}, nil
}

func (g *GoCVFile) Read() (image.Image, error) {
	for {
		if ok := g.video.Read(&g.mat); !ok {
			return nil, io.EOF
		}

		// decoders occasionally hand back empty frames mid-stream
		if g.mat.Empty() {
			continue
		}

		img, err := g.mat.ToImage()
		if err != nil {
			return nil, errors.Wrap(err, "convert frame")
		}
		return img, nil
	}
}

func (g *GoCVFile) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.mat.Close()
		err = g.video.Close()
	})
	return err
}
