package capture

import (
	stderrors "errors"
	"image"
	"io"

	"github.com/pkg/errors"
)

var ErrSourceNotFound = stderrors.New("video source not found")

// FrameSource yields frames sequentially. Read returns io.EOF once the
// stream is exhausted. Close is safe to call more than once.
type FrameSource interface {
	Read() (image.Image, error)
	Close() error
}

const bytesPerPixel = 4

// rawFrameReader cuts an rgba rawvideo byte stream into frames.
type rawFrameReader struct {
	r      io.Reader
	width  int
	height int
	buffer []byte
}

func newRawFrameReader(r io.Reader, width, height int) *rawFrameReader {
	return &rawFrameReader{
		r:      r,
		width:  width,
		height: height,
		buffer: make([]byte, width*height*bytesPerPixel),
	}
}

func (fr *rawFrameReader) next() (image.Image, error) {
	_, err := io.ReadFull(fr.r, fr.buffer)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// a truncated trailing frame counts as end of stream
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(err, "read frame")
	}

	pixelData := make([]byte, len(fr.buffer))
	copy(pixelData, fr.buffer)

	return &image.RGBA{
		Pix:    pixelData,
		Stride: fr.width * bytesPerPixel,
		Rect:   image.Rect(0, 0, fr.width, fr.height),
	}, nil
}
