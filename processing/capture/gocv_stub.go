//go:build !gocv

package capture

import "github.com/pkg/errors"

const gocvAvailable = false

// OpenGoCVFile is only available in binaries built with -tags gocv.
func OpenGoCVFile(path string) (FrameSource, error) {
	return nil, errors.Errorf("cannot open %s: built without gocv support", path)
}
