package capture

import (
	"encoding/json"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// LocalFile decodes a video file through an ffmpeg subprocess, one frame
// per Read at the file's native size.
type LocalFile struct {
	closeOnce sync.Once

	cmd    *exec.Cmd
	stdout io.ReadCloser
	frames *rawFrameReader
}

func OpenLocalFile(path string) (*LocalFile, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrSourceNotFound, "%s", path)
	}

	w, h, err := probeVideoDimensions(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to probe video")
	}

	cmd := exec.Command("ffmpeg",
		"-v", "error",
		"-i", path,
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg stdout")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "ffmpeg start")
	}

	return &LocalFile{
		cmd:    cmd,
		stdout: stdout,
		frames: newRawFrameReader(stdout, int(w), int(h)),
	}, nil
}

func (lf *LocalFile) Read() (image.Image, error) {
	return lf.frames.next()
}

func (lf *LocalFile) Close() error {
	var err error
	lf.closeOnce.Do(func() {
		err = stopCmd(lf.cmd, lf.stdout)
	})
	return err
}

// stopCmd kills the subprocess and reaps it. The wait error of a killed or
// already finished process is expected and dropped.
func stopCmd(cmd *exec.Cmd, stdout io.Closer) error {
	var err error
	if cmd != nil && cmd.Process != nil {
		if kerr := cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = multierr.Append(err, kerr)
		}
		_ = cmd.Wait()
	}
	if stdout != nil {
		if cerr := stdout.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}

type probeData struct {
	Streams []struct {
		Width  uint16 `json:"width"`
		Height uint16 `json:"height"`
	} `json:"streams"`
}

func probeVideoDimensions(path string) (uint16, uint16, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, 0, err
	}

	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (uint16, uint16, error) {
	var data probeData
	if err := json.Unmarshal(output, &data); err != nil {
		return 0, 0, err
	}

	if len(data.Streams) == 0 {
		return 0, 0, errors.New("no video streams found")
	}

	s := data.Streams[0]
	if s.Width == 0 || s.Height == 0 {
		return 0, 0, errors.New("video stream has no dimensions")
	}

	return s.Width, s.Height, nil
}
