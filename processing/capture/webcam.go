package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// Webcam captures a live device through ffmpeg, scaled to width x height.
// A live device never reports io.EOF unless ffmpeg exits.
type Webcam struct {
	closeOnce sync.Once

	deviceName string
	width      int
	height     int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	frames *rawFrameReader
	stderr bytes.Buffer
}

func webcamArgs(goos, deviceName string, width, height int) []string {
	var input []string
	if goos == "windows" {
		input = []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", deviceName)}
	} else {
		input = []string{"-f", "v4l2", "-i", deviceName}
	}

	return append(input,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)
}

func OpenWebcam(deviceName string, width, height int) (*Webcam, error) {
	if deviceName == "" {
		return nil, errors.Wrap(ErrSourceNotFound, "no camera selected")
	}

	ws := &Webcam{
		deviceName: deviceName,
		width:      width,
		height:     height,
	}

	ws.cmd = exec.Command("ffmpeg", webcamArgs(runtime.GOOS, deviceName, width, height)...)
	ws.cmd.Stderr = &ws.stderr

	stdout, err := ws.cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg stdout")
	}

	if err := ws.cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "ffmpeg start error. Details: %s", ws.stderr.String())
	}

	ws.stdout = stdout
	ws.frames = newRawFrameReader(stdout, width, height)
	return ws, nil
}

func (ws *Webcam) Read() (image.Image, error) {
	return ws.frames.next()
}

func (ws *Webcam) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		err = stopCmd(ws.cmd, ws.stdout)
	})
	return err
}

var dshowVideoDevice = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)

// parseDShowDevices extracts video device names from ffmpeg -list_devices output.
func parseDShowDevices(output string) []string {
	var cameras []string
	seen := make(map[string]bool)

	for _, m := range dshowVideoDevice.FindAllStringSubmatch(output, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}

	return cameras
}

func ListCameras() ([]string, error) {
	if runtime.GOOS != "windows" {
		return []string{"/dev/video0", "/dev/video1"}, nil
	}

	cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// ffmpeg exits non-zero after listing, the device list is on stderr
	_ = cmd.Run()

	return parseDShowDevices(stderr.String()), nil
}
