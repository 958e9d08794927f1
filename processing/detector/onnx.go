package detector

import (
	"context"
	"image"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"weldvision/internal/models"
)

const (
	InputWidth  = 640
	InputHeight = 640

	// 3 anchors over the 80x80, 40x40 and 20x20 grids of a 640 input
	yoloPredictions = 3 * (80*80 + 40*40 + 20*20)

	defaultMaxDetections = 300
)

type ONNXParams struct {
	ModelPath string
	// RuntimeLibrary is the onnxruntime shared library, empty uses the
	// platform default lookup.
	RuntimeLibrary string
	NumClasses     int
	Confidence     float32
	IoU            float32
}

// ONNX runs a YOLOv5 model exported to ONNX through ONNX Runtime.
type ONNX struct {
	mu sync.Mutex

	params  ONNXParams
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool
}

var initEnvOnce sync.Once
var initEnvErr error

func initEnvironment(libPath string) error {
	initEnvOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		initEnvErr = ort.InitializeEnvironment()
	})
	return initEnvErr
}

func LoadONNX(p ONNXParams) (*ONNX, error) {
	if p.NumClasses <= 0 {
		return nil, errors.New("model needs at least one class")
	}

	if err := initEnvironment(p.RuntimeLibrary); err != nil {
		return nil, errors.Wrap(err, "initialize onnx runtime")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(runtime.NumCPU()); err != nil {
		return nil, errors.Wrap(err, "set intra op threads")
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, InputHeight, InputWidth))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, yoloPredictions, int64(5+p.NumClasses)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	session, err := ort.NewAdvancedSession(
		p.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "load model %s", p.ModelPath)
	}

	return &ONNX{
		params:  p,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

func (o *ONNX) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, errors.New("detector closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	pic, lb := letterboxImage(img, InputWidth)
	fillInput(o.input.GetData(), pic)

	if err := o.session.Run(); err != nil {
		return nil, errors.Wrap(err, "model inference")
	}

	return decodeYOLOv5(o.output.GetData(), decodeParams{
		numClasses:    o.params.NumClasses,
		confidence:    o.params.Confidence,
		iou:           o.params.IoU,
		padX:          float32(lb.padX),
		padY:          float32(lb.padY),
		scaleX:        1 / lb.scale,
		scaleY:        1 / lb.scale,
		bounds:        bounds,
		maxDetections: defaultMaxDetections,
	}), nil
}

func (o *ONNX) SetConfidence(c float32) {
	if c <= 0 || c >= 1 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.params.Confidence = c
}

// fillInput writes pic into dst as planar RGB scaled to [0,1].
func fillInput(dst []float32, pic *image.NRGBA) {
	channelSize := InputWidth * InputHeight
	for y := 0; y < InputHeight; y++ {
		row := pic.Pix[y*pic.Stride:]
		for x := 0; x < InputWidth; x++ {
			i := y*InputWidth + x
			px := row[x*4:]
			dst[i] = float32(px[0]) / 255.0
			dst[channelSize+i] = float32(px[1]) / 255.0
			dst[channelSize*2+i] = float32(px[2]) / 255.0
		}
	}
}

func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	return multierr.Combine(
		o.session.Destroy(),
		o.input.Destroy(),
		o.output.Destroy(),
	)
}
