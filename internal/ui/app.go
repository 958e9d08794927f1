package ui

import (
	"fmt"
	"image"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"weldvision/internal/config"
	"weldvision/internal/ui/cwidget"
	"weldvision/processing"
	"weldvision/processing/capture"
)

const (
	windowTitle    = "Weld Detection System"
	statsRefresh   = 200 * time.Millisecond
	loadingCameras = "Loading cameras..."
	noCameras      = "No cameras found"
)

type lockable interface {
	Disable()
	Enable()
}

type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config    *config.Config
	processor *processing.Processor
	logger    *zap.SugaredLogger

	dynamicSettings *fyne.Container
	staticSettings  *fyne.Container

	videoCanvas  *canvas.Image
	latencyLabel *widget.Label
	fpsLabel     *widget.Label
	statusLabel  *widget.Label
	startBtn     *widget.Button
	stopBtn      *widget.Button

	// inputs that only apply on the next start
	runInputs []lockable

	statsStop chan struct{}
}

// CreateApp builds the window and its video canvas. The app is the
// processor's Display, so it exists before the processor is wired in Run.
func CreateApp(cfg *config.Config, logger *zap.SugaredLogger) *DetectApp {
	a := app.New()
	w := a.NewWindow(windowTitle)

	w.Resize(fyne.NewSize(1200, 600))

	videoCanvas := canvas.NewImageFromImage(nil)
	videoCanvas.FillMode = canvas.ImageFillContain
	videoCanvas.SetMinSize(fyne.NewSize(float32(cfg.GetWidth()), float32(cfg.GetHeight())))

	return &DetectApp{
		fyneApp:     a,
		mainWin:     w,
		config:      cfg,
		logger:      logger,
		videoCanvas: videoCanvas,
		statsStop:   make(chan struct{}),
	}
}

// Show puts a rendered frame on the canvas. Safe from any goroutine.
func (a *DetectApp) Show(img image.Image) {
	fyne.Do(func() {
		a.videoCanvas.Image = img
		a.videoCanvas.Refresh()
	})
}

// OnStateChange keeps the controls in step with the processor.
func (a *DetectApp) OnStateChange(s processing.State) {
	fyne.Do(func() {
		a.applyState(s)
	})
}

func (a *DetectApp) applyState(s processing.State) {
	if a.startBtn == nil {
		return
	}

	a.statusLabel.SetText(statusText(s, a.processor.CanStart()))

	for _, input := range a.runInputs {
		if s == processing.StateRunning {
			input.Disable()
		} else {
			input.Enable()
		}
	}

	if s == processing.StateRunning {
		a.startBtn.Disable()
		a.stopBtn.Enable()
		return
	}

	a.stopBtn.Disable()
	if a.processor.CanStart() {
		a.startBtn.Enable()
	} else {
		a.startBtn.Disable()
	}
}

func (a *DetectApp) Run(p *processing.Processor) {
	a.processor = p
	a.dynamicSettings = container.NewVBox()

	if !capture.Available(a.config.ActiveSource) {
		a.logger.Warnw("source not available in this build, using local file", "source", a.config.ActiveSource)
		a.config.ActiveSource = config.SourceLocal
	}

	sourceTypeSelect := widget.NewSelect(sourceOptions(capture.Sources()), func(s string) {
		a.config.ActiveSource = config.SourceType(s)
		a.refreshSettingsUI(s)
	})

	settingsLabel := widget.NewLabelWithStyle("Configuration", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	stats := a.processor.Stats()
	a.latencyLabel = widget.NewLabel(formatLatency(stats.Latency))
	a.fpsLabel = widget.NewLabel(formatFPS(stats.FPS))
	a.statusLabel = widget.NewLabel("")

	videoContainer := container.NewBorder(
		container.NewHBox(a.fpsLabel, widget.NewSeparator(), a.latencyLabel, widget.NewSeparator(), a.statusLabel),
		nil, nil, nil,
		a.videoCanvas,
	)

	a.setupConfigSettings()

	a.startBtn = widget.NewButtonWithIcon("Start Detection", theme.MediaPlayIcon(), a.StartProcessing)
	a.stopBtn = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), a.StopProcessing)

	sidebar := container.NewVBox(
		settingsLabel,
		widget.NewSeparator(),
		widget.NewLabel("Source Type:"),
		sourceTypeSelect,
		widget.NewSeparator(),
		a.dynamicSettings,
		a.staticSettings,
		widget.NewSeparator(),
		a.startBtn,
		a.stopBtn,
	)

	split := container.NewHSplit(
		container.NewPadded(sidebar),
		container.NewPadded(videoContainer),
	)
	split.SetOffset(0.3)

	a.mainWin.SetContent(split)

	sourceTypeSelect.SetSelected(string(a.config.ActiveSource))
	a.applyState(a.processor.State())

	a.mainWin.SetCloseIntercept(a.shutdown)

	go a.runStatLoop()

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func sourceOptions(sources []config.SourceType) []string {
	opts := make([]string, 0, len(sources))
	for _, s := range sources {
		opts = append(opts, string(s))
	}
	return opts
}

func (a *DetectApp) shutdown() {
	close(a.statsStop)

	if err := a.processor.Close(); err != nil {
		a.logger.Warnw("shutdown finished with errors", "error", err)
	}
	if err := a.config.SaveByDefault(); err != nil {
		a.logger.Warnw("could not save config", "error", err)
	}

	a.mainWin.Close()
}

func (a *DetectApp) StopProcessing() {
	a.processor.Stop()
}

func (a *DetectApp) StartProcessing() {
	a.processor.SetInterval(a.config.TickInterval())
	a.processor.SetSize(a.config.GetWidth(), a.config.GetHeight())

	if err := a.processor.Start(); err != nil {
		a.logger.Warnw("start failed", "error", err)
		dialog.ShowError(err, a.mainWin)
	}
}

func (a *DetectApp) runStatLoop() {
	uiTicker := time.NewTicker(statsRefresh)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			stats := a.processor.Stats()
			fyne.Do(func() {
				a.latencyLabel.SetText(formatLatency(stats.Latency))
				a.fpsLabel.SetText(formatFPS(stats.FPS))
			})
		case <-a.statsStop:
			return
		}
	}
}

func formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}

func statusText(s processing.State, canStart bool) string {
	switch {
	case s == processing.StateRunning:
		return "Detecting"
	case !canStart:
		return "No model loaded"
	default:
		return "Ready"
	}
}

func (a *DetectApp) setupConfigSettings() {
	a.staticSettings = container.NewVBox()

	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Enter integer",
		int(a.config.GetFPS()),
		func(i int) {
			a.config.SetFPS(uint(i))
		},
	)

	widthInput := cwidget.NewIntInput(
		"Width",
		"Enter integer",
		a.config.GetWidth(),
		func(i int) {
			a.config.SetWidth(i)
		},
	)

	heightInput := cwidget.NewIntInput(
		"Height",
		"Enter integer",
		a.config.GetHeight(),
		func(i int) {
			a.config.SetHeight(i)
		},
	)

	confInput := cwidget.NewUnitInput(
		"Confidence",
		"Between 0 and 1",
		a.config.GetConfidence(),
		func(c float32) {
			a.config.SetConfidence(c)
			if !a.processor.SetConfidence(c) {
				a.logger.Debug("detector threshold is fixed, value saved for next launch")
			}
		},
	)

	saveCfg := widget.NewButton("Save config", func() {
		if err := a.config.SaveByDefault(); err != nil {
			dialog.ShowError(err, a.mainWin)
		}
	})

	a.runInputs = []lockable{fpsInput, widthInput, heightInput}

	a.staticSettings.Add(fpsInput)
	a.staticSettings.Add(widthInput)
	a.staticSettings.Add(heightInput)
	a.staticSettings.Add(confInput)
	a.staticSettings.Add(saveCfg)
}

func (a *DetectApp) refreshSettingsUI(sourceType string) {
	a.dynamicSettings.Objects = nil
	a.StopProcessing()

	switch config.SourceType(sourceType) {
	case config.SourceLocal, config.SourceGoCV:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/video.mp4")
		pathEntry.SetText(a.config.Local.Path)

		pathEntry.OnChanged = func(s string) {
			a.config.Local.Path = s
		}

		fileBtn := widget.NewButtonWithIcon("Open File", theme.FolderOpenIcon(), func() {
			dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err == nil && reader != nil {
					pathEntry.SetText(reader.URI().Path())
					reader.Close()
				}
			}, a.mainWin)
		})

		a.dynamicSettings.Add(widget.NewLabel("Video Path:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))

	case config.SourceWebcam:
		deviceSelect := widget.NewSelect([]string{loadingCameras}, func(s string) {
			if s != loadingCameras && s != noCameras {
				a.config.Webcam.DeviceID = s
			}
		})
		deviceSelect.SetSelected(loadingCameras)
		deviceSelect.Disable()

		a.dynamicSettings.Add(widget.NewLabel("Select Camera:"))
		a.dynamicSettings.Add(deviceSelect)
		a.dynamicSettings.Refresh()

		go func() {
			devices, err := capture.ListCameras()

			fyne.Do(func() {
				switch {
				case err != nil:
					a.logger.Warnw("could not list cameras", "error", err)
					deviceSelect.Options = []string{"Error listing cameras"}
				case len(devices) == 0:
					deviceSelect.Options = []string{noCameras}
				default:
					deviceSelect.Options = devices
					deviceSelect.Enable()

					if a.config.Webcam.DeviceID != "" {
						deviceSelect.SetSelected(a.config.Webcam.DeviceID)
					} else {
						deviceSelect.SetSelected(devices[0])
					}
				}
				deviceSelect.Refresh()
			})
		}()
	}

	a.dynamicSettings.Refresh()
}
