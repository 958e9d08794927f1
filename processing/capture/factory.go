package capture

import (
	"github.com/pkg/errors"

	"weldvision/internal/config"
)

// Sources lists the source types this binary can open. GoCV needs the gocv
// build tag.
func Sources() []config.SourceType {
	sources := []config.SourceType{config.SourceLocal, config.SourceWebcam}
	if gocvAvailable {
		sources = append(sources, config.SourceGoCV)
	}
	return sources
}

// Available reports whether Open supports s in this binary.
func Available(s config.SourceType) bool {
	for _, src := range Sources() {
		if src == s {
			return true
		}
	}
	return false
}

// Open opens the source selected in cfg.
func Open(cfg *config.Config) (FrameSource, error) {
	switch cfg.ActiveSource {
	case config.SourceLocal:
		src, err := OpenLocalFile(cfg.Local.Path)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceWebcam:
		src, err := OpenWebcam(cfg.Webcam.DeviceID, cfg.GetWidth(), cfg.GetHeight())
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceGoCV:
		return OpenGoCVFile(cfg.Local.Path)
	default:
		return nil, errors.Errorf("unknown source: %s", cfg.ActiveSource)
	}
}
