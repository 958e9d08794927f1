package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"weldvision/internal/models"
)

// remoteTimeout bounds one round trip when ctx carries no deadline.
const remoteTimeout = 5 * time.Second

// Remote sends JPEG frames to a detection server over a websocket and reads
// back a JSON array of models.DetectionResult per frame. The connection is
// dialed lazily and dropped on any error so the next call reconnects.
type Remote struct {
	mu sync.Mutex

	serverURL string
	dialer    *websocket.Dialer
	conn      *websocket.Conn
	labels    models.Labels
	logger    *zap.SugaredLogger
}

// NewRemote targets ws://host/ws. labels resolves class indices for servers
// that only report label names.
func NewRemote(host string, labels models.Labels, logger *zap.SugaredLogger) *Remote {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	return &Remote{
		serverURL: u.String(),
		dialer:    &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		labels:    labels,
		logger:    logger,
	}
}

func (d *Remote) connect(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}

	d.logger.Infow("connecting to detector server", "url", d.serverURL)
	conn, _, err := d.dialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", d.serverURL)
	}

	d.logger.Info("connected to detection server")
	d.conn = conn
	return conn, nil
}

func (d *Remote) drop() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

func (d *Remote) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, errors.Wrap(err, "jpeg encode")
	}

	deadline := time.Now().Add(remoteTimeout)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	// cancellation unblocks a pending write or read right away
	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = conn.SetWriteDeadline(now)
		_ = conn.SetReadDeadline(now)
	})
	defer stop()

	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		d.drop()
		return nil, errors.Wrap(err, "send frame")
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		d.drop()
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "read detections")
		}
		return nil, errors.Wrap(err, "read detections")
	}

	var results []models.DetectionResult
	if err := json.Unmarshal(message, &results); err != nil {
		// the stream is still in step, keep the connection
		return nil, errors.Wrap(err, "decode detections")
	}

	bounds := img.Bounds()
	dets := make([]models.Detection, 0, len(results))
	for _, r := range results {
		dets = append(dets, r.ToDetection(bounds, d.labels))
	}

	return dets, nil
}

func (d *Remote) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}

	_ = d.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := d.conn.Close()
	d.conn = nil
	return err
}
