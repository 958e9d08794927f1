package detector

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.viam.com/test"

	"weldvision/internal/models"
)

var weldLabels = models.Labels{"Persona", "Casco", "Arco"}

func newDetectionServer(t *testing.T, reply string, frames *int32) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			if _, err := jpeg.Decode(bytes.NewReader(msg)); err != nil {
				return
			}
			atomic.AddInt32(frames, 1)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteDetect(t *testing.T) {
	var frames int32
	srv := newDetectionServer(t,
		`[{"label":"Casco","class":1,"confidence":0.8,"box":[0.0,0.0,0.5,0.5]}]`, &frames)

	d := NewRemote(strings.TrimPrefix(srv.URL, "http://"), weldLabels, zap.NewNop().Sugar())
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for i := 0; i < 2; i++ {
		dets, err := d.Detect(ctx, img)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dets, test.ShouldHaveLength, 1)
		test.That(t, dets[0].Class, test.ShouldEqual, 1)
		test.That(t, dets[0].Box, test.ShouldResemble, image.Rect(0, 0, 320, 240))
	}
	test.That(t, atomic.LoadInt32(&frames), test.ShouldEqual, int32(2))
}

func TestRemoteBadReply(t *testing.T) {
	var frames int32
	srv := newDetectionServer(t, `not json`, &frames)

	d := NewRemote(strings.TrimPrefix(srv.URL, "http://"), weldLabels, zap.NewNop().Sugar())
	defer d.Close()

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "decode detections")
}

func TestRemoteUnreachable(t *testing.T) {
	d := NewRemote("127.0.0.1:1", weldLabels, zap.NewNop().Sugar())
	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, d.Close(), test.ShouldBeNil)
}

func TestRemoteDetectLabelOnlyReply(t *testing.T) {
	var frames int32
	srv := newDetectionServer(t,
		`[{"label":"Arco","confidence":0.8,"box":[0,0,0.5,0.5]},{"label":"Casco","confidence":0.6,"box":[0.5,0.5,1,1]}]`, &frames)

	d := NewRemote(strings.TrimPrefix(srv.URL, "http://"), weldLabels, zap.NewNop().Sugar())
	defer d.Close()

	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 640, 480)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 2)
	test.That(t, dets[0].Class, test.ShouldEqual, 2)
	test.That(t, weldLabels.Name(dets[0]), test.ShouldEqual, "Arco")
	test.That(t, dets[1].Class, test.ShouldEqual, 1)
	test.That(t, weldLabels.Name(dets[1]), test.ShouldEqual, "Casco")

	rec := models.NewDetectionRecord(weldLabels.Name(dets[0]), dets[0].Confidence, time.Now())
	test.That(t, rec.Label, test.ShouldEqual, "Arco")
}

func TestRemoteDetectCancelled(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// read frames, never answer
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			select {
			case received <- struct{}{}:
			default:
			}
		}
	}))
	defer srv.Close()

	d := NewRemote(strings.TrimPrefix(srv.URL, "http://"), weldLabels, zap.NewNop().Sugar())
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-received
		cancel()
	}()

	start := time.Now()
	_, err := d.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, time.Since(start), test.ShouldBeLessThan, remoteTimeout)
}
