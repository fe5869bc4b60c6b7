package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/capture"
	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
	"github.com/AnshRaj112/daily-journal-backend/internal/session"
)

// Client message types on /ws/capture. The first group drives the
// recorder UI; the second answers the server's device commands.
const (
	captureStart   = "start"
	captureStop    = "stop"
	captureSave    = "save"
	captureDiscard = "discard"

	captureMediaReady      = "media_ready"
	captureMediaError      = "media_error"
	captureRecorderStopped = "recorder_stopped"
	captureRecorderError   = "recorder_error"
)

// Server message types besides the device commands.
const (
	captureMsgState = "state"
	captureMsgTick  = "tick"
	captureMsgSaved = "saved"
	captureMsgError = "error"
)

const (
	captureReadLimit   = 16 << 20
	captureStartWait   = 2 * time.Minute
	captureStopWait    = 15 * time.Second
	captureCommandSlot = 4
)

// CaptureClientMessage is a text frame from the recording page. Encoded
// chunks arrive as binary frames.
type CaptureClientMessage struct {
	Type      string   `json:"type"`
	MimeTypes []string `json:"mime_types,omitempty"`
	Name      string   `json:"name,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// CaptureServerMessage reports controller state to the recording page.
type CaptureServerMessage struct {
	Type    string            `json:"type"`
	State   *capture.Snapshot `json:"state,omitempty"`
	Elapsed int               `json:"elapsed_seconds,omitempty"`
	Entry   *EntryView        `json:"entry,omitempty"`
	Error   *apperr.View      `json:"error,omitempty"`
	Warning *apperr.View      `json:"warning,omitempty"`
}

// CaptureHandler runs a capture controller per WebSocket connection. The
// page owns the camera: the server sends it get_user_media,
// start_recorder, stop_recorder and release_media commands and the page
// streams recorder chunks back.
type CaptureHandler struct {
	upgrader *websocket.Upgrader
	blobs    blob.Store
	log      zerolog.Logger
}

func NewCaptureHandler(blobs blob.Store, allowedOrigins []string) *CaptureHandler {
	return &CaptureHandler{
		upgrader: newUpgrader(allowedOrigins),
		blobs:    blobs,
		log:      logger.WithComponent("capture_ws"),
	}
}

func (h *CaptureHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/capture", h.Serve)
}

func (h *CaptureHandler) Serve(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.run(sc, newWSConn(conn))
}

func (h *CaptureHandler) run(sc *session.Context, c *wsConn) {
	log := h.log.With().Str("user_id", sc.UserID()).Logger()
	ctx, cancel := context.WithCancel(context.Background())

	src := capture.NewRemoteSource(func(cmd capture.Command) error {
		if !c.send(cmd) {
			return capture.ErrDisconnected
		}
		return nil
	})
	ctrl := sc.Workspace.NewCapture(src,
		capture.OnStateChange(func(s capture.Snapshot) {
			c.send(CaptureServerMessage{Type: captureMsgState, State: &s})
		}),
		capture.OnTick(func(elapsed int) {
			c.send(CaptureServerMessage{Type: captureMsgTick, Elapsed: elapsed})
		}),
	)

	commands := make(chan string, captureCommandSlot)
	workerDone := make(chan struct{})
	go c.writeLoop()
	go func() {
		defer close(workerDone)
		h.runCommands(ctx, sc.Workspace, ctrl, c, commands)
	}()

	initial := ctrl.Snapshot()
	c.send(CaptureServerMessage{Type: captureMsgState, State: &initial})
	log.Debug().Msg("capture connection opened")

	// Signing out ends the page's recorder along with the workspace.
	go func() {
		select {
		case <-sc.Workspace.Done():
			c.send(CaptureServerMessage{Type: captureMsgError, Error: apperr.ViewOf(entries.ErrClosed)})
			c.close()
		case <-c.done:
		}
	}()

	h.readLoop(c, src, commands)

	// Unblock anything waiting on the page before tearing down.
	src.Close()
	cancel()
	close(commands)
	<-workerDone
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := ctrl.Close(closeCtx); err != nil {
		log.Warn().Err(err).Msg("close capture controller")
	}
	closeCancel()
	c.close()
	log.Debug().Msg("capture connection closed")
}

// readLoop feeds device replies to src and queues UI commands until the
// connection fails.
func (h *CaptureHandler) readLoop(c *wsConn, src *capture.RemoteSource, commands chan<- string) {
	c.prepareRead(captureReadLimit)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			src.Chunk(data)
			continue
		}

		var msg CaptureClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(CaptureServerMessage{Type: captureMsgError, Error: &apperr.View{Code: apperr.CodeValidation, Message: "Malformed message"}})
			continue
		}
		switch msg.Type {
		case captureMediaReady:
			src.MediaReady(msg.MimeTypes)
		case captureMediaError:
			src.MediaError(msg.Name, msg.Message)
		case captureRecorderStopped:
			src.RecorderStopped()
		case captureRecorderError:
			src.RecorderError(msg.Name, msg.Message)
		case captureStart, captureStop, captureSave, captureDiscard:
			select {
			case commands <- msg.Type:
			default:
				c.send(CaptureServerMessage{Type: captureMsgError, Error: &apperr.View{Code: apperr.CodeInvalidState, Message: "Still working on the previous action"}})
			}
		}
	}
}

// runCommands executes UI commands one at a time. It runs apart from the
// read loop because start and stop wait for replies that only the read
// loop can deliver.
func (h *CaptureHandler) runCommands(ctx context.Context, ws *session.Workspace, ctrl *capture.Controller, c *wsConn, commands <-chan string) {
	for cmd := range commands {
		var err error
		switch cmd {
		case captureStart:
			cmdCtx, cancel := context.WithTimeout(ctx, captureStartWait)
			err = ctrl.StartRecording(cmdCtx)
			cancel()
		case captureStop:
			cmdCtx, cancel := context.WithTimeout(ctx, captureStopWait)
			_, err = ctrl.StopRecording(cmdCtx)
			cancel()
		case captureDiscard:
			err = ctrl.Discard(ctx)
		case captureSave:
			err = h.save(ctx, ws, ctrl, c)
		}
		if err != nil && ctx.Err() == nil {
			c.send(CaptureServerMessage{Type: captureMsgError, Error: apperr.ViewOf(err)})
		}
	}
}

func (h *CaptureHandler) save(ctx context.Context, ws *session.Workspace, ctrl *capture.Controller, c *wsConn) error {
	entry, err := ctrl.Save()
	if err != nil {
		return err
	}
	saved, err := ws.SaveEntry(ctx, entry)
	if err != nil && !errors.Is(err, apperr.ErrStorageWriteFailed) {
		return err
	}
	v := EntryView{JournalEntry: saved, VideoURL: h.blobs.URL(saved.BlobRef)}
	c.send(CaptureServerMessage{Type: captureMsgSaved, Entry: &v, Warning: apperr.ViewOf(err)})
	return nil
}
