package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sbsk/ml"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWSPredict answers each text message, a JSON record, with a JSON
// outcome. Malformed messages get an error reply and the connection stays
// open.
func (s *Server) handleWSPredict(w http.ResponseWriter, r *http.Request) {
	header := http.Header{RequestIDHeader: {GetRequestID(r.Context())}}
	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	idle := 2 * s.cfg.Http.Timeout
	conn.SetReadLimit(s.cfg.Http.MaxUploadMB << 20)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(idle))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Info("websocket closed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var reply interface{}
		rec, err := decodeRecord(bytes.NewReader(data))
		if err != nil {
			reply = errorBody{Status: ml.StatusError, Kind: KindBadRequest, Detail: err.Error()}
		} else {
			reply = s.predict(r.Context(), rec, "websocket")
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			s.log.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}
