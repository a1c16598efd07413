package collector

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/jkbrsn/axiosly"
)

// Tail connects to a collector's live stream at streamURL and calls fn for every record until
// ctx is canceled or the collector closes the stream. A clean close returns nil.
func Tail(ctx context.Context, streamURL, apiKey string, fn func(axiosly.MetricsRecord)) error {
	header := http.Header{}
	if apiKey != "" {
		header.Set("Authorization", "Bearer "+apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller gives up
	stop := context.AfterFunc(ctx, func() {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var rec axiosly.MetricsRecord
		if err := sonic.Unmarshal(msg, &rec); err != nil {
			continue
		}
		fn(rec)
	}
}
