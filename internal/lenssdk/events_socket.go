package lenssdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/repolens/repolens/internal/lensmsg"
)

func dialWebsocket(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	return conn, err
}

// readEvents pumps frames off the connection until it dies. Malformed frames
// are logged and dropped; they never tear the connection down.
func (e *EventsAPI) readEvents(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if !isWSExpectedCloseError(err) {
				slog.Warn("events RECV", "error", err)
			}
			return
		}

		var ev lensmsg.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			slog.Warn("events RECV decode, dropped", "error", err)
			continue
		}

		slog.Debug("events rx", "id", ev.ID, "kind", ev.Kind)
		e.dispatch(&ev)
	}
}

// isWSExpectedCloseError returns true if the error is an expected closure.
func isWSExpectedCloseError(err error) bool {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed)
}

// toWebsocketURL converts an HTTP URL to a websocket URL.
func toWebsocketURL(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + url[8:]
	} else if strings.HasPrefix(url, "http://") {
		return "ws://" + url[7:]
	}
	return url
}
