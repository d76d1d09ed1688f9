package workerrun

import (
	"context"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"
)

// WSLineSink streams build output lines to the coordinator's log fan-out
// hub over the /api/ws/worker/{hostname} websocket (see
// internal/logfanout), so anyone watching that hostname's viewer socket
// sees output live instead of only after the job completes.
type WSLineSink struct {
	conn *websocket.Conn
}

// DialWSLineSink connects to baseURL's worker log-fanout endpoint for
// hostname. baseURL is the coordinator's HTTP base URL, e.g.
// "http://coordinator:3718"; it is translated to ws(s):// here.
func DialWSLineSink(ctx context.Context, baseURL, hostname string) (*WSLineSink, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, xerrors.Errorf("parsing coordinator base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws/worker/" + hostname

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, xerrors.Errorf("dialing %s: %w", u.String(), err)
	}
	return &WSLineSink{conn: conn}, nil
}

// SendLine forwards line as one text frame. Errors here only drop the live
// view of this one line; the build output is still captured for the final
// log archive, so a flaky log socket never fails a build.
func (s *WSLineSink) SendLine(ctx context.Context, line string) error {
	return s.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// Close releases the underlying connection.
func (s *WSLineSink) Close() error {
	return s.conn.Close()
}
