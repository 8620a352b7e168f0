package venues

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var testUpgrader = websocket.Upgrader{}

// flakyBookServer accepts the subscription, optionally emits one ticker,
// then drops the connection so the client has to reconnect.
func flakyBookServer(t *testing.T, ticker string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = c.ReadMessage() // subscription frame
		if ticker != "" {
			_ = c.WriteMessage(websocket.TextMessage, []byte(ticker))
		}
		time.Sleep(30 * time.Millisecond)
		c.Close()
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunFillsCacheFromStream(t *testing.T) {
	srv := flakyBookServer(t, `{"symbol":"WETHUSDT","bid":"3000.5","ask":"3001.5"}`)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := NewWSBook(wsURL(srv), testDecimals, zap.NewNop())
	go ws.Run(ctx, []string{"WETHUSDT"})

	assert.Eventually(t, func() bool {
		return ws.Book().Has("WETHUSDT")
	}, 3*time.Second, 20*time.Millisecond)

	bid, ask, err := ws.Book().BestBidAsk("WETHUSDT")
	assert.NoError(t, err)
	assert.Equal(t, 3000.5, bid)
	assert.Equal(t, 3001.5, ask)
}

func TestRunReconnectReplacesKeepAlive(t *testing.T) {
	srv := flakyBookServer(t, "")
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := NewWSBook(wsURL(srv), testDecimals, zap.NewNop())
	go ws.Run(ctx, []string{"WETHUSDT"})

	// a few connect/drop/reconnect rounds
	time.Sleep(2500 * time.Millisecond)

	// between attempts only Run itself should reference this file; each
	// dead connection must take its keep-alive goroutine with it
	assert.Eventually(t, func() bool {
		return bookStreamGoroutines() <= 2
	}, 2*time.Second, 50*time.Millisecond)
}

func bookStreamGoroutines() int {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	count := 0
	for _, st := range strings.Split(string(buf[:n]), "\n\n") {
		if strings.Contains(st, "wsbook.go") {
			count++
		}
	}
	return count
}
