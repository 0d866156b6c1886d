package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/matching-engine/internal/domain"
)

type fixture struct {
	srv     *Server
	ts      *httptest.Server
	tradeCh chan domain.TradeEvent
	bookCh  chan domain.BookEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := NewServer()
	tradeCh := make(chan domain.TradeEvent, 8)
	bookCh := make(chan domain.BookEvent, 8)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Run(ctx, tradeCh, bookCh)

	r := gin.New()
	srv.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &fixture{srv: srv, ts: ts, tradeCh: tradeCh, bookCh: bookCh}
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitSubscribers blocks until the hub has n registered subscribers. The
// dial handshake returns before the handler goroutine subscribes, so
// broadcasting immediately after dial could drop the event.
func waitSubscribers[T any](t *testing.T, h *hub[T], n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.subs) == n
	}, time.Second, 5*time.Millisecond)
}

func TestServer_TradeStream(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/ws/trades")
	waitSubscribers(t, f.srv.trades, 1)

	f.tradeCh <- domain.TradeEvent{
		Seq:    9,
		Symbol: "ACME",
		Trades: []domain.Trade{{
			Seq:         1,
			Symbol:      "ACME",
			BuyOrderID:  2,
			SellOrderID: 1,
			Quantity:    5,
			Price:       103,
			ExecutedAt:  time.Now(),
		}},
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string            `json:"type"`
		Data domain.TradeEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "trade", msg.Type)
	assert.Equal(t, uint64(9), msg.Data.Seq)
	require.Len(t, msg.Data.Trades, 1)
	assert.Equal(t, int64(103), msg.Data.Trades[0].Price)
	assert.Equal(t, uint64(2), msg.Data.Trades[0].BuyOrderID)
}

func TestServer_BookStream(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/ws/book")
	waitSubscribers(t, f.srv.books, 1)

	bid := domain.Price(100)
	f.bookCh <- domain.BookEvent{
		Seq:     3,
		Symbol:  "ACME",
		BestBid: &bid,
		Bids:    []domain.PriceLevel{{Price: 100, Quantity: 10}},
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string           `json:"type"`
		Data domain.BookEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "book", msg.Type)
	assert.Equal(t, uint64(3), msg.Data.Seq)
	require.NotNil(t, msg.Data.BestBid)
	assert.Equal(t, int64(100), *msg.Data.BestBid)
	assert.Nil(t, msg.Data.BestAsk)
}

func TestServer_SubscriberRemovedOnDisconnect(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/ws/trades")
	waitSubscribers(t, f.srv.trades, 1)

	conn.Close()

	// The handler only notices the dead connection when a write fails,
	// which can take more than one attempt.
	require.Eventually(t, func() bool {
		f.tradeCh <- domain.TradeEvent{Seq: 1, Symbol: "ACME"}
		f.srv.trades.mu.RLock()
		defer f.srv.trades.mu.RUnlock()
		return len(f.srv.trades.subs) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
