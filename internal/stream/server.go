package stream

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nathanyu/matching-engine/internal/domain"
)

const subscriberBuffer = 32

// outboundMessage is the envelope every stream frame is wrapped in.
type outboundMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Server bridges sequencer event channels to WebSocket subscribers.
type Server struct {
	trades   *hub[domain.TradeEvent]
	books    *hub[domain.BookEvent]
	upgrader websocket.Upgrader
}

// NewServer creates a stream server with no subscribers.
func NewServer() *Server {
	return &Server{
		trades:   newHub[domain.TradeEvent](),
		books:    newHub[domain.BookEvent](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Run pumps the given event channels into the hubs until the context
// ends. The channels are consumers registered with the sequencer.
func (s *Server) Run(ctx context.Context, trades <-chan domain.TradeEvent, books <-chan domain.BookEvent) {
	go s.pumpTrades(ctx, trades)
	go s.pumpBooks(ctx, books)
}

func (s *Server) pumpTrades(ctx context.Context, events <-chan domain.TradeEvent) {
	log.Println("[stream] trade pump started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[stream] trade pump stopped")
			return
		case ev := <-events:
			s.trades.Broadcast(ev)
		}
	}
}

func (s *Server) pumpBooks(ctx context.Context, events <-chan domain.BookEvent) {
	log.Println("[stream] book pump started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[stream] book pump stopped")
			return
		case ev := <-events:
			s.books.Broadcast(ev)
		}
	}
}

// RegisterRoutes mounts the stream endpoints on the router.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/trades", s.handleTradeStream)
	r.GET("/ws/book", s.handleBookStream)
}

func (s *Server) handleTradeStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.trades.Subscribe(subscriberBuffer)
	defer s.trades.Unsubscribe(sub)

	for ev := range sub.ch {
		if err := conn.WriteJSON(outboundMessage{Type: "trade", Data: ev}); err != nil {
			return
		}
	}
}

func (s *Server) handleBookStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.books.Subscribe(subscriberBuffer)
	defer s.books.Unsubscribe(sub)

	for ev := range sub.ch {
		if err := conn.WriteJSON(outboundMessage{Type: "book", Data: ev}); err != nil {
			return
		}
	}
}
