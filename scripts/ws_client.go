// Package main runs a demo WebSocket client for integration events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Seed an order
	body := []byte(`{"orders":[{"currency":"EUR","totalAmount":42.50,"subtotal":42.50,"shippingAddress":{"name":"Jan Jansen","street":"Dorpsstraat","houseNumber":"1","postalCode":"1234AB","city":"Amsterdam","countryCode":"NL"},"items":[{"title":"Widget","quantity":1,"unitPrice":42.50}]}]}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var created struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatal(err)
	}
	if len(created.IDs) == 0 {
		log.Fatal("no order id returned")
	}
	orderID := created.IDs[0]
	log.Printf("Order ID: %s", orderID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/admin/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// connection_init
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to this order's events
	pl, _ := json.Marshal(map[string]any{"orderId": orderID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger a shipment.created event (mock carriers ship unpaid orders)
	time.Sleep(500 * time.Millisecond)
	shipReq, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v1/orders/%s/shipment", base, orderID), bytes.NewReader([]byte("{}")))
	shipReq.Header.Set("Content-Type", "application/json")
	shipReq.Header.Set("X-Role", "admin")
	_, _ = http.DefaultClient.Do(shipReq)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
