package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// handleGetEvents streams protocol events over a websocket.
func (a *Api) handleGetEvents() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		if a.events == nil {
			a.jsonError(w, "events are not enabled", http.StatusNotFound)
			return
		}

		client := a.events.Subscribe()
		defer client.Cancel()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Errorf("Could not upgrade connection: %v", err)
			return
		}
		defer c.Close()

		// read pump
		go func() {
			defer client.Cancel()

			c.SetReadLimit(512)
			c.SetReadDeadline(time.Now().Add(pongWait))
			c.SetPongHandler(func(string) error {
				c.SetReadDeadline(time.Now().Add(pongWait))
				return nil
			})

			for {
				_, _, err := c.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						a.log.Errorf("unexpected websocket closure: %v", err)
					}
					break
				}
			}
		}()

		// write pump
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case event := <-client.Events:
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteJSON(event); err != nil {
					return
				}
			case <-ticker.C:
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-client.Done():
				c.SetWriteDeadline(time.Now().Add(writeWait))
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		}
	}
}
