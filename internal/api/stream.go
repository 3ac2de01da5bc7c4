/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/coupdefeu/coupdefeu/internal/events"
	"github.com/coupdefeu/coupdefeu/internal/telemetry"
)

// streamEventTypes are the bus events a timeline stream client hears about.
// Every one of them means the derived grid may have changed.
var streamEventTypes = []events.EventType{
	events.EventTimelineChanged,
	events.EventOrderScheduled,
	events.EventOrderUnscheduled,
	events.EventLoadCreated,
	events.EventLoadUpdated,
	events.EventLoadDeleted,
}

// handleTimelineStream pushes change notifications to dashboard clients
// over a websocket. Clients re-fetch the timeline when notified; the stream
// itself carries only the event, not the snapshot, so a slow client cannot
// hold snapshot memory hostage.
func (a *API) handleTimelineStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID := r.URL.Query().Get("restaurant_id")

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.TimelineStreamClients.Inc()
	defer telemetry.TimelineStreamClients.Dec()

	subscribers := make([]events.Subscriber, 0, len(streamEventTypes))
	for _, eventType := range streamEventTypes {
		subscribers = append(subscribers, a.bus.Subscribe(eventType))
	}
	defer func() {
		for i, eventType := range streamEventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		default:
			sent := false
			for i, sub := range subscribers {
				select {
				case payload := <-sub:
					if restaurantID != "" && payload["restaurant_id"] != restaurantID {
						continue
					}
					if err := writeStreamEvent(ctx, conn, streamEventTypes[i], payload); err != nil {
						a.logger.Debug().Err(err).Msg("websocket write failed")
						conn.Close(ws.StatusInternalError, "write failed")
						return
					}
					sent = true
				default:
				}
			}
			if !sent {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, bytes)
}
