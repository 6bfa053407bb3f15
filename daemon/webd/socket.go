package webd

import (
	"encoding/json"

	"github.com/olahol/melody"
	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/events"
	"github.com/rotblauer/catspeed/types/status"
)

type websocketAction string

var websocketActionStatus websocketAction = "status"

type broadcats struct {
	Action websocketAction  `json:"action"`
	Cat    conceptual.CatID `json:"cat"`
	Status json.RawMessage  `json:"status"`
}

func marshalBroadcats(catID conceptual.CatID, st status.Status) ([]byte, error) {
	b, err := status.Marshal(st)
	if err != nil {
		return nil, err
	}
	return json.Marshal(broadcats{
		Action: websocketActionStatus,
		Cat:    catID,
		Status: b,
	})
}

// initMelody sets up the websocket handler.
// Connecting clients get every cat's last known status, then each status change as it happens.
func (s *WebDaemon) initMelody() {
	s.melodyInstance = melody.New()
	logger := s.logger.With("ws", true)

	s.melodyInstance.HandleConnect(func(sess *melody.Session) {
		logger.Info("Websocket connected", "remote", sess.Request.RemoteAddr)
		for catID, st := range s.backend.LastKnown.All() {
			b, err := marshalBroadcats(catID, st)
			if err != nil {
				logger.Warn("Failed to marshal status", "cat", catID, "error", err)
				continue
			}
			if err := sess.Write(b); err != nil {
				logger.Warn("Failed to write last known status", "error", err)
				return
			}
		}
	})

	// Right now don't care about incoming messages from clients. Log and drop.
	s.melodyInstance.HandleMessage(func(sess *melody.Session, msg []byte) {
		logger.Debug("Websocket message", "remote", sess.Request.RemoteAddr, "message", string(msg))
	})

	s.melodyInstance.HandleDisconnect(func(sess *melody.Session) {
		logger.Info("Websocket disconnected", "remote", sess.Request.RemoteAddr)
	})

	s.melodyInstance.HandleError(func(sess *melody.Session, e error) {
		logger.Warn("Websocket error", "remote", sess.Request.RemoteAddr, "error", e)
	})

	statuses := make(chan events.CatStatus)
	sub := s.backend.Feeds.Status.Subscribe(statuses)
	s.unsubscribers = append(s.unsubscribers, sub.Unsubscribe)
	go func() {
		for {
			select {
			case cs := <-statuses:
				if s.melodyInstance.IsClosed() {
					continue
				}
				b, err := marshalBroadcats(cs.Cat, cs.Status)
				if err != nil {
					logger.Error("Failed to marshal status event", "error", err)
					continue
				}
				if err := s.melodyInstance.Broadcast(b); err != nil {
					logger.Warn("Failed to broadcast status event", "error", err)
				}
			case err := <-sub.Err():
				if err != nil {
					logger.Error("Status subscription failed", "error", err)
				}
				return
			}
		}
	}()
}
