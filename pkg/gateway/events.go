package gateway

import "time"

// Outcome classifies how a crop request ended.
type Outcome string

const (
	OutcomeDetected    Outcome = "detected"    // at least one face
	OutcomeNoFaces     Outcome = "no_faces"    // oracle succeeded with zero faces
	OutcomeUnavailable Outcome = "unavailable" // oracle failed
	OutcomeFetchError  Outcome = "fetch_error" // image could not be fetched
)

// Event is published on /ws/detections after each crop request.
type Event struct {
	RequestID string    `json:"requestId"`
	Outcome   Outcome   `json:"outcome"`
	Faces     int       `json:"faces"`
	LatencyMs int64     `json:"latencyMs"`
	Time      time.Time `json:"time"`
}

func (s *Server) publish(requestID string, outcome Outcome, faces int, start time.Time) {
	ev := Event{
		RequestID: requestID,
		Outcome:   outcome,
		Faces:     faces,
		LatencyMs: time.Since(start).Milliseconds(),
		Time:      time.Now().UTC(),
	}
	if err := s.events.BroadcastJSON(ev); err != nil {
		s.logger.Warn("encode detection event", "error", err)
	}
}
