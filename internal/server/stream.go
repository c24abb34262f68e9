package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/optimode/emailhealth"
)

// progressEvent is one websocket message.
type progressEvent struct {
	ID       string                    `json:"id"`
	Status   State                     `json:"status"`
	Percent  int                       `json:"percent"`
	Message  string                    `json:"message"`
	Progress emailhealth.Progress      `json:"progress"`
	Summary  *emailhealth.BatchSummary `json:"summary,omitempty"`
}

func newProgressEvent(run *Run) progressEvent {
	state, br, err := run.State()
	p := run.Progress()
	ev := progressEvent{
		ID:       run.ID,
		Status:   state,
		Percent:  int(p.Fraction() * 100),
		Progress: p,
	}
	switch state {
	case StateRunning:
		ev.Message = "validating addresses"
	case StateCompleted:
		ev.Message = "run completed"
	case StateCancelled:
		ev.Message = "run cancelled"
	case StateFailed:
		ev.Message = err.Error()
	}
	if br != nil {
		ev.Summary = &br.Summary
	}
	return ev
}

// upgrade only lets websocket requests for known runs through.
func (s *Server) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	run, err := s.lookup(c)
	if err != nil {
		return err
	}
	c.Locals("run", run)
	return c.Next()
}

// streamRun pushes a progress event whenever the processed count changes,
// then a final event once the run stops, and closes the connection.
func (s *Server) streamRun(c *websocket.Conn) {
	defer c.Close()
	run := c.Locals("run").(*Run)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-run.Done():
			if err := c.WriteJSON(newProgressEvent(run)); err != nil {
				s.log.WithError(err).WithField("run", run.ID).Debug("websocket write failed")
			}
			return
		case <-ticker.C:
			ev := newProgressEvent(run)
			if ev.Progress.Processed == last {
				continue
			}
			last = ev.Progress.Processed
			if err := c.WriteJSON(ev); err != nil {
				s.log.WithError(err).WithField("run", run.ID).Debug("websocket write failed")
				return
			}
		}
	}
}
