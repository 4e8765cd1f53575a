package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"

	"memory-match/services"
)

const keepAliveInterval = 15 * time.Second

// streamBoard sends the current board as a "board" event, then one "patch"
// (or "board" in full update mode) event per committed revision.
func streamBoard(matches *services.MatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		matchID := utils.CopyString(c.Params("id"))
		ctx, cancel := context.WithCancel(context.Background())

		initial, updates, err := matches.Watch(ctx, matchID)
		if err != nil {
			cancel()
			return respondError(c, err)
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		log := logrus.WithField("match_id", matchID)
		done := c.Context().Done()

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()
			keepAlive := time.NewTicker(keepAliveInterval)
			defer keepAlive.Stop()

			if err := writeEvent(w, "board", initial); err != nil {
				return
			}
			for {
				select {
				case u, ok := <-updates:
					if !ok {
						return
					}
					var err error
					if u.Patch != nil {
						err = writeEvent(w, "patch", u.Patch)
					} else {
						err = writeEvent(w, "board", u.Board)
					}
					if err != nil {
						log.WithError(err).Debug("stream client gone")
						return
					}
				case <-keepAlive.C:
					w.WriteString(":\n\n")
					if err := w.Flush(); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		})
		return nil
	}
}

func writeEvent(w *bufio.Writer, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return w.Flush()
}
