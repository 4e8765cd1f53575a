package handlers

import (
	"github.com/gofiber/fiber/v2"

	"memory-match/game"
	"memory-match/middleware"
	"memory-match/services"
)

type moveRequest struct {
	DiscoverID string `json:"discover_id"`
}

// SetupPlayRoutes registers the queue, move and board routes.
func SetupPlayRoutes(app *fiber.App, pairing *services.PairingService, matches *services.MatchService) {
	play := app.Group("/play")

	// 🔓 Spectators can read any board.
	play.Get("/games/:id", func(c *fiber.Ctx) error {
		board, err := matches.GetBoard(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(board)
	})
	play.Get("/games/:id/stream", streamBoard(matches))

	// 🔐 Everything else acts as the caller.
	requireUser := middleware.RequireUser()

	play.Get("/queue", requireUser, func(c *fiber.Ctx) error {
		entries, err := pairing.ListQueue(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"queue": entries, "count": len(entries)})
	})

	play.Post("/queue", requireUser, func(c *fiber.Ctx) error {
		res, err := pairing.JoinQueue(c.UserContext(), middleware.UserID(c), middleware.UserName(c))
		if err != nil {
			return respondError(c, err)
		}
		status := fiber.StatusOK
		if res.Status == services.QueueStatusPaired {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(res)
	})

	play.Get("/games", requireUser, func(c *fiber.Ctx) error {
		boards, err := matches.ActiveMatches(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"games": boards})
	})

	play.Post("/move", requireUser, func(c *fiber.Ctx) error {
		gameID := c.Query("gameid")
		if gameID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "gameid query parameter is required"})
		}
		var req moveRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		if req.DiscoverID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "discover_id is required"})
		}

		out, err := matches.SubmitMove(c.UserContext(), gameID, middleware.UserID(c), req.DiscoverID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"matched":  out.Result.Matched,
			"finished": out.Result.Finished,
			"game":     game.ProjectBoard(out.Match),
		})
	})

	play.Post("/takeover", requireUser, func(c *fiber.Ctx) error {
		gameID := c.Query("gameid")
		if gameID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "gameid query parameter is required"})
		}
		ok, m, err := matches.RequestTakeover(c.UserContext(), gameID, middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		body := fiber.Map{"taken_over": ok}
		if m != nil {
			body["game"] = game.ProjectBoard(m)
		}
		if !ok {
			body["error"] = "takeover not allowed before the turn deadline"
			return c.Status(fiber.StatusConflict).JSON(body)
		}
		return c.JSON(body)
	})
}
