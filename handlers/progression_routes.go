package handlers

import (
	"github.com/gofiber/fiber/v2"

	"memory-match/services"
)

func SetupProgressionRoutes(app *fiber.App, progression *services.ProgressionService) {
	app.Get("/players/:id", func(c *fiber.Ctx) error {
		p, err := progression.Player(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", services.DefaultLeaderboardLimit)
		players, err := progression.Leaderboard(c.UserContext(), limit)
		if err != nil {
			return respondError(c, err)
		}

		type entry struct {
			Rank        int    `json:"rank"`
			PlayerID    string `json:"player_id"`
			DisplayName string `json:"display_name"`
			Title       string `json:"title"`
			Rating      int    `json:"rating"`
		}
		out := make([]entry, 0, len(players))
		for i, p := range players {
			out = append(out, entry{
				Rank:        i + 1,
				PlayerID:    p.ID,
				DisplayName: p.DisplayName,
				Title:       p.Title,
				Rating:      p.Rating,
			})
		}
		return c.JSON(fiber.Map{"leaderboard": out})
	})
}
