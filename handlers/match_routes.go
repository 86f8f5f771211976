package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tournament-ledger/middleware"
	"tournament-ledger/services"
)

type renameTeamRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

func SetupMatchRoutes(app *fiber.App, matches *services.MatchService, joins *services.JoinCoordinator) {
	secured := app.Group("/matches", middleware.UserContextMiddleware())

	secured.Get("/", func(c *fiber.Ctx) error {
		list, err := matches.ListMatches(c.UserContext(), c.QueryBool("open", true), queryInt(c, "limit", 50))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "matches fetched", list)
	})

	secured.Get("/:id", func(c *fiber.Ctx) error {
		m, err := matches.GetMatch(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "match fetched", m)
	})

	secured.Get("/:id/teams", func(c *fiber.Ctx) error {
		teams, err := matches.Teams(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "teams fetched", teams)
	})

	// 🎮 Join: debits the entry fee and takes a slot in one transaction
	secured.Post("/:id/join", func(c *fiber.Ctx) error {
		var req services.JoinRequest
		if len(c.Body()) > 0 {
			if err := bind(c, &req); err != nil {
				return writeError(c, err)
			}
		}
		req.UserID = middleware.UserID(c)
		req.MatchID = c.Params("id")

		res, err := joins.Join(c.UserContext(), req)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusCreated, "joined match", res)
	})

	secured.Patch("/:id/teams/:side", func(c *fiber.Ctx) error {
		side, err := c.ParamsInt("side")
		if err != nil {
			return writeError(c, services.ErrInvalidSlot)
		}
		var req renameTeamRequest
		if err := bind(c, &req); err != nil {
			return writeError(c, err)
		}
		team, err := joins.RenameTeam(c.UserContext(), middleware.UserID(c), c.Params("id"), side, req.Name)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "team renamed", team)
	})
}
