package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tournament-ledger/middleware"
	"tournament-ledger/services"
)

type prizeDistributionRequest struct {
	Round  int                   `json:"round" validate:"min=0"`
	Awards []services.PrizeAward `json:"awards" validate:"required,min=1,max=500,dive"`
}

type withdrawalDecisionRequest struct {
	Note   string `json:"note" validate:"max=255"`
	Reason string `json:"reason" validate:"max=255"`
}

// AdminServices bundles what the admin routes drive.
type AdminServices struct {
	Wallet   *services.WalletService
	Matches  *services.MatchService
	Activity *services.ActivityService
}

func SetupAdminRoutes(app *fiber.App, svc AdminServices) {
	// 🛡️ Admin routes: user context plus the admin role
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	// Matches
	admin.Post("/matches", func(c *fiber.Ctx) error {
		var in services.CreateMatchInput
		if err := bind(c, &in); err != nil {
			return writeError(c, err)
		}
		m, err := svc.Matches.CreateMatch(c.UserContext(), middleware.UserID(c), in)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusCreated, "match created", m)
	})

	admin.Post("/matches/:id/lock", func(c *fiber.Ctx) error {
		m, err := svc.Matches.LockMatch(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "match locked", m)
	})

	admin.Post("/matches/:id/unlock", func(c *fiber.Ctx) error {
		m, err := svc.Matches.UnlockMatch(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "match unlocked", m)
	})

	admin.Delete("/matches/:id", func(c *fiber.Ctx) error {
		summary, err := svc.Matches.DeleteMatch(c.UserContext(), middleware.UserID(c), c.Params("id"), c.QueryBool("refund", false))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "match deleted", summary)
	})

	admin.Get("/matches/:id/participants", func(c *fiber.Ctx) error {
		list, err := svc.Matches.ListParticipants(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "participants fetched", list)
	})

	admin.Post("/matches/:id/prizes", func(c *fiber.Ctx) error {
		var req prizeDistributionRequest
		if err := bind(c, &req); err != nil {
			return writeError(c, err)
		}
		outcomes, err := svc.Wallet.DistributePrizes(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Round, req.Awards)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "prizes processed", outcomes)
	})

	// Withdrawals
	admin.Get("/withdrawals", func(c *fiber.Ctx) error {
		list, err := svc.Wallet.PendingWithdrawals(c.UserContext(), queryInt(c, "limit", 100))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "pending withdrawals fetched", list)
	})

	admin.Post("/withdrawals/:id/approve", func(c *fiber.Ctx) error {
		var req withdrawalDecisionRequest
		if len(c.Body()) > 0 {
			if err := bind(c, &req); err != nil {
				return writeError(c, err)
			}
		}
		res, err := svc.Wallet.ApproveWithdrawal(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Note)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "withdrawal approved", res)
	})

	admin.Post("/withdrawals/:id/reject", func(c *fiber.Ctx) error {
		var req withdrawalDecisionRequest
		if len(c.Body()) > 0 {
			if err := bind(c, &req); err != nil {
				return writeError(c, err)
			}
		}
		res, err := svc.Wallet.RejectWithdrawal(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Reason)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "withdrawal rejected", res)
	})

	// Wallets
	admin.Post("/wallets/adjust", func(c *fiber.Ctx) error {
		var adj services.Adjustment
		if err := bind(c, &adj); err != nil {
			return writeError(c, err)
		}
		res, err := svc.Wallet.AdjustBalance(c.UserContext(), middleware.UserID(c), adj)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "balance adjusted", res)
	})

	admin.Post("/wallets/:user_id", func(c *fiber.Ctx) error {
		acct, err := svc.Wallet.Store.EnsureAccount(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "account ready", acct)
	})

	admin.Get("/wallets/:user_id/history", func(c *fiber.Ctx) error {
		page := queryInt(c, "page", 1)
		size := services.HistoryPageSize(queryInt(c, "size", 20))
		entries, total, err := svc.Wallet.History(c.UserContext(), c.Params("user_id"), page, size)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccessWithMeta(c, "history fetched", entries, &Meta{Page: page, Limit: size, Total: total})
	})

	admin.Get("/audit", func(c *fiber.Ctx) error {
		logs, err := svc.Activity.AuditLog(c.UserContext(), services.AuditFilter{
			ActorID:      c.Query("actor_id"),
			TargetUserID: c.Query("user_id"),
			Action:       c.Query("action"),
			Limit:        queryInt(c, "limit", 100),
		})
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "audit log fetched", logs)
	})
}
