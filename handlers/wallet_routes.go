// handlers/wallet_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"tournament-ledger/middleware"
	"tournament-ledger/services"
)

type topupOrderRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type withdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Payout map[string]any  `json:"payout" validate:"required"`
}

type walletView struct {
	UserID   string          `json:"user_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

func SetupWalletRoutes(app *fiber.App, wallet *services.WalletService, activity *services.ActivityService) {
	// 🔐 Authenticated routes
	secured := app.Group("/wallet", middleware.UserContextMiddleware())

	secured.Get("/", func(c *fiber.Ctx) error {
		acct, err := wallet.Balance(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "wallet fetched", walletView{
			UserID:   acct.UserID,
			Balance:  acct.Balance,
			Currency: acct.Currency,
		})
	})

	secured.Get("/history", func(c *fiber.Ctx) error {
		page := queryInt(c, "page", 1)
		size := services.HistoryPageSize(queryInt(c, "size", 20))
		entries, total, err := wallet.History(c.UserContext(), middleware.UserID(c), page, size)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccessWithMeta(c, "history fetched", entries, &Meta{Page: page, Limit: size, Total: total})
	})

	// Top-ups
	secured.Post("/topups", func(c *fiber.Ctx) error {
		var req topupOrderRequest
		if err := bind(c, &req); err != nil {
			return writeError(c, err)
		}
		order, err := wallet.CreateTopupOrder(c.UserContext(), middleware.UserID(c), req.Amount)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusCreated, "top-up order created", order)
	})

	secured.Post("/topups/confirm", func(c *fiber.Ctx) error {
		var req services.TopupConfirmation
		if err := bind(c, &req); err != nil {
			return writeError(c, err)
		}
		req.UserID = middleware.UserID(c)
		res, err := wallet.ConfirmTopup(c.UserContext(), req)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "top-up confirmed", res)
	})

	// Withdrawals
	secured.Post("/withdrawals", func(c *fiber.Ctx) error {
		var req withdrawalRequest
		if err := bind(c, &req); err != nil {
			return writeError(c, err)
		}
		res, err := wallet.RequestWithdrawal(c.UserContext(), middleware.UserID(c), req.Amount, req.Payout)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusAccepted, "withdrawal requested", res)
	})

	inbox := app.Group("/notifications", middleware.UserContextMiddleware())

	inbox.Get("/", func(c *fiber.Ctx) error {
		items, err := activity.Notifications(c.UserContext(), middleware.UserID(c), c.QueryBool("unread", false), queryInt(c, "limit", 50))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "notifications fetched", items)
	})

	inbox.Post("/read", func(c *fiber.Ctx) error {
		n, err := activity.MarkRead(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "notifications marked read", fiber.Map{"updated": n})
	})
}
