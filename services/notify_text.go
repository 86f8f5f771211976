package services

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	NotifyMatchJoined    = "match_joined"
	NotifyTopupCredited  = "topup_credited"
	NotifyTopupRejected  = "topup_rejected"
	NotifyWithdrawalHeld = "withdrawal_requested"
	NotifyWithdrawalPaid = "withdrawal_approved"
	NotifyWithdrawalBack = "withdrawal_rejected"
	NotifyPrize          = "prize_credited"
	NotifyAdjustment     = "wallet_adjusted"
	NotifyMatchRefund    = "match_refunded"
)

// MoneyFormatter renders amounts for notification text.
type MoneyFormatter struct {
	unit    currency.Unit
	printer *message.Printer
}

func NewMoneyFormatter(code string) *MoneyFormatter {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.INR
	}
	return &MoneyFormatter{unit: unit, printer: message.NewPrinter(language.English)}
}

func (f *MoneyFormatter) Format(d decimal.Decimal) string {
	amt, _ := Round2(d.Abs()).Float64()
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(amt)))
}
