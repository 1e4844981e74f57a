package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
	"github.com/NairaLink/chat_layer/internal/app/domain/operation"
	"github.com/NairaLink/chat_layer/internal/app/domain/user"
)

const helpReply = `Here is what I can do:
- balance
- buy <amount> [token]
- send <amount> [token] to <recipient>
- cash out <amount>
- my cards
- create card
- add bank <bank> <account> <name>
- submit kyc
- setup pin
Reply with any command to get started.`

const kycPromptReply = "Before moving funds you need to verify your identity. Reply 'submit kyc' to start."

const pinSetupPromptReply = "You're verified. Now choose a transaction PIN (4-8 digits) and reply with it."

const genericErrorReply = "Something went wrong on our side. Nothing was charged. Please try again in a moment."

const pinRequiredReply = "You need a transaction PIN first. Choose 4-8 digits and reply with it."

func gateReply(err error) string {
	if errors.Is(err, errPINRequired) {
		return pinRequiredReply
	}
	return kycPromptReply
}

func balanceReply(amount money.Amount, token string) string {
	return fmt.Sprintf("Your balance is %s %s.", amount, strings.ToUpper(token))
}

func feePromptReply(action pendingAction) string {
	fee := action.Fee
	return fmt.Sprintf(
		"You are sending %s %s to %s.\nService fee: %s\nNetwork fee: %s\nTotal: %s\nReply with your PIN to confirm.",
		fee.Amount, strings.ToUpper(action.Token), action.Display,
		fee.ServiceFee, fee.NetworkFeeQuote, fee.TotalCost,
	)
}

func cashOutPromptReply(action pendingAction) string {
	fee := action.Fee
	return fmt.Sprintf(
		"You are cashing out %s %s to %s.\nService fee: %s\nNetwork fee: %s\nTotal: %s\nReply with your PIN to confirm.",
		fee.Amount, strings.ToUpper(action.Token), action.Display,
		fee.ServiceFee, fee.NetworkFeeQuote, fee.TotalCost,
	)
}

func cardPromptReply(action pendingAction) string {
	fee := action.Fee
	return fmt.Sprintf(
		"Creating a virtual card costs %s (network fee %s). Reply with your PIN to confirm.",
		fee.TotalCost, fee.NetworkFeeQuote,
	)
}

func processingReply(kind operation.Kind) string {
	switch kind {
	case operation.KindTransfer:
		return "Your transfer is on its way. I'll message you once it settles."
	case operation.KindWithdraw:
		return "Your cash out is processing. I'll message you once it settles."
	case operation.KindCardCreate:
		return "Your card is being created. I'll message you once it's ready."
	default:
		return "Your request is processing. I'll message you once it settles."
	}
}

func shortfallReply(total, balance money.Amount, token string) string {
	return fmt.Sprintf("You need %s %s for this (including fees) but only have %s. You are short %s.",
		total, strings.ToUpper(token), balance, total.Sub(balance))
}

func paymentInstructionsReply(amountUnits int64, link string) string {
	return fmt.Sprintf("To buy %d units, pay exactly %d via %s then reply 'paid %d'.",
		amountUnits, amountUnits, link, amountUnits)
}

func cardListReply(cards []user.Card) string {
	var b strings.Builder
	b.WriteString("Your cards:\n")
	for i, c := range cards {
		label := c.Label
		if label == "" {
			label = "Virtual card"
		}
		fmt.Fprintf(&b, "%d. %s ****%s\n", i+1, label, c.Last4)
	}
	b.WriteString("Reply with a number to see card details.")
	return b.String()
}

func cardDetailReply(c user.Card) string {
	label := c.Label
	if label == "" {
		label = "Virtual card"
	}
	return fmt.Sprintf("%s ending %s, created %s.", label, c.Last4, c.CreatedAt.Format("02 Jan 2006"))
}

func wrongPINReply(remaining int) string {
	if remaining <= 0 {
		return "Too many wrong PIN attempts. The transaction has been cancelled. Start again when ready."
	}
	return fmt.Sprintf("That PIN is not correct. %d attempts remaining.", remaining)
}
