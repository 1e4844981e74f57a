// Package intent defines the structured commands produced from free text.
package intent

// Command identifies a recognized user command.
type Command string

const (
	CommandInvalid     Command = "invalid"
	CommandHelp        Command = "help"
	CommandBalance     Command = "balance"
	CommandMyCards     Command = "my_cards"
	CommandSubmitKYC   Command = "submit_kyc"
	CommandSetupPIN    Command = "setup_pin"
	CommandCreateCard  Command = "create_card"
	CommandBuy         Command = "buy"
	CommandSend        Command = "send"
	CommandCashOut     Command = "cash_out"
	CommandAddBank     Command = "add_bank"
	CommandPaid        Command = "paid"
)

// RecipientForm tags which textual form a recipient argument matched, so
// resolution logic knows whether a name lookup is required.
type RecipientForm string

const (
	// RecipientNamed is a human-readable handle such as alice.cngn.
	RecipientNamed RecipientForm = "named"
	// RecipientAddress is a raw hex ledger address (0x + 40 hex digits).
	RecipientAddress RecipientForm = "address"
)

// Recipient is the tagged variant for a transfer destination.
type Recipient struct {
	Form  RecipientForm
	Value string
}

// Intent is the parsed form of one inbound message. It is transient and
// never persisted.
type Intent struct {
	Command   Command
	Amount    int64 // whole quote-currency units as typed by the user
	Token     string
	Recipient Recipient
	// Bank transfer destination fields for add_bank.
	BankName    string
	BankAccount string
	AccountName string
}
