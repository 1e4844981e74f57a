// Package intent maps free text to structured commands. Parsing is pure and
// deterministic: no I/O, no session state.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/NairaLink/chat_layer/internal/app/domain/intent"
)

// HandleSuffix is the fixed suffix carried by every human-readable handle.
const HandleSuffix = ".cngn"

// DefaultToken is assumed when a command omits the token argument.
const DefaultToken = "cngn"

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	handlePattern  = regexp.MustCompile(`^[a-zA-Z0-9]+(?:\.[a-zA-Z0-9]+)*\.cngn$`)
)

// pattern is one entry in the grammar table. Entries are evaluated in order;
// the first match wins.
type pattern struct {
	re      *regexp.Regexp
	extract func(m []string) (intent.Intent, bool)
}

func literal(expr string, cmd intent.Command) pattern {
	return pattern{
		re: regexp.MustCompile(expr),
		extract: func([]string) (intent.Intent, bool) {
			return intent.Intent{Command: cmd}, true
		},
	}
}

var grammar = []pattern{
	literal(`^help$`, intent.CommandHelp),
	literal(`^balance$`, intent.CommandBalance),
	literal(`^my\s+cards$`, intent.CommandMyCards),
	literal(`^submit\s+kyc$`, intent.CommandSubmitKYC),
	literal(`^setup\s+pin$`, intent.CommandSetupPIN),
	literal(`^create\s+card$`, intent.CommandCreateCard),
	{
		re: regexp.MustCompile(`^buy\s+(\d+)(?:\s+([a-zA-Z]+))?$`),
		extract: func(m []string) (intent.Intent, bool) {
			amount, ok := parseAmount(m[1])
			if !ok {
				return intent.Intent{}, false
			}
			return intent.Intent{
				Command: intent.CommandBuy,
				Amount:  amount,
				Token:   tokenOrDefault(m[2]),
			}, true
		},
	},
	{
		re: regexp.MustCompile(`^send\s+(\d+)(?:\s+([a-zA-Z]+))?\s+to\s+(\S+)$`),
		extract: func(m []string) (intent.Intent, bool) {
			amount, ok := parseAmount(m[1])
			if !ok {
				return intent.Intent{}, false
			}
			recipient, ok := classifyRecipient(m[3])
			if !ok {
				return intent.Intent{}, false
			}
			return intent.Intent{
				Command:   intent.CommandSend,
				Amount:    amount,
				Token:     tokenOrDefault(m[2]),
				Recipient: recipient,
			}, true
		},
	},
	{
		re: regexp.MustCompile(`^cash\s+out\s+(\d+)$`),
		extract: func(m []string) (intent.Intent, bool) {
			amount, ok := parseAmount(m[1])
			if !ok {
				return intent.Intent{}, false
			}
			return intent.Intent{Command: intent.CommandCashOut, Amount: amount, Token: DefaultToken}, true
		},
	},
	{
		re: regexp.MustCompile(`^add\s+bank\s+(\S+)\s+(\d+)\s+(.+)$`),
		extract: func(m []string) (intent.Intent, bool) {
			return intent.Intent{
				Command:     intent.CommandAddBank,
				BankName:    m[1],
				BankAccount: m[2],
				AccountName: strings.TrimSpace(m[3]),
			}, true
		},
	},
	{
		re: regexp.MustCompile(`^paid\s+(\d+)$`),
		extract: func(m []string) (intent.Intent, bool) {
			amount, ok := parseAmount(m[1])
			if !ok {
				return intent.Intent{}, false
			}
			return intent.Intent{Command: intent.CommandPaid, Amount: amount}, true
		},
	},
}

// Parse classifies text against the grammar. Unmatched text yields an
// INVALID intent rather than an error.
func Parse(text string) intent.Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.Join(strings.Fields(normalized), " ")
	if normalized == "" {
		return intent.Intent{Command: intent.CommandInvalid}
	}

	for _, p := range grammar {
		if m := p.re.FindStringSubmatch(normalized); m != nil {
			if parsed, ok := p.extract(m); ok {
				return parsed
			}
		}
	}
	return intent.Intent{Command: intent.CommandInvalid}
}

func parseAmount(raw string) (int64, bool) {
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}

func tokenOrDefault(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return DefaultToken
	}
	return strings.ToLower(token)
}

func classifyRecipient(raw string) (intent.Recipient, bool) {
	switch {
	case addressPattern.MatchString(raw):
		return intent.Recipient{Form: intent.RecipientAddress, Value: raw}, true
	case handlePattern.MatchString(raw):
		return intent.Recipient{Form: intent.RecipientNamed, Value: raw}, true
	default:
		return intent.Recipient{}, false
	}
}
