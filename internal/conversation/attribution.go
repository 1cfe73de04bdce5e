package conversation

import "strings"

// Origin says who authored a message.
type Origin string

const (
	OriginSelf         Origin = "self"
	OriginCounterparty Origin = "counterparty"
)

// Classify attributes a message by display name. The message is from the
// counterparty only when its trimmed sender name equals the trimmed
// counterparty name; everything else, including an empty counterparty
// name, is attributed to self.
func Classify(sender, counterparty string) Origin {
	counterparty = strings.TrimSpace(counterparty)
	if counterparty == "" {
		return OriginSelf
	}
	if strings.TrimSpace(sender) == counterparty {
		return OriginCounterparty
	}
	return OriginSelf
}
