package events

import "fmt"

const maxErrorLength = 2000

// Validate checks that a decoded event is well formed.
func Validate(event Event) error {
	switch event.Type {
	case TypeGenerated, TypeCreditDebitFailed:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	if event.UserID == "" {
		return fmt.Errorf("uid is required")
	}
	if event.OccurredAt <= 0 {
		return fmt.Errorf("t must be set")
	}
	if event.Type == TypeCreditDebitFailed && event.Amount <= 0 {
		return fmt.Errorf("amt must be positive for %s", TypeCreditDebitFailed)
	}
	if len(event.Error) > maxErrorLength {
		return fmt.Errorf("err too long")
	}
	return nil
}
