package flow

import (
	"errors"
	"fmt"

	"github.com/matthewjhunter/quill/internal/ai"
	"github.com/matthewjhunter/quill/internal/ingest"
)

// PreconditionError means an action is not allowed yet, e.g. no channel is
// selected or the channel has too few example posts. The session is left
// unchanged.
type PreconditionError struct {
	Reason string
	Have   int
	Need   int
}

func (e *PreconditionError) Error() string {
	if e.Need > 0 {
		return fmt.Sprintf("%s (have %d, need %d)", e.Reason, e.Have, e.Need)
	}
	return e.Reason
}

// NotFoundError means a channel or option the user referred to does not exist
// among the things they own.
type NotFoundError struct {
	What string
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return e.What + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.What, e.Name)
}

// UserMessage renders a domain error for the end user. It returns false for
// errors that are not user-recoverable; callers log those and send a generic
// failure text.
func UserMessage(err error) (string, bool) {
	var (
		precondition *PreconditionError
		notFound     *NotFoundError
		provider     *ai.ProviderError
		unsupported  *ingest.UnsupportedInputError
	)
	switch {
	case errors.As(err, &precondition):
		if precondition.Need > 0 {
			return fmt.Sprintf("⚠️ %s: the channel has %d example posts, at least %d are needed. Add more with /addposts.",
				precondition.Reason, precondition.Have, precondition.Need), true
		}
		return "⚠️ " + precondition.Reason + ".", true
	case errors.As(err, &notFound):
		if notFound.Name != "" {
			return fmt.Sprintf("❌ No %s named %q. Try again.", notFound.What, notFound.Name), true
		}
		return fmt.Sprintf("❌ That %s no longer exists.", notFound.What), true
	case errors.As(err, &provider):
		return "❌ The text generator failed: " + provider.Error() + ". Try again.", true
	case errors.As(err, &unsupported):
		return fmt.Sprintf("⚠️ %s is not supported. Send a .csv, .txt or RSS/Atom file.", unsupported.Name), true
	}
	return "", false
}

// GenericFailure is sent for errors UserMessage does not recognize.
const GenericFailure = "❌ Something went wrong. Please try again later."
