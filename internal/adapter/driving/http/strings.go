package httphandler

import "github.com/ericfisherdev/petlink/internal/domain/model"

// English text for the codes flows return. Clients that localize can key off
// the codes instead.
var (
	errorMessages = map[string]string{
		model.ErrorInvalidAuth: "Invalid authentication",
		model.ErrorUnknown:     "Unexpected error",
		model.ErrorRequired:    "This field is required",
	}
	abortMessages = map[string]string{
		model.AbortAlreadyConfigured: "Account is already configured",
		model.AbortReauthSuccessful:  "Re-authentication was successful",
	}
)

func errorMessage(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return code
}

func abortMessage(reason string) string {
	if msg, ok := abortMessages[reason]; ok {
		return msg
	}
	return reason
}
