package auth

// Codes accepted by the auth error page. The first three are shared with
// the login form, OAuthAccountNotLinked is kept for links minted by older
// portal builds.
const (
	ErrorPageCredentialsSignin     = TextCodeInvalidCreds
	ErrorPageOAuthAccountNotLinked = "OAuthAccountNotLinked"
	ErrorPageAccessDenied          = TextCodeAccessDenied
)

const fallbackErrorMessage = "Unable to sign in. Please try again."

var errorPageMessages = map[string]string{
	ErrorPageCredentialsSignin:     "Sign in failed. Check the details you provided are correct.",
	ErrorPageOAuthAccountNotLinked: "To confirm your identity, sign in with the same account you used originally.",
	ErrorPageAccessDenied:          "You do not have permission to sign in right now.",
}

// ErrorMessage returns the user facing message for an error page code.
// Unknown codes get a generic message so internals never reach the page.
func ErrorMessage(code string) string {
	if msg, ok := errorPageMessages[code]; ok {
		return msg
	}
	return fallbackErrorMessage
}
