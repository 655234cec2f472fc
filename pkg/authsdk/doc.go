/*
Package authsdk is a client for the tally authentication service and the
home of its JSON wire types, which the service's HTTP handlers share.

Sign in with a password and, when the account has MFA enabled, answer the
challenge with an authenticator code:

	client := authsdk.NewClient("https://auth.example.com")

	login, err := client.Login(ctx, "alice@example.com", password)
	if err != nil {
		return err
	}
	if login.Tokens == nil {
		login, err = client.VerifyMFA(ctx, login.ChallengeID, authsdk.MFAMethodTOTP, code)
		if err != nil {
			return err
		}
	}

	me, err := client.Me(ctx, login.Tokens.AccessToken)

Refresh tokens rotate: every call to Refresh revokes the presented token and
returns a new pair, so callers must store the new refresh token.

	pair, err := client.Refresh(ctx, login.Tokens.RefreshToken)

# Errors

Every non-2xx response is returned as an *APIError carrying the HTTP status
and the service's error code:

	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeMFAChallengeExpired {
		// start again from Login
	}

Expiry timestamps in responses are Unix epoch milliseconds.
*/
package authsdk
