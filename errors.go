package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// TextCodes identify failure kinds so callers can branch on behavior
// instead of comparing error strings.
const (
	TextCodeIdentifierInUse     = "IDENTIFIER_IN_USE"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeSessionNotFound     = "SESSION_NOT_FOUND"
	TextCodeSessionRevoked      = "SESSION_REVOKED"
	TextCodeSessionExpired      = "SESSION_EXPIRED"
	TextCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	TextCodeTokenExpired        = "ACCESS_TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "INVALID_TOKEN"
	TextCodeInvalidResetToken   = "INVALID_OR_EXPIRED_RESET_TOKEN"
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodePolicyEvaluation    = "POLICY_EVALUATION_FAILURE"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
)

// ErrIdentifierInUse is returned when registering an identifier that already
// resolves to an existing user.
var ErrIdentifierInUse = goerrors.New("identifier already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeIdentifierInUse).
	WithCode(goerrors.CodeConflict)

// ErrUserNotFound is returned when a user id does not resolve to a user.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrSessionNotFound is returned when a session id does not resolve to a session.
var ErrSessionNotFound = goerrors.New("session not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrSessionRevoked is returned for any operation against a revoked session.
// It takes precedence over a refresh token mismatch so operators can tell
// "stolen/rotated token" apart from "token theft on a revoked session".
var ErrSessionRevoked = goerrors.New("session has been revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionRevoked).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired is returned when a session is past its expiry.
var ErrSessionExpired = goerrors.New("session has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidRefreshToken is returned when the presented refresh token does
// not match the session's current hash, including replay of a rotated-out token.
var ErrInvalidRefreshToken = goerrors.New("invalid refresh token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefreshToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when an access token is past its expiry but
// otherwise well formed. Callers may want to trigger a silent refresh.
var ErrTokenExpired = goerrors.New("access token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when an access token fails signature or
// format checks.
var ErrTokenMalformed = goerrors.New("invalid access token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidResetToken is returned when a reset token is missing, already
// used, or past expiry. Callers get no hint which.
var ErrInvalidResetToken = goerrors.New("invalid or expired reset token", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidResetToken).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is the uniform login failure. Login never reveals
// whether the identifier exists or which check failed.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrPolicyEvaluation wraps a policy resolver failure. It must propagate as
// an internal error, never as a silent deny.
var ErrPolicyEvaluation = goerrors.New("policy evaluation failed", goerrors.CategoryInternal).
	WithTextCode(TextCodePolicyEvaluation).
	WithCode(goerrors.CodeInternal)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch signal.
// It never crosses the engine boundary; Login maps it to ErrInvalidCredentials.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsIdentifierInUseError reports whether err is the duplicate identifier failure.
func IsIdentifierInUseError(err error) bool {
	return hasTextCode(err, TextCodeIdentifierInUse)
}

// IsTokenExpiredError will check for expired access tokens.
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedTokenError will check for signature or format failures.
func IsMalformedTokenError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

// IsSessionRevokedError reports whether err is the revoked session failure.
func IsSessionRevokedError(err error) bool {
	return hasTextCode(err, TextCodeSessionRevoked)
}

// IsSessionExpiredError reports whether err is the expired session failure.
func IsSessionExpiredError(err error) bool {
	return hasTextCode(err, TextCodeSessionExpired)
}

// IsInvalidRefreshTokenError reports whether err is a refresh token mismatch.
func IsInvalidRefreshTokenError(err error) bool {
	return hasTextCode(err, TextCodeInvalidRefreshToken)
}

// IsInvalidResetTokenError reports whether err is the unusable reset token failure.
func IsInvalidResetTokenError(err error) bool {
	return hasTextCode(err, TextCodeInvalidResetToken)
}

// IsInvalidCredentialsError reports whether err is the uniform login failure.
func IsInvalidCredentialsError(err error) bool {
	return hasTextCode(err, TextCodeInvalidCreds)
}
