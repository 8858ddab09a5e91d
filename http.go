package auth

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// PrincipalLocalsKey is where Protected stores the Principal in the router
// context.
const PrincipalLocalsKey = "principal"

// MinPasswordLength applies to registration and password reset payloads.
const MinPasswordLength = 8

// APIControllerRoutes holds the route paths the controller registers.
type APIControllerRoutes struct {
	Register       string
	Login          string
	Refresh        string
	Logout         string
	PasswordForgot string
	PasswordReset  string
}

// APIController exposes the engine over JSON endpoints. It is deliberately
// thin; every decision lives in the engine.
type APIController struct {
	Debug        bool
	Logger       Logger
	Engine       *Engine
	Routes       *APIControllerRoutes
	ErrorHandler router.ErrorHandler
}

// APIControllerOption configures the controller.
type APIControllerOption func(*APIController) *APIController

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) APIControllerOption {
	return func(c *APIController) *APIController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug enables request/response dumps.
func WithControllerDebug(debug bool) APIControllerOption {
	return func(c *APIController) *APIController {
		c.Debug = debug
		return c
	}
}

// WithControllerRoutes overrides the default route paths.
func WithControllerRoutes(routes *APIControllerRoutes) APIControllerOption {
	return func(c *APIController) *APIController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// NewAPIController builds a controller over the engine.
func NewAPIController(engine *Engine, opts ...APIControllerOption) *APIController {
	c := &APIController{
		Engine: engine,
		Logger: defLogger{},
		Routes: &APIControllerRoutes{
			Register:       "/auth/register",
			Login:          "/auth/login",
			Refresh:        "/auth/refresh",
			Logout:         "/auth/logout",
			PasswordForgot: "/auth/password/forgot",
			PasswordReset:  "/auth/password/reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Engine == nil {
		panic("Missing Engine in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.defaultErrHandler
	}

	return c
}

// RegisterAPIRoutes mounts the controller routes on the router.
func RegisterAPIRoutes[T any](app router.Router[T], controller *APIController) {
	app.Post(controller.Routes.Register, controller.RegisterPost).SetName("auth.register")
	app.Post(controller.Routes.Login, controller.LoginPost).SetName("auth.login")
	app.Post(controller.Routes.Refresh, controller.RefreshPost).SetName("auth.refresh")
	app.Post(controller.Routes.Logout, controller.LogoutPost).SetName("auth.logout")
	app.Post(controller.Routes.PasswordForgot, controller.PasswordForgotPost).SetName("auth.pwd-forgot")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).SetName("auth.pwd-reset")
}

// RegisterPayload is the registration body.
type RegisterPayload struct {
	Identifier string         `form:"identifier" json:"identifier"`
	Password   string         `form:"password" json:"password"`
	Metadata   map[string]any `form:"-" json:"metadata"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(3, 254)),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 100)),
	)
}

func (a *APIController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	user, err := a.Engine.Register(ctx.Context(), payload.Identifier, payload.Password, payload.Metadata)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, user)
}

// LoginPayload is the login body.
type LoginPayload struct {
	Identifier string         `form:"identifier" json:"identifier"`
	Password   string         `form:"password" json:"password"`
	DeviceInfo map[string]any `form:"-" json:"device_info"`
	TenantID   string         `form:"tenant_id" json:"tenant_id"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *APIController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(map[string]any{
			"identifier": payload.Identifier,
			"tenant_id":  payload.TenantID,
		}))
		fmt.Println("=========================")
	}

	pair, err := a.Engine.Login(ctx.Context(), LoginRequest{
		Identifier: payload.Identifier,
		Password:   payload.Password,
		DeviceInfo: payload.DeviceInfo,
		IPAddress:  ctx.GetString(fiber.HeaderXForwardedFor, ""),
		TenantID:   payload.TenantID,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

// RefreshPayload is the token refresh body.
type RefreshPayload struct {
	SessionID    string `form:"session_id" json:"session_id"`
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionID, validation.Required, is.UUIDv4),
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (a *APIController) RefreshPost(ctx router.Context) error {
	payload := new(RefreshPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		return a.ErrorHandler(ctx, ErrInvalidRefreshToken)
	}

	pair, err := a.Engine.Refresh(ctx.Context(), sessionID, payload.RefreshToken, nil)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

// LogoutPayload identifies the session to revoke.
type LogoutPayload struct {
	SessionID string `form:"session_id" json:"session_id"`
}

// Validate will run validation rules
func (r LogoutPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionID, validation.Required, is.UUIDv4),
	)
}

func (a *APIController) LogoutPost(ctx router.Context) error {
	payload := new(LogoutPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		return a.validationError(ctx, err)
	}

	if err := a.Engine.Logout(ctx.Context(), sessionID); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"ok": true})
}

// PasswordForgotPayload starts the reset flow.
type PasswordForgotPayload struct {
	Identifier string `form:"identifier" json:"identifier"`
}

// Validate will run validation rules
func (r PasswordForgotPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
	)
}

// PasswordForgotPost always answers 202: the response never reveals whether
// the identifier exists. The raw token travels through the subscribed
// delivery channel, not the response body.
func (a *APIController) PasswordForgotPost(ctx router.Context) error {
	payload := new(PasswordForgotPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	if _, err := a.Engine.RequestPasswordReset(ctx.Context(), payload.Identifier); err != nil {
		a.Logger.Error("password reset request failed", "error", err)
	}

	return ctx.JSON(fiber.StatusAccepted, map[string]bool{"ok": true})
}

// PasswordResetPayload redeems a reset token.
type PasswordResetPayload struct {
	Token    string `form:"token" json:"token"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r PasswordResetPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 100)),
	)
}

func (a *APIController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	if err := a.Engine.ResetPassword(ctx.Context(), payload.Token, payload.Password); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"ok": true})
}

// Protected authenticates the bearer token and stores the Principal in the
// router locals and the request context.
func (a *APIController) Protected() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			token := bearerToken(ctx)
			if token == "" {
				return a.ErrorHandler(ctx, ErrTokenMalformed)
			}

			principal, err := a.Engine.Authenticate(ctx.Context(), token, nil)
			if err != nil {
				return a.ErrorHandler(ctx, err)
			}

			ctx.Locals(PrincipalLocalsKey, principal)
			ctx.SetContext(WithPrincipal(ctx.Context(), principal))

			return hf(ctx)
		}
	}
}

// RequirePolicy gates the route on a named policy; run it after Protected.
func (a *APIController) RequirePolicy(policy string) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			principal, ok := RouterPrincipal(ctx, "")
			if !ok {
				return a.ErrorHandler(ctx, ErrTokenMalformed)
			}

			allowed, err := a.Engine.Authorize(ctx.Context(), principal, policy)
			if err != nil {
				return a.ErrorHandler(ctx, err)
			}

			if !allowed {
				return ctx.JSON(router.StatusForbidden, map[string]string{
					"error": "forbidden",
				})
			}

			return hf(ctx)
		}
	}
}

func bearerToken(ctx router.Context) string {
	header := ctx.GetString(router.HeaderAuthorization, "")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func (a *APIController) validationError(ctx router.Context, err error) error {
	return ctx.JSON(fiber.StatusBadRequest, map[string]any{
		"error":      "validation failed",
		"validation": FormatValidationErrorToMap(err),
	})
}

func (a *APIController) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Info(
		"Request error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"text_code", richErr.TextCode,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	status := statusForError(richErr)

	return c.JSON(status, map[string]any{
		"error": richErr.Message,
		"code":  richErr.TextCode,
	})
}

func statusForError(err *goerrors.Error) int {
	switch err.Category {
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		if err.Code > 0 {
			return err.Code
		}
		return fiber.StatusInternalServerError
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
