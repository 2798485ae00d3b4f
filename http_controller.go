package guestuser

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// ConvertControllerRoutes are the mounted paths.
type ConvertControllerRoutes struct {
	Convert        string
	ConvertSuccess string
}

// ConvertControllerViews are the template names rendered by the controller.
type ConvertControllerViews struct {
	Form    string
	Success string
}

// ConvertController drives the guest conversion flow. It is glue around the
// lifecycle manager: classification outcomes become redirects, conversion
// failures become form validation feedback.
type ConvertController struct {
	Debug   bool
	Logger  Logger
	Manager *GuestManager
	Auther  *GuestAuthenticator
	Config  *Config
	Routes  *ConvertControllerRoutes
	Views   *ConvertControllerViews
}

type ConvertControllerOption func(*ConvertController) *ConvertController

func WithConvertManager(manager *GuestManager) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.Manager = manager
		return c
	}
}

func WithConvertAuthenticator(auther *GuestAuthenticator) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.Auther = auther
		return c
	}
}

func WithConvertConfig(cfg *Config) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.Config = cfg
		return c
	}
}

func WithConvertLogger(logger Logger) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.Logger = logger
		return c
	}
}

func NewConvertController(opts ...ConvertControllerOption) *ConvertController {
	c := &ConvertController{
		Logger: defLogger{},
		Routes: &ConvertControllerRoutes{
			Convert:        "/convert",
			ConvertSuccess: "/convert/success",
		},
		Views: &ConvertControllerViews{
			Form:    "convert_form",
			Success: "convert_success",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing GuestManager in convert controller...")
	}

	if c.Auther == nil {
		panic("Missing GuestAuthenticator in convert controller...")
	}

	if c.Config == nil {
		panic("Missing Config in convert controller...")
	}

	return c
}

// RegisterConvertRoutes mounts the conversion endpoints on the router.
func RegisterConvertRoutes[T any](app router.Router[T], opts ...ConvertControllerOption) {
	controller := NewConvertController(opts...)

	app.
		Get(controller.Routes.Convert, controller.ConvertShow).
		SetName("guest.convert.get")

	app.
		Post(controller.Routes.Convert, controller.ConvertPost).
		SetName("guest.convert.post")

	app.
		Get(controller.Routes.ConvertSuccess, controller.ConvertSuccess).
		SetName("guest.convert-success.get")
}

// ConvertPayload is the conversion form.
type ConvertPayload struct {
	Username        string `form:"username" json:"username"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	Next            string `form:"next" json:"next"`
}

// Validate will run validation rules
func (r ConvertPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, DefaultUsernameMaxLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(validateStringEquals(r.Password)),
		),
	)
}

func validateStringEquals(expected string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return fmt.Errorf("passwords do not match")
		}
		return nil
	}
}

func (a *ConvertController) ConvertShow(ctx router.Context) error {
	user, redirected, err := a.requireGuest(ctx)
	if err != nil || redirected {
		return err
	}

	record := &ConvertPayload{}
	if a.Config.ConvertPrefillUsername {
		record.Username = user.Username
	}

	return ctx.Render(a.Views.Form, router.ViewContext{
		"record":                   record,
		"errors":                   nil,
		a.Config.RedirectParamName: a.safeNext(ctx, ctx.Query(a.Config.RedirectParamName, "")),
	})
}

func (a *ConvertController) ConvertPost(ctx router.Context) error {
	user, redirected, err := a.requireGuest(ctx)
	if err != nil || redirected {
		return err
	}

	payload := new(ConvertPayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("convert guest parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Form, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("convert guest validate payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Form, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrors(err),
		})
	}

	_, err = a.Manager.Convert(ctx.Context(), user, Credentials{
		Username: payload.Username,
		Password: payload.Password,
	})

	switch {
	case err == nil:
		if err := a.Auther.Login(ctx, payload.Username, payload.Password); err != nil {
			a.Logger.Error("post-conversion login failed: ", "error", err)
			return err
		}
	case IsNotGuest(err):
		// already converted, proceed to the redirect
		a.Logger.Info("convert called on a non guest, skipping", "username", user.Username)
	case IsUsernameTaken(err):
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Username is already taken",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Form, router.ViewContext{
			"record":     payload,
			"validation": map[string]string{"username": "This username is already taken."},
		})
	default:
		a.Logger.Error("convert guest error: ", "error", err)
		return err
	}

	redirect := a.safeNext(ctx, payload.Next)
	if redirect == "" {
		redirect = a.Config.ConvertSuccessURL
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your account is now permanent",
	}).Redirect(redirect, fiber.StatusSeeOther)
}

func (a *ConvertController) ConvertSuccess(ctx router.Context) error {
	return ctx.Render(a.Views.Success, router.ViewContext{})
}

// requireGuest redirects anonymous callers to the login page and already
// registered callers to the post-login target. The bool reports whether a
// redirect was written.
func (a *ConvertController) requireGuest(ctx router.Context) (*User, bool, error) {
	user, _, err := a.Auther.CurrentUser(ctx)
	if err != nil {
		return nil, false, err
	}

	if user == nil {
		return nil, true, ctx.Redirect(a.Config.LoginURL, router.StatusSeeOther)
	}

	isGuest, err := a.Manager.IsGuest(ctx.Context(), user)
	if err != nil {
		return nil, false, err
	}
	if !isGuest {
		return nil, true, ctx.Redirect(a.Config.LoginRedirectURL, router.StatusSeeOther)
	}

	return user, false, nil
}

func (a *ConvertController) safeNext(ctx router.Context, target string) string {
	return SafeNextURL(target, requestHost(ctx), requestScheme(ctx), a.Config.AllowedHosts)
}

// FormatValidationErrors flattens ozzo validation errors into a
// field-to-message map for form feedback.
func FormatValidationErrors(err error) map[string]string {
	out := map[string]string{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}
	if err != nil {
		out["form"] = err.Error()
	}
	return out
}
