package guestuser_test

import (
	"context"
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	guestuser "github.com/julianwachholz/go-guest-user"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestConvertController(t *testing.T, cfg *guestuser.Config) (guestuser.RepositoryManager, *guestuser.GuestManager, *guestuser.ConvertController, func()) {
	t.Helper()

	_, repo, manager, gate, cleanup := newTestGate(t, cfg)

	controller := guestuser.NewConvertController(
		guestuser.WithConvertManager(manager),
		guestuser.WithConvertAuthenticator(gate.Auth),
		guestuser.WithConvertConfig(cfg),
		guestuser.WithConvertLogger(testLogger{}),
	)

	return repo, manager, controller, cleanup
}

func TestConvertPayloadValidate(t *testing.T) {
	valid := guestuser.ConvertPayload{
		Username:        "alice",
		Password:        "s3cret!pass",
		ConfirmPassword: "s3cret!pass",
	}

	tests := []struct {
		name    string
		mutate  func(p *guestuser.ConvertPayload)
		wantKey string
	}{
		{name: "valid", mutate: func(p *guestuser.ConvertPayload) {}},
		{
			name:    "username required",
			mutate:  func(p *guestuser.ConvertPayload) { p.Username = "" },
			wantKey: "username",
		},
		{
			name:    "username too short",
			mutate:  func(p *guestuser.ConvertPayload) { p.Username = "ab" },
			wantKey: "username",
		},
		{
			name:    "password too short",
			mutate:  func(p *guestuser.ConvertPayload) { p.Password = "short"; p.ConfirmPassword = "short" },
			wantKey: "password",
		},
		{
			name:    "confirmation mismatch",
			mutate:  func(p *guestuser.ConvertPayload) { p.ConfirmPassword = "different-pass" },
			wantKey: "confirm_password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := valid
			tt.mutate(&payload)

			err := payload.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			verrs, ok := err.(validation.Errors)
			require.True(t, ok)
			assert.Contains(t, verrs, tt.wantKey)
		})
	}
}

func TestFormatValidationErrors(t *testing.T) {
	verrs := validation.Errors{
		"username": errors.New("the length must be between 3 and 150"),
	}
	out := guestuser.FormatValidationErrors(verrs)
	assert.Equal(t, "the length must be between 3 and 150", out["username"])

	out = guestuser.FormatValidationErrors(errors.New("boom"))
	assert.Equal(t, "boom", out["form"])
}

func TestConvertShowRendersForm(t *testing.T) {
	cfg := testConfig(t)
	_, manager, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	ctx := context.Background()
	guest, err := manager.CreateGuestUser(ctx, nil)
	require.NoError(t, err)

	mc := new(MockContext)
	mc.SetContext(guestuser.WithAuthMethod(guestuser.WithUser(ctx, guest), guestuser.AuthMethodGuest))
	mc.On("Query", cfg.RedirectParamName, "").Return("/account/")
	mc.On("Header", "Host").Return("example.com")
	mc.On("Header", "X-Forwarded-Proto").Return("")
	mc.On("Header", "X-Scheme").Return("")
	mc.On("Render", controller.Views.Form, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		vc, ok := args.Get(1).(router.ViewContext)
		require.True(t, ok)

		record, ok := vc["record"].(*guestuser.ConvertPayload)
		require.True(t, ok)
		// prefill is off by default
		assert.Empty(t, record.Username)
		assert.Equal(t, "/account/", vc[cfg.RedirectParamName])
	})

	require.NoError(t, controller.ConvertShow(mc))
	mc.AssertExpectations(t)
}

func TestConvertShowPrefillsUsername(t *testing.T) {
	cfg := testConfig(t)
	cfg.ConvertPrefillUsername = true
	_, manager, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	ctx := context.Background()
	guest, err := manager.CreateGuestUser(ctx, nil)
	require.NoError(t, err)

	mc := new(MockContext)
	mc.SetContext(guestuser.WithAuthMethod(guestuser.WithUser(ctx, guest), guestuser.AuthMethodGuest))
	mc.On("Query", cfg.RedirectParamName, "").Return("")
	mc.On("Header", "Host").Return("example.com")
	mc.On("Header", "X-Forwarded-Proto").Return("")
	mc.On("Header", "X-Scheme").Return("")
	mc.On("Render", controller.Views.Form, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		vc := args.Get(1).(router.ViewContext)
		record := vc["record"].(*guestuser.ConvertPayload)
		assert.Equal(t, guest.Username, record.Username)
	})

	require.NoError(t, controller.ConvertShow(mc))
	mc.AssertExpectations(t)
}

func TestConvertShowDiscardsUnsafeNext(t *testing.T) {
	cfg := testConfig(t)
	_, manager, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	ctx := context.Background()
	guest, err := manager.CreateGuestUser(ctx, nil)
	require.NoError(t, err)

	mc := new(MockContext)
	mc.SetContext(guestuser.WithAuthMethod(guestuser.WithUser(ctx, guest), guestuser.AuthMethodGuest))
	mc.On("Query", cfg.RedirectParamName, "").Return("https://evil.example.org/phish")
	mc.On("Header", "Host").Return("example.com")
	mc.On("Header", "X-Forwarded-Proto").Return("")
	mc.On("Header", "X-Scheme").Return("")
	mc.On("Render", controller.Views.Form, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		vc := args.Get(1).(router.ViewContext)
		assert.Equal(t, "", vc[cfg.RedirectParamName])
	})

	require.NoError(t, controller.ConvertShow(mc))
	mc.AssertExpectations(t)
}

func TestConvertShowAnonymousRedirectsToLogin(t *testing.T) {
	cfg := testConfig(t)
	_, _, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	mc := new(MockContext)
	mc.On("Cookies", cfg.CookieName).Return("")
	mc.On("Redirect", cfg.LoginURL, []int{router.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.ConvertShow(mc))
	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestConvertShowRegisteredRedirectsHome(t *testing.T) {
	cfg := testConfig(t)
	repo, _, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	ctx := context.Background()
	registered, err := repo.Users().Create(ctx, &guestuser.User{Username: "registered_user", PasswordHash: "hash"})
	require.NoError(t, err)

	mc := new(MockContext)
	mc.SetContext(guestuser.WithAuthMethod(guestuser.WithUser(ctx, registered), guestuser.AuthMethodStandard))
	mc.On("Redirect", cfg.LoginRedirectURL, []int{router.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.ConvertShow(mc))
	mc.AssertExpectations(t)
}

func TestConvertSuccessRenders(t *testing.T) {
	cfg := testConfig(t)
	_, _, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	mc := new(MockContext)
	mc.On("Render", controller.Views.Success, mock.Anything).Return(nil)

	require.NoError(t, controller.ConvertSuccess(mc))
	mc.AssertExpectations(t)
}

func TestConvertPostConvertsAndRedirects(t *testing.T) {
	cfg := testConfig(t)
	_, manager, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	ctx := context.Background()
	guest, err := manager.CreateGuestUser(ctx, nil)
	require.NoError(t, err)

	payload := guestuser.ConvertPayload{
		Username:        "alice",
		Password:        "s3cret!pass",
		ConfirmPassword: "s3cret!pass",
		Next:            "/account/",
	}

	var cookies []*router.Cookie
	mc := new(MockContext)
	mc.SetContext(guestuser.WithAuthMethod(guestuser.WithUser(ctx, guest), guestuser.AuthMethodGuest))
	mc.On("Bind", mock.AnythingOfType("*guestuser.ConvertPayload")).Return(nil).Run(func(args mock.Arguments) {
		*args.Get(0).(*guestuser.ConvertPayload) = payload
	})
	mc.On("Header", "Host").Return("example.com")
	mc.On("Header", "X-Forwarded-Proto").Return("")
	mc.On("Header", "X-Scheme").Return("")
	mc.On("Locals", mock.Anything).Return(nil)
	mc.On("Locals", mock.Anything, mock.Anything).Return(nil)
	mc.On("Cookie", mock.AnythingOfType("*router.Cookie")).Run(func(args mock.Arguments) {
		cookies = append(cookies, args.Get(0).(*router.Cookie))
	}).Return()
	mc.On("Redirect", "/account/", []int{router.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.ConvertPost(mc))
	mc.AssertExpectations(t)

	// the marker is gone and the session was upgraded to a standard login
	isGuest, err := manager.IsGuest(ctx, guest)
	require.NoError(t, err)
	assert.False(t, isGuest)
	assert.Equal(t, guestuser.AuthMethodStandard, guestuser.AuthMethodFromContext(mc.Context()))

	var session *router.Cookie
	for _, cookie := range cookies {
		if cookie.Name == cfg.CookieName {
			session = cookie
		}
	}
	require.NotNil(t, session)
	assert.NotEmpty(t, session.Value)
}

func TestConvertPostBindFailureRendersForm(t *testing.T) {
	cfg := testConfig(t)
	_, manager, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	ctx := context.Background()
	guest, err := manager.CreateGuestUser(ctx, nil)
	require.NoError(t, err)

	mc := new(MockContext)
	mc.SetContext(guestuser.WithAuthMethod(guestuser.WithUser(ctx, guest), guestuser.AuthMethodGuest))
	mc.On("Bind", mock.AnythingOfType("*guestuser.ConvertPayload")).Return(errors.New("malformed body"))
	mc.On("Locals", mock.Anything).Return(nil)
	mc.On("Locals", mock.Anything, mock.Anything).Return(nil)
	mc.On("Cookie", mock.AnythingOfType("*router.Cookie")).Return()
	mc.On("Status", router.StatusBadRequest)
	mc.On("Render", controller.Views.Form, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		vc := args.Get(1).(router.ViewContext)
		formErrors := vc["errors"].(map[string]string)
		assert.Equal(t, "Failed to parse form", formErrors["form"])
	})

	require.NoError(t, controller.ConvertPost(mc))
	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)

	// the failed submission leaves the guest untouched
	isGuest, err := manager.IsGuest(ctx, guest)
	require.NoError(t, err)
	assert.True(t, isGuest)
}

func TestConvertPostUsernameTakenShowsFieldError(t *testing.T) {
	cfg := testConfig(t)
	repo, manager, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	ctx := context.Background()
	_, err := repo.Users().Create(ctx, &guestuser.User{Username: "alice", PasswordHash: "hash"})
	require.NoError(t, err)

	guest, err := manager.CreateGuestUser(ctx, nil)
	require.NoError(t, err)

	payload := guestuser.ConvertPayload{
		Username:        "alice",
		Password:        "s3cret!pass",
		ConfirmPassword: "s3cret!pass",
	}

	mc := new(MockContext)
	mc.SetContext(guestuser.WithAuthMethod(guestuser.WithUser(ctx, guest), guestuser.AuthMethodGuest))
	mc.On("Bind", mock.AnythingOfType("*guestuser.ConvertPayload")).Return(nil).Run(func(args mock.Arguments) {
		*args.Get(0).(*guestuser.ConvertPayload) = payload
	})
	mc.On("Locals", mock.Anything).Return(nil)
	mc.On("Locals", mock.Anything, mock.Anything).Return(nil)
	mc.On("Cookie", mock.AnythingOfType("*router.Cookie")).Return()
	mc.On("Status", router.StatusBadRequest)
	mc.On("Render", controller.Views.Form, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		vc := args.Get(1).(router.ViewContext)
		fieldErrors := vc["validation"].(map[string]string)
		assert.Equal(t, "This username is already taken.", fieldErrors["username"])

		record := vc["record"].(*guestuser.ConvertPayload)
		assert.Equal(t, "alice", record.Username)
	})

	require.NoError(t, controller.ConvertPost(mc))
	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)

	isGuest, err := manager.IsGuest(ctx, guest)
	require.NoError(t, err)
	assert.True(t, isGuest)
}

func TestConvertPostAlreadyConvertedStillRedirects(t *testing.T) {
	cfg := testConfig(t)
	repo, manager, controller, cleanup := newTestConvertController(t, cfg)
	defer cleanup()

	ctx := context.Background()
	guest, err := manager.CreateGuestUser(ctx, nil)
	require.NoError(t, err)

	// another request converted this guest already; the session context
	// still flags it as one
	_, err = manager.Convert(ctx, guest, guestuser.Credentials{Username: "early_bird", Password: "s3cret!pass"})
	require.NoError(t, err)

	payload := guestuser.ConvertPayload{
		Username:        "late_arrival",
		Password:        "other!password",
		ConfirmPassword: "other!password",
	}

	mc := new(MockContext)
	mc.SetContext(guestuser.WithAuthMethod(guestuser.WithUser(ctx, guest), guestuser.AuthMethodGuest))
	mc.On("Bind", mock.AnythingOfType("*guestuser.ConvertPayload")).Return(nil).Run(func(args mock.Arguments) {
		*args.Get(0).(*guestuser.ConvertPayload) = payload
	})
	mc.On("Header", "Host").Return("example.com")
	mc.On("Header", "X-Forwarded-Proto").Return("")
	mc.On("Header", "X-Scheme").Return("")
	mc.On("Locals", mock.Anything).Return(nil)
	mc.On("Locals", mock.Anything, mock.Anything).Return(nil)
	mc.On("Cookie", mock.AnythingOfType("*router.Cookie")).Return()
	mc.On("Redirect", cfg.ConvertSuccessURL, []int{router.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.ConvertPost(mc))
	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)

	// the earlier conversion wins, the late credentials are not applied
	kept, err := repo.Users().GetByUserID(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, "early_bird", kept.Username)
}

func TestNewConvertControllerRequiresDependencies(t *testing.T) {
	assert.Panics(t, func() {
		guestuser.NewConvertController()
	})
}
