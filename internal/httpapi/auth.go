package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/riftctl/rift/internal/auth"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
)

// Auth backs POST /auth. LocalUserRegistration, when false, rejects
// CreateLocalUser (an operator can run a closed instance after bootstrap).
type Auth struct {
	Records              *store.Records
	Jwt                  *auth.JwtIssuer
	Exchange             *auth.ExchangeBroker
	Clock                func() time.Time
	LocalUserRegistration bool
}

func NewAuth(records *store.Records, jwt *auth.JwtIssuer, exchange *auth.ExchangeBroker) *Auth {
	return &Auth{
		Records: records, Jwt: jwt, Exchange: exchange,
		Clock: time.Now, LocalUserRegistration: true,
	}
}

type ctxKey int

const userCtxKey ctxKey = 0

func userFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userCtxKey).(models.User)
	return u, ok
}

// ContextWithUser attaches an authenticated user to ctx the same way
// Middleware does. Exported for tests that exercise a handler directly
// without routing a request through Middleware first.
func ContextWithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

// Middleware resolves the Bearer JWT on every request and, on success,
// attaches the authenticated user to the request context. It never
// rejects a missing/invalid token itself — each handler decides whether
// auth is required (GetLoginOptions/CreateLocalUser/LoginLocalUser/
// ExchangeForJwt don't need it; everything else does).
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			next.ServeHTTP(w, r)
			return
		}
		userId, err := a.Jwt.Verify(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		user, err := a.Records.GetUser(userId)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser is the guard every protected handler calls first.
func RequireUser(r *http.Request) (models.User, error) {
	u, ok := userFromContext(r.Context())
	if !ok {
		return models.User{}, rifterr.New(rifterr.KindAuthMissing, "missing or invalid bearer token")
	}
	if !u.Enabled {
		return models.User{}, rifterr.New(rifterr.KindAuthInvalid, "user %q is disabled", u.Username)
	}
	return u, nil
}

func (a *Auth) Handle(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var (
		resp interface{}
		err  error
	)
	switch req.Type {
	case models.AuthGetLoginOptions:
		resp, err = a.getLoginOptions()
	case models.AuthCreateLocalUser:
		resp, err = a.createLocalUser(req.Params.(*models.ParamsCreateLocalUser))
	case models.AuthLoginLocalUser:
		resp, err = a.loginLocalUser(req.Params.(*models.ParamsLoginLocalUser))
	case models.AuthExchangeForJwt:
		resp, err = a.exchangeForJwt(req.Params.(*models.ParamsExchangeForJwt))
	case models.AuthGetUser:
		resp, err = a.getUser(r)
	default:
		err = rifterr.New(rifterr.KindInvalidConfig, "unknown auth request type %q", req.Type)
	}

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Auth) getLoginOptions() (models.LoginOptions, error) {
	return models.LoginOptions{Local: true, RegistrationEnabled: a.LocalUserRegistration}, nil
}

func (a *Auth) createLocalUser(p *models.ParamsCreateLocalUser) (models.User, error) {
	if !a.LocalUserRegistration {
		return models.User{}, rifterr.New(rifterr.KindPermissionDenied, "local user registration is disabled")
	}
	if p.Username == "" || p.Password == "" {
		return models.User{}, rifterr.New(rifterr.KindInvalidConfig, "username and password are required")
	}
	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return models.User{}, rifterr.Wrap(rifterr.KindInternal, err, "hashing password")
	}
	first, err := a.isFirstUser()
	if err != nil {
		return models.User{}, err
	}
	u := models.User{
		Username:   p.Username,
		Enabled:    true,
		Admin:      first,
		SuperAdmin: first,
		Credential: models.UserVariant{Local: &models.LocalCredential{PasswordHash: hash}},
	}
	return a.Records.CreateUser(u)
}

func (a *Auth) isFirstUser() (bool, error) {
	users, err := a.Records.ListUsers()
	if err != nil {
		return false, rifterr.Wrap(rifterr.KindStorage, err, "listing users")
	}
	return len(users) == 0, nil
}

// loginLocalUser mints a JWT then immediately wraps it behind a
// short-lived, single-use exchange token (spec.md §4.2's two-step
// login -> exchange flow, mirroring the OAuth callback path so both
// routes return the same shape).
func (a *Auth) loginLocalUser(p *models.ParamsLoginLocalUser) (models.JwtResponse, error) {
	u, err := a.Records.GetUser(p.Username)
	if err != nil {
		return models.JwtResponse{}, rifterr.New(rifterr.KindAuthInvalid, "invalid username or password")
	}
	if u.Credential.Local == nil || !auth.VerifyPassword(u.Credential.Local.PasswordHash, p.Password) {
		return models.JwtResponse{}, rifterr.New(rifterr.KindAuthInvalid, "invalid username or password")
	}
	if !u.Enabled {
		return models.JwtResponse{}, rifterr.New(rifterr.KindAuthInvalid, "user is disabled")
	}
	now := a.Clock()
	jwt, err := a.Jwt.Issue(u.Id, now)
	if err != nil {
		return models.JwtResponse{}, rifterr.Wrap(rifterr.KindInternal, err, "issuing jwt")
	}
	token, err := a.Exchange.Mint(jwt, now)
	if err != nil {
		return models.JwtResponse{}, rifterr.Wrap(rifterr.KindInternal, err, "minting exchange token")
	}
	return models.JwtResponse{ExchangeToken: token}, nil
}

func (a *Auth) exchangeForJwt(p *models.ParamsExchangeForJwt) (models.JwtResponse, error) {
	jwt, err := a.Exchange.Redeem(p.ExchangeToken, a.Clock())
	if err != nil {
		return models.JwtResponse{}, err
	}
	return models.JwtResponse{Jwt: jwt}, nil
}

func (a *Auth) getUser(r *http.Request) (models.User, error) {
	return RequireUser(r)
}
