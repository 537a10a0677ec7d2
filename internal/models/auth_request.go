package models

import "encoding/json"

// AuthType tags the one operation AuthRequest carries.
type AuthType string

const (
	AuthGetLoginOptions AuthType = "GetLoginOptions"
	AuthCreateLocalUser AuthType = "CreateLocalUser"
	AuthLoginLocalUser  AuthType = "LoginLocalUser"
	AuthExchangeForJwt  AuthType = "ExchangeForJwt"
	AuthGetUser         AuthType = "GetUser"
)

// AuthRequest is the tagged union accepted by POST /auth (spec.md §6).
// GetLoginOptions, CreateLocalUser, LoginLocalUser and ExchangeForJwt
// require no Authorization header; GetUser does.
type AuthRequest struct {
	Type   AuthType    `json:"type"`
	Params interface{} `json:"params,omitempty"`
}

var authParamsFactory = map[AuthType]func() interface{}{
	AuthGetLoginOptions: func() interface{} { return &ParamsGetLoginOptions{} },
	AuthCreateLocalUser: func() interface{} { return &ParamsCreateLocalUser{} },
	AuthLoginLocalUser:  func() interface{} { return &ParamsLoginLocalUser{} },
	AuthExchangeForJwt:  func() interface{} { return &ParamsExchangeForJwt{} },
	AuthGetUser:         func() interface{} { return &ParamsGetUser{} },
}

type authRequestWire struct {
	Type   AuthType        `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (r AuthRequest) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(r.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(authRequestWire{Type: r.Type, Params: raw})
}

func (r *AuthRequest) UnmarshalJSON(data []byte) error {
	var wire authRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Type = wire.Type
	factory, ok := authParamsFactory[wire.Type]
	if !ok {
		r.Params = nil
		return nil
	}
	target := factory()
	if len(wire.Params) > 0 {
		if err := json.Unmarshal(wire.Params, target); err != nil {
			return err
		}
	}
	r.Params = target
	return nil
}

type ParamsGetLoginOptions struct{}

type ParamsCreateLocalUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ParamsLoginLocalUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ParamsExchangeForJwt struct {
	ExchangeToken string `json:"exchange_token"`
}

type ParamsGetUser struct{}

// LoginOptions describes which local/OAuth login paths are enabled.
// OAuth provider flows are out of scope (spec.md Non-goals); Local is
// always available.
type LoginOptions struct {
	Local         bool `json:"local"`
	RegistrationEnabled bool `json:"registration_enabled"`
}

// JwtResponse is returned by LoginLocalUser (as an exchange token, per
// spec.md's two-step login->exchange flow) and by ExchangeForJwt (as the
// final bearer JWT).
type JwtResponse struct {
	Jwt string `json:"jwt,omitempty"`
	ExchangeToken string `json:"exchange_token,omitempty"`
}
