package restexec

import (
	"github.com/kroma-labs/sentinel-rest/tokencache"

	json "github.com/goccy/go-json"
)

// AuthKind is the tag of an authentication strategy.
type AuthKind string

// Authentication strategy tags. They double as the "type" discriminator of
// the JSON form.
const (
	AuthKindNone              AuthKind = "none"
	AuthKindBasic             AuthKind = "basic"
	AuthKindBearer            AuthKind = "bearer"
	AuthKindAPIKey            AuthKind = "api_key"
	AuthKindClientCredentials AuthKind = "oauth2_client_credentials"
	AuthKindPassword          AuthKind = "oauth2_password"
)

// Auth is an authentication strategy. The set of implementations is closed:
// NoAuth, BasicAuth, BearerAuth, APIKeyAuth, ClientCredentialsAuth and
// PasswordAuth.
type Auth interface {
	// Kind returns the strategy tag.
	Kind() AuthKind

	validate() error
}

// NoAuth sends no credentials.
type NoAuth struct{}

// BasicAuth sends "Authorization: Basic base64(username:password)".
type BasicAuth struct {
	Username string
	Password string
}

// BearerAuth sends "Authorization: Bearer <token>".
type BearerAuth struct {
	Token string
}

// APIKeyPlacement selects where an API key is sent.
type APIKeyPlacement string

const (
	// APIKeyInHeader sends the key as a request header.
	APIKeyInHeader APIKeyPlacement = "header"
	// APIKeyInQuery sends the key as a query parameter.
	APIKeyInQuery APIKeyPlacement = "query"
)

// APIKeyAuth sends a single header or query parameter called Name.
// Placement defaults to APIKeyInHeader.
type APIKeyAuth struct {
	Placement APIKeyPlacement
	Name      string
	Value     string
}

// ClientCredentialsAuth exchanges a client id and secret for an access token
// using the OAuth2 client_credentials grant. Scope is optional and space
// separated.
type ClientCredentialsAuth struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// PasswordAuth exchanges a username and password for an access token using
// the OAuth2 resource owner password grant.
type PasswordAuth struct {
	TokenURL string
	ClientID string
	Username string
	Password string
}

func (NoAuth) Kind() AuthKind                { return AuthKindNone }
func (BasicAuth) Kind() AuthKind             { return AuthKindBasic }
func (BearerAuth) Kind() AuthKind            { return AuthKindBearer }
func (APIKeyAuth) Kind() AuthKind            { return AuthKindAPIKey }
func (ClientCredentialsAuth) Kind() AuthKind { return AuthKindClientCredentials }
func (PasswordAuth) Kind() AuthKind          { return AuthKindPassword }

func (NoAuth) validate() error { return nil }

func (a BasicAuth) validate() error {
	if a.Username == "" {
		return newError(KindConfiguration, "basic auth: username is required")
	}
	return nil
}

func (a BearerAuth) validate() error {
	if a.Token == "" {
		return newError(KindConfiguration, "bearer auth: token is required")
	}
	return nil
}

func (a APIKeyAuth) validate() error {
	if a.Name == "" {
		return newError(KindConfiguration, "api key auth: name is required")
	}
	switch a.Placement {
	case "", APIKeyInHeader, APIKeyInQuery:
		return nil
	default:
		return newError(KindConfiguration, "api key auth: unknown placement %q", a.Placement)
	}
}

func (a ClientCredentialsAuth) validate() error {
	switch {
	case a.TokenURL == "":
		return newError(KindConfiguration, "client credentials auth: token URL is required")
	case a.ClientID == "":
		return newError(KindConfiguration, "client credentials auth: client id is required")
	case a.ClientSecret == "":
		return newError(KindConfiguration, "client credentials auth: client secret is required")
	}
	return nil
}

func (a PasswordAuth) validate() error {
	switch {
	case a.TokenURL == "":
		return newError(KindConfiguration, "password auth: token URL is required")
	case a.ClientID == "":
		return newError(KindConfiguration, "password auth: client id is required")
	case a.Username == "":
		return newError(KindConfiguration, "password auth: username is required")
	}
	return nil
}

func (a ClientCredentialsAuth) cacheKey() tokencache.Key {
	return tokencache.Key{
		Grant:    tokencache.GrantClientCredentials,
		TokenURL: a.TokenURL,
		Identity: a.ClientID,
	}
}

func (a PasswordAuth) cacheKey() tokencache.Key {
	return tokencache.Key{
		Grant:    tokencache.GrantPassword,
		TokenURL: a.TokenURL,
		Identity: a.Username,
	}
}

// normalizeAuth maps nil to NoAuth and dereferences pointer variants so the
// rest of the engine only deals with values.
func normalizeAuth(a Auth) Auth {
	switch v := a.(type) {
	case nil:
		return NoAuth{}
	case *NoAuth:
		return NoAuth{}
	case *BasicAuth:
		if v != nil {
			return *v
		}
	case *BearerAuth:
		if v != nil {
			return *v
		}
	case *APIKeyAuth:
		if v != nil {
			return *v
		}
	case *ClientCredentialsAuth:
		if v != nil {
			return *v
		}
	case *PasswordAuth:
		if v != nil {
			return *v
		}
	default:
		return a
	}
	return NoAuth{}
}

// authJSON is the wire form of every strategy.
type authJSON struct {
	Type         AuthKind        `json:"type"`
	Username     string          `json:"username,omitempty"`
	Password     string          `json:"password,omitempty"`
	Token        string          `json:"token,omitempty"`
	Placement    APIKeyPlacement `json:"placement,omitempty"`
	Name         string          `json:"name,omitempty"`
	Value        string          `json:"value,omitempty"`
	TokenURL     string          `json:"token_url,omitempty"`
	ClientID     string          `json:"client_id,omitempty"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Scope        string          `json:"scope,omitempty"`
}

// MarshalAuth encodes a strategy as a tagged JSON object. A nil strategy
// encodes as {"type":"none"}.
func MarshalAuth(a Auth) ([]byte, error) {
	return json.Marshal(toAuthJSON(a))
}

// UnmarshalAuth decodes a tagged JSON object produced by MarshalAuth.
// A missing or empty "type" decodes to NoAuth.
func UnmarshalAuth(data []byte) (Auth, error) {
	var aj authJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return nil, wrapError(KindConfiguration, err, "decode auth")
	}
	return aj.toAuth()
}

func toAuthJSON(a Auth) authJSON {
	switch v := normalizeAuth(a).(type) {
	case BasicAuth:
		return authJSON{Type: AuthKindBasic, Username: v.Username, Password: v.Password}
	case BearerAuth:
		return authJSON{Type: AuthKindBearer, Token: v.Token}
	case APIKeyAuth:
		return authJSON{Type: AuthKindAPIKey, Placement: v.Placement, Name: v.Name, Value: v.Value}
	case ClientCredentialsAuth:
		return authJSON{
			Type:         AuthKindClientCredentials,
			TokenURL:     v.TokenURL,
			ClientID:     v.ClientID,
			ClientSecret: v.ClientSecret,
			Scope:        v.Scope,
		}
	case PasswordAuth:
		return authJSON{
			Type:     AuthKindPassword,
			TokenURL: v.TokenURL,
			ClientID: v.ClientID,
			Username: v.Username,
			Password: v.Password,
		}
	default:
		return authJSON{Type: AuthKindNone}
	}
}

func (aj authJSON) toAuth() (Auth, error) {
	switch aj.Type {
	case "", AuthKindNone:
		return NoAuth{}, nil
	case AuthKindBasic:
		return BasicAuth{Username: aj.Username, Password: aj.Password}, nil
	case AuthKindBearer:
		return BearerAuth{Token: aj.Token}, nil
	case AuthKindAPIKey:
		placement := aj.Placement
		if placement == "" {
			placement = APIKeyInHeader
		}
		return APIKeyAuth{Placement: placement, Name: aj.Name, Value: aj.Value}, nil
	case AuthKindClientCredentials:
		return ClientCredentialsAuth{
			TokenURL:     aj.TokenURL,
			ClientID:     aj.ClientID,
			ClientSecret: aj.ClientSecret,
			Scope:        aj.Scope,
		}, nil
	case AuthKindPassword:
		return PasswordAuth{
			TokenURL: aj.TokenURL,
			ClientID: aj.ClientID,
			Username: aj.Username,
			Password: aj.Password,
		}, nil
	default:
		return nil, newError(KindConfiguration, "unknown auth type %q", aj.Type)
	}
}
