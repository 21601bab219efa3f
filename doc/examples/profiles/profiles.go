// Package profiles is a small consumer of sensei: a browser-profile API
// client that authenticates with a bearer token.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/blnkoff/sensei"
	"github.com/blnkoff/sensei/cases"
	"github.com/blnkoff/sensei/middleware"
)

// ErrMissingToken is returned before any request when no API token is set.
var ErrMissingToken = errors.New("profiles: no API token provided")

// Profile is a browser profile.
type Profile struct {
	ID          int        `json:"id" validate:"gte=0"`
	TeamID      int        `json:"teamId"`
	Name        string     `json:"name" validate:"required"`
	Platform    string     `json:"platform" validate:"omitempty,oneof=windows macos linux"`
	MainWebsite string     `json:"mainWebsite"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
}

func (p Profile) String() string {
	return fmt.Sprintf("Profile(id=%d; name=%s)", p.ID, p.Name)
}

// ListParams filters the profile list.
type ListParams struct {
	Limit        int      `param:"limit" validate:"gte=0,lte=50"`
	Query        *string  `param:"query"`
	Tags         []string `param:"tags"`
	Statuses     []int    `param:"statuses"`
	MainWebsites []string `param:"main_websites"`
	Page         int      `param:"page" validate:"gte=0"`
}

// GetParams selects one profile.
type GetParams struct {
	ID int `param:"id" validate:"gte=0"`
}

type listResponse struct {
	Data []Profile `json:"data"`
}

// [snippet:endpoints]
var (
	listProfiles = sensei.MustEndpoint[ListParams, listResponse]("/browser_profiles", http.MethodGet,
		sensei.WithQueryCase(cases.Camel),
		sensei.WithErrorMessage("list profiles"),
	)
	getProfile = sensei.MustEndpoint[GetParams, Profile]("/browser_profiles/{id}", http.MethodGet,
		sensei.WithErrorMessage("get profile"),
	)
)

// [/snippet:endpoints]

// DefaultHost is the public API host.
const DefaultHost = "https://dolphin-anty-api.com"

// ClientType is shared by every API instance so they draw from one budget.
var ClientType = func() *sensei.ClientType {
	ct, err := sensei.DefineClient("profiles", sensei.ClientDefaults{
		RateLimit: &sensei.RateLimitPolicy{Calls: 10, Period: time.Second},
		Headers:   map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		panic(err)
	}
	return ct
}()

// API lists and fetches profiles.
type API struct {
	token func() string
	list  *sensei.Requester[ListParams, listResponse]
	get   *sensei.Requester[GetParams, Profile]
}

// New returns an API talking to host. token is read before every call.
func New(host string, token func() string) (*API, error) {
	client, err := ClientType.NewAsyncClient(sensei.ClientOptions{
		Host:         host,
		Interceptors: []sensei.Interceptor{middleware.RequestID("")},
	})
	if err != nil {
		return nil, err
	}

	a := &API{token: token}
	a.list, err = sensei.NewRequester(client, listProfiles,
		sensei.WithPre[ListParams, listResponse](withToken(a, listProfiles)),
		sensei.WithRaiseForStatus[ListParams, listResponse](),
	)
	if err != nil {
		return nil, err
	}
	a.get, err = sensei.NewRequester(client, getProfile,
		sensei.WithPre[GetParams, Profile](withToken(a, getProfile)),
		sensei.WithRaiseForStatus[GetParams, Profile](),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// withToken assembles the endpoint's args and adds the bearer token.
func withToken[P, R any](a *API, e *sensei.Endpoint[P, R]) sensei.PreFunc[P] {
	return func(ctx context.Context, p P) (sensei.RequestOptions, error) {
		token := ""
		if a.token != nil {
			token = a.token()
		}
		if token == "" {
			return sensei.RequestOptions{}, ErrMissingToken
		}
		args, err := e.Args(p)
		if err != nil {
			return sensei.RequestOptions{}, err
		}
		opts := args.Options()
		if opts.Headers == nil {
			opts.Headers = make(http.Header)
		}
		opts.Headers.Set("Authorization", "Bearer "+token)
		return opts, nil
	}
}

// List returns one page of profiles.
func (a *API) List(ctx context.Context, params ListParams) ([]Profile, error) {
	if params.Limit == 0 {
		params.Limit = 50
	}
	resp, err := a.list.Request(ctx, params)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Get returns one profile.
func (a *API) Get(ctx context.Context, id int) (Profile, error) {
	return a.get.Request(ctx, GetParams{ID: id})
}

// GetMany fetches profiles concurrently, in the order of ids.
func (a *API) GetMany(ctx context.Context, ids ...int) ([]Profile, error) {
	params := make([]GetParams, len(ids))
	for i, id := range ids {
		params[i] = GetParams{ID: id}
	}
	return a.get.RequestMany(ctx, params)
}
