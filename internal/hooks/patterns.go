package hooks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/studiowebux/loadhook/internal/chain"
	"github.com/studiowebux/loadhook/internal/state"
	"github.com/studiowebux/loadhook/internal/types"
)

// State keys used by the built-in patterns
const (
	KeyBaseURL       = "baseUrl"
	KeyCounter       = "counter"
	KeyAuthenticated = "authenticated"
	KeyToken         = "token"
)

var ErrSharedStateRequired = errors.New("shared state was not declared")

// Passthrough issues the configured request unchanged on every iteration
func Passthrough() *Hooks {
	return nil
}

// CounterOptions configures the Counter pattern
type CounterOptions struct {
	Start  int
	Header string // default X-Counter
	Shared bool   // draw values from one counter in shared state
}

// Counter appends a counter to the URL path and to a header, then increments
// it. Per-worker counters repeat across workers; a shared counter hands out
// each value exactly once for the whole run.
func Counter(opts CounterOptions) *Hooks {
	header := opts.Header
	if header == "" {
		header = "X-Counter"
	}

	return &Hooks{
		Setup: func(env *Env) error {
			if opts.Shared {
				if env.Shared == nil {
					return ErrSharedStateRequired
				}
				env.Shared.Update(func(v map[string]any) {
					if _, ok := v[KeyCounter]; !ok {
						v[KeyCounter] = opts.Start
					}
				})
			} else {
				env.State.Set(KeyCounter, opts.Start)
			}
			env.State.Set(KeyBaseURL, strings.TrimSuffix(env.Request.URL, "/"))
			return nil
		},
		BeforeRequest: func(env *Env) error {
			var next int
			if opts.Shared {
				env.Shared.Update(func(v map[string]any) {
					next, _ = state.ToInt(v[KeyCounter])
					v[KeyCounter] = next + 1
				})
			} else {
				next = env.State.Incr(KeyCounter)
			}
			n := strconv.Itoa(next)
			env.Request.URL = env.State.String(KeyBaseURL) + "/" + n
			env.Request.Headers.Set(header, n)
			return nil
		},
	}
}

// AuthOptions configures the AuthPipeline pattern. Zero values take the defaults.
type AuthOptions struct {
	AuthPath         string // default /auth
	ActionPath       string // default /foo
	ActionMethod     string // default POST
	ActionBody       string // default foo=bar
	TokenHeader      string // default X-Token
	TokenPath        string // extraction rule, overrides TokenHeader when set
	CredentialHeader string // default Authentication
	Scheme           string // default Bearer
	SuccessStatus    int    // default 200
	Shared           bool   // keep the flag and token in shared state
}

func (o AuthOptions) withDefaults() AuthOptions {
	if o.AuthPath == "" {
		o.AuthPath = "/auth"
	}
	if o.ActionPath == "" {
		o.ActionPath = "/foo"
	}
	if o.ActionMethod == "" {
		o.ActionMethod = "POST"
	}
	if o.ActionBody == "" {
		o.ActionBody = "foo=bar"
	}
	if o.TokenHeader == "" {
		o.TokenHeader = "X-Token"
	}
	if o.CredentialHeader == "" {
		o.CredentialHeader = "Authentication"
	}
	if o.Scheme == "" {
		o.Scheme = "Bearer"
	}
	if o.SuccessStatus == 0 {
		o.SuccessStatus = 200
	}
	return o
}

// AuthPipeline targets the authentication endpoint until a response with the
// success status yields a token, then calls the protected endpoint with it.
// The transition made in AfterResponse of iteration N is visible to
// BeforeRequest of iteration N+1 on the same worker.
func AuthPipeline(opts AuthOptions) (*Hooks, error) {
	o := opts.withDefaults()

	rule := chain.Rule{Source: chain.SourceHeader, Expression: o.TokenHeader}
	if o.TokenPath != "" {
		r, err := chain.ParseRule(o.TokenPath)
		if err != nil {
			return nil, fmt.Errorf("token path: %w", err)
		}
		rule = r
	}

	return &Hooks{
		Setup: func(env *Env) error {
			if o.Shared && env.Shared == nil {
				return ErrSharedStateRequired
			}
			env.State.Set(KeyBaseURL, strings.TrimSuffix(env.Request.URL, "/"))
			if !o.Shared {
				env.State.Set(KeyAuthenticated, false)
				env.State.Set(KeyToken, "")
			}
			return nil
		},
		BeforeRequest: func(env *Env) error {
			base := env.State.String(KeyBaseURL)
			authenticated, token := o.load(env)
			if !authenticated {
				env.Request.URL = base + o.AuthPath
				return nil
			}

			env.Request.Method = o.ActionMethod
			env.Request.URL = base + o.ActionPath
			env.Request.SetBody(o.ActionBody)
			env.Request.Headers.Set(o.CredentialHeader, o.Scheme+" "+token)
			return nil
		},
		AfterResponse: func(env *Env, res *types.ResponseView) error {
			if authenticated, _ := o.load(env); authenticated {
				return nil
			}
			if res.Status != o.SuccessStatus {
				return nil
			}

			token, err := chain.Extract(res, rule)
			if err != nil {
				return fmt.Errorf("extract token: %w", err)
			}
			o.commit(env, token)
			return nil
		},
	}, nil
}

func (o AuthOptions) load(env *Env) (authenticated bool, token string) {
	if !o.Shared {
		return env.State.Bool(KeyAuthenticated), env.State.String(KeyToken)
	}
	env.Shared.View(func(v map[string]any) {
		authenticated, _ = v[KeyAuthenticated].(bool)
		token = state.ToString(v[KeyToken])
	})
	return authenticated, token
}

// commit records the token. In shared mode the first committed token wins so
// every worker converges on one value.
func (o AuthOptions) commit(env *Env, token string) {
	if !o.Shared {
		env.State.Set(KeyToken, token)
		env.State.Set(KeyAuthenticated, true)
		return
	}
	env.Shared.Update(func(v map[string]any) {
		if done, _ := v[KeyAuthenticated].(bool); done {
			return
		}
		v[KeyToken] = token
		v[KeyAuthenticated] = true
	})
}
