package sensei

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/blnkoff/sensei/ratelimit"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// RateLimitPolicy declares the rate limit of a client type, either as a
// Calls/Period pair or as a prebuilt Limiter. Setting both is an error.
type RateLimitPolicy struct {
	Calls   int
	Period  time.Duration
	Limiter ratelimit.Limiter `validate:"-"`
}

func (p *RateLimitPolicy) check() error {
	if p.Limiter != nil {
		if p.Calls != 0 || p.Period != 0 {
			return &ConfigurationError{Field: "rate_limit", Reason: "set either calls and period or a limiter, not both"}
		}
		return nil
	}
	if p.Calls <= 0 {
		return &ConfigurationError{Field: "rate_limit.calls", Value: p.Calls, Reason: "must be positive"}
	}
	if p.Period <= 0 {
		return &ConfigurationError{Field: "rate_limit.period", Value: p.Period, Reason: "must be positive"}
	}
	return nil
}

func (p *RateLimitPolicy) build() (ratelimit.Limiter, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if p.Limiter != nil {
		return p.Limiter, nil
	}
	return ratelimit.New(p.Calls, p.Period), nil
}

// ClientDefaults are the static settings of a client type.
type ClientDefaults struct {
	Port      int               `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	RateLimit *RateLimitPolicy  `mapstructure:"rate_limit"`
	Headers   map[string]string `mapstructure:"headers" validate:"omitempty,dive,keys,required,endkeys,printascii"`
}

// Validate reports the first invalid setting as a *ConfigurationError.
func (d ClientDefaults) Validate() error {
	if err := validate.Struct(d); err != nil {
		return configError(err)
	}
	if d.RateLimit != nil {
		return d.RateLimit.check()
	}
	return nil
}

// ClientOptions are the per-instance settings of a client. Zero values fall
// back to the client type's defaults.
type ClientOptions struct {
	Host         string            `mapstructure:"host" validate:"required,url"`
	Port         int               `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Limiter      ratelimit.Limiter `mapstructure:"-" validate:"-"`
	Headers      map[string]string `mapstructure:"headers" validate:"omitempty,dive,keys,required,endkeys,printascii"`
	HTTPClient   *http.Client      `mapstructure:"-" validate:"-"`
	Logger       *slog.Logger      `mapstructure:"-" validate:"-"`
	Interceptors []Interceptor     `mapstructure:"-" validate:"-"`
}

// ClientConfig is the merged configuration of one client instance.
type ClientConfig struct {
	Host    string
	Port    int
	BaseURL string
	Limiter ratelimit.Limiter
	Headers http.Header
}

// ClientType is a validated set of defaults shared by every client built
// from it, including one rate limiter.
type ClientType struct {
	name     string
	defaults ClientDefaults
	limiter  ratelimit.Limiter
}

// DefineClient validates defaults once and builds the limiter shared by all
// clients of the type.
func DefineClient(name string, defaults ClientDefaults) (*ClientType, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	ct := &ClientType{name: name, defaults: defaults}
	ct.defaults.Headers = maps.Clone(defaults.Headers)
	if defaults.RateLimit != nil {
		lim, err := defaults.RateLimit.build()
		if err != nil {
			return nil, err
		}
		ct.limiter = lim
	}
	return ct, nil
}

// untyped backs the package-level client constructors.
var untyped = &ClientType{name: "default"}

// Name returns the name given to DefineClient.
func (ct *ClientType) Name() string { return ct.name }

// Defaults returns a copy of the type's defaults.
func (ct *ClientType) Defaults() ClientDefaults {
	d := ct.defaults
	d.Headers = maps.Clone(d.Headers)
	return d
}

// Limiter returns the limiter shared by clients of this type, or nil.
func (ct *ClientType) Limiter() ratelimit.Limiter { return ct.limiter }

// Config resolves opts against the type's defaults. Each omitted field falls
// back to its default; a non-empty Headers map replaces the default headers.
func (ct *ClientType) Config(opts ClientOptions) (ClientConfig, error) {
	if err := validate.Struct(opts); err != nil {
		return ClientConfig{}, configError(err)
	}

	cfg := ClientConfig{
		Host:    strings.TrimRight(opts.Host, "/"),
		Port:    opts.Port,
		Limiter: opts.Limiter,
	}
	if cfg.Port == 0 {
		cfg.Port = ct.defaults.Port
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ct.limiter
	}
	cfg.BaseURL = cfg.Host
	if cfg.Port != 0 {
		cfg.BaseURL += ":" + strconv.Itoa(cfg.Port)
	}
	// instance headers replace the type's defaults rather than extend them
	headers := opts.Headers
	if len(headers) == 0 {
		headers = ct.defaults.Headers
	}
	cfg.Headers = make(http.Header, len(headers))
	for k, v := range headers {
		cfg.Headers[k] = []string{v}
	}
	return cfg, nil
}

func configError(err error) error {
	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) && len(valErrs) > 0 {
		fe := valErrs[0]
		return &ConfigurationError{Field: fe.Field(), Value: fe.Value(), Reason: formatValidationError(fe)}
	}
	return err
}

// LoadClientDefaults reads client defaults from v:
//
//	port: 443
//	headers:
//	  Accept: application/json
//	rate_limit: [10, 1]          # calls, period in seconds
//	# or
//	rate_limit: {calls: 10, period: 1s}
//
// Viper folds keys to lower case, so header names are canonicalized.
func LoadClientDefaults(v *viper.Viper) (ClientDefaults, error) {
	var raw struct {
		Port      int               `mapstructure:"port"`
		Headers   map[string]string `mapstructure:"headers"`
		RateLimit any               `mapstructure:"rate_limit"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return ClientDefaults{}, &ConfigurationError{Field: "config", Reason: err.Error()}
	}

	d := ClientDefaults{Port: raw.Port}
	if len(raw.Headers) > 0 {
		d.Headers = make(map[string]string, len(raw.Headers))
		for k, val := range raw.Headers {
			d.Headers[http.CanonicalHeaderKey(k)] = val
		}
	}
	policy, err := parseRateLimit(raw.RateLimit)
	if err != nil {
		return ClientDefaults{}, err
	}
	d.RateLimit = policy
	if err := d.Validate(); err != nil {
		return ClientDefaults{}, err
	}
	return d, nil
}

func parseRateLimit(raw any) (*RateLimitPolicy, error) {
	if raw == nil {
		return nil, nil
	}
	shapeErr := &ConfigurationError{Field: "rate_limit", Value: raw, Reason: "must be [calls, period_seconds] or {calls, period}"}

	var callsRaw, periodRaw any
	if m, ok := raw.(map[string]any); ok {
		callsRaw, periodRaw = m["calls"], m["period"]
		if len(m) != 2 || callsRaw == nil || periodRaw == nil {
			return nil, shapeErr
		}
	} else {
		rv := reflect.ValueOf(raw)
		if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Len() != 2 {
			return nil, shapeErr
		}
		callsRaw, periodRaw = rv.Index(0).Interface(), rv.Index(1).Interface()
	}

	calls, ok := asInt(callsRaw)
	if !ok {
		return nil, &ConfigurationError{Field: "rate_limit.calls", Value: callsRaw, Reason: "must be an integer"}
	}
	period, ok := asPeriod(periodRaw)
	if !ok {
		return nil, &ConfigurationError{Field: "rate_limit.period", Value: periodRaw, Reason: "must be a number of seconds or a duration"}
	}
	p := &RateLimitPolicy{Calls: calls, Period: period}
	if err := p.check(); err != nil {
		return nil, err
	}
	return p, nil
}

func asInt(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	case reflect.String:
		n, err := strconv.Atoi(rv.String())
		return n, err == nil
	}
	return 0, false
}

// asPeriod reads bare numbers as seconds.
func asPeriod(v any) (time.Duration, bool) {
	switch x := v.(type) {
	case time.Duration:
		return x, true
	case string:
		if d, err := time.ParseDuration(x); err == nil {
			return d, true
		}
		secs, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return seconds(secs), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return seconds(float64(rv.Int())), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return seconds(float64(rv.Uint())), true
	case reflect.Float32, reflect.Float64:
		return seconds(rv.Float()), true
	}
	return 0, false
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c ClientConfig) String() string {
	return fmt.Sprintf("ClientConfig{BaseURL: %s, Limiter: %t, Headers: %d}", c.BaseURL, c.Limiter != nil, len(c.Headers))
}
