package payment

import (
	"net/http"
	"sort"
	"strings"

	"cardshop/internal/config"

	"github.com/pkg/errors"
)

type enabledProvider struct {
	provider Provider
	methods  map[string]bool
	// signatureHeader is nil when the provider's webhooks are unsigned.
	signatureHeader *string
}

// Registry holds the enabled providers. It is validated once at construction
// so a misconfigured provider fails at startup instead of on the first payment.
type Registry struct {
	currency  string
	providers map[ProviderName]*enabledProvider
}

func NewRegistry(cfg config.PaymentConfig, client *http.Client) (*Registry, error) {
	if len(cfg.EnabledProviders) == 0 {
		return nil, errors.New("payment: no providers enabled")
	}
	if cfg.Currency == "" {
		return nil, errors.New("payment: currency is required")
	}

	r := &Registry{
		currency:  strings.ToUpper(cfg.Currency),
		providers: make(map[ProviderName]*enabledProvider, len(cfg.EnabledProviders)),
	}

	for _, raw := range cfg.EnabledProviders {
		name := ProviderName(raw)
		if !name.Valid() {
			return nil, errors.Wrapf(ErrUnknownProvider, "payment: %q", raw)
		}

		methods := make(map[string]bool)
		for _, m := range cfg.SupportedMethodsByProvider[raw] {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				methods[m] = true
			}
		}
		if len(methods) == 0 {
			return nil, errors.Errorf("payment: provider %q has no payment methods", raw)
		}

		header := cfg.SignatureHeaderByProvider[raw]
		secret := cfg.SecretByProvider[raw]
		if name.Signed() && header == nil {
			return nil, errors.Errorf("payment: provider %q requires a signature header", raw)
		}
		if header != nil && secret == "" {
			return nil, errors.Errorf("payment: provider %q has a signature header but no secret", raw)
		}

		var p Provider
		switch name {
		case Dummy:
			p = NewDummyProvider(secret)
		case Stripe:
			if cfg.APIKeyByProvider[raw] == "" {
				return nil, errors.Errorf("payment: provider %q requires an api key", raw)
			}
			p = NewStripeProvider(cfg.APIBaseURLByProvider[raw], cfg.APIKeyByProvider[raw], secret, client)
		case Komoju:
			if cfg.APIKeyByProvider[raw] == "" {
				return nil, errors.Errorf("payment: provider %q requires an api key", raw)
			}
			p = NewKomojuProvider(cfg.APIBaseURLByProvider[raw], cfg.APIKeyByProvider[raw], secret, client)
		}

		r.providers[name] = &enabledProvider{provider: p, methods: methods, signatureHeader: header}
	}

	return r, nil
}

func (r *Registry) Currency() string {
	return r.currency
}

func (r *Registry) Get(name string) (Provider, error) {
	pn := ProviderName(strings.ToLower(name))
	if !pn.Valid() {
		return nil, ErrUnknownProvider
	}
	ep, ok := r.providers[pn]
	if !ok {
		return nil, ErrProviderDisabled
	}
	return ep.provider, nil
}

// ForMethod returns the first enabled provider, in preference order, that
// accepts the payment method.
func (r *Registry) ForMethod(method string) (Provider, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	for _, name := range preference {
		if ep, ok := r.providers[name]; ok && ep.methods[method] {
			return ep.provider, nil
		}
	}
	return nil, ErrNoProviderForMethod
}

// Methods lists the accepted payment methods per enabled provider.
func (r *Registry) Methods() map[ProviderName][]string {
	out := make(map[ProviderName][]string, len(r.providers))
	for name, ep := range r.providers {
		methods := make([]string, 0, len(ep.methods))
		for m := range ep.methods {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		out[name] = methods
	}
	return out
}

// VerifyWebhook authenticates and parses an inbound webhook for the named
// provider. Verification is skipped only for providers with no header mapping.
func (r *Registry) VerifyWebhook(name string, header http.Header, body []byte) (*WebhookEvent, error) {
	pn := ProviderName(strings.ToLower(name))
	if !pn.Valid() {
		return nil, ErrUnknownProvider
	}
	ep, ok := r.providers[pn]
	if !ok {
		return nil, ErrProviderDisabled
	}

	if ep.signatureHeader != nil {
		signature := header.Get(*ep.signatureHeader)
		if signature == "" {
			return nil, errors.Wrapf(ErrInvalidSignature, "%s: missing %s header", pn, *ep.signatureHeader)
		}
		if err := ep.provider.VerifySignature(signature, body); err != nil {
			return nil, err
		}
	}

	ev, err := ep.provider.ParseWebhook(body)
	if err != nil {
		return nil, err
	}
	ev.Raw = append(ev.Raw[:0], body...)
	return ev, nil
}
