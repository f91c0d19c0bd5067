package x402

import "fmt"

// AssetConfig identifies the token being charged: mint address plus decimal
// count, enough to convert human amounts to atomic units.
type AssetConfig struct {
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// TokenAmount is a price expressed in human-readable units of an asset, e.g.
// {Asset: USDC, Amount: "0.01"}. Conversion to atomic units happens in the
// requirements builder, never here.
type TokenAmount struct {
	Kind   string      `json:"kind"`
	Asset  AssetConfig `json:"asset"`
	Amount string      `json:"amount"`
}

// PaymentMiddlewareConfig carries resource metadata and documentation
// schemas for a priced route.
type PaymentMiddlewareConfig struct {
	// Resource is the endpoint path or URL. Relative paths are resolved
	// against the live request origin when requirements are built.
	Resource string

	// Description is shown to payers, e.g. "AI Chat Request".
	Description string

	// MimeType is the content type of the protected response.
	MimeType string

	// MaxTimeoutSeconds is the facilitator settlement validity window.
	// Zero means DefaultMaxTimeoutSeconds.
	MaxTimeoutSeconds int

	// Discoverable marks the endpoint for x402 ecosystem discovery.
	Discoverable bool

	// InputSchema documents the request shape. Documentation only.
	InputSchema map[string]interface{}

	// OutputSchema documents the response shape. Documentation only.
	OutputSchema map[string]interface{}
}

// RouteConfig bundles everything needed to price one route: the cluster, the
// price, and the resource metadata. Constructed once per distinct price and
// token selection, read-only thereafter.
type RouteConfig struct {
	Network string
	Price   TokenAmount
	Config  PaymentMiddlewareConfig
}

// DefaultMaxTimeoutSeconds is the settlement window used when a route does
// not set one.
const DefaultMaxTimeoutSeconds = 300

// DefaultMessagePrices is the human-readable per-message price for each
// charge token.
var DefaultMessagePrices = map[Token]string{
	TokenUSDC: "0.01",
	TokenSOL:  "0.0001",
}

// Validate checks a RouteConfig for structural problems. Amount conversion
// errors surface here rather than at challenge time.
func (rc RouteConfig) Validate() error {
	if err := ValidateNetwork(rc.Network); err != nil {
		return err
	}
	if rc.Price.Kind != SchemeExact {
		return fmt.Errorf("%w: price kind %q", ErrInvalidRequirements, rc.Price.Kind)
	}
	if rc.Price.Asset.Address == "" {
		return fmt.Errorf("%w: missing asset address", ErrInvalidRequirements)
	}
	if _, err := AmountToBigInt(rc.Price.Amount, rc.Price.Asset.Decimals); err != nil {
		return fmt.Errorf("price %q with %d decimals: %w", rc.Price.Amount, rc.Price.Asset.Decimals, err)
	}
	return nil
}

// NewChatRouteConfig builds the chat route's pricing for the selected token,
// using the token registry and the default per-message prices.
func NewChatRouteConfig(network string, token Token) (RouteConfig, error) {
	tokenCfg, err := TokenFor(network, token)
	if err != nil {
		return RouteConfig{}, err
	}

	amount := DefaultMessagePrices[token]

	return RouteConfig{
		Network: network,
		Price: TokenAmount{
			Kind: SchemeExact,
			Asset: AssetConfig{
				Address:  tokenCfg.Address,
				Decimals: tokenCfg.Decimals,
			},
			Amount: amount,
		},
		Config: PaymentMiddlewareConfig{
			Resource:          "/api/chat",
			Description:       fmt.Sprintf("AI Chat Request - Pay per message (%s %s)", amount, token),
			MimeType:          "application/json",
			MaxTimeoutSeconds: DefaultMaxTimeoutSeconds,
			OutputSchema: map[string]interface{}{
				"type":        "object",
				"description": "Streaming chat response",
				"properties": map[string]interface{}{
					"content": map[string]interface{}{
						"type":        "string",
						"description": "AI response content",
					},
				},
			},
		},
	}, nil
}

// RequirementsBuilder turns a RouteConfig and a fully-qualified resource URL
// into the PaymentRequirements the server demands. Build is pure: the same
// inputs always produce an identical structure.
type RequirementsBuilder struct {
	// PayTo is the treasury address payments are sent to.
	PayTo string

	// FeePayer, when resolved from the facilitator's /supported capability
	// list, is embedded as extra.feePayer. Left empty it is simply omitted;
	// verify and settle may still succeed if the facilitator does not
	// require it.
	FeePayer string
}

// Build converts the route's human price into atomic units and assembles the
// requirement. The resource URL is caller-supplied so it reflects the live
// request origin instead of a hardcoded config value.
func (b RequirementsBuilder) Build(route RouteConfig, resourceURL string) (PaymentRequirements, error) {
	if b.PayTo == "" {
		return PaymentRequirements{}, fmt.Errorf("%w: missing payTo address", ErrInvalidRequirements)
	}
	if err := ValidateNetwork(route.Network); err != nil {
		return PaymentRequirements{}, err
	}

	atomic, err := AmountToBigInt(route.Price.Amount, route.Price.Asset.Decimals)
	if err != nil {
		return PaymentRequirements{}, fmt.Errorf("converting price %q: %w", route.Price.Amount, err)
	}

	timeout := route.Config.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultMaxTimeoutSeconds
	}

	mimeType := route.Config.MimeType
	if mimeType == "" {
		mimeType = "application/json"
	}

	req := PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           route.Network,
		MaxAmountRequired: atomic.String(),
		Resource:          resourceURL,
		Description:       route.Config.Description,
		MimeType:          mimeType,
		PayTo:             b.PayTo,
		MaxTimeoutSeconds: timeout,
		Asset:             route.Price.Asset.Address,
		OutputSchema:      route.Config.OutputSchema,
	}
	if b.FeePayer != "" {
		req.Extra = &SchemeExtra{FeePayer: b.FeePayer}
	}
	return req, nil
}
