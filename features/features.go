// Package features gates optional product surfaces behind OpenFeature flags
package features

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/open-feature/go-sdk/openfeature"
	"github.com/open-feature/go-sdk/openfeature/memprovider"

	"github.com/deepshield/deepshield-api/config"
)

// Flag keys
const (
	DeepfakeDetection    = "deepfake_detection"
	FakeAccountDetection = "fake_account_detection"
	ContentFiltering     = "content_filtering"
	KYC                  = "kyc"
)

// ErrFeatureDisabled is returned by Require for a flag that is off
var ErrFeatureDisabled = errors.New("feature disabled")

// Flags evaluates feature flags for a user
type Flags struct {
	client *openfeature.Client
}

func boolFlag(key string, on bool) memprovider.InMemoryFlag {
	variant := "off"
	if on {
		variant = "on"
	}
	return memprovider.InMemoryFlag{
		Key:            key,
		State:          memprovider.Enabled,
		DefaultVariant: variant,
		Variants: map[string]interface{}{
			"on":  true,
			"off": false,
		},
	}
}

// New registers an in-memory provider seeded from f under its own domain
// and returns a client bound to it
func New(f config.Features) (*Flags, error) {
	provider := memprovider.NewInMemoryProvider(map[string]memprovider.InMemoryFlag{
		DeepfakeDetection:    boolFlag(DeepfakeDetection, f.DeepfakeDetection),
		FakeAccountDetection: boolFlag(FakeAccountDetection, f.FakeAccountDetection),
		ContentFiltering:     boolFlag(ContentFiltering, f.ContentFiltering),
		KYC:                  boolFlag(KYC, f.KYC),
	})
	domain := "deepshield-" + uuid.NewString()
	if err := openfeature.SetNamedProviderAndWait(domain, provider); err != nil {
		return nil, fmt.Errorf("failed to register feature provider: %w", err)
	}
	return &Flags{client: openfeature.NewClient(domain)}, nil
}

// Enabled reports whether flag is on for userID. Unknown flags are off.
func (f *Flags) Enabled(ctx context.Context, flag, userID string) bool {
	evalCtx := openfeature.NewEvaluationContext(userID, map[string]interface{}{})
	val, err := f.client.BooleanValue(ctx, flag, false, evalCtx)
	if err != nil {
		return false
	}
	return val
}

// Require returns ErrFeatureDisabled unless flag is on for userID
func (f *Flags) Require(ctx context.Context, flag, userID string) error {
	if !f.Enabled(ctx, flag, userID) {
		return fmt.Errorf("%w: %s", ErrFeatureDisabled, flag)
	}
	return nil
}
