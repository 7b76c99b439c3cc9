package twitchapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/onnwee/clipradar/settings"
)

// BuiltInClientID is the fixed public client used when no user credentials are
// configured. It is accepted by the anonymous query surface without a secret.
const BuiltInClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"

// IdentityKind discriminates the credential variants.
type IdentityKind int

const (
	// IdentityBuiltIn uses the fixed public client; requests degrade to the
	// anonymous surface or synthetic data instead of failing.
	IdentityBuiltIn IdentityKind = iota
	// IdentityUserPublic is a user-registered client without a secret.
	IdentityUserPublic
	// IdentityUserConfidential is a user-registered client with a secret.
	IdentityUserConfidential
)

func (k IdentityKind) String() string {
	switch k {
	case IdentityBuiltIn:
		return "builtin"
	case IdentityUserPublic:
		return "user_public"
	case IdentityUserConfidential:
		return "user_confidential"
	default:
		return "unknown"
	}
}

// Identity is the resolved credential variant used for all upstream calls.
// It replaces scattered mode-flag checks: construct once, branch on Kind.
type Identity struct {
	Kind         IdentityKind
	ClientID     string
	ClientSecret string
}

// BuiltIn reports whether this identity holds no real user credentials.
func (id Identity) BuiltIn() bool { return id.Kind == IdentityBuiltIn }

// ResolveIdentity reads the credential configuration from the settings store
// and validates it. A store with no mode configured resolves to the built-in
// identity. Validation failures surface before any network call is attempted.
func ResolveIdentity(ctx context.Context, store settings.Store) (Identity, error) {
	mode, err := store.Get(ctx, settings.KeyCredentialMode)
	if errors.Is(err, settings.ErrNotFound) || (err == nil && mode == "") {
		mode = settings.ModeBuiltIn
	} else if err != nil {
		return Identity{}, fmt.Errorf("read credential mode: %w", err)
	}

	switch mode {
	case settings.ModeBuiltIn:
		return Identity{Kind: IdentityBuiltIn, ClientID: BuiltInClientID}, nil

	case settings.ModeUserPublic:
		clientID, err := getOptional(ctx, store, settings.KeyClientID)
		if err != nil {
			return Identity{}, err
		}
		if clientID == "" {
			return Identity{}, ErrMissingClientID
		}
		return Identity{Kind: IdentityUserPublic, ClientID: clientID}, nil

	case settings.ModeUserConfidential:
		clientID, err := getOptional(ctx, store, settings.KeyClientID)
		if err != nil {
			return Identity{}, err
		}
		if clientID == "" {
			return Identity{}, ErrMissingClientID
		}
		secret, err := getOptional(ctx, store, settings.KeyClientSecret)
		if err != nil {
			return Identity{}, err
		}
		if secret == "" {
			return Identity{}, ErrMissingClientSecret
		}
		return Identity{Kind: IdentityUserConfidential, ClientID: clientID, ClientSecret: secret}, nil

	default:
		return Identity{}, fmt.Errorf("unknown credential mode %q", mode)
	}
}

func getOptional(ctx context.Context, store settings.Store, key string) (string, error) {
	v, err := store.Get(ctx, key)
	if errors.Is(err, settings.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}
