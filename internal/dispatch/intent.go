package dispatch

import (
	"context"
	"errors"
	"fmt"

	"hoyn/internal/models"
	"hoyn/internal/qrcode"
	"hoyn/internal/storage"
)

type IntentKind int

const (
	None IntentKind = iota
	ViewProfile
	AskAnonymous
	OpenExternal
	NotFound
)

func (k IntentKind) String() string {
	switch k {
	case ViewProfile:
		return "view_profile"
	case AskAnonymous:
		return "ask_anonymous"
	case OpenExternal:
		return "open_external"
	case NotFound:
		return "not_found"
	default:
		return "none"
	}
}

// Intent is where a scan should route. Profile is set for ViewProfile and AskAnonymous.
type Intent struct {
	Kind    IntentKind
	Profile *models.Profile
	URL     string
}

// ProfileLookup is the profile collaborator. Missing profiles are storage.ErrNotFound.
type ProfileLookup interface {
	ProfileBySlug(ctx context.Context, slug string) (*models.Profile, error)
	ProfileByID(ctx context.Context, id string) (*models.Profile, error)
	ProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
}

// ResolveIntent maps a decode result to a routing intent. Identifiers are tried
// slug first, then profile id, then username; the first hit wins. It has no side effects.
func ResolveIntent(ctx context.Context, res qrcode.DecodeResult, lookup ProfileLookup) (Intent, error) {
	if res.Outcome == qrcode.Unrecognized {
		return Intent{Kind: None}, nil
	}
	if res.Type == qrcode.TypeCustom {
		if res.URL == "" {
			return Intent{Kind: NotFound}, nil
		}
		return Intent{Kind: OpenExternal, URL: res.URL}, nil
	}

	profile, err := findProfile(ctx, res, lookup)
	if err != nil {
		return Intent{}, err
	}
	if profile == nil {
		return Intent{Kind: NotFound}, nil
	}
	if res.Type == qrcode.TypeAnonymous {
		return Intent{Kind: AskAnonymous, Profile: profile}, nil
	}
	return Intent{Kind: ViewProfile, Profile: profile}, nil
}

type step struct {
	value string
	find  func(context.Context, string) (*models.Profile, error)
}

func findProfile(ctx context.Context, res qrcode.DecodeResult, lookup ProfileLookup) (*models.Profile, error) {
	steps := []step{
		{res.Slug, lookup.ProfileBySlug},
		{res.ProfileID, lookup.ProfileByID},
		{res.Username, lookup.ProfileByUsername},
	}
	for _, s := range steps {
		if s.value == "" {
			continue
		}
		p, err := s.find(ctx, s.value)
		if err == nil && p != nil {
			return p, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("lookup %q: %w", s.value, err)
		}
	}
	return nil, nil
}
