package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/repository"
	"github.com/iliyamo/grievance-portal/internal/utils"
)

// Guard turns bearer tokens into identities.
type Guard struct {
	users  UserStore
	signer *utils.TokenSigner
	log    *slog.Logger
}

func NewGuard(users UserStore, signer *utils.TokenSigner, log *slog.Logger) *Guard {
	return &Guard{users: users, signer: signer, log: log.With("component", "guard")}
}

// Authenticate decodes token and loads the identity it names.  The email
// claim is tried first, then the subject: as an email when it contains
// "@", otherwise as a numeric id.  The first lookup that finds an active
// identity wins.  Every failure is reported as ErrUnauthenticated.
func (g *Guard) Authenticate(ctx context.Context, token string) (model.User, error) {
	claims, err := g.signer.Decode(token)
	if err != nil {
		return model.User{}, ErrUnauthenticated
	}

	var lookups []func() (model.User, error)
	if claims.Email != "" {
		lookups = append(lookups, func() (model.User, error) { return g.users.GetByEmail(ctx, claims.Email) })
	}
	if sub := claims.Subject; sub != "" {
		if strings.Contains(sub, "@") {
			lookups = append(lookups, func() (model.User, error) { return g.users.GetByEmail(ctx, sub) })
		} else if id, err := strconv.ParseUint(sub, 10, 64); err == nil {
			lookups = append(lookups, func() (model.User, error) { return g.users.GetByID(ctx, id) })
		}
	}

	for _, lookup := range lookups {
		u, err := lookup()
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				g.log.Warn("identity lookup failed", "err", err)
			}
			continue
		}
		if !u.IsActive {
			return model.User{}, ErrUnauthenticated
		}
		return u, nil
	}
	return model.User{}, ErrUnauthenticated
}

// AuthorizeResourceAccess allows the owner of a resource and any admin.
func AuthorizeResourceAccess(who model.User, ownerID uint64) error {
	if who.ID == ownerID || who.IsAdmin {
		return nil
	}
	return ErrForbidden
}

// RequireAdmin allows admins only.
func RequireAdmin(who model.User) error {
	if who.IsAdmin {
		return nil
	}
	return ErrForbidden
}
