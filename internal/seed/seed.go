package seed

import (
	"context"
	"errors"
	"strings"

	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	obscontext "github.com/smallbiznis/flagship/internal/observability/context"
	"go.uber.org/zap"
)

const bootstrapActor = "system:bootstrap"

// EnsureDefaultApp creates the named app with its Production environment unless it exists.
// An existing app missing Production is repaired in place.
func EnsureDefaultApp(ctx context.Context, apps appdomain.Service, name string, log *zap.Logger) (*appdomain.App, error) {
	if apps == nil {
		return nil, errors.New("seed app service is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appdomain.ErrInvalidName
	}
	ctx = obscontext.WithActor(ctx, bootstrapActor)

	existing, err := apps.GetByName(ctx, name)
	switch {
	case err == nil:
		if _, err := apps.EnsureProduction(ctx, existing.ID.String()); err != nil {
			return nil, err
		}
		return existing, nil
	case !errors.Is(err, appdomain.ErrNotFound):
		return nil, err
	}

	resp, err := apps.Create(ctx, appdomain.CreateRequest{Name: name, CreatedBy: bootstrapActor})
	if err != nil {
		if errors.Is(err, appdomain.ErrNameTaken) {
			return apps.GetByName(ctx, name)
		}
		if resp == nil {
			return nil, err
		}
		log.Warn("bootstrap app created without Production", zap.String("app_id", resp.App.ID.String()), zap.Error(err))
		if _, err := apps.EnsureProduction(ctx, resp.App.ID.String()); err != nil {
			return nil, err
		}
	}
	log.Info("bootstrap app ready", zap.String("app_id", resp.App.ID.String()), zap.String("name", name))
	return &resp.App, nil
}
