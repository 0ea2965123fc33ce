package cache

import "context"

// FlagRef identifies every key a flag snapshot may live under.
type FlagRef struct {
	ID    string
	AppID string
	Name  string
}

type AppRef struct {
	ID   string
	Name string
}

type UserRef struct {
	ID         string
	AppID      string
	ExternalID string
}

// InvalidateFlag drops the id and name keys, the app's list and per-user keys and allFlags.
func (l *Layer) InvalidateFlag(ctx context.Context, ref FlagRef) {
	keys := []string{AllKey(KindFlag)}
	if ref.ID != "" {
		keys = append(keys, IDKey(KindFlag, ref.ID))
	}
	if ref.AppID != "" {
		keys = append(keys, ByAppKey(KindFlag, ref.AppID))
		if ref.Name != "" {
			keys = append(keys, NameKey(KindFlag, ref.AppID, ref.Name))
		}
	}
	n := l.Del(ctx, keys...)
	if ref.AppID != "" {
		n += l.DelPrefix(ctx, ByUserPrefix(KindFlag, ref.AppID))
	}
	l.metrics.RecordInvalidation(ctx, KindFlag, n)
}

// InvalidateAppFlags drops the app-level flag aggregates without touching individual snapshots.
func (l *Layer) InvalidateAppFlags(ctx context.Context, appID string) {
	n := l.Del(ctx, AllKey(KindFlag), ByAppKey(KindFlag, appID))
	n += l.DelPrefix(ctx, ByUserPrefix(KindFlag, appID))
	l.metrics.RecordInvalidation(ctx, KindFlag, n)
}

func (l *Layer) InvalidateApp(ctx context.Context, ref AppRef) {
	keys := []string{AllKey(KindApp)}
	if ref.ID != "" {
		keys = append(keys, IDKey(KindApp, ref.ID))
	}
	if ref.Name != "" {
		keys = append(keys, NameKey(KindApp, ref.Name))
	}
	l.metrics.RecordInvalidation(ctx, KindApp, l.Del(ctx, keys...))
}

func (l *Layer) InvalidateUser(ctx context.Context, ref UserRef) {
	keys := []string{AllKey(KindUser)}
	if ref.ID != "" {
		keys = append(keys, IDKey(KindUser, ref.ID))
	}
	if ref.AppID != "" {
		keys = append(keys, ByAppKey(KindUser, ref.AppID))
		if ref.ExternalID != "" {
			keys = append(keys, ByUserKey(KindUser, ref.AppID, ref.ExternalID))
		}
	}
	l.metrics.RecordInvalidation(ctx, KindUser, l.Del(ctx, keys...))
}
