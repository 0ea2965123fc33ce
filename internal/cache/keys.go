package cache

import "strings"

const (
	KindFlag = "flag"
	KindApp  = "app"
	KindUser = "user"
)

func IDKey(kind, id string) string {
	return kind + ":id:" + id
}

// NameKey scopes a name by the given parents, e.g. flag:name:{appId}:{name}.
func NameKey(kind string, parts ...string) string {
	return kind + ":name:" + strings.Join(parts, ":")
}

func ByAppKey(kind, appID string) string {
	return kind + ":byApp:" + appID
}

func ByUserKey(kind, appID, userID string) string {
	return ByUserPrefix(kind, appID) + userID
}

// ByUserPrefix matches every per-user key of one app.
func ByUserPrefix(kind, appID string) string {
	return kind + ":byUser:" + appID + ":"
}

// AllKey returns the aggregate key, e.g. allFlags.
func AllKey(kind string) string {
	if kind == "" {
		return "all"
	}
	return "all" + strings.ToUpper(kind[:1]) + kind[1:] + "s"
}

// KindOf extracts the entity kind a key belongs to.
func KindOf(key string) string {
	if rest, ok := strings.CutPrefix(key, "all"); ok && !strings.Contains(key, ":") {
		rest = strings.TrimSuffix(rest, "s")
		return strings.ToLower(rest)
	}
	kind, _, _ := strings.Cut(key, ":")
	return kind
}
