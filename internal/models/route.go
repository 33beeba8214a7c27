package models

import (
	"net/url"
	"regexp"
	"strings"
)

// RouteName is a client-side page a connection can be on.
type RouteName string

const (
	RouteHome     RouteName = "Home"
	RouteNewRoom  RouteName = "NewRoom"
	RouteLogin    RouteName = "Login"
	RouteRoom     RouteName = "Room"
	RouteNotFound RouteName = "NotFound"
)

// RouteProps is the payload of a NAVIGATE command.
type RouteProps struct {
	Name     RouteName `json:"name" validate:"required,oneof=Home NewRoom Room Login"`
	RoomSlug string    `json:"roomSlug,omitempty" validate:"omitempty,slug"`
}

const maxSlugLength = 30

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// reservedSlugs collide with top-level routes and can never name a room.
var reservedSlugs = map[string]bool{"new": true, "login": true}

// IsSlug reports whether s is a well formed room slug.
func IsSlug(s string) bool {
	return len(s) > 0 && len(s) <= maxSlugLength && slugPattern.MatchString(s)
}

// IsReservedSlug reports whether s is a path segment owned by another route.
func IsReservedSlug(s string) bool {
	return reservedSlugs[s]
}

// ParseLocation maps a browser location (absolute URL or bare path) to a route.
// The second return is false when no route matches.
func ParseLocation(location string) (RouteProps, bool) {
	u, err := url.Parse(location)
	if err != nil {
		return RouteProps{}, false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	switch path {
	case "/":
		return RouteProps{Name: RouteHome}, true
	case "/login":
		return RouteProps{Name: RouteLogin}, true
	case "/new":
		return RouteProps{Name: RouteNewRoom}, true
	}

	seg := strings.TrimPrefix(path, "/")
	if strings.Contains(seg, "/") || !IsSlug(seg) {
		return RouteProps{}, false
	}
	return RouteProps{Name: RouteRoom, RoomSlug: seg}, true
}
