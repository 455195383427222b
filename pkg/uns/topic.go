// Package uns defines the Unified Namespace topic grammar and the
// retained-vs-streaming policy attached to it.
//
// Topics follow the ISA-95 style hierarchy
//
//	{prefix}/{enterprise}/{site}/{area}/{cell}/{Namespace}/{field...}
//
// for cell-level data, and
//
//	{prefix}/{enterprise}/{site}/{Namespace}/{field...}
//
// for site-level aggregates. The namespace segment decides whether a value
// is retained on the broker (last-known-value semantics) or streamed.
package uns

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPrefix is the topic prefix other tooling subscribes under.
const DefaultPrefix = "umh/v1"

// Namespace segments used at the cell and site level.
const (
	NamespaceAsset     = "Asset"
	NamespaceEdge      = "Edge"
	NamespaceLine      = "Line"
	NamespaceDashboard = "Dashboard"
	NamespaceRaw       = "_raw"
	NamespaceERP       = "ERP"
	NamespaceMES       = "MES"
	NamespaceDPP       = "DPP"
)

// Control topics live outside the UNS tree so they survive a namespace
// clear. Other tooling writes to these and reads status from them.
const (
	ControlLevelTopic = "metalfab-sim/control/level"
	ControlSitePrefix = "metalfab-sim/control/site/"
	ControlClearTopic = "metalfab-sim/control/clear"
	StatusTopic       = "metalfab-sim/status"
	StatusSitesPrefix = "metalfab-sim/sites/"
	ControlWildcard   = "metalfab-sim/#"
)

// Address identifies a cell's position in the hierarchy.
type Address struct {
	Enterprise string
	Site       string
	Area       string
	Cell       string
}

// CellTopic builds a cell-level topic.
func CellTopic(prefix string, addr Address, namespace string, fields ...string) string {
	parts := append([]string{prefix, addr.Enterprise, addr.Site, addr.Area, addr.Cell, namespace}, fields...)
	return strings.Join(parts, "/")
}

// SiteTopic builds a site-level aggregate topic.
func SiteTopic(prefix, enterprise, site, namespace string, fields ...string) string {
	parts := append([]string{prefix, enterprise, site, namespace}, fields...)
	return strings.Join(parts, "/")
}

// ControlSiteTopic returns the enable/disable control topic for a site.
func ControlSiteTopic(siteID string) string { return ControlSitePrefix + siteID }

// Retained reports whether a topic carries last-known-value semantics.
//
// Asset, Line and Dashboard namespaces are retained, as is the single
// Edge/ShopFloor aggregate. Everything else under Edge and the _raw
// historian mirror streams without retention. Site-level ERP/MES topics
// are retained except explicitly event-like ones (SalesOrder/New).
func Retained(topic string) bool {
	segs := strings.Split(topic, "/")
	for i, seg := range segs {
		switch seg {
		case NamespaceAsset, NamespaceLine, NamespaceDashboard, NamespaceDPP:
			return true
		case NamespaceEdge:
			return i+1 < len(segs) && segs[i+1] == "ShopFloor"
		case NamespaceRaw:
			return false
		case NamespaceERP:
			return !strings.HasSuffix(topic, "/SalesOrder/New")
		case NamespaceMES:
			return true
		}
	}
	return strings.HasPrefix(topic, "metalfab-sim/")
}

// Match reports whether topic matches a doublestar pattern. Patterns use
// '/'-separated glob syntax ("umh/v1/metalfab/**" etc.), not MQTT
// wildcards.
func Match(pattern, topic string) bool {
	ok, err := doublestar.Match(pattern, topic)
	return err == nil && ok
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// SnakeCase converts a CamelCase tag name to the snake_case form used by
// the _raw historian mirror (e.g. "LaserPower" → "laser_power").
func SnakeCase(name string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(name, "${1}_${2}"))
}
