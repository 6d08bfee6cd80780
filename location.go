package texvk

import "strings"

// Location is one place the contents of a subresource can live in.
type Location uint32

// Locations. Cleared is virtual: it says the subresource is entirely equal
// to its pending clear value, without any storage holding it.
const (
	LocationSysmem Location = 1 << iota
	LocationBuffer
	LocationTextureRGB
	LocationTextureSRGB
	LocationRBMultisample
	LocationRBResolved
	LocationCleared
)

var locationNames = []struct {
	loc  Location
	name string
}{
	{LocationSysmem, "SYSMEM"},
	{LocationBuffer, "BUFFER"},
	{LocationTextureRGB, "TEXTURE_RGB"},
	{LocationTextureSRGB, "TEXTURE_SRGB"},
	{LocationRBMultisample, "RB_MULTISAMPLE"},
	{LocationRBResolved, "RB_RESOLVED"},
	{LocationCleared, "CLEARED"},
}

func (l Location) String() string {
	for _, n := range locationNames {
		if n.loc == l {
			return n.name
		}
	}
	return "UNKNOWN"
}

// LocationSet is a set of locations. Every member holds the same,
// up to date contents.
type LocationSet uint32

// Locations returns the set of the given locations.
func Locations(locs ...Location) LocationSet {
	var s LocationSet
	for _, l := range locs {
		s |= LocationSet(l)
	}
	return s
}

// Has reports whether l is in the set.
func (s LocationSet) Has(l Location) bool { return s&LocationSet(l) != 0 }

// HasAny reports whether the sets intersect.
func (s LocationSet) HasAny(o LocationSet) bool { return s&o != 0 }

// IsEmpty reports whether the set has no members.
func (s LocationSet) IsEmpty() bool { return s == 0 }

// Set adds l.
func (s *LocationSet) Set(l Location) { *s |= LocationSet(l) }

// Clear removes l.
func (s *LocationSet) Clear(l Location) { *s &^= LocationSet(l) }

// ClearAllExcept removes every member but l.
func (s *LocationSet) ClearAllExcept(l Location) { *s &= LocationSet(l) }

// Union returns the members of either set.
func (s LocationSet) Union(o LocationSet) LocationSet { return s | o }

// Without returns s minus the members of o.
func (s LocationSet) Without(o LocationSet) LocationSet { return s &^ o }

func (s LocationSet) String() string {
	if s == 0 {
		return "{}"
	}
	var parts []string
	for _, n := range locationNames {
		if s.Has(n.loc) {
			parts = append(parts, n.name)
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// sourcePreference is the order in which valid locations are picked as the
// source of a load.
var sourcePreference = []Location{LocationSysmem, LocationBuffer, LocationTextureRGB}

// Lowest returns the first member in source preference order, and false
// when the set holds none of them.
func (s LocationSet) Lowest() (Location, bool) {
	for _, l := range sourcePreference {
		if s.Has(l) {
			return l, true
		}
	}
	return 0, false
}
