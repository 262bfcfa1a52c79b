package jsonapi

import "strings"

// URLBuilder composes request URLs from an optional host, optional
// namespace, the pluralized model type, and an optional id (spec §6).
type URLBuilder struct {
	Host      string
	Namespace string
}

// ResourceURL builds the URL for a single resource, or the collection
// URL when id is empty.
func (b URLBuilder) ResourceURL(modelType, id string) string {
	var sb strings.Builder
	if b.Host != "" {
		sb.WriteString(strings.TrimSuffix(b.Host, "/"))
	}
	if b.Namespace != "" {
		sb.WriteString("/")
		sb.WriteString(strings.Trim(b.Namespace, "/"))
	}
	sb.WriteString("/")
	sb.WriteString(Pluralize(modelType))
	if id != "" {
		sb.WriteString("/")
		sb.WriteString(id)
	}
	return sb.String()
}

// RelationshipURL builds the URL for a resource's to-many relationship
// endpoint, used by addToHasMany/removeFromHasMany (spec §6).
func (b URLBuilder) RelationshipURL(modelType, id, relationship string) string {
	return b.ResourceURL(modelType, id) + "/relationships/" + relationship
}

// Pluralize applies the handful of English pluralization rules the
// teacher's model types actually need (plain "s", "y"->"ies", "s"/"x"/
// "ch"/"sh"->"es"). This is deliberately not a full inflection library:
// the schema compiler that would own richer pluralization rules is out
// of scope for this core (spec §1).
func Pluralize(modelType string) string {
	if modelType == "" {
		return modelType
	}
	lower := modelType
	switch {
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(lower[len(lower)-2]):
		return lower[:len(lower)-1] + "ies"
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "ch"), strings.HasSuffix(lower, "sh"):
		return lower + "es"
	default:
		return lower + "s"
	}
}

// Singularize reverses Pluralize well enough to turn a wire-format
// resource type (always plural per the examples in spec §6) back into
// the local model type used as a cache Identity.Type. Same scope caveat
// as Pluralize: a handful of rules, not a full inflector.
func Singularize(wireType string) string {
	switch {
	case strings.HasSuffix(wireType, "ies") && len(wireType) > 3:
		return wireType[:len(wireType)-3] + "y"
	case strings.HasSuffix(wireType, "ches"), strings.HasSuffix(wireType, "shes"),
		strings.HasSuffix(wireType, "xes"), strings.HasSuffix(wireType, "ses"):
		return wireType[:len(wireType)-2]
	case strings.HasSuffix(wireType, "s"):
		return wireType[:len(wireType)-1]
	default:
		return wireType
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}
