package compliance

import (
	"sort"
	"strings"
)

// ShortTagName reduces a possibly qualified tag name (DB.SCHEMA."Tag") to the
// upper-cased last segment used as the canonical key.
func ShortTagName(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.Trim(name, `"`)
	return strings.ToUpper(strings.TrimSpace(name))
}

type objectKey struct {
	objectType ObjectType
	name       string
}

func keyOf(object Object) objectKey {
	return objectKey{objectType: object.Kind(), name: object.QualifiedName()}
}

// TagIndex groups tag assignments by object identity.
type TagIndex struct {
	byObject map[objectKey][]TagAssignment
}

func NewTagIndex(assignments []TagAssignment) TagIndex {
	idx := TagIndex{byObject: make(map[objectKey][]TagAssignment)}
	for _, a := range assignments {
		key := objectKey{objectType: a.ObjectType, name: a.ObjectName}
		idx.byObject[key] = append(idx.byObject[key], a)
	}
	return idx
}

// Resolve builds the canonical tag map for one object. When two tags collapse to
// the same short name the later assignment wins.
func (idx TagIndex) Resolve(object Object) map[string]string {
	tags := map[string]string{}
	for _, a := range idx.byObject[keyOf(object)] {
		key := ShortTagName(a.TagName)
		if key == "" {
			continue
		}
		tags[key] = a.TagValue
	}
	return tags
}

// ResolveTags is Resolve without a prebuilt index.
func ResolveTags(object Object, assignments []TagAssignment) map[string]string {
	return NewTagIndex(assignments).Resolve(object)
}

// TagNames returns the sorted canonical tag names of a resolved map.
func TagNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuleApplies checks the scope predicate of an applied rule against a resolved
// tag map. Tag names compare case-insensitively, tag values exactly.
func RuleApplies(rule AppliedRule, tags map[string]string) bool {
	if rule.Scope != ScopeTagBased {
		return true
	}
	if rule.TagName == nil || ShortTagName(*rule.TagName) == "" {
		return false
	}
	value, ok := tags[ShortTagName(*rule.TagName)]
	if !ok {
		return false
	}
	if rule.TagValue != nil && *rule.TagValue != "" {
		return value == *rule.TagValue
	}
	return true
}
