package compliance

import "strings"

// WhitelistKey is the identity under which an active whitelist entry is unique.
// TagName is only part of the key for tag-presence entries.
type WhitelistKey struct {
	RuleID     string
	ObjectType ObjectType
	ObjectName string
	TagName    string
}

func NewWhitelistKey(ruleID string, objectType ObjectType, objectName, tagName string) WhitelistKey {
	key := WhitelistKey{
		RuleID:     strings.ToUpper(strings.TrimSpace(ruleID)),
		ObjectType: objectType,
		ObjectName: strings.TrimSpace(objectName),
	}
	if key.RuleID == MissingTagRuleID {
		key.TagName = ShortTagName(tagName)
	}
	return key
}

func (e WhitelistEntry) Key() WhitelistKey {
	tag := ""
	if e.TagName != nil {
		tag = *e.TagName
	}
	return NewWhitelistKey(e.RuleID, e.ObjectType, e.ObjectName, tag)
}

func (v Violation) WhitelistKey() WhitelistKey {
	return NewWhitelistKey(v.RuleID, v.ObjectType, v.ObjectName, v.TagName)
}

// Whitelist is a lookup set over the active entries of a whitelist snapshot.
type Whitelist struct {
	entries map[WhitelistKey]WhitelistEntry
}

func NewWhitelist(entries []WhitelistEntry) Whitelist {
	w := Whitelist{entries: make(map[WhitelistKey]WhitelistEntry, len(entries))}
	for _, e := range entries {
		if !e.Active {
			continue
		}
		w.entries[e.Key()] = e
	}
	return w
}

func (w Whitelist) Lookup(key WhitelistKey) (WhitelistEntry, bool) {
	e, ok := w.entries[key]
	return e, ok
}

func (w Whitelist) Contains(key WhitelistKey) bool {
	_, ok := w.entries[key]
	return ok
}

func (w Whitelist) Len() int {
	return len(w.entries)
}

// Mark sets Whitelisted on every violation that has an active entry.
func (w Whitelist) Mark(violations []Violation) {
	for i := range violations {
		violations[i].Whitelisted = w.Contains(violations[i].WhitelistKey())
	}
}
