package compliance

// Evaluator computes compliance over point-in-time snapshots. It keeps no state
// between calls and is safe for concurrent use.
type Evaluator struct {
	Applicability Applicability
}

func NewEvaluator(applicability Applicability) Evaluator {
	if applicability == nil {
		applicability = DefaultApplicability()
	}
	return Evaluator{Applicability: applicability}
}

// Evaluate uses the default applicability table.
func Evaluate(objects []Object, rules []AppliedRule, assignments []TagAssignment, whitelist []WhitelistEntry) []ObjectCompliance {
	return NewEvaluator(nil).Evaluate(objects, rules, assignments, whitelist)
}

// EvaluateTagPresence uses the default applicability table.
func EvaluateTagPresence(objects []Object, assignments []TagAssignment, tagRules []TagRule, whitelist []WhitelistEntry) []ObjectTagCompliance {
	return NewEvaluator(nil).EvaluateTagPresence(objects, assignments, tagRules, whitelist)
}

// Evaluate checks every active applied rule against the objects of its target type.
// Whitelisted violations stay in the result with Whitelisted set.
func (e Evaluator) Evaluate(objects []Object, rules []AppliedRule, assignments []TagAssignment, whitelist []WhitelistEntry) []ObjectCompliance {
	tags := NewTagIndex(assignments)
	wl := NewWhitelist(whitelist)
	active := make([]AppliedRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Active && rule.Rule.Active {
			active = append(active, rule)
		}
	}

	results := make([]ObjectCompliance, 0, len(objects))
	for _, object := range objects {
		result := ObjectCompliance{
			Object:          object,
			ObjectType:      object.Kind(),
			ObjectName:      object.QualifiedName(),
			Owner:           object.OwnerName(),
			ApplicableRules: []RuleRef{},
			Violations:      []Violation{},
			CompliantRules:  []RuleRef{},
		}
		tagMap := tags.Resolve(object)
		for _, rule := range active {
			if !e.Applicability.Applies(rule.Rule, object.Kind()) {
				continue
			}
			if !RuleApplies(rule, tagMap) {
				continue
			}
			ref := RuleRef{RuleID: rule.Rule.ID, RuleName: rule.Rule.Name, AppliedRuleID: rule.ID}
			result.ApplicableRules = append(result.ApplicableRules, ref)

			value, known := object.Parameter(rule.Rule.Parameter)
			if !known || rule.Rule.Operator.Compliant(value, rule.Threshold) {
				result.CompliantRules = append(result.CompliantRules, ref)
				continue
			}
			violation := Violation{
				RuleID:        rule.Rule.ID,
				RuleName:      rule.Rule.Name,
				AppliedRuleID: rule.ID,
				ObjectType:    object.Kind(),
				ObjectName:    object.QualifiedName(),
				Parameter:     rule.Rule.Parameter,
				CurrentValue:  value,
				Threshold:     rule.Threshold,
				Operator:      rule.Rule.Operator,
				Unit:          rule.Rule.Unit,
				Description:   rule.Rule.Description,
				FixButton:     rule.Rule.FixButton,
				FixSQL:        rule.Rule.FixSQL,
			}
			violation.Whitelisted = wl.Contains(violation.WhitelistKey())
			result.Violations = append(result.Violations, violation)
		}
		results = append(results, result)
	}
	return results
}

// EvaluateTagPresence flags every object that lacks a tag required by an active
// tag rule for its object type.
func (e Evaluator) EvaluateTagPresence(objects []Object, assignments []TagAssignment, tagRules []TagRule, whitelist []WhitelistEntry) []ObjectTagCompliance {
	tags := NewTagIndex(assignments)
	wl := NewWhitelist(whitelist)

	results := make([]ObjectTagCompliance, 0, len(objects))
	for _, object := range objects {
		tagMap := tags.Resolve(object)
		result := ObjectTagCompliance{
			Object:       object,
			ObjectType:   object.Kind(),
			ObjectName:   object.QualifiedName(),
			Owner:        object.OwnerName(),
			AssignedTags: TagNames(tagMap),
			CheckedRules: []int64{},
			Violations:   []Violation{},
		}
		for _, rule := range tagRules {
			if !rule.Active || rule.ObjectType != object.Kind() {
				continue
			}
			result.CheckedRules = append(result.CheckedRules, rule.ID)
			if _, ok := tagMap[ShortTagName(rule.TagName)]; ok {
				continue
			}
			violation := MissingTagViolation(object, rule)
			violation.Whitelisted = wl.Contains(violation.WhitelistKey())
			result.Violations = append(result.Violations, violation)
		}
		results = append(results, result)
	}
	return results
}

// MissingTagViolation describes an object that lacks the tag required by rule.
// Missing tags are fixable with SQL only since the value has to be chosen by a person.
func MissingTagViolation(object Object, rule TagRule) Violation {
	return Violation{
		RuleID:        MissingTagRuleID,
		RuleName:      "Missing tag " + rule.TagName,
		AppliedRuleID: rule.ID,
		ObjectType:    object.Kind(),
		ObjectName:    object.QualifiedName(),
		Parameter:     ParamTag,
		TagName:       rule.TagName,
		Description:   rule.Description,
		FixSQL:        true,
	}
}
