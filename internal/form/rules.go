package form

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/dgraph-io/ristretto"
	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"launchpad/internal/logger"
	"launchpad/internal/model"
)

// Predicate reports whether a single field value passes a rule
type Predicate func(value string) bool

func alwaysPass(string) bool { return true }

// fieldValidator checks single values against validator tags. It caches
// parsed tags internally and is safe for concurrent use.
var fieldValidator = validator.New()

// tagPredicate checks a value against a validator tag such as "email" or "min=5"
func tagPredicate(tag string) Predicate {
	return func(s string) bool { return fieldValidator.Var(s, tag) == nil }
}

// lengthTag builds "min=N"/"max=N". A bad bound would make the validator
// panic on first use, so it is rejected here.
func lengthTag(rule model.ValidationRule, bound string) (string, bool) {
	n, err := strconv.Atoi(rule.Value)
	if err != nil || n < 0 {
		logger.Warn("invalid length validation rule", "type", rule.Type, "value", rule.Value)
		return "", false
	}
	return bound + "=" + strconv.Itoa(n), true
}

// RuleSet compiles declared validation rules into predicates and keeps the
// compiled form in a ristretto cache keyed by rule.
type RuleSet struct {
	compiled *ristretto.Cache
}

// NewRuleSet creates a RuleSet caching up to maxRules compiled rules
func NewRuleSet(maxRules int64) (*RuleSet, error) {
	if maxRules <= 0 {
		maxRules = 1024
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxRules * 10,
		MaxCost:     maxRules,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create rule cache: %w", err)
	}
	return &RuleSet{compiled: store}, nil
}

// Check runs every rule against value and returns the first one that fails
func (r *RuleSet) Check(rules []model.ValidationRule, value string) (model.ValidationRule, bool) {
	for _, rule := range rules {
		if !r.Predicate(rule)(value) {
			return rule, false
		}
	}
	return model.ValidationRule{}, true
}

// Predicate returns the compiled form of rule. A nil RuleSet compiles on
// every call.
func (r *RuleSet) Predicate(rule model.ValidationRule) Predicate {
	if r == nil {
		return compileRule(rule)
	}
	key := rule.Type + "\x00" + rule.Value
	if cached, ok := r.compiled.Get(key); ok {
		if p, ok := cached.(Predicate); ok {
			return p
		}
	}
	p := compileRule(rule)
	r.compiled.Set(key, p, 1)
	return p
}

func compileRule(rule model.ValidationRule) Predicate {
	switch rule.Type {
	case "required":
		// presence is checked before rules run
		return alwaysPass
	case "regex", "pattern":
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			logger.Warn("invalid regex validation rule", "pattern", rule.Value, "error", err)
			return alwaysPass
		}
		return re.MatchString
	case "min_length":
		tag, ok := lengthTag(rule, "min")
		if !ok {
			return alwaysPass
		}
		return tagPredicate(tag)
	case "max_length":
		tag, ok := lengthTag(rule, "max")
		if !ok {
			return alwaysPass
		}
		return tagPredicate(tag)
	case "email":
		return tagPredicate("email")
	case "url":
		return tagPredicate("url")
	case "number":
		return tagPredicate("numeric")
	case "json_schema":
		schema, err := jsonschema.CompileString("rule.json", rule.Value)
		if err != nil {
			logger.Warn("invalid json_schema validation rule", "error", err)
			return alwaysPass
		}
		// the field value is validated as a JSON string instance
		return func(s string) bool { return schema.Validate(s) == nil }
	default:
		logger.Warn("unknown validation rule type, treating as pass", "type", rule.Type)
		return alwaysPass
	}
}
