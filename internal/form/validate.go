package form

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/formula"
	"FS-FORMS/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// PhoneRegion is used for phone numbers written without a country prefix.
var PhoneRegion = "TH"

const dateLayout = "2006-01-02"

var validate = validator.New()

// Validate checks the value map for status. Drafts may hold partial or
// invalid data; a submission needs every required field filled and every
// validation rule satisfied.
func (s *Session) Validate(status models.SubmissionStatus) error {
	if status != models.StatusSubmitted {
		return nil
	}

	problems := make(map[string]string)
	for id, f := range s.fields {
		if f.Type == models.FieldCalculation {
			continue
		}
		v := s.values[id]
		if isEmpty(f.Type, v) {
			if f.Required {
				problems[id] = "is required"
			}
			continue
		}
		if msg := checkValue(f, v); msg != "" {
			problems[id] = msg
		}
	}

	if len(problems) > 0 {
		return &apperr.ValidationError{Message: "form has invalid fields", Fields: problems}
	}
	return nil
}

func isEmpty(t models.FieldType, v any) bool {
	switch t {
	case models.FieldCheckbox:
		return !toBool(v)
	case models.FieldNumber:
		return v == nil
	default:
		return strings.TrimSpace(stringValue(v)) == ""
	}
}

func checkValue(f models.TemplateField, v any) string {
	switch f.Type {
	case models.FieldDate:
		if _, err := time.Parse(dateLayout, stringValue(v)); err != nil {
			return "must be a date in YYYY-MM-DD format"
		}
	case models.FieldSelect, models.FieldRadio:
		current := stringValue(v)
		found := false
		for _, opt := range f.Options {
			if opt == current {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("%q is not one of the options", current)
		}
	}

	for _, r := range ParseRules(f.Validation) {
		if msg := r.check(f.Type, v); msg != "" {
			return msg
		}
	}
	return ""
}

// Rule is one entry of a field's validation string, e.g. "min=0" or "email".
type Rule struct {
	Name  string
	Param string
}

// ParseRules splits a validation string such as "min=1|max=10|email".
// A pattern rule swallows the rest of the string so its regex may contain
// '|'. Unknown rules are kept and ignored at check time.
func ParseRules(rest string) []Rule {
	var rules []Rule
	for {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			break
		}
		if strings.HasPrefix(rest, "pattern=") {
			rules = append(rules, Rule{Name: "pattern", Param: strings.TrimPrefix(rest, "pattern=")})
			break
		}
		part := rest
		if i := strings.IndexByte(rest, '|'); i >= 0 {
			part, rest = rest[:i], rest[i+1:]
		} else {
			rest = ""
		}
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, param, _ := strings.Cut(part, "=")
		rules = append(rules, Rule{Name: strings.ToLower(strings.TrimSpace(name)), Param: strings.TrimSpace(param)})
	}
	return rules
}

func (r Rule) check(t models.FieldType, v any) string {
	switch r.Name {
	case "min", "max":
		limit, err := decimal.NewFromString(r.Param)
		if err != nil {
			return ""
		}
		var n decimal.Decimal
		if t == models.FieldNumber {
			n = formula.ToNumber(v)
		} else {
			n = decimal.NewFromInt(int64(utf8.RuneCountInString(stringValue(v))))
		}
		if r.Name == "min" && n.LessThan(limit) {
			return "must be at least " + limit.String()
		}
		if r.Name == "max" && n.GreaterThan(limit) {
			return "must be at most " + limit.String()
		}
	case "minlen", "maxlen":
		limit, err := strconv.Atoi(r.Param)
		if err != nil {
			return ""
		}
		n := utf8.RuneCountInString(stringValue(v))
		if r.Name == "minlen" && n < limit {
			return fmt.Sprintf("must be at least %d characters", limit)
		}
		if r.Name == "maxlen" && n > limit {
			return fmt.Sprintf("must be at most %d characters", limit)
		}
	case "email":
		if err := validate.Var(stringValue(v), "email"); err != nil {
			return "must be a valid email address"
		}
	case "phone":
		region := PhoneRegion
		if r.Param != "" {
			region = strings.ToUpper(r.Param)
		}
		num, err := libphonenumber.Parse(stringValue(v), region)
		if err != nil || !libphonenumber.IsValidNumber(num) {
			return "must be a valid phone number"
		}
	case "pattern":
		re, err := regexp.Compile(r.Param)
		if err != nil {
			return ""
		}
		if !re.MatchString(stringValue(v)) {
			return "has an invalid format"
		}
	}
	return ""
}

// KnownRule reports whether the rule name is understood by the checker.
func KnownRule(name string) bool {
	switch name {
	case "min", "max", "minlen", "maxlen", "email", "phone", "pattern":
		return true
	}
	return false
}
