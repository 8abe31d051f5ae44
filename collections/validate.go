package collections

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	matchesTag = "matches"
	patterns   sync.Map // pattern -> *regexp.Regexp
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	_ = validate.RegisterValidation(matchesTag, matchesValidation)
	_ = validate.RegisterTranslation(matchesTag, translator,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string { return "has an invalid format" },
	)
}

// matchesValidation checks a string against the regexp given as the tag
// parameter. Commas and pipes in the pattern arrive hex-escaped.
func matchesValidation(fl validator.FieldLevel) bool {
	re, err := compilePattern(fl.Param())
	if err != nil {
		return false
	}
	return re.MatchString(fl.Field().String())
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}

func escapeParam(s string) string {
	return strings.NewReplacer(",", "0x2C", "|", "0x7C").Replace(s)
}

// FieldError is a validation failure of one field. Field is the path of the
// value, e.g. "locations[1].lat".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every failure of an entity.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Map returns field path -> message, keeping the first message per field.
func (v ValidationErrors) Map() map[string]string {
	out := make(map[string]string, len(v))
	for _, fe := range v {
		if _, ok := out[fe.Field]; !ok {
			out[fe.Field] = fe.Message
		}
	}
	return out
}

// Validate checks e against the collection schema. It returns nil when the
// entity is valid, otherwise a ValidationErrors value.
func Validate(c Collection, e Entity) error {
	var errs ValidationErrors
	for _, p := range c.Properties {
		v, ok := e[p.Key]
		if !ok {
			v = nil
		}
		checkValue(p, p.Key, v, &errs)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// AsValidationErrors unwraps ValidationErrors from err.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs, true
	}
	return nil, false
}

func checkValue(p Property, field string, v any, errs *ValidationErrors) {
	label := p.Name
	if label == "" {
		label = field
	}
	add := func(msg string) {
		*errs = append(*errs, FieldError{Field: field, Message: msg})
	}

	if v == nil {
		if p.Required {
			add(requiredMessage(p, label))
		}
		return
	}

	switch p.DataType {
	case String, Reference:
		s, ok := v.(string)
		if !ok {
			add(label + " must be text")
			return
		}
		if err := validate.Var(s, stringRules(p)); err != nil {
			addFieldErrors(p, label, err, add)
		}
	case Number:
		f, ok := v.(float64)
		if !ok {
			add(label + " must be a number")
			return
		}
		if rules := numberRules(p); rules != "" {
			if err := validate.Var(f, rules); err != nil {
				addFieldErrors(p, label, err, add)
			}
		}
	case Boolean:
		if _, ok := v.(bool); !ok {
			add(label + " must be true or false")
		}
	case Date:
		s, ok := v.(string)
		if !ok {
			add(label + " must be a date")
			return
		}
		if strings.TrimSpace(s) == "" {
			if p.Required {
				add(requiredMessage(p, label))
			}
			return
		}
		if _, err := ParseDate(s); err != nil {
			add(label + " must be a date")
		}
	case Array:
		items, ok := v.([]any)
		if !ok {
			add(label + " must be a list")
			return
		}
		if p.Required && len(items) == 0 {
			add(requiredMessage(p, label))
		}
		if p.Of == nil {
			return
		}
		for i, item := range items {
			of := *p.Of
			if of.Name == "" {
				of.Name = fmt.Sprintf("%s item %d", label, i+1)
			}
			// Array members are always present.
			of.Required = true
			checkValue(of, fmt.Sprintf("%s[%d]", field, i), item, errs)
		}
	case Map:
		m, ok := v.(map[string]any)
		if !ok {
			add(label + " must be an object")
			return
		}
		for _, sub := range p.Properties {
			checkValue(sub, field+"."+sub.Key, m[sub.Key], errs)
		}
	default:
		add(fmt.Sprintf("%s has unsupported type %q", label, p.DataType))
	}
}

func stringRules(p Property) string {
	var rules []string
	if p.Required {
		rules = append(rules, "required")
	} else {
		rules = append(rules, "omitempty")
	}
	if len(p.Enum) > 0 {
		rules = append(rules, "oneof="+strings.Join(p.EnumKeys(), " "))
	}
	if p.Matches != "" {
		rules = append(rules, matchesTag+"="+escapeParam(p.Matches))
	}
	if p.Rules != "" {
		rules = append(rules, p.Rules)
	}
	return strings.Join(rules, ",")
}

func numberRules(p Property) string {
	var rules []string
	if p.Min != nil {
		rules = append(rules, "min="+strconv.FormatFloat(*p.Min, 'f', -1, 64))
	}
	if p.Max != nil {
		rules = append(rules, "max="+strconv.FormatFloat(*p.Max, 'f', -1, 64))
	}
	return strings.Join(rules, ",")
}

func addFieldErrors(p Property, label string, err error, add func(string)) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		add(label + " is invalid")
		return
	}
	for _, fe := range verrs {
		switch {
		case fe.Tag() == "required":
			add(requiredMessage(p, label))
		case fe.Tag() == matchesTag && p.MatchesMessage != "":
			add(p.MatchesMessage)
		default:
			// Var has no field name, so the translation starts with the
			// value the name would take.
			add(label + " " + strings.TrimSpace(fe.Translate(translator)))
		}
	}
}

func requiredMessage(p Property, label string) string {
	if p.RequiredMessage != "" {
		return p.RequiredMessage
	}
	return label + " is required"
}
