package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedPreferences is returned alongside a usable Preferences value
// when one or more stored fields had to be dropped.
var ErrMalformedPreferences = errors.New("malformed preference data")

var validate = validator.New()

// ageBounds is the validated form of the stored age range.
type ageBounds struct {
	Min int `validate:"omitempty,gte=18,lte=120"`
	Max int `validate:"omitempty,gte=18,lte=120"`
}

// storedDistance is the object form of a stored distance preference.
type storedDistance struct {
	Value float64 `json:"value" validate:"gte=0"`
	Unit  string  `json:"unit"`
}

// DecodePreferences converts a stored preference blob into a validated
// Preferences snapshot. Each field is decoded on its own; a field that is
// malformed is replaced by its permissive default and logged, and the
// returned error wraps ErrMalformedPreferences. The returned Preferences is
// always usable.
func DecodePreferences(raw []byte, logger *slog.Logger) (Preferences, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var prefs Preferences
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return prefs, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		logger.Warn("preference blob is not a JSON object, using defaults", "error", err)
		return prefs, fmt.Errorf("%w: %v", ErrMalformedPreferences, err)
	}

	var bad []string
	drop := func(field string, err error) {
		bad = append(bad, field)
		logger.Warn("ignoring malformed preference field", "field", field, "error", err)
	}

	var bounds ageBounds
	if v, ok := fields["min_age"]; ok {
		if err := json.Unmarshal(v, &bounds.Min); err != nil {
			drop("min_age", err)
		}
	}
	if v, ok := fields["max_age"]; ok {
		if err := json.Unmarshal(v, &bounds.Max); err != nil {
			drop("max_age", err)
		}
	}
	if err := validate.Struct(bounds); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				switch fe.Field() {
				case "Min":
					bounds.Min = 0
					drop("min_age", fe)
				case "Max":
					bounds.Max = 0
					drop("max_age", fe)
				}
			}
		}
	}
	if bounds.Min > 0 && bounds.Max > 0 && bounds.Min > bounds.Max {
		drop("max_age", fmt.Errorf("max_age %d below min_age %d", bounds.Max, bounds.Min))
		bounds.Max = 0
	}
	prefs.MinAge, prefs.MaxAge = bounds.Min, bounds.Max

	unit := UnitMiles
	if v, ok := fields["distance_unit"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			drop("distance_unit", err)
		} else {
			unit = ParseDistanceUnit(s)
		}
	}
	for _, key := range []string{"distance", "max_distance"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		d, err := decodeDistance(v, unit)
		if err != nil {
			drop(key, err)
			continue
		}
		prefs.Distance = d
		break
	}

	if v, ok := fields["deal_breakers"]; ok {
		dbs, err := decodeDealBreakers(v)
		if err != nil {
			drop("deal_breakers", err)
		}
		for _, d := range dbs {
			if d.Kind == DealBreakerUnknown {
				logger.Info("keeping unrecognized deal-breaker as legacy entry", "raw", d.Raw)
			}
		}
		prefs.DealBreakers = dbs
	}

	if v, ok := fields["smoking_tolerance"]; ok {
		if lvl, err := decodeHabit(v); err != nil {
			drop("smoking_tolerance", err)
		} else {
			prefs.SmokingTolerance = lvl
		}
	}
	if v, ok := fields["drinking_tolerance"]; ok {
		if lvl, err := decodeHabit(v); err != nil {
			drop("drinking_tolerance", err)
		} else {
			prefs.DrinkingTolerance = lvl
		}
	}

	if v, ok := fields["children_preference"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			drop("children_preference", err)
		} else {
			prefs.ChildrenPreference = ParseChildrenPreference(s)
		}
	}

	if v, ok := fields["priorities"]; ok {
		var names []string
		if err := json.Unmarshal(v, &names); err != nil {
			drop("priorities", err)
		} else {
			if len(names) > MaxPriorities {
				logger.Warn("truncating priority list", "count", len(names), "max", MaxPriorities)
				names = names[:MaxPriorities]
			}
			for _, n := range names {
				p := ParsePriority(n)
				if p.Kind == PriorityUnknown {
					logger.Info("keeping unrecognized priority as legacy entry", "raw", p.Raw)
				}
				prefs.Priorities = append(prefs.Priorities, p)
			}
		}
	}

	if len(bad) > 0 {
		return prefs, fmt.Errorf("%w: %s", ErrMalformedPreferences, strings.Join(bad, ", "))
	}
	return prefs, nil
}

func decodeDistance(v json.RawMessage, unit DistanceUnit) (DistanceLimit, error) {
	var num float64
	if err := json.Unmarshal(v, &num); err == nil {
		if num <= 0 {
			return Unlimited(), nil
		}
		return Within(num, unit), nil
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		switch Normalize(s) {
		case "unlimited", "anywhere", "any", "":
			return Unlimited(), nil
		case "country", "country_level", "nationwide", "same_country":
			return CountryOnly(), nil
		}
		return DistanceLimit{}, fmt.Errorf("unknown distance sentinel %q", s)
	}

	var obj storedDistance
	if err := json.Unmarshal(v, &obj); err != nil {
		return DistanceLimit{}, err
	}
	if err := validate.Struct(obj); err != nil {
		return DistanceLimit{}, err
	}
	if obj.Value == 0 {
		return Unlimited(), nil
	}
	if obj.Unit != "" {
		unit = ParseDistanceUnit(obj.Unit)
	}
	return Within(obj.Value, unit), nil
}

func decodeHabit(v json.RawMessage) (HabitLevel, error) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return HabitUnknown, err
	}
	lvl := ParseHabitLevel(s)
	if lvl == HabitUnknown && strings.TrimSpace(s) != "" {
		return HabitUnknown, fmt.Errorf("unknown habit level %q", s)
	}
	return lvl, nil
}

// decodeDealBreakers accepts a list whose entries are bare tokens
// ("smoking"), "dimension:value" strings, or {"dimension","value"} objects.
// Entries that fail to decode become unknown variants instead of failing the
// whole list; the returned error reports a list that is not an array at all.
func decodeDealBreakers(v json.RawMessage) ([]DealBreaker, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, err
	}
	out := make([]DealBreaker, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, ParseDealBreaker(s))
			continue
		}
		var obj struct {
			Dimension string `json:"dimension"`
			Value     string `json:"value"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Dimension != "" {
			out = append(out, dealBreakerFor(obj.Dimension, obj.Value, string(item)))
			continue
		}
		out = append(out, DealBreaker{Kind: DealBreakerUnknown, Raw: string(item)})
	}
	return out, nil
}

// ParseDealBreaker interprets a string deal-breaker token.
func ParseDealBreaker(s string) DealBreaker {
	raw := strings.TrimSpace(s)
	dim, value, hasValue := strings.Cut(raw, ":")
	if !hasValue {
		dim, value, hasValue = strings.Cut(raw, "=")
	}
	if !hasValue {
		value = ""
	}
	return dealBreakerFor(dim, value, raw)
}

func dealBreakerFor(dimName, value, raw string) DealBreaker {
	norm := Normalize(dimName)
	switch norm {
	case "smoker", "smokers":
		norm = "smoking"
	case "drinker", "drinkers":
		norm = "drinking"
	case "kids":
		norm = "children"
	}
	dim, ok := ParseDimension(norm)
	if !ok {
		return DealBreaker{Kind: DealBreakerUnknown, Raw: raw}
	}
	value = Normalize(value)
	switch {
	case dim == DimensionChildren && value == "":
		return DealBreaker{Kind: DealBreakerChildren, Dimension: dim, Raw: raw}
	case (dim == DimensionSmoking || dim == DimensionDrinking) && value == "":
		return DealBreaker{Kind: DealBreakerHabit, Dimension: dim, Raw: raw}
	case dim == DimensionSmoking || dim == DimensionDrinking:
		lvl := ParseHabitLevel(value)
		if !lvl.Known() {
			return DealBreaker{Kind: DealBreakerUnknown, Raw: raw}
		}
		return DealBreaker{Kind: DealBreakerAttribute, Dimension: dim, Value: lvl.String(), Raw: raw}
	case dim == DimensionChildren:
		st := ParseChildrenStatus(value)
		if st == ChildrenUnknown {
			return DealBreaker{Kind: DealBreakerUnknown, Raw: raw}
		}
		return DealBreaker{Kind: DealBreakerAttribute, Dimension: dim, Value: string(st), Raw: raw}
	case value == "":
		return DealBreaker{Kind: DealBreakerUnknown, Raw: raw}
	default:
		return DealBreaker{Kind: DealBreakerAttribute, Dimension: dim, Value: value, Raw: raw}
	}
}
