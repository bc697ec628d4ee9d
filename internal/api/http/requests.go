package httpapi

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/claims"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their wire names rather than Go names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"query", "json"} {
			name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// fieldDetail is one entry of a 400 response's details array.
type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationError struct {
	details []fieldDetail
}

func (e *validationError) Error() string {
	msgs := make([]string, 0, len(e.details))
	for _, d := range e.details {
		msgs = append(msgs, d.Message)
	}
	return strings.Join(msgs, ", ")
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	Lat *float64 `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `query:"lon" validate:"required,gte=-180,lte=180"`
}

func (l locationQuery) toLocation() weather.Location {
	return weather.Location{Lat: *l.Lat, Lon: *l.Lon}
}

// weatherQuery is a location plus the requested unit system.
type weatherQuery struct {
	locationQuery
	Units string `query:"units" validate:"omitempty,oneof=metric imperial"`
}

func (q weatherQuery) units() weather.Units {
	if q.Units == "" {
		return weather.UnitsMetric
	}
	return weather.Units(q.Units)
}

// historyQuery holds query parameters for the historical endpoint.
type historyQuery struct {
	locationQuery
	StartDate time.Time `query:"startDate" validate:"required"`
	EndDate   time.Time `query:"endDate" validate:"required,gtefield=StartDate"`
}

// validateBody is the claim validation request.
type validateBody struct {
	WeatherData *claims.Submission `json:"weatherData" validate:"required"`
	Location    *locationBody      `json:"location" validate:"required"`
	Timestamp   string             `json:"timestamp" validate:"required"`
}

type locationBody struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

// queryBinder reads typed query parameters and remembers the ones that did not
// parse, so the validator does not report them a second time.
type queryBinder struct {
	c       *fiber.Ctx
	details []fieldDetail
}

func (b *queryBinder) float(name string) *float64 {
	raw := strings.TrimSpace(b.c.Query(name))
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		b.invalid(name, "must be a number")
		return nil
	}
	return &f
}

func (b *queryBinder) time(name string) time.Time {
	raw := strings.TrimSpace(b.c.Query(name))
	if raw == "" {
		return time.Time{}
	}
	ts, err := parseTime(raw)
	if err != nil {
		b.invalid(name, "must be a valid ISO 8601 date")
		return time.Time{}
	}
	return ts
}

func (b *queryBinder) invalid(field, msg string) {
	b.details = append(b.details, fieldDetail{Field: field, Message: strconv.Quote(field) + " " + msg})
}

func (b *queryBinder) location() locationQuery {
	return locationQuery{Lat: b.float("lat"), Lon: b.float("lon")}
}

func bindLocation(c *fiber.Ctx) (locationQuery, error) {
	b := &queryBinder{c: c}
	q := b.location()
	return q, check(q, b.details)
}

func bindWeather(c *fiber.Ctx) (weatherQuery, error) {
	b := &queryBinder{c: c}
	q := weatherQuery{
		locationQuery: b.location(),
		Units:         strings.TrimSpace(c.Query("units")),
	}
	return q, check(q, b.details)
}

func bindHistory(c *fiber.Ctx) (historyQuery, error) {
	b := &queryBinder{c: c}
	q := historyQuery{
		locationQuery: b.location(),
		StartDate:     b.time("startDate"),
		EndDate:       b.time("endDate"),
	}
	return q, check(q, b.details)
}

// bindValidate decodes and validates the claim validation body.
func bindValidate(c *fiber.Ctx) (validateBody, time.Time, error) {
	var body validateBody
	if err := c.BodyParser(&body); err != nil {
		return body, time.Time{}, &validationError{details: []fieldDetail{{
			Field:   "body",
			Message: fmt.Sprintf("request body must be a JSON object: %v", err),
		}}}
	}

	var parsed []fieldDetail
	var ts time.Time
	if body.Timestamp != "" {
		var err error
		if ts, err = parseTime(body.Timestamp); err != nil {
			parsed = append(parsed, fieldDetail{Field: "timestamp", Message: `"timestamp" must be a valid ISO 8601 date`})
		}
	}
	return body, ts, check(body, parsed)
}

// check runs struct validation and merges the result with details collected
// while parsing. It returns nil when there is nothing to report.
func check(v any, parsed []fieldDetail) error {
	details := parsed
	seen := make(map[string]bool, len(parsed))
	for _, d := range parsed {
		seen[d.Field] = true
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			field := fieldPath(fe)
			if seen[field] {
				continue
			}
			details = append(details, fieldDetail{Field: field, Message: describe(fe)})
		}
	}

	if len(details) == 0 {
		return nil
	}
	return &validationError{details: details}
}

// fieldPath drops the root struct name from the namespace: "validateBody.location.lat" -> "location.lat".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	// Embedded structs show up as their type name.
	return strings.TrimPrefix(ns, "locationQuery.")
}

func describe(fe validator.FieldError) string {
	name := strconv.Quote(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gtefield":
		return name + ` must not be before "startDate"`
	default:
		return name + " is invalid"
	}
}

// parseTime accepts RFC3339, a bare ISO date, a local ISO timestamp (read as
// UTC) or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use ISO 8601 or unix seconds")
}
