package article

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// Record is the wire form of an article as scrapers deliver it, in JSON or
// YAML files and in POST bodies.
type Record struct {
	ID        string `json:"id" yaml:"id" validate:"required,max=256" jsonschema:"required,description=Stable unique article id"`
	Title     string `json:"title" yaml:"title" validate:"required" jsonschema:"required"`
	Content   string `json:"content" yaml:"content" jsonschema:"description=Plain text body; HTML and Markdown are stripped before embedding"`
	URL       string `json:"url,omitempty" yaml:"url" validate:"omitempty,url" jsonschema:"format=uri"`
	ScrapedAt string `json:"scraped_at,omitempty" yaml:"scraped_at" validate:"omitempty,timestamp" jsonschema:"description=RFC 3339 or 2006-01-02 15:04:05 (UTC); absent means unknown"`
}

// TimeLayouts are the accepted scraped_at formats, tried in order. Times
// without a zone are UTC.
var TimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a scraped_at value. The empty string is the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
			_, err := ParseTime(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Validate checks r and reports every problem in one error.
func (r *Record) Validate() error {
	err := getValidator().Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]error, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = errors.New(fieldMessage(fe))
	}
	return errors.Join(msgs...)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "url":
		return field + " must be a valid URL"
	case "timestamp":
		return field + " must be RFC 3339 or 2006-01-02 15:04:05"
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

// Article validates r and converts it.
func (r *Record) Article() (Article, error) {
	if err := r.Validate(); err != nil {
		return Article{}, err
	}
	scrapedAt, err := ParseTime(r.ScrapedAt)
	if err != nil {
		return Article{}, err
	}
	return Article{
		ID:        strings.TrimSpace(r.ID),
		Title:     r.Title,
		Content:   r.Content,
		URL:       r.URL,
		ScrapedAt: scrapedAt,
		ClusterID: Unassigned,
	}, nil
}

// RecordSchema describes Record as JSON Schema for scraper authors.
func RecordSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&Record{})
	if schema.Type == "" {
		schema.Type = "object"
	}
	schema.Title = "Article"
	return schema
}
