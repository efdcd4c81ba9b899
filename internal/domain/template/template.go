// Package template defines declarative document templates: named sections,
// typed fields, and per-field extraction hints that drive the structured
// extraction engine.
package template

import (
	"fmt"
	"regexp"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
)

// FieldType enumerates the value types a field can resolve to.
type FieldType string

const (
	FieldTypeText         FieldType = "text"
	FieldTypeMultiline    FieldType = "multiline"
	FieldTypeNumber       FieldType = "number"
	FieldTypeDate         FieldType = "date"
	FieldTypeBoolean      FieldType = "boolean"
	FieldTypeSingleChoice FieldType = "single_choice"
)

// ExtractionHint tells the extraction engine where and how to find a field's
// value in unstructured document text. Keywords are tried in declared order;
// a regex, when present, takes priority over all keywords. Page restricts the
// search scope to a single 1-based page when set.
type ExtractionHint struct {
	Keywords []string `json:"keywords,omitempty"`
	Regex    string   `json:"regex,omitempty"`
	Page     int      `json:"page,omitempty"`
}

// Section groups related fields under a localized heading.
type Section struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Field declares one extractable value.
type Field struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Type      FieldType      `json:"type"`
	Required  bool           `json:"required,omitempty"`
	SectionID string         `json:"section_id"`
	Choices   []string       `json:"choices,omitempty"`
	Default   string         `json:"default,omitempty"`
	Hint      ExtractionHint `json:"extraction_hint"`
}

// Template is a versioned-by-id document blueprint. A template that has been
// referenced by a stored submission is locked; changing it afterwards means
// saving under a new id, never editing in place.
type Template struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Language string         `json:"language,omitempty"`
	Sections []Section      `json:"sections"`
	Fields   []Field        `json:"fields"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Locked   bool           `json:"locked,omitempty"`
}

// Validate checks the template's internal consistency. It runs before every
// save; a field referencing a missing section is rejected here, not at
// extraction time.
func (t *Template) Validate() error {
	if t.ID == "" {
		return errors.NewValidationError("MISSING_TEMPLATE_ID", "template id is required")
	}
	if t.Name == "" {
		return errors.NewValidationError("MISSING_TEMPLATE_NAME", "template name is required")
	}

	sectionIDs := make(map[string]struct{}, len(t.Sections))
	for _, s := range t.Sections {
		if s.ID == "" {
			return errors.NewValidationError("MISSING_SECTION_ID", "section id is required")
		}
		if _, dup := sectionIDs[s.ID]; dup {
			return errors.NewValidationError("DUPLICATE_SECTION_ID",
				fmt.Sprintf("section id %q declared more than once", s.ID))
		}
		sectionIDs[s.ID] = struct{}{}
	}

	fieldIDs := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if f.ID == "" {
			return errors.NewValidationError("MISSING_FIELD_ID", "field id is required")
		}
		if _, dup := fieldIDs[f.ID]; dup {
			return errors.NewValidationError("DUPLICATE_FIELD_ID",
				fmt.Sprintf("field id %q declared more than once", f.ID))
		}
		fieldIDs[f.ID] = struct{}{}

		if err := validateFieldType(f.Type); err != nil {
			return err
		}

		if _, ok := sectionIDs[f.SectionID]; !ok {
			return errors.NewValidationError("UNKNOWN_SECTION_REF",
				fmt.Sprintf("field %q references unknown section %q", f.ID, f.SectionID))
		}

		if f.Type == FieldTypeSingleChoice && len(f.Choices) == 0 {
			return errors.NewValidationError("EMPTY_CHOICES",
				fmt.Sprintf("single-choice field %q must declare choices", f.ID))
		}

		if f.Hint.Regex != "" {
			if _, err := regexp.Compile("(?i)" + f.Hint.Regex); err != nil {
				return errors.NewValidationError("INVALID_EXTRACTION_REGEX",
					fmt.Sprintf("field %q has an invalid extraction regex", f.ID)).WithCause(err)
			}
		}
		if f.Hint.Page < 0 {
			return errors.NewValidationError("INVALID_PAGE_HINT",
				fmt.Sprintf("field %q page hint must be 1-based", f.ID))
		}
	}

	return nil
}

// FieldByID returns the declared field with the given id, if any.
func (t *Template) FieldByID(id string) (*Field, bool) {
	for i := range t.Fields {
		if t.Fields[i].ID == id {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

func validateFieldType(ft FieldType) error {
	switch ft {
	case FieldTypeText, FieldTypeMultiline, FieldTypeNumber, FieldTypeDate,
		FieldTypeBoolean, FieldTypeSingleChoice:
		return nil
	case "":
		return errors.NewValidationError("MISSING_FIELD_TYPE", "field type is required")
	default:
		return errors.NewValidationError("INVALID_FIELD_TYPE",
			fmt.Sprintf("unknown field type %q", ft))
	}
}
