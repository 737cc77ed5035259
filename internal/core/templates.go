package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/remap/internal/record"
)

// TemplateMatchThreshold is the minimum share of a template's source
// headers that must be present for it to be suggested.
const TemplateMatchThreshold = 0.7

// CreateTemplate saves a named mapping.
func (s *Service) CreateTemplate(ctx context.Context, name string, mapping record.FieldMapping) (*MappingTemplate, error) {
	name, err := validateTemplate(name, mapping)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := MappingTemplate{
		ID:        uuid.NewString(),
		Name:      name,
		Mapping:   mapping,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return &t, nil
}

// GetTemplate retrieves a template by ID.
func (s *Service) GetTemplate(ctx context.Context, id string) (*MappingTemplate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invalid template ID %q", ErrTemplateNotFound, id)
	}

	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

// ListTemplates returns all templates ordered by name.
func (s *Service) ListTemplates(ctx context.Context) ([]MappingTemplate, error) {
	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	sort.SliceStable(templates, func(i, j int) bool {
		return strings.ToLower(templates[i].Name) < strings.ToLower(templates[j].Name)
	})
	return templates, nil
}

// UpdateTemplate replaces a template's name and mapping.
func (s *Service) UpdateTemplate(ctx context.Context, id, name string, mapping record.FieldMapping) (*MappingTemplate, error) {
	name, err := validateTemplate(name, mapping)
	if err != nil {
		return nil, err
	}

	existing, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = name
	existing.Mapping = mapping
	existing.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTemplate(ctx, *existing); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return existing, nil
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid template ID %q", ErrTemplateNotFound, id)
	}
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

// MatchTemplates returns templates whose source headers are mostly present
// in headers, best match first.
func (s *Service) MatchTemplates(ctx context.Context, headers []string) ([]TemplateMatch, error) {
	templates, err := s.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	matches := []TemplateMatch{}
	for _, t := range templates {
		score := matchTemplateHeaders(headers, t.SourceHeaders())
		if score >= TemplateMatchThreshold {
			matches = append(matches, TemplateMatch{Template: t, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

// matchTemplateHeaders returns the fraction of templateHeaders present in
// headers, compared case-insensitively after trimming.
func matchTemplateHeaders(headers, templateHeaders []string) float64 {
	if len(templateHeaders) == 0 {
		return 0
	}

	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[strings.ToLower(strings.TrimSpace(h))] = true
	}

	matched := 0
	for _, h := range templateHeaders {
		if present[strings.ToLower(strings.TrimSpace(h))] {
			matched++
		}
	}
	return float64(matched) / float64(len(templateHeaders))
}

func validateTemplate(name string, mapping record.FieldMapping) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrTemplateName
	}
	if err := ValidateMapping(mapping); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateMapping rejects pairs without a source column. Empty targets are
// allowed and simply drop the column.
func ValidateMapping(m record.FieldMapping) error {
	for i, cm := range m {
		if strings.TrimSpace(cm.Source) == "" {
			return fmt.Errorf("%w: pair %d has an empty source", ErrInvalidMapping, i)
		}
	}
	return nil
}
