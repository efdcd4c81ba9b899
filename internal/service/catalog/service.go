// Package catalog serves the industry hazard catalog: per-industry activity
// and hazard data loaded from YAML, and generated checklist blueprints
// (operating instructions and safety briefings) with a Nohl rating attached
// to every hazard.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
	"github.com/safeworkhq/compliance-backend/internal/domain/risk"
)

// Hazard is one catalog entry for an industry.
type Hazard struct {
	Name     string   `koanf:"name" json:"name"`
	Law      string   `koanf:"law" json:"law"`
	PPE      []string `koanf:"ppe" json:"ppe,omitempty"`
	Measures string   `koanf:"measures" json:"measures"`

	// Nohl factors for the default assessment printed on blueprints.
	Probability int `koanf:"probability" json:"probability"`
	Severity    int `koanf:"severity" json:"severity"`
	Frequency   int `koanf:"frequency" json:"frequency"`
}

// Industry is one catalog section.
type Industry struct {
	Name       string   `koanf:"name" json:"name"`
	Activities []string `koanf:"activities" json:"activities"`
	Norms      []string `koanf:"norms" json:"norms"`
	Hazards    []Hazard `koanf:"hazards" json:"hazards"`
}

type catalogFile struct {
	Industries map[string]Industry `koanf:"industries"`
}

// InstructionStep is one section of an operating instruction blueprint.
type InstructionStep struct {
	Section string `json:"section"`
	Content string `json:"content"`
}

// OperatingInstruction is a generated Betriebsanweisung blueprint.
type OperatingInstruction struct {
	Title  string            `json:"title"`
	Law    string            `json:"law"`
	PPE    []string          `json:"ppe,omitempty"`
	Rating risk.Rating       `json:"rating"`
	Steps  []InstructionStep `json:"steps"`
}

// QuizItem is one question on a briefing blueprint.
type QuizItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Briefing is a generated Unterweisung blueprint.
type Briefing struct {
	Topic string     `json:"topic"`
	Goals string     `json:"goals"`
	Quiz  []QuizItem `json:"quiz"`
}

// ChecklistItem bundles one hazard with its generated blueprints.
type ChecklistItem struct {
	Hazard      string                `json:"hazard"`
	Law         string                `json:"law"`
	PPE         []string              `json:"ppe,omitempty"`
	Measures    string                `json:"measures"`
	Norms       []string              `json:"norms"`
	Rating      risk.Rating           `json:"rating"`
	Instruction *OperatingInstruction `json:"operating_instruction"`
	Briefing    *Briefing             `json:"briefing"`
}

// Checklist is the full generated checklist for one industry.
type Checklist struct {
	Industry   string          `json:"industry"`
	Activities []string        `json:"activities"`
	Norms      []string        `json:"norms"`
	Items      []ChecklistItem `json:"items"`
}

// Service answers catalog queries from an in-memory copy of the YAML catalog.
// The catalog is read once at startup; editing it means restarting.
type Service struct {
	industries map[string]Industry
	keys       []string
}

// NewService loads and validates the catalog file. Hazards with out-of-range
// Nohl factors are a configuration error and refuse startup.
func NewService(path string, logger *zap.Logger) (*Service, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}

	var cf catalogFile
	if err := k.Unmarshal("", &cf); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	svc := &Service{industries: make(map[string]Industry, len(cf.Industries))}
	for key, ind := range cf.Industries {
		for _, h := range ind.Hazards {
			if _, err := risk.Assess(h.Probability, h.Severity, h.Frequency); err != nil {
				return nil, fmt.Errorf("catalog industry %q hazard %q: %w", key, h.Name, err)
			}
		}
		lower := strings.ToLower(key)
		svc.industries[lower] = ind
		svc.keys = append(svc.keys, lower)
	}
	sort.Strings(svc.keys)

	logger.Info("industry catalog loaded",
		zap.String("path", path),
		zap.Int("industries", len(svc.industries)))
	return svc, nil
}

// Industries lists the known industry keys.
func (s *Service) Industries(_ context.Context) []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Checklist builds the generated checklist for one industry. The lookup is
// case-insensitive on the industry key.
func (s *Service) Checklist(_ context.Context, industry string) (*Checklist, error) {
	ind, ok := s.industries[strings.ToLower(industry)]
	if !ok {
		return nil, errors.NewNotFoundError("industry")
	}

	cl := &Checklist{
		Industry:   ind.Name,
		Activities: ind.Activities,
		Norms:      ind.Norms,
		Items:      make([]ChecklistItem, 0, len(ind.Hazards)),
	}
	for _, h := range ind.Hazards {
		rating, err := risk.Assess(h.Probability, h.Severity, h.Frequency)
		if err != nil {
			return nil, err
		}
		cl.Items = append(cl.Items, ChecklistItem{
			Hazard:      h.Name,
			Law:         h.Law,
			PPE:         h.PPE,
			Measures:    h.Measures,
			Norms:       ind.Norms,
			Rating:      rating,
			Instruction: buildInstruction(ind.Name, h, rating),
			Briefing:    buildBriefing(h),
		})
	}
	return cl, nil
}

func buildInstruction(industry string, h Hazard, rating risk.Rating) *OperatingInstruction {
	return &OperatingInstruction{
		Title:  fmt.Sprintf("BA für %s: %s", industry, h.Name),
		Law:    h.Law,
		PPE:    h.PPE,
		Rating: rating,
		Steps: []InstructionStep{
			{Section: "Gefahr", Content: h.Name},
			{Section: "PSA", Content: strings.Join(h.PPE, ", ")},
			{Section: "Maßnahmen", Content: h.Measures},
			{Section: "Risikoampel", Content: fmt.Sprintf("%s (%d): %s", rating.Color, rating.Score, rating.Advice)},
		},
	}
}

func buildBriefing(h Hazard) *Briefing {
	return &Briefing{
		Topic: fmt.Sprintf("Unterweisung %s", h.Name),
		Goals: fmt.Sprintf("Schutz vor %s, Verständnis: %s", h.Name, h.Measures),
		Quiz: []QuizItem{
			{Question: fmt.Sprintf("Wie wird %s vermieden?", h.Name), Answer: h.Measures},
			{Question: "Passende PSA?", Answer: strings.Join(h.PPE, ", ")},
		},
	}
}
