package ruleimport

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/starford/cardsync/internal/linkage"
)

type fileField struct {
	Source    string `yaml:"source"`
	Target    string `yaml:"target"`
	Transform string `yaml:"transform,omitempty"`
	Enabled   *bool  `yaml:"enabled,omitempty"`
}

type fileCard struct {
	Source  string      `yaml:"source"`
	Target  string      `yaml:"target"`
	Enabled *bool       `yaml:"enabled,omitempty"`
	Fields  []fileField `yaml:"fields"`
}

type fileRule struct {
	ID        string     `yaml:"id,omitempty"`
	Name      string     `yaml:"name,omitempty"`
	Source    string     `yaml:"source,omitempty"`
	Target    string     `yaml:"target,omitempty"`
	Enabled   *bool      `yaml:"enabled,omitempty"`
	Direction string     `yaml:"direction,omitempty"`
	Cards     []fileCard `yaml:"cards,omitempty"`
}

// fileDoc accepts either a top-level rule or a "rules" list.
type fileDoc struct {
	Rules    []fileRule `yaml:"rules,omitempty"`
	fileRule `yaml:",inline"`
}

// Parse reads the rules declared in one file. Omitted enabled flags default
// to true. A rule without an id gets one derived from path and position so
// re-imports of an unchanged file keep the same ids.
func Parse(path string, data []byte) ([]linkage.Rule, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ruleimport: %s: %w", path, err)
	}
	raw := doc.Rules
	if len(raw) == 0 && doc.Name != "" {
		raw = []fileRule{doc.fileRule}
	}

	out := make([]linkage.Rule, 0, len(raw))
	for i, fr := range raw {
		id := fr.ID
		if id == "" {
			id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(path+"#"+strconv.Itoa(i))).String()
		}
		r := linkage.Rule{
			ID:           id,
			Name:         fr.Name,
			SourceModeID: fr.Source,
			TargetModeID: fr.Target,
			Enabled:      enabled(fr.Enabled),
			Direction:    fr.Direction,
			CardMappings: make([]linkage.CardMapping, 0, len(fr.Cards)),
		}
		for _, fc := range fr.Cards {
			cm := linkage.CardMapping{
				SourceCardID:  fc.Source,
				TargetCardID:  fc.Target,
				Enabled:       enabled(fc.Enabled),
				FieldMappings: make([]linkage.FieldMapping, 0, len(fc.Fields)),
			}
			for _, ff := range fc.Fields {
				target := ff.Target
				if target == "" {
					target = ff.Source
				}
				cm.FieldMappings = append(cm.FieldMappings, linkage.FieldMapping{
					SourceField: ff.Source,
					TargetField: target,
					Transform:   ff.Transform,
					Enabled:     enabled(ff.Enabled),
				})
			}
			r.CardMappings = append(r.CardMappings, cm)
		}
		out = append(out, r)
	}
	return out, nil
}

// Marshal renders rules in the file format understood by Parse.
func Marshal(rules ...linkage.Rule) ([]byte, error) {
	doc := fileDoc{Rules: make([]fileRule, 0, len(rules))}
	for _, r := range rules {
		fr := fileRule{
			ID:        r.ID,
			Name:      r.Name,
			Source:    r.SourceModeID,
			Target:    r.TargetModeID,
			Enabled:   flag(r.Enabled),
			Direction: r.Direction,
		}
		for _, cm := range r.CardMappings {
			fc := fileCard{Source: cm.SourceCardID, Target: cm.TargetCardID, Enabled: flag(cm.Enabled)}
			for _, fm := range cm.FieldMappings {
				fc.Fields = append(fc.Fields, fileField{
					Source:    fm.SourceField,
					Target:    fm.TargetField,
					Transform: fm.Transform,
					Enabled:   flag(fm.Enabled),
				})
			}
			fr.Cards = append(fr.Cards, fc)
		}
		doc.Rules = append(doc.Rules, fr)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("ruleimport: marshal: %w", err)
	}
	return data, nil
}

func enabled(b *bool) bool { return b == nil || *b }

// flag omits true so written files stay minimal.
func flag(b bool) *bool {
	if b {
		return nil
	}
	return &b
}
