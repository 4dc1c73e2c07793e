// Package prompt keeps prompt templates as data: a small set of named
// variants selected by query type, loadable from YAML for customization.
package prompt

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/recallhq/recall/domain/query"
)

// Variant names a prompt template.
type Variant string

// Template variants.
const (
	VariantDefault        Variant = "default"
	VariantAnalytical     Variant = "analytical"
	VariantConversational Variant = "conversational"
	VariantNoContext      Variant = "no_context"
)

// Template is one prompt variant: a system block and an instruction
// block, concatenated with context and question at assembly time.
type Template struct {
	System      string `yaml:"system"`
	Instruction string `yaml:"instruction"`
}

// Library holds the template set.
type Library struct {
	templates map[Variant]Template
}

const defaultInstruction = `Answer using the retrieved context above. Cite documents by their number, e.g. [Document 2]. Prefer information from the retrieved context over general knowledge. If the context is insufficient to answer, say so explicitly.`

// DefaultLibrary returns the built-in template set.
func DefaultLibrary() *Library {
	return &Library{templates: map[Variant]Template{
		VariantDefault: {
			System:      `You are a personal assistant with access to the user's own data: emails, calendar events and listening history. Answer questions about the user's life precisely and concisely.`,
			Instruction: defaultInstruction,
		},
		VariantAnalytical: {
			System:      `You are a personal data analyst. Identify patterns, frequencies and trends in the user's own data and support every observation with the documents it came from.`,
			Instruction: defaultInstruction,
		},
		VariantConversational: {
			System:      `You are a friendly personal assistant that knows the user's own data. Keep a warm, conversational tone while staying grounded in the retrieved documents.`,
			Instruction: defaultInstruction,
		},
		VariantNoContext: {
			System:      `You are a personal assistant with access to the user's own data.`,
			Instruction: `No relevant documents were retrieved for this question. Acknowledge that you could not find matching data, and answer from general knowledge only if clearly appropriate.`,
		},
	}}
}

// LoadYAML overlays templates parsed from YAML onto the library. Unknown
// variant names are rejected; absent variants keep their defaults.
func (l *Library) LoadYAML(data []byte) error {
	var parsed map[string]Template
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	for name, tmpl := range parsed {
		v := Variant(name)
		if _, known := l.templates[v]; !known {
			return fmt.Errorf("unknown template variant %q", name)
		}
		if tmpl.System != "" {
			cur := l.templates[v]
			cur.System = tmpl.System
			l.templates[v] = cur
		}
		if tmpl.Instruction != "" {
			cur := l.templates[v]
			cur.Instruction = tmpl.Instruction
			l.templates[v] = cur
		}
	}
	return nil
}

// Select maps a query type to its template variant.
func (l *Library) Select(qt query.Type) Variant {
	switch qt {
	case query.TypePattern:
		return VariantAnalytical
	case query.TypeRecommendation, query.TypeGeneral:
		return VariantConversational
	default:
		return VariantDefault
	}
}

// Template returns the template for a variant, falling back to default.
func (l *Library) Template(v Variant) Template {
	if t, ok := l.templates[v]; ok {
		return t
	}
	return l.templates[VariantDefault]
}

// Build assembles the final prompt: system block, retrieved context,
// instruction block and the user question. When context is empty the
// no-context variant is used regardless of the requested one.
func (l *Library) Build(v Variant, contextBlock, question string) string {
	if strings.TrimSpace(contextBlock) == "" {
		v = VariantNoContext
	}
	t := l.Template(v)

	var b strings.Builder
	b.WriteString(t.System)
	b.WriteString("\n\n")
	if strings.TrimSpace(contextBlock) != "" {
		b.WriteString("Retrieved context:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n\n")
	}
	b.WriteString(t.Instruction)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
