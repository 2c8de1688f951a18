package terms

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/user/healthchat/internal/types"
)

// Translator resolves free text against an ordered glossary. Matching is
// case-insensitive substring containment and the first hit wins.
type Translator struct {
	glossary []Entry
	buckets  []CodeBucket
}

// New returns a Translator loaded with the built-in vocabulary.
func New() *Translator {
	t := &Translator{
		glossary: make([]Entry, len(defaultGlossary)),
		buckets:  make([]CodeBucket, len(defaultBuckets)),
	}
	for i, e := range defaultGlossary {
		t.glossary[i] = Entry{Type: e.Type, Keywords: append([]string(nil), e.Keywords...)}
	}
	for i, b := range defaultBuckets {
		t.buckets[i] = CodeBucket{
			Name:  b.Name,
			Codes: append([]string(nil), b.Codes...),
			Terms: append([]string(nil), b.Terms...),
		}
	}
	return t
}

// Translate maps a phrase to a resource type.
func (t *Translator) Translate(term string) (types.ResourceType, bool) {
	text := strings.ToLower(term)
	for _, e := range t.glossary {
		if containsAny(text, e.Keywords) {
			return e.Type, true
		}
	}
	return "", false
}

// TranslateCodeSearch maps lab or vital vocabulary to a code bucket.
func (t *Translator) TranslateCodeSearch(term string) (*CodeBucket, bool) {
	text := strings.ToLower(term)
	for i := range t.buckets {
		if containsAny(text, t.buckets[i].Terms) {
			b := t.buckets[i]
			b.Codes = append([]string(nil), b.Codes...)
			b.Terms = append([]string(nil), b.Terms...)
			return &b, true
		}
	}
	return nil, false
}

// Known reports whether the phrase contains any recognized vocabulary.
func (t *Translator) Known(term string) bool {
	if _, ok := t.Translate(term); ok {
		return true
	}
	_, ok := t.TranslateCodeSearch(term)
	return ok
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Overrides is the on-disk shape of a glossary extension file.
type Overrides struct {
	Glossary []Entry      `yaml:"glossary"`
	Buckets  []CodeBucket `yaml:"buckets"`
}

// LoadOverrides merges keywords and buckets from a YAML file. Keywords for a
// known type are appended to that type's entry so priority order is unchanged;
// entries for types not yet in the glossary go last. A bucket whose name
// already exists gains the extra codes and terms.
func (t *Translator) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read glossary overrides: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse glossary overrides: %w", err)
	}
	return t.Merge(o)
}

// Merge applies overrides already in memory.
func (t *Translator) Merge(o Overrides) error {
	for _, e := range o.Glossary {
		rt, ok := types.ParseResourceType(string(e.Type))
		if !ok {
			return fmt.Errorf("unknown resource type %q in glossary overrides", e.Type)
		}
		kws := lowerAll(e.Keywords)
		if i := t.entryIndex(rt); i >= 0 {
			t.glossary[i].Keywords = append(t.glossary[i].Keywords, kws...)
			continue
		}
		t.glossary = append(t.glossary, Entry{Type: rt, Keywords: kws})
	}

	for _, b := range o.Buckets {
		if b.Name == "" {
			return fmt.Errorf("glossary overrides: bucket without a name")
		}
		name := strings.ToLower(b.Name)
		if i := t.bucketIndex(name); i >= 0 {
			t.buckets[i].Codes = append(t.buckets[i].Codes, b.Codes...)
			t.buckets[i].Terms = append(t.buckets[i].Terms, lowerAll(b.Terms)...)
			continue
		}
		t.buckets = append(t.buckets, CodeBucket{Name: name, Codes: b.Codes, Terms: lowerAll(b.Terms)})
	}
	return nil
}

func (t *Translator) entryIndex(rt types.ResourceType) int {
	for i, e := range t.glossary {
		if e.Type == rt {
			return i
		}
	}
	return -1
}

func (t *Translator) bucketIndex(name string) int {
	for i, b := range t.buckets {
		if b.Name == name {
			return i
		}
	}
	return -1
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
