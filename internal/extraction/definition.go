// Package extraction renders a template into the definition consumed by the extraction pipeline.
package extraction

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nitro/lazytemplate/internal/domain"
)

// Defaults applied to every definition.
const (
	DefaultFieldRegex = `([\d\-.,\s]+)`
	DefaultCurrency   = "USD"
	DefaultDateFormat = "%m/%d/%Y"
)

// Area locates a field on the rendered page.
type Area struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Field is one extracted value.
type Field struct {
	Parser string `yaml:"parser"`
	Regex  string `yaml:"regex"`
	Area   *Area  `yaml:"area,omitempty"`
}

// Options of the extraction run.
type Options struct {
	Currency    string   `yaml:"currency"`
	DateFormats []string `yaml:"date_formats"`
}

// Definition is the invoice2data style document written next to every template.
type Definition struct {
	// Issuer is written as null when the template has none, the key is always present.
	Issuer          *string  `yaml:"issuer"`
	Keywords        []string `yaml:"keywords"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
	// Fields keeps the template order when encoded.
	Fields  fieldSet `yaml:"fields"`
	Options Options  `yaml:"options"`
}

// Build the definition of a template. When more than one issuer is annotated the last one wins.
func Build(template domain.Template) Definition {
	d := Definition{
		Keywords:        []string{},
		ExcludeKeywords: []string{},
		Options: Options{
			Currency:    DefaultCurrency,
			DateFormats: []string{DefaultDateFormat},
		},
	}
	for _, a := range template.Annotations {
		label := a.Label()
		switch a.Kind() {
		case domain.KindIssuer:
			d.Issuer = &label
		case domain.KindKeyword:
			d.Keywords = append(d.Keywords, label)
		case domain.KindField:
			field := Field{Parser: "regex", Regex: DefaultFieldRegex}
			if a.Variant() == domain.VariantGeometric {
				g := a.Geometric
				field.Area = &Area{X: g.X, Y: g.Y, Width: g.Width, Height: g.Height}
			}
			d.Fields.set(label, field)
		}
	}
	return d
}

// Encode the definition as YAML.
func (d Definition) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("fail to encode the definition: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("fail to flush the definition: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode a YAML definition.
func Decode(payload []byte) (Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(payload, &d); err != nil {
		return Definition{}, fmt.Errorf("fail to decode the definition: %w", err)
	}
	return d, nil
}

type fieldSet struct {
	names  []string
	values map[string]Field
}

func (fs *fieldSet) set(name string, f Field) {
	if fs.values == nil {
		fs.values = make(map[string]Field)
	}
	if _, ok := fs.values[name]; !ok {
		fs.names = append(fs.names, name)
	}
	fs.values[name] = f
}

// Get a field by name.
func (fs fieldSet) Get(name string) (Field, bool) {
	f, ok := fs.values[name]
	return f, ok
}

// Names in insertion order.
func (fs fieldSet) Names() []string {
	return fs.names
}

func (fs fieldSet) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range fs.names {
		value := &yaml.Node{}
		if err := value.Encode(fs.values[name]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}, value)
	}
	return node, nil
}

func (fs *fieldSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("fields must be a mapping, got line %d", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var f Field
		if err := node.Content[i+1].Decode(&f); err != nil {
			return err
		}
		fs.set(node.Content[i].Value, f)
	}
	return nil
}
