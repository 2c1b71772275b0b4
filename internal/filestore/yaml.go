package filestore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// encodeRecord renders rec as a YAML mapping with fields in declaration
// order. Scalars carry explicit tags so the encoder quotes strings that
// would otherwise read back as another kind, and integral floats keep a
// fraction.
func encodeRecord(s *schema.Schema, rec ir.Object) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range s.Fields() {
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		node, err := toNode(v)
		if err != nil {
			return nil, ir.InvalidRecord(f.Name, "%v", err)
		}
		doc.Content = append(doc.Content, strNode(f.Name), node)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return out, nil
}

func toNode(v ir.Value) (*yaml.Node, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return scalarNode("!!null", "null"), nil
	case ir.Bool:
		return scalarNode("!!bool", strconv.FormatBool(bool(val))), nil
	case ir.Int:
		return scalarNode("!!int", strconv.FormatInt(int64(val), 10)), nil
	case ir.Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite float cannot be stored: %v", f)
		}
		text := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(text, ".eE") {
			text += ".0"
		}
		return scalarNode("!!float", text), nil
	case ir.String:
		return strNode(string(val)), nil
	case ir.Time:
		return strNode(val.UTC().Format(time.RFC3339Nano)), nil
	case ir.List:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for i, elem := range val {
			n, err := toNode(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case ir.Object:
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range val.Keys() {
			n, err := toNode(val[k])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			m.Content = append(m.Content, strNode(k), n)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func strNode(s string) *yaml.Node { return scalarNode("!!str", s) }

// decodeRecord parses a record file. Top-level timestamps and numeric kinds
// are restored from the schema; timestamps nested in lists or objects come
// back as strings.
func decodeRecord(s *schema.Schema, data []byte) (ir.Object, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty record file")
	}
	return s.Decode(raw)
}
