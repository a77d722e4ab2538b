package query

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDocument = errors.New("invalid query document")

// mapSlice keeps the key order of a document mapping, predicates are
// rendered in the order they are written.
type mapSlice []mapItem

type mapItem struct {
	Key   string
	Value interface{}
}

type docQuery struct {
	From     string        `mapstructure:"from"`
	As       string        `mapstructure:"as"`
	Where    interface{}   `mapstructure:"where"`
	OrderBy  interface{}   `mapstructure:"order_by"`
	Skip     *int          `mapstructure:"skip"`
	Take     *int          `mapstructure:"take"`
	Distinct bool          `mapstructure:"distinct"`
	Split    bool          `mapstructure:"split"`
	Tag      string        `mapstructure:"tag"`
	Joins    []docJoin     `mapstructure:"joins"`
	Include  []interface{} `mapstructure:"include"`
	Select   []interface{} `mapstructure:"select"`
}

type docJoin struct {
	Kind    string      `mapstructure:"kind"`
	Entity  string      `mapstructure:"entity"`
	Nav     string      `mapstructure:"nav"`
	From    string      `mapstructure:"from"`
	As      string      `mapstructure:"as"`
	On      [][]string  `mapstructure:"on"`
	Where   interface{} `mapstructure:"where"`
	OrderBy interface{} `mapstructure:"order_by"`
	Skip    *int        `mapstructure:"skip"`
	Take    *int        `mapstructure:"take"`
}

type docInclude struct {
	Nav     string        `mapstructure:"nav"`
	From    string        `mapstructure:"from"`
	Where   interface{}   `mapstructure:"where"`
	OrderBy interface{}   `mapstructure:"order_by"`
	Skip    *int          `mapstructure:"skip"`
	Take    *int          `mapstructure:"take"`
	Include []interface{} `mapstructure:"include"`
}

type docField struct {
	Col string `mapstructure:"col"`
	As  string `mapstructure:"as"`
}

type decoder struct {
	vars map[string]interface{}
}

// Decode parses a YAML or JSON query document. Values written as $name
// are bound from vars.
func Decode(doc []byte, vars map[string]interface{}) (*Query, error) {
	var n yaml.Node

	if err := yaml.Unmarshal(doc, &n); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, err)
	}

	v, err := nodeValue(&n)
	if err != nil {
		return nil, err
	}

	var dq docQuery
	if err := decodeStruct(v, &dq); err != nil {
		return nil, err
	}

	d := &decoder{vars: vars}
	return d.query(&dq)
}

func (d *decoder) query(dq *docQuery) (*Query, error) {
	var err error

	if dq.From == "" {
		return nil, fmt.Errorf("%w: 'from' is required", ErrInvalidDocument)
	}

	q := &Query{
		Entity:   dq.From,
		As:       dq.As,
		Skip:     dq.Skip,
		Take:     dq.Take,
		Distinct: dq.Distinct,
		Split:    dq.Split,
		Tag:      dq.Tag,
	}

	if q.Where, err = d.where(dq.Where); err != nil {
		return nil, err
	}

	if q.OrderBy, err = d.orderBy(dq.OrderBy); err != nil {
		return nil, err
	}

	for _, dj := range dq.Joins {
		j, err := d.join(dj)
		if err != nil {
			return nil, err
		}
		q.Joins = append(q.Joins, j)
	}

	if q.Includes, err = d.includes(dq.Include); err != nil {
		return nil, err
	}

	for _, v := range dq.Select {
		f, err := d.field(v)
		if err != nil {
			return nil, err
		}
		q.Select = append(q.Select, f)
	}

	return q, nil
}

func (d *decoder) join(dj docJoin) (Join, error) {
	var err error

	j := Join{
		Entity: dj.Entity,
		Nav:    dj.Nav,
		From:   dj.From,
		As:     dj.As,
		Skip:   dj.Skip,
		Take:   dj.Take,
	}

	switch strings.ToLower(dj.Kind) {
	case "", "inner":
		j.Kind = InnerJoin
	case "left":
		j.Kind = LeftJoin
	case "group":
		j.Kind = GroupJoin
	case "select_many":
		j.Kind = SelectMany
	case "select_many_left":
		j.Kind = SelectManyLeft
	default:
		return j, fmt.Errorf("%w: unknown join kind '%s'", ErrInvalidDocument, dj.Kind)
	}

	for _, pair := range dj.On {
		if len(pair) != 2 {
			return j, fmt.Errorf("%w: join keys come in pairs", ErrInvalidDocument)
		}
		j.OuterKeys = append(j.OuterKeys, Col(pair[0]))
		j.InnerKeys = append(j.InnerKeys, Col(pair[1]))
	}

	if j.Where, err = d.where(dj.Where); err != nil {
		return j, err
	}

	if j.OrderBy, err = d.orderBy(dj.OrderBy); err != nil {
		return j, err
	}
	return j, nil
}

func (d *decoder) includes(list []interface{}) ([]Include, error) {
	var incs []Include

	for _, v := range list {
		if s, ok := v.(string); ok {
			incs = addIncludePath(incs, strings.Split(s, "."))
			continue
		}

		var di docInclude
		if err := decodeStruct(v, &di); err != nil {
			return nil, err
		}

		if di.Nav == "" {
			return nil, fmt.Errorf("%w: include needs a 'nav'", ErrInvalidDocument)
		}

		inc := Include{Nav: di.Nav, From: di.From, Skip: di.Skip, Take: di.Take}
		var err error

		if inc.Where, err = d.where(di.Where); err != nil {
			return nil, err
		}
		if inc.OrderBy, err = d.orderBy(di.OrderBy); err != nil {
			return nil, err
		}
		if inc.Includes, err = d.includes(di.Include); err != nil {
			return nil, err
		}
		incs = append(incs, inc)
	}

	return incs, nil
}

// addIncludePath merges a dotted include path into the list, reusing the
// includes already present for its leading navigations.
func addIncludePath(incs []Include, path []string) []Include {
	if len(path) == 0 {
		return incs
	}

	for i := range incs {
		if incs[i].Nav == path[0] && incs[i].Where == nil && incs[i].Take == nil && incs[i].Skip == nil {
			incs[i].Includes = addIncludePath(incs[i].Includes, path[1:])
			return incs
		}
	}

	inc := Include{Nav: path[0]}
	inc.Includes = addIncludePath(nil, path[1:])
	return append(incs, inc)
}

func (d *decoder) field(v interface{}) (Field, error) {
	if s, ok := v.(string); ok {
		return Field{Exp: Col(s)}, nil
	}

	var df docField
	if err := decodeStruct(v, &df); err != nil {
		return Field{}, err
	}

	if df.Col == "" {
		return Field{}, fmt.Errorf("%w: select field needs a 'col'", ErrInvalidDocument)
	}
	return Field{Exp: Col(df.Col), As: df.As}, nil
}

func (d *decoder) orderBy(v interface{}) ([]Order, error) {
	var ob []Order

	switch v1 := v.(type) {
	case nil:
		return nil, nil

	case string:
		return []Order{orderItem(v1, "asc")}, nil

	case mapSlice:
		for _, item := range v1 {
			dir, _ := item.Value.(string)
			if !isDirection(dir) {
				return nil, fmt.Errorf("%w: invalid order direction for '%s'", ErrInvalidDocument, item.Key)
			}
			ob = append(ob, orderItem(item.Key, dir))
		}

	case []interface{}:
		for _, e := range v1 {
			o, err := d.orderBy(e)
			if err != nil {
				return nil, err
			}
			ob = append(ob, o...)
		}

	default:
		return nil, fmt.Errorf("%w: invalid order_by", ErrInvalidDocument)
	}

	return ob, nil
}

func isDirection(dir string) bool {
	switch strings.ToLower(dir) {
	case "asc", "desc":
		return true
	}
	return false
}

func orderItem(path, dir string) Order {
	return Order{Exp: Col(path), Desc: strings.EqualFold(dir, "desc")}
}

func decodeStruct(input, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapSliceHook,
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, err)
	}
	return nil
}

var mapSliceType = reflect.TypeOf(mapSlice{})

// mapSliceHook turns ordered mappings into plain maps for struct targets
// and leaves them alone for interface targets.
func mapSliceHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from != mapSliceType || to.Kind() != reflect.Struct {
		return data, nil
	}

	ms := data.(mapSlice)
	m := make(map[string]interface{}, len(ms))
	for _, item := range ms {
		m[item.Key] = item.Value
	}
	return m, nil
}

func nodeValue(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])

	case yaml.MappingNode:
		ms := make(mapSlice, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			ms = append(ms, mapItem{Key: n.Content[i].Value, Value: v})
		}
		return ms, nil

	case yaml.SequenceNode:
		list := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil

	case yaml.AliasNode:
		return nodeValue(n.Alias)

	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, err)
		}
		return v, nil
	}

	return nil, fmt.Errorf("%w: unexpected yaml node", ErrInvalidDocument)
}
