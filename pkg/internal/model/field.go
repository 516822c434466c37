package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"

	"github.com/yeisme/storyvault/pkg/internal/apperr"
)

// FieldType 表单字段类型.
type FieldType string

const (
	FieldString   FieldType = "STRING"
	FieldNumber   FieldType = "NUMBER"
	FieldDate     FieldType = "DATE"
	FieldEmail    FieldType = "EMAIL"
	FieldPhone    FieldType = "PHONE"
	FieldURL      FieldType = "URL"
	FieldTextarea FieldType = "TEXTAREA"
	FieldSelect   FieldType = "SELECT"
	FieldRadio    FieldType = "RADIO"
	FieldCheckbox FieldType = "CHECKBOX"
	FieldZipcode  FieldType = "ZIPCODE"
	FieldFile     FieldType = "FILE"
	FieldImage    FieldType = "IMAGE"
	FieldVideo    FieldType = "VIDEO"
	FieldAudio    FieldType = "AUDIO"
)

// IsMedia 字段值是否为对象存储引用列表.
func (t FieldType) IsMedia() bool {
	switch t {
	case FieldFile, FieldImage, FieldVideo, FieldAudio:
		return true
	case FieldString, FieldNumber, FieldDate, FieldEmail, FieldPhone, FieldURL,
		FieldTextarea, FieldSelect, FieldRadio, FieldCheckbox, FieldZipcode:
		return false
	default:
		return false
	}
}

// Valid 是否为已知类型.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldDate, FieldEmail, FieldPhone, FieldURL,
		FieldTextarea, FieldSelect, FieldRadio, FieldCheckbox, FieldZipcode,
		FieldFile, FieldImage, FieldVideo, FieldAudio:
		return true
	default:
		return false
	}
}

// MediaRef 对象存储中的附件引用.
type MediaRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Field 字段值，取 ScalarField 或 MediaField 之一.
type Field interface {
	FieldType() FieldType
	FieldLabel() string
	isField()
}

// ScalarField 文本、数字、日期等标量字段.
type ScalarField struct {
	Type  FieldType
	Label string
	Value any
}

// MediaField 图片、音频、视频与文件字段.
type MediaField struct {
	Type  FieldType
	Label string
	Refs  []MediaRef
}

func (f ScalarField) FieldType() FieldType { return f.Type }
func (f ScalarField) FieldLabel() string   { return f.Label }
func (ScalarField) isField()               {}

func (f MediaField) FieldType() FieldType { return f.Type }
func (f MediaField) FieldLabel() string   { return f.Label }
func (MediaField) isField()               {}

// FieldError 字段结构不合法.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// AppKind 字段错误属于请求错误.
func (e *FieldError) AppKind() apperr.Kind { return apperr.KindBadRequest }

// Values 字段名到字段值的映射.
type Values map[string]Field

type wireField struct {
	Type  *FieldType      `json:"type"`
	Label string          `json:"label"`
	Value json.RawMessage `json:"value"`
}

type wireOut struct {
	Type  FieldType `json:"type"`
	Label string    `json:"label"`
	Value any       `json:"value"`
}

// ParseField 按类型解析单个字段.
func ParseField(name string, t FieldType, label string, raw []byte) (Field, error) {
	switch t {
	case FieldFile, FieldImage, FieldVideo, FieldAudio:
		refs := []MediaRef{}

		if len(raw) > 0 && string(raw) != "null" {
			if err := sonic.Unmarshal(raw, &refs); err != nil {
				return nil, &FieldError{Field: name, Reason: "media value must be a list of {id, name}"}
			}
		}

		for i, r := range refs {
			if r.ID == "" {
				return nil, &FieldError{Field: name, Reason: fmt.Sprintf("media reference %d has no id", i)}
			}
		}

		return MediaField{Type: t, Label: label, Refs: refs}, nil
	case FieldString, FieldNumber, FieldDate, FieldEmail, FieldPhone, FieldURL,
		FieldTextarea, FieldSelect, FieldRadio, FieldCheckbox, FieldZipcode:
		var v any

		if len(raw) > 0 {
			if err := sonic.Unmarshal(raw, &v); err != nil {
				return nil, &FieldError{Field: name, Reason: "malformed value"}
			}
		}

		return ScalarField{Type: t, Label: label, Value: v}, nil
	default:
		return nil, &FieldError{Field: name, Reason: fmt.Sprintf("unknown type %q", t)}
	}
}

// UnmarshalJSON 解析 {name: {type, label, value}}，缺少 type 的字段视为非法.
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw map[string]wireField
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return &FieldError{Field: "values", Reason: "must be an object of {type, label, value}"}
	}

	out := make(Values, len(raw))

	for name, wf := range raw {
		if wf.Type == nil || *wf.Type == "" {
			return &FieldError{Field: name, Reason: "missing type"}
		}

		f, err := ParseField(name, *wf.Type, wf.Label, wf.Value)
		if err != nil {
			return err
		}

		out[name] = f
	}

	*v = out

	return nil
}

// MarshalJSON 输出 {type, label, value} 结构.
func (v Values) MarshalJSON() ([]byte, error) {
	out := make(map[string]wireOut, len(v))

	for name, f := range v {
		switch ft := f.(type) {
		case ScalarField:
			out[name] = wireOut{Type: ft.Type, Label: ft.Label, Value: ft.Value}
		case MediaField:
			refs := ft.Refs
			if refs == nil {
				refs = []MediaRef{}
			}

			out[name] = wireOut{Type: ft.Type, Label: ft.Label, Value: refs}
		default:
			return nil, fmt.Errorf("field %q: unsupported field implementation %T", name, f)
		}
	}

	return sonic.ConfigStd.Marshal(out)
}

// Value 实现 driver.Valuer.
func (v Values) Value() (driver.Value, error) {
	if v == nil {
		return "{}", nil
	}

	b, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}

	return string(b), nil
}

// Scan 实现 sql.Scanner.
func (v *Values) Scan(src any) error {
	b, err := scanBytes(src)
	if err != nil || len(b) == 0 {
		*v = Values{}
		return err
	}

	return v.UnmarshalJSON(b)
}

// Names 返回排序后的字段名.
func (v Values) Names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// MediaItem 带字段类型的附件引用.
type MediaItem struct {
	Field string
	Type  FieldType
	Ref   MediaRef
}

// MediaItems 按字段名顺序返回全部附件引用.
func (v Values) MediaItems() []MediaItem {
	var items []MediaItem

	for _, name := range v.Names() {
		if mf, ok := v[name].(MediaField); ok {
			for _, r := range mf.Refs {
				items = append(items, MediaItem{Field: name, Type: mf.Type, Ref: r})
			}
		}
	}

	return items
}

func scanBytes(src any) ([]byte, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return s, nil
	case string:
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", src)
	}
}
