package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout 日期字段的规范格式.
const DateLayout = "2006-01-02T15:04:05"

// dateInputLayouts 接受的日期输入格式.
var dateInputLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// CoerceDate 将日期值规范为 DateLayout，带时区偏移的输入保留其本地时刻，无法解析时返回 nil.
func CoerceDate(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	for _, layout := range dateInputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}

	return nil
}

// Normalize 返回规范化后的副本：日期字段转换为 DateLayout 或 nil，附件引用去除空名称两端空白.
func (v Values) Normalize() Values {
	out := make(Values, len(v))

	for name, f := range v {
		switch ft := f.(type) {
		case ScalarField:
			if ft.Type == FieldDate {
				ft.Value = CoerceDate(ft.Value)
			}

			out[name] = ft
		case MediaField:
			refs := make([]MediaRef, 0, len(ft.Refs))
			for _, r := range ft.Refs {
				refs = append(refs, MediaRef{ID: strings.TrimSpace(r.ID), Name: strings.TrimSpace(r.Name)})
			}

			ft.Refs = refs
			out[name] = ft
		}
	}

	return out
}

// Text 将标量值渲染为文本，空值返回空串.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if t := Text(e); t != "" {
				parts = append(parts, t)
			}
		}

		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// TextFields 返回全部非空标量字段的文本值.
func (v Values) TextFields() map[string]string {
	out := map[string]string{}

	for name, f := range v {
		sf, ok := f.(ScalarField)
		if !ok {
			continue
		}

		if t := Text(sf.Value); t != "" {
			out[name] = t
		}
	}

	return out
}
