// Package rule 封装 go-playground/validator，结构体标签名为 rule.
//
// 除内置规则外注册了:
//
//	ulid       26 位 Crockford base32 ULID，记录与模板 ID 的格式
//	fieldname  模板字段名：去掉首尾空白后可为空，否则不得含空白或点号，且不超过 64 字符
//
// 错误信息中的字段名取 json 或 form 标签.
package rule

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid"
)

const maxFieldNameLen = 64

var (
	inst *validator.Validate
	once sync.Once
)

func setup() {
	// 与 gin 绑定共用同一个引擎，ShouldBind 与 ValidateStruct 规则一致
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		inst = v
	} else {
		inst = validator.New()
	}

	inst.SetTagName("rule")
	inst.RegisterTagNameFunc(tagName)

	must(inst.RegisterValidation("ulid", isULID))
	must(inst.RegisterValidation("fieldname", isFieldName))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func tagName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}

		if name != "" {
			return name
		}
	}

	return f.Name
}

func isULID(fl validator.FieldLevel) bool {
	_, err := ulid.ParseStrict(fl.Field().String())
	return err == nil
}

func isFieldName(fl validator.FieldLevel) bool {
	name := strings.TrimSpace(fl.Field().String())
	if len(name) > maxFieldNameLen {
		return false
	}

	return !strings.ContainsFunc(name, func(r rune) bool { return r == '.' || unicode.IsSpace(r) })
}

// Engine 返回全局 *validator.Validate.
func Engine() *validator.Validate {
	once.Do(setup)

	return inst
}

// ValidateStruct 校验结构体.
func ValidateStruct(s any) error {
	return Engine().Struct(s)
}

// ValidateVar 按规则校验单个值，例如 ValidateVar(id, "required,ulid").
func ValidateVar(field any, tag string) error {
	return Engine().Var(field, tag)
}

// ValidationErrors 字段路径到可读错误信息.
type ValidationErrors map[string]string

// Error 按字段名排序输出，保证信息稳定.
func (e ValidationErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}

	return strings.Join(parts, "; ")
}

// Errors 把校验错误转换为 ValidationErrors，非校验错误返回 nil.
func Errors(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(ValidationErrors, len(verrs))

	for _, fe := range verrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}

		out[path] = describe(fe)
	}

	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "ulid":
		return "must be a ULID"
	case "fieldname":
		return "must not contain whitespace or '.' and be at most 64 characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
