package rule_test

import (
	"crypto/rand"
	"testing"

	"github.com/oklog/ulid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/storyvault/pkg/rule"
)

type templateReq struct {
	Name       string   `json:"name"        rule:"required,max=8"`
	FieldNames []string `json:"field_names" rule:"dive,fieldname"`
}

type listReq struct {
	TemplateID string `form:"template_id" rule:"required,ulid"`
	Sort       string `json:"sort"        rule:"omitempty,oneof=creation_time -creation_time"`
}

func TestULID(t *testing.T) {
	assert.NoError(t, rule.ValidateVar(ulid.MustNew(ulid.Now(), rand.Reader).String(), "ulid"))
	assert.Error(t, rule.ValidateVar("tpl-1", "ulid"))
	assert.Error(t, rule.ValidateVar("", "ulid"))
}

func TestFieldName(t *testing.T) {
	ok := templateReq{Name: "Intake", FieldNames: []string{"patientStory", " zip ", ""}}
	require.NoError(t, rule.ValidateStruct(ok))

	for _, bad := range []string{"patient story", "a.b", string(make([]byte, 65))} {
		err := rule.ValidateStruct(templateReq{Name: "Intake", FieldNames: []string{bad}})
		assert.Error(t, err, "%q", bad)
	}
}

func TestErrorsUseTagNames(t *testing.T) {
	err := rule.ValidateStruct(listReq{TemplateID: "nope", Sort: "name"})
	require.Error(t, err)

	verrs := rule.Errors(err)
	assert.Equal(t, rule.ValidationErrors{
		"template_id": "must be a ULID",
		"sort":        "must be one of creation_time -creation_time",
	}, verrs)
	assert.Equal(t, "sort: must be one of creation_time -creation_time; template_id: must be a ULID", verrs.Error())

	err = rule.ValidateStruct(templateReq{FieldNames: []string{"a.b"}})
	assert.Equal(t, rule.ValidationErrors{
		"name":           "is required",
		"field_names[0]": "must not contain whitespace or '.' and be at most 64 characters",
	}, rule.Errors(err))

	assert.Nil(t, rule.Errors(assert.AnError))
}
