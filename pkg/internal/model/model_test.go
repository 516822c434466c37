package model

import (
	"errors"
	"reflect"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/yeisme/storyvault/pkg/internal/apperr"
)

func TestValuesParse(t *testing.T) {
	raw := `{
		"patientStory": {"type": "TEXTAREA", "label": "Story", "value": "Ava, 9, leukemia, Florida"},
		"age": {"type": "NUMBER", "label": "Age", "value": 9},
		"photos": {"type": "IMAGE", "label": "Photos", "value": [{"id": "b1", "name": "a.png"}]},
		"voice": {"type": "AUDIO", "label": "Voice", "value": null}
	}`

	var v Values
	if err := sonic.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	story, ok := v["patientStory"].(ScalarField)
	if !ok || story.Value != "Ava, 9, leukemia, Florida" {
		t.Fatalf("patientStory = %#v", v["patientStory"])
	}

	photos, ok := v["photos"].(MediaField)
	if !ok || len(photos.Refs) != 1 || photos.Refs[0] != (MediaRef{ID: "b1", Name: "a.png"}) {
		t.Fatalf("photos = %#v", v["photos"])
	}

	voice, ok := v["voice"].(MediaField)
	if !ok || len(voice.Refs) != 0 {
		t.Fatalf("voice = %#v", v["voice"])
	}

	if got := v.TextFields()["age"]; got != "9" {
		t.Fatalf("age text = %q", got)
	}
}

func TestValuesParseErrors(t *testing.T) {
	cases := map[string]string{
		"missing type": `{"dob": {"value": "2021-01-01"}}`,
		"unknown type": `{"dob": {"type": "COLOR", "value": "red"}}`,
		"bad media":    `{"pic": {"type": "IMAGE", "value": "not-a-list"}}`,
		"media no id":  `{"pic": {"type": "IMAGE", "value": [{"name": "x"}]}}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var v Values

			err := v.UnmarshalJSON([]byte(raw))
			if err == nil {
				t.Fatal("expected error")
			}

			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("error %T is not a FieldError: %v", err, err)
			}

			if apperr.KindOf(err) != apperr.KindBadRequest {
				t.Fatalf("kind = %v", apperr.KindOf(err))
			}
		})
	}
}

func TestValuesRoundTripShape(t *testing.T) {
	v := Values{
		"dob":   ScalarField{Type: FieldDate, Label: "DOB", Value: nil},
		"clips": MediaField{Type: FieldVideo, Label: "Clips"},
	}

	b, err := sonic.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]map[string]any
	if err := sonic.Unmarshal(b, &generic); err != nil {
		t.Fatalf("unmarshal generic: %v", err)
	}

	if generic["dob"]["type"] != "DATE" || generic["dob"]["value"] != nil {
		t.Fatalf("dob wire = %#v", generic["dob"])
	}

	if list, ok := generic["clips"]["value"].([]any); !ok || len(list) != 0 {
		t.Fatalf("clips wire = %#v", generic["clips"])
	}
}

func TestCoerceDate(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{"not a date", nil},
		{"2021/02/02", "2021-02-02T00:00:00"},
		{"2021-02-02", "2021-02-02T00:00:00"},
		{"02/03/2021", "2021-02-03T00:00:00"},
		{"2021-02-02T10:11:12Z", "2021-02-02T10:11:12"},
		{"2021-02-02T00:00:00-05:00", "2021-02-02T00:00:00"},
		{"2021-02-02T23:30:00+09:00", "2021-02-02T23:30:00"},
		{"2021-02-02 10:11:12", "2021-02-02T10:11:12"},
		{"", nil},
		{42.0, nil},
		{nil, nil},
	}

	for _, tt := range tests {
		if got := CoerceDate(tt.in); got != tt.want {
			t.Errorf("CoerceDate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeOnlyTouchesDates(t *testing.T) {
	v := Values{
		"dob":  ScalarField{Type: FieldDate, Value: "2021/02/02"},
		"bad":  ScalarField{Type: FieldDate, Value: "not a date"},
		"name": ScalarField{Type: FieldString, Value: "2021/02/02"},
	}

	n := v.Normalize()

	if n["dob"].(ScalarField).Value != "2021-02-02T00:00:00" {
		t.Fatalf("dob = %v", n["dob"])
	}

	if n["bad"].(ScalarField).Value != nil {
		t.Fatalf("bad = %v", n["bad"])
	}

	if n["name"].(ScalarField).Value != "2021/02/02" {
		t.Fatalf("string field changed: %v", n["name"])
	}

	if v["dob"].(ScalarField).Value != "2021/02/02" {
		t.Fatal("Normalize must not mutate its receiver")
	}
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{" a", "b ", "", "a", "A", "c", "d", "e", "f", "g"}, 5)
	want := StringList{"a", "b", "A", "c", "d"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if got := NormalizeList([]string{"pediatric", " leukemia", "Florida."}, 0); !reflect.DeepEqual(got, StringList{"pediatric", "leukemia", "Florida"}) {
		t.Fatalf("got %v", got)
	}
}

func TestMetadataRetain(t *testing.T) {
	prior := &FormDataMetadata{
		AudioMetadata: []MediaTranscript{{BlobID: "a1", Transcript: "hello"}, {BlobID: "gone", Transcript: "stale"}},
		ImageMetadata: []MediaTranscript{{BlobID: "i1", Transcript: "a photo"}},
	}

	values := Values{
		"voice": MediaField{Type: FieldAudio, Refs: []MediaRef{{ID: "a1"}, {ID: "a2"}}},
		"pics":  MediaField{Type: FieldImage, Refs: []MediaRef{{ID: "i1"}}},
	}

	kept := prior.Retain(values)

	if len(kept.AudioMetadata) != 1 || kept.AudioMetadata[0].BlobID != "a1" {
		t.Fatalf("audio = %+v", kept.AudioMetadata)
	}

	if _, ok := kept.Lookup(FieldAudio, "gone"); ok {
		t.Fatal("stale transcript retained")
	}

	if _, ok := kept.Lookup(FieldAudio, "a2"); ok {
		t.Fatal("untranscribed blob must not be present")
	}

	kept.Put(FieldAudio, "a1", "hello again")

	if len(kept.AudioMetadata) != 1 {
		t.Fatal("Put must not duplicate a blob id")
	}
}

func TestIndexBodyStripsID(t *testing.T) {
	fd := &FormData{
		ID:             NewID(),
		TemplateID:     "T",
		OrganizationID: "org",
		Values:         Values{"story": ScalarField{Type: FieldTextarea, Label: "Story", Value: "x"}},
		State:          StateActive,
		Tags:           StringList{"a"},
	}

	body, err := fd.IndexBody()
	if err != nil {
		t.Fatalf("index body: %v", err)
	}

	if _, ok := body["id"]; ok {
		t.Fatal("id must be stripped")
	}

	if body["template_id"] != "T" || body["state"] != "ACTIVE" {
		t.Fatalf("body = %#v", body)
	}
}

func TestNewIDMonotonic(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 26 || a >= b {
		t.Fatalf("ids not monotonic: %s %s", a, b)
	}
}
