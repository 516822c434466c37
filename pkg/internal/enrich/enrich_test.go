package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/lock"
	"github.com/yeisme/storyvault/pkg/internal/model"
	"github.com/yeisme/storyvault/pkg/internal/storage/kv"
)

type memStore struct {
	mu      sync.Mutex
	rows    map[string]*model.FormData
	getErr  error
	saves   int
	indexed int
	lastDoc *model.FormData
}

func newMemStore(rows ...*model.FormData) *memStore {
	s := &memStore{rows: map[string]*model.FormData{}}
	for _, fd := range rows {
		s.rows[fd.ID] = fd
	}

	return s
}

func (s *memStore) Get(_ context.Context, id string) (*model.FormData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}

	fd, ok := s.rows[id]
	if !ok {
		return nil, apperr.NotFound("get", id)
	}

	cp := *fd

	return &cp, nil
}

func (s *memStore) SaveTagsThemes(_ context.Context, id string, tags, themes model.StringList) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[id].Tags, s.rows[id].Themes = tags, themes

	return nil
}

func (s *memStore) SaveMetadata(_ context.Context, id string, md *model.FormDataMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	s.rows[id].Metadata = md

	return nil
}

func (s *memStore) UpsertRecord(_ context.Context, fd *model.FormData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.indexed++
	s.lastDoc = fd

	return nil
}

func (s *memStore) record(id string) *model.FormData {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *s.rows[id]

	return &cp
}

type stubText struct {
	tags, themes string
	json         map[string]any
	jsonErr      error
	calls        atomic.Int32
	lastUser     string
}

func (s *stubText) Complete(_ context.Context, system, user string) (string, error) {
	s.calls.Add(1)

	if system == themeSystemPrompt {
		return s.themes, nil
	}

	s.lastUser = user

	return s.tags, nil
}

func (s *stubText) GenerateJSON(_ context.Context, _, user, _ string, _ map[string]any) (map[string]any, error) {
	s.calls.Add(1)
	s.lastUser = user

	return s.json, s.jsonErr
}

type stubTranscriber struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func (s *stubTranscriber) Transcribe(_ context.Context, kind model.FieldType, ref model.MediaRef) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls == nil {
		s.calls = map[string]int{}
	}

	s.calls[ref.ID]++

	if err := s.fail[ref.ID]; err != nil {
		return "", err
	}

	return strings.ToLower(string(kind)) + " of " + ref.ID, nil
}

func (s *stubTranscriber) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		n += c
	}

	return n
}

func validJSON() map[string]any {
	return map[string]any{
		"name":             "Ava",
		"age":              float64(9),
		"location":         "Florida",
		"diagnosis":        "leukemia",
		"events":           []any{"diagnosis"},
		"date_of_event":    "",
		"emotion_of_event": "hope",
		"overall_theme":    "resilience",
	}
}

func storyRecord(values model.Values) *model.FormData {
	return &model.FormData{
		ID:             model.NewID(),
		TemplateID:     "T",
		OrganizationID: "org",
		Values:         values,
		State:          model.StateActive,
	}
}

func newOrchestrator(store *memStore, text TextModel, tr Transcriber, locker *lock.Locker) *Orchestrator {
	return New(store, text, tr, locker, store, Options{LockTTL: time.Minute, TranscriptionConcurrency: 2})
}

func TestTagThemeWritesNormalizedLists(t *testing.T) {
	fd := storyRecord(model.Values{
		"patientStory": model.ScalarField{Type: model.FieldTextarea, Label: "Story", Value: "Ava, 9, leukemia, Florida"},
	})
	store := newMemStore(fd)
	text := &stubText{tags: "pediatric, leukemia, Florida", themes: "a, b, c, d, e, f, g"}

	o := newOrchestrator(store, text, &stubTranscriber{}, lock.New(kv.NewMemoryStore()))
	require.NoError(t, o.TagTheme(context.Background(), fd.ID))

	got := store.record(fd.ID)
	assert.Equal(t, model.StringList{"pediatric", "leukemia", "Florida"}, got.Tags)
	assert.Equal(t, model.StringList{"a", "b", "c", "d", "e"}, got.Themes)
	assert.Equal(t, "Story: Ava, 9, leukemia, Florida", text.lastUser)
}

// editingText 在模型调用期间模拟一次用户修改.
type editingText struct {
	stubText
	edit func()
}

func (e *editingText) Complete(ctx context.Context, system, user string) (string, error) {
	if e.edit != nil {
		e.edit()
		e.edit = nil
	}

	return e.stubText.Complete(ctx, system, user)
}

func (e *editingText) GenerateJSON(ctx context.Context, system, user, name string, schema map[string]any) (map[string]any, error) {
	if e.edit != nil {
		e.edit()
		e.edit = nil
	}

	return e.stubText.GenerateJSON(ctx, system, user, name, schema)
}

func TestEnrichmentIndexesValuesEditedDuringModelCall(t *testing.T) {
	story := func(v string) model.Values {
		return model.Values{
			"patientStory": model.ScalarField{Type: model.FieldTextarea, Label: "Story", Value: v},
		}
	}

	for _, task := range []string{"tag_theme", "structured_metadata"} {
		t.Run(task, func(t *testing.T) {
			fd := storyRecord(story("old story"))
			store := newMemStore(fd)

			text := &editingText{stubText: stubText{tags: "a", themes: "b", json: validJSON()}}
			text.edit = func() {
				store.mu.Lock()
				store.rows[fd.ID].Values = story("NEW story")
				store.mu.Unlock()
			}

			o := newOrchestrator(store, text, &stubTranscriber{}, lock.New(kv.NewMemoryStore()))

			if task == "tag_theme" {
				require.NoError(t, o.TagTheme(context.Background(), fd.ID))
			} else {
				require.NoError(t, o.StructuredMetadata(context.Background(), fd.ID))
			}

			require.NotNil(t, store.lastDoc)
			assert.Equal(t, store.record(fd.ID).Values, store.lastDoc.Values)
			assert.Equal(t, "NEW story", store.lastDoc.Values["patientStory"].(model.ScalarField).Value)
		})
	}
}

func TestTagThemeWithoutNarrativeKeepsThemes(t *testing.T) {
	fd := storyRecord(model.Values{
		"city": model.ScalarField{Type: model.FieldString, Label: "City", Value: "Miami"},
	})
	fd.Themes = model.StringList{"existing"}

	store := newMemStore(fd)
	text := &stubText{tags: " miami ,miami, Miami,, "}

	o := newOrchestrator(store, text, &stubTranscriber{}, lock.New(kv.NewMemoryStore()))
	require.NoError(t, o.TagTheme(context.Background(), fd.ID))

	got := store.record(fd.ID)
	assert.Equal(t, model.StringList{"miami", "Miami"}, got.Tags)
	assert.Equal(t, model.StringList{"existing"}, got.Themes)
	assert.EqualValues(t, 1, text.calls.Load())
}

func TestTagThemeSkipsMissingAndDeleted(t *testing.T) {
	deleted := storyRecord(model.Values{
		"patientStory": model.ScalarField{Type: model.FieldTextarea, Value: "story"},
	})
	deleted.State = model.StateDeleted

	store := newMemStore(deleted)
	text := &stubText{}
	o := newOrchestrator(store, text, &stubTranscriber{}, lock.New(kv.NewMemoryStore()))

	require.NoError(t, o.TagTheme(context.Background(), deleted.ID))
	require.NoError(t, o.TagTheme(context.Background(), "missing"))
	assert.Zero(t, text.calls.Load())
}

func TestDigestSkipsNoise(t *testing.T) {
	values := model.Values{
		"consentToTag": model.ScalarField{Type: model.FieldCheckbox, Label: "Consent", Value: true},
		"consent":      model.ScalarField{Type: model.FieldCheckbox, Label: "Consent", Value: true},
		"tags":         model.ScalarField{Type: model.FieldString, Label: "Tags", Value: "x"},
		"image":        model.ScalarField{Type: model.FieldString, Label: "Image", Value: "y"},
		"photo":        model.MediaField{Type: model.FieldImage, Label: "Photo", Refs: []model.MediaRef{{ID: "i1"}}},
		"empty":        model.ScalarField{Type: model.FieldString, Label: "Empty", Value: "  "},
		"na":           model.ScalarField{Type: model.FieldString, Label: "NA", Value: "N/A"},
		"age":          model.ScalarField{Type: model.FieldNumber, Label: "Age", Value: float64(9)},
		"city":         model.ScalarField{Type: model.FieldString, Value: "Miami"},
	}

	assert.Equal(t, "Age: 9, city: Miami", Digest(values))
}

func mediaValues() model.Values {
	return model.Values{
		"patientStory": model.ScalarField{Type: model.FieldTextarea, Label: "Story", Value: "my story"},
		"voice":        model.MediaField{Type: model.FieldAudio, Refs: []model.MediaRef{{ID: "a1", Name: "v.m4a"}}},
		"photos":       model.MediaField{Type: model.FieldImage, Refs: []model.MediaRef{{ID: "i1"}, {ID: "i2"}}},
		"doc":          model.MediaField{Type: model.FieldFile, Refs: []model.MediaRef{{ID: "f1"}}},
	}
}

func TestStructuredMetadataCachesTranscripts(t *testing.T) {
	fd := storyRecord(mediaValues())
	store := newMemStore(fd)
	tr := &stubTranscriber{}
	text := &stubText{json: validJSON()}

	o := newOrchestrator(store, text, tr, lock.New(kv.NewMemoryStore()))

	ctx := context.Background()
	require.NoError(t, o.StructuredMetadata(ctx, fd.ID))
	assert.Equal(t, 3, tr.total())

	md := store.record(fd.ID).Metadata
	require.NotNil(t, md)
	require.NotNil(t, md.CreationTime)
	assert.Equal(t, "leukemia", md.StructuredData["diagnosis"])
	assert.Len(t, md.AudioMetadata, 1)
	assert.Len(t, md.ImageMetadata, 2)
	assert.Contains(t, text.lastUser, "audio of a1")

	require.NoError(t, o.StructuredMetadata(ctx, fd.ID))
	assert.Equal(t, 3, tr.total(), "cached transcripts must not be regenerated")
	assert.Equal(t, 2, store.indexed)
}

func TestStructuredMetadataDropsStaleTranscripts(t *testing.T) {
	fd := storyRecord(model.Values{
		"voice": model.MediaField{Type: model.FieldAudio, Refs: []model.MediaRef{{ID: "a1"}}},
	})
	fd.Metadata = &model.FormDataMetadata{
		AudioMetadata: []model.MediaTranscript{{BlobID: "a1", Transcript: "kept"}, {BlobID: "gone", Transcript: "stale"}},
	}

	store := newMemStore(fd)
	tr := &stubTranscriber{}

	o := newOrchestrator(store, &stubText{json: validJSON()}, tr, lock.New(kv.NewMemoryStore()))
	require.NoError(t, o.StructuredMetadata(context.Background(), fd.ID))

	assert.Zero(t, tr.total())
	assert.Equal(t, []model.MediaTranscript{{BlobID: "a1", Transcript: "kept"}}, store.record(fd.ID).Metadata.AudioMetadata)
}

func TestStructuredMetadataRejectsCorruptResponse(t *testing.T) {
	fd := storyRecord(model.Values{
		"patientStory": model.ScalarField{Type: model.FieldTextarea, Value: "story"},
	})
	store := newMemStore(fd)

	bad := validJSON()
	delete(bad, "overall_theme")

	o := newOrchestrator(store, &stubText{json: bad}, &stubTranscriber{}, lock.New(kv.NewMemoryStore()))
	require.NoError(t, o.StructuredMetadata(context.Background(), fd.ID))
	assert.Nil(t, store.record(fd.ID).Metadata)

	wrongType := validJSON()
	wrongType["events"] = "not a list"

	o = newOrchestrator(store, &stubText{json: wrongType}, &stubTranscriber{}, lock.New(kv.NewMemoryStore()))
	require.NoError(t, o.StructuredMetadata(context.Background(), fd.ID))
	assert.Nil(t, store.record(fd.ID).Metadata)

	o = newOrchestrator(store, &stubText{jsonErr: apperr.Corrupt("generate json", "bad json")}, &stubTranscriber{}, lock.New(kv.NewMemoryStore()))
	require.NoError(t, o.StructuredMetadata(context.Background(), fd.ID))
	assert.Nil(t, store.record(fd.ID).Metadata)
}

func TestStructuredMetadataSkipsLockedRecord(t *testing.T) {
	fd := storyRecord(mediaValues())
	store := newMemStore(fd)
	tr := &stubTranscriber{}
	locker := lock.New(kv.NewMemoryStore())

	ctx := context.Background()
	ok, err := locker.Acquire(ctx, lock.RecordKey(fd.ID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	o := newOrchestrator(store, &stubText{json: validJSON()}, tr, locker)
	require.NoError(t, o.StructuredMetadata(ctx, fd.ID))

	assert.Zero(t, tr.total())
	assert.Nil(t, store.record(fd.ID).Metadata)

	held, err := locker.IsLocked(ctx, lock.RecordKey(fd.ID))
	require.NoError(t, err)
	assert.True(t, held, "a skipped task must not release a lock it does not own")
}

func TestStructuredMetadataReleasesLock(t *testing.T) {
	fd := storyRecord(mediaValues())
	locker := lock.New(kv.NewMemoryStore())

	o := newOrchestrator(newMemStore(fd), &stubText{json: validJSON()}, &stubTranscriber{}, locker)
	require.NoError(t, o.StructuredMetadata(context.Background(), fd.ID))

	held, err := locker.IsLocked(context.Background(), lock.RecordKey(fd.ID))
	require.NoError(t, err)
	assert.False(t, held)
}

func TestStructuredMetadataConcurrentExclusion(t *testing.T) {
	fd := storyRecord(mediaValues())
	store := newMemStore(fd)
	locker := lock.New(kv.NewMemoryStore())

	var (
		running, peak atomic.Int32
		tr            = &blockingTranscriber{running: &running, peak: &peak}
	)

	o := newOrchestrator(store, &stubText{json: validJSON()}, tr, locker)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			assert.NoError(t, o.StructuredMetadata(context.Background(), fd.ID))
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2), "only one task body may transcribe at a time")
}

// blockingTranscriber 记录同时进行的转写数.
type blockingTranscriber struct {
	running, peak *atomic.Int32
}

func (b *blockingTranscriber) Transcribe(context.Context, model.FieldType, model.MediaRef) (string, error) {
	n := b.running.Add(1)
	defer b.running.Add(-1)

	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}

	time.Sleep(20 * time.Millisecond)

	return "t", nil
}

func TestTranscriptionFailureKeepsFinishedTranscripts(t *testing.T) {
	fd := storyRecord(mediaValues())
	store := newMemStore(fd)
	tr := &stubTranscriber{fail: map[string]error{"i2": apperr.Transient("vision", errors.New("503"))}}

	o := New(store, &stubText{json: validJSON()}, tr, lock.New(kv.NewMemoryStore()), nil, Options{TranscriptionConcurrency: 1})

	err := o.StructuredMetadata(context.Background(), fd.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTransient))

	md := store.record(fd.ID).Metadata
	require.NotNil(t, md)
	assert.Nil(t, md.CreationTime)
	assert.Len(t, md.AllTranscripts(), 2)

	tr.fail = nil
	require.NoError(t, o.StructuredMetadata(context.Background(), fd.ID))
	assert.Equal(t, 2, tr.calls["i2"])
	assert.Equal(t, 1, tr.calls["a1"])
	assert.Equal(t, 1, tr.calls["i1"])
}

func TestStateOf(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		fd     model.FormData
		locked bool
		want   State
	}{
		{"new", model.FormData{State: model.StateActive}, false, StateNew},
		{"tagged", model.FormData{State: model.StateActive, Tags: model.StringList{"a"}}, false, StateTagged},
		{"themed", model.FormData{State: model.StateActive, Tags: model.StringList{"a"}, Themes: model.StringList{"b"}}, false, StateThemed},
		{"pending", model.FormData{State: model.StateActive}, true, StateMetaPending},
		{"done", model.FormData{State: model.StateActive, Metadata: &model.FormDataMetadata{CreationTime: &now}}, false, StateMetaDone},
		{"deleted", model.FormData{State: model.StateDeleted}, true, StateDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(&tt.fd, tt.locked))
		})
	}
}
