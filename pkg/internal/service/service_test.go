package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/storyvault/pkg/cache"
	"github.com/yeisme/storyvault/pkg/configs"
	ctxPkg "github.com/yeisme/storyvault/pkg/context"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/geo"
	"github.com/yeisme/storyvault/pkg/internal/index"
	"github.com/yeisme/storyvault/pkg/internal/lock"
	"github.com/yeisme/storyvault/pkg/internal/model"
	"github.com/yeisme/storyvault/pkg/internal/repo"
	"github.com/yeisme/storyvault/pkg/internal/storage/kv"
	"github.com/yeisme/storyvault/pkg/internal/tenant"
	"github.com/yeisme/storyvault/pkg/internal/types"
	"github.com/yeisme/storyvault/pkg/queue"
)

type published struct {
	topic   string
	payload string
	traceID string
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range msgs {
		p.msgs = append(p.msgs, published{topic: topic, payload: string(m.Payload), traceID: m.Metadata.Get(queue.MetaTraceID)})
	}

	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}

	return out
}

type fixture struct {
	ctx   context.Context
	deps  *Deps
	pub   *recordingPublisher
	store kv.KVStore
	now   time.Time
}

var (
	orgA = tenant.Principal{UserID: "u1", OrganizationID: "org-a", Role: tenant.RoleStaff}
	orgB = tenant.Principal{UserID: "u2", OrganizationID: "org-b", Role: tenant.RoleStaff}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))

	engine, err := index.NewBleveEngine("", true)
	require.NoError(t, err)

	directory, err := geo.Load(strings.NewReader("zipcode,latitude,longitude,city\n33101,25.77,-80.19,Miami\n"))
	require.NoError(t, err)

	records := repo.NewFormData(db)
	store := kv.NewMemoryStore()
	pub := &recordingPublisher{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	d := &Deps{
		Records:    records,
		Templates:  repo.NewTemplates(db),
		Index:      index.NewSynchronizer(engine, records),
		Queue:      queue.New(pub, configs.QueuesConfig{}),
		Locker:     lock.New(store),
		Geo:        directory,
		Cache:      cache.NewCache(store),
		Enrichment: configs.EnrichmentConfig{MetadataRateLimitSeconds: configs.DefaultMetadataRateLimit},
		GeoTTL:     time.Minute,
		MaxLimit:   50,
		Now:        func() time.Time { return now },
	}

	t.Cleanup(func() {
		_ = d.Close()

		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &fixture{ctx: WithDeps(context.Background(), d), deps: d, pub: pub, store: store, now: now}
}

func (f *fixture) template(t *testing.T, p tenant.Principal, fields ...string) string {
	t.Helper()

	tpl, err := NewTemplateService(f.ctx).Create(f.ctx, p, types.CreateTemplateRequest{Name: "Intake", FieldNames: fields})
	require.NoError(t, err)

	return tpl.ID
}

func storyValues(zip string) model.Values {
	return model.Values{
		"patientStory": model.ScalarField{Type: model.FieldTextarea, Label: "Story", Value: "Diagnosed at 7."},
		"visit":        model.ScalarField{Type: model.FieldDate, Label: "Visit", Value: "05/01/2024"},
		"zip":          model.ScalarField{Type: model.FieldZipcode, Label: "Zip", Value: zip},
	}
}

func TestSubmitPersistsIndexesAndEnqueues(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	id, err := svc.Submit(f.ctx, orgA, tpl, storyValues("33101"), nil, false)
	require.NoError(t, err)
	require.Len(t, id, 26)

	fd, err := f.deps.Records.Get(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "org-a", fd.OrganizationID)
	assert.Equal(t, model.StateActive, fd.State)
	assert.True(t, fd.CreationTime.Equal(f.now))
	assert.Equal(t, "2024-05-01T00:00:00", fd.Values["visit"].(model.ScalarField).Value)

	doc, ok, err := f.deps.Index.Get(f.ctx, tpl, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, doc, "id")
	assert.Equal(t, "org-a", doc["organization_id"])

	assert.ElementsMatch(t, []string{configs.DefaultTagThemeQueue, configs.DefaultStructuredMetadataQueue}, f.pub.topics())

	for _, m := range f.pub.msgs {
		assert.Equal(t, id, m.payload)
	}
}

func TestSubmitCarriesCorrelationID(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	ctx := ctxPkg.WithCorrelationID(f.ctx, "req-42")
	_, err := svc.Submit(ctx, orgA, tpl, storyValues("33101"), nil, false)
	require.NoError(t, err)

	require.Len(t, f.pub.msgs, 2)

	for _, m := range f.pub.msgs {
		assert.Equal(t, "req-42", m.traceID)
	}
}

func TestSubmitHonoursCreationTime(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)

	at := time.Date(2023, 1, 2, 3, 4, 5, 0, time.FixedZone("EST", -5*3600))

	id, err := NewFormDataService(f.ctx).Submit(f.ctx, orgA, tpl, storyValues(""), &at, false)
	require.NoError(t, err)

	fd, err := f.deps.Records.Get(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, fd.CreationTime.Equal(at))
}

func TestSubmitTenantRules(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	_, err := svc.Submit(f.ctx, orgB, tpl, storyValues(""), nil, false)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = svc.Submit(f.ctx, orgA, model.NewID(), storyValues(""), nil, false)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	id, err := svc.Submit(f.ctx, tenant.Anonymous, tpl, storyValues(""), nil, true)
	require.NoError(t, err)

	fd, err := f.deps.Records.Get(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "org-a", fd.OrganizationID)
}

func TestSubmitRejectsUndeclaredFields(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA, "patientStory", "visit")

	_, err := NewFormDataService(f.ctx).Submit(f.ctx, orgA, tpl, storyValues("33101"), nil, false)
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	_, err = NewFormDataService(f.ctx).Submit(f.ctx, orgA, tpl, model.Values{}, nil, false)
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
}

func TestUpdateValuesOverwritesIndex(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	id, err := svc.Submit(f.ctx, orgA, tpl, storyValues("33101"), nil, false)
	require.NoError(t, err)

	updated := model.Values{"patientStory": model.ScalarField{Type: model.FieldTextarea, Label: "Story", Value: "Remission."}}

	_, err = svc.UpdateValues(f.ctx, orgB, id, updated)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	fd, err := svc.UpdateValues(f.ctx, orgA, id, updated)
	require.NoError(t, err)
	assert.Len(t, fd.Values, 1)

	res, err := f.deps.Index.Search(f.ctx, tpl, "Remission", 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)

	doc, ok, err := f.deps.Index.Get(f.ctx, tpl, id)
	require.NoError(t, err)
	require.True(t, ok)

	values, _ := doc["values"].(map[string]any)
	assert.NotContains(t, values, "zip")
}

func TestSoftDelete(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	id, err := svc.Submit(f.ctx, orgA, tpl, storyValues(""), nil, false)
	require.NoError(t, err)

	assert.True(t, apperr.IsKind(svc.SoftDelete(f.ctx, orgB, id), apperr.KindNotFound))
	require.NoError(t, svc.SoftDelete(f.ctx, orgA, id))

	_, err = svc.Get(f.ctx, orgA, id)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, ok, err := f.deps.Index.Get(f.ctx, tpl, id)
	require.NoError(t, err)
	assert.False(t, ok)

	fd, err := f.deps.Records.Get(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StateDeleted, fd.State)

	assert.True(t, apperr.IsKind(svc.SoftDelete(f.ctx, orgA, id), apperr.KindNotFound))
}

func TestGetEnrichmentState(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	id, err := svc.Submit(f.ctx, orgA, tpl, storyValues(""), nil, false)
	require.NoError(t, err)

	view, err := svc.Get(f.ctx, orgA, id)
	require.NoError(t, err)
	assert.Equal(t, "NEW", view.EnrichmentState)

	ok, err := f.deps.Locker.Acquire(f.ctx, lock.RecordKey(id), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	view, err = svc.Get(f.ctx, orgA, id)
	require.NoError(t, err)
	assert.Equal(t, "META_PENDING", view.EnrichmentState)
}

func TestGenerateMetadataRateLimits(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	id, err := svc.Submit(f.ctx, orgA, tpl, storyValues(""), nil, false)
	require.NoError(t, err)

	recent := f.now.Add(-time.Minute)
	require.NoError(t, f.deps.Records.SaveMetadata(f.ctx, id, &model.FormDataMetadata{CreationTime: &recent}))

	err = svc.GenerateMetadata(f.ctx, orgA, id)
	assert.True(t, apperr.IsKind(err, apperr.KindRateLimited))

	old := f.now.Add(-10 * time.Minute)
	require.NoError(t, f.deps.Records.SaveMetadata(f.ctx, id, &model.FormDataMetadata{CreationTime: &old}))

	_, err = f.deps.Locker.Acquire(f.ctx, lock.RecordKey(id), time.Minute)
	require.NoError(t, err)

	err = svc.GenerateMetadata(f.ctx, orgA, id)
	assert.True(t, apperr.IsKind(err, apperr.KindRateLimited))

	require.NoError(t, f.deps.Locker.Release(f.ctx, lock.RecordKey(id)))

	before := len(f.pub.topics())
	require.NoError(t, svc.GenerateMetadata(f.ctx, orgA, id))

	topics := f.pub.topics()
	require.Len(t, topics, before+1)
	assert.Equal(t, configs.DefaultStructuredMetadataQueue, topics[len(topics)-1])

	assert.True(t, apperr.IsKind(svc.GenerateMetadata(f.ctx, orgA, model.NewID()), apperr.KindNotFound))
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	for i := range 3 {
		at := f.now.Add(time.Duration(i) * time.Hour)
		_, err := svc.Submit(f.ctx, orgA, tpl, storyValues(""), &at, false)
		require.NoError(t, err)
	}

	page, err := svc.List(f.ctx, orgA, types.ListFormDataRequest{TemplateID: tpl, Limit: 2, Sort: "creation_time"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Count)
	assert.Len(t, page.FormData, 2)
	require.NotNil(t, page.Next)
	assert.Equal(t, 2, *page.Next)
	assert.True(t, page.FormData[0].CreationTime.Before(page.FormData[1].CreationTime))

	last, err := svc.List(f.ctx, orgA, types.ListFormDataRequest{TemplateID: tpl, Skip: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, last.FormData, 1)
	assert.Nil(t, last.Next)

	_, err = svc.List(f.ctx, orgB, types.ListFormDataRequest{TemplateID: tpl})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestZipcodesAggregatesAndInvalidates(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	for _, zip := range []string{"33101", "33101-4000", "10001"} {
		_, err := svc.Submit(f.ctx, orgA, tpl, storyValues(zip), nil, false)
		require.NoError(t, err)
	}

	res, err := svc.Zipcodes(f.ctx, orgA, tpl)
	require.NoError(t, err)
	require.Len(t, res.Zipcodes, 2)

	miami := res.Zipcodes["33101"]
	assert.Equal(t, 2, miami.Count)
	require.NotNil(t, miami.Latitude)
	assert.InDelta(t, 25.77, *miami.Latitude, 1e-9)
	assert.Nil(t, res.Zipcodes["10001"].Latitude)

	cached, err := cache.Get[map[string]geo.ZipcodeStat](f.ctx, cache.NewCache(f.store), zipcodesKey("org-a", tpl))
	require.NoError(t, err)
	assert.Equal(t, 2, cached["33101"].Count)

	_, err = svc.Submit(f.ctx, orgA, tpl, storyValues("33101"), nil, false)
	require.NoError(t, err)

	_, err = cache.Get[map[string]geo.ZipcodeStat](f.ctx, cache.NewCache(f.store), zipcodesKey("org-a", tpl))
	assert.True(t, kv.IsNotFound(err))

	res, err = svc.Zipcodes(f.ctx, orgA, "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Zipcodes["33101"].Count)

	other, err := svc.Zipcodes(f.ctx, orgB, "")
	require.NoError(t, err)
	assert.Empty(t, other.Zipcodes)
}

func TestTemplateReindex(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, orgA)
	svc := NewFormDataService(f.ctx)

	id, err := svc.Submit(f.ctx, orgA, tpl, storyValues(""), nil, false)
	require.NoError(t, err)

	// 绕过服务直接删除，制造索引中的陈旧文档
	require.NoError(t, f.deps.Records.MarkDeleted(f.ctx, id))

	templates := NewTemplateService(f.ctx)

	_, err = templates.Reindex(f.ctx, orgB, tpl)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	report, err := templates.Reindex(f.ctx, orgA, tpl)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	reports, err := templates.ReindexAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, index.ReindexReport{TemplateID: tpl}, reports[0])
}

func TestTemplateCreateValidation(t *testing.T) {
	f := newFixture(t)
	templates := NewTemplateService(f.ctx)

	_, err := templates.Create(f.ctx, orgA, types.CreateTemplateRequest{})
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	_, err = templates.Create(f.ctx, tenant.Anonymous, types.CreateTemplateRequest{Name: "x"})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	tpl, err := templates.Create(f.ctx, orgA, types.CreateTemplateRequest{Name: " Intake ", FieldNames: []string{"a", " a", ""}})
	require.NoError(t, err)
	assert.Equal(t, "Intake", tpl.Name)
	assert.Equal(t, model.StringList{"a"}, tpl.FieldNames)

	_, ok, err := f.deps.Index.Get(f.ctx, tpl.ID, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = templates.Get(f.ctx, orgB, tpl.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
