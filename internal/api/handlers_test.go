package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/livesync"
	"example.com/fittrack/internal/localstore"
	"example.com/fittrack/internal/media"
	"example.com/fittrack/internal/offline"
	"example.com/fittrack/internal/realtime"
)

var now = time.Date(2024, time.March, 10, 18, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

type memoryBackend struct {
	mu   sync.Mutex
	rows map[domain.Table]map[string]domain.Record
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{rows: make(map[domain.Table]map[string]domain.Record)}
}

func (b *memoryBackend) put(table domain.Table, rec domain.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rows[table] == nil {
		b.rows[table] = make(map[string]domain.Record)
	}
	b.rows[table][rec.RecordID()] = rec
}

func (b *memoryBackend) LoadAll(_ context.Context, table domain.Table, userID string) ([]domain.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Record
	for _, rec := range b.rows[table] {
		if rec.Owner() == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (b *memoryBackend) GetProfile(context.Context, string) (*domain.Profile, error) {
	return nil, nil
}

func (b *memoryBackend) Apply(_ context.Context, m domain.Mutation) (events.RowChanged, error) {
	m, rec, err := m.Normalize()
	if err != nil {
		return events.RowChanged{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rows[m.Table] == nil {
		b.rows[m.Table] = make(map[string]domain.Record)
	}
	existing, found := b.rows[m.Table][m.RowID]
	switch m.Op {
	case domain.OpDelete:
		if !found {
			return events.RowChanged{}, domain.ErrNotFound
		}
		delete(b.rows[m.Table], m.RowID)
	case domain.OpUpdate:
		if !found {
			return events.RowChanged{}, domain.ErrNotFound
		}
		if n, ok := existing.(domain.NutritionLogEntry); ok && n.Locked {
			return events.RowChanged{}, domain.ErrLocked
		}
		if n, ok := rec.(domain.NutritionLogEntry); ok {
			n.Locked = true
			rec = n
			m.Row, _ = json.Marshal(n)
		}
		b.rows[m.Table][m.RowID] = rec
	default:
		b.rows[m.Table][m.RowID] = rec
	}
	return events.RowChanged{Table: m.Table, Operation: m.Op, RowID: m.RowID, UserID: m.UserID, Row: m.Row, CommittedAt: now}, nil
}

func (b *memoryBackend) List(_ context.Context, table domain.Table, userID string, cursor *domain.Cursor, limit int) ([]domain.Record, *domain.Cursor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var rows []domain.Record
	for _, rec := range b.rows[table] {
		if rec.Owner() == userID {
			rows = append(rows, rec)
		}
	}
	newer := func(x, y domain.Record) bool {
		xt, yt := domain.OccurredAt(x), domain.OccurredAt(y)
		if !xt.Equal(yt) {
			return xt.After(yt)
		}
		return x.RecordID() > y.RecordID()
	}
	sort.Slice(rows, func(i, j int) bool { return newer(rows[i], rows[j]) })

	var page []domain.Record
	for _, rec := range rows {
		at := domain.OccurredAt(rec)
		if cursor != nil && !(at.Before(cursor.At) || (at.Equal(cursor.At) && rec.RecordID() < cursor.ID)) {
			continue
		}
		page = append(page, rec)
		if len(page) == limit {
			last := domain.Cursor{At: at, ID: rec.RecordID()}
			return page, &last, nil
		}
	}
	return page, nil, nil
}

type idleReader struct{}

func (idleReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (idleReader) Close() error { return nil }

type idleSubscriber struct{}

func (idleSubscriber) Subscribe(ctx context.Context, userID string, table domain.Table, handler realtime.Handler) (*realtime.Channel, error) {
	ch := realtime.NewChannel(table, userID, func(context.Context) (realtime.Reader, error) { return idleReader{}, nil }, handler, realtime.WithLogger(quietLogger()))
	return ch, ch.Open(ctx)
}

type switchable struct {
	mu     sync.Mutex
	online bool
}

func (s *switchable) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *switchable) set(v bool) {
	s.mu.Lock()
	s.online = v
	s.mu.Unlock()
}

type sessionPool struct {
	mu       sync.Mutex
	sessions map[string]*livesync.Session
	build    func() *livesync.Session
}

func (p *sessionPool) Session(ctx context.Context, userID string) (*livesync.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[userID]; ok {
		return s, nil
	}
	s := p.build()
	p.sessions[userID] = s
	return s, s.SetUser(ctx, userID)
}

type testServer struct {
	backend *memoryBackend
	store   *localstore.Store
	conn    *switchable
	feed    *livesync.Feed
	mux     *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := localstore.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ts := &testServer{
		backend: newMemoryBackend(),
		store:   store,
		conn:    &switchable{online: true},
		feed:    livesync.NewFeed(10),
		mux:     http.NewServeMux(),
	}
	queue := offline.NewQueue(store, offline.WithLogger(quietLogger()))
	pool := &sessionPool{sessions: make(map[string]*livesync.Session)}
	pool.build = func() *livesync.Session {
		return livesync.NewSession(ts.backend, idleSubscriber{}, queue,
			livesync.WithLogger(quietLogger()),
			livesync.WithNotifier(ts.feed),
			livesync.WithConnectivity(ts.conn),
		)
	}
	t.Cleanup(func() {
		for _, s := range pool.sessions {
			s.Close()
		}
	})

	handler := NewHandler(Deps{
		Sessions: pool,
		Logs:     ts.backend,
		Store:    store,
		Queue:    queue,
		Feed:     ts.feed,
		Online:   ts.conn,
		Media:    media.NewResolver("https://cdn.example.com", "", 0, nil),
		Location: time.UTC,
		Logger:   quietLogger(),
		Now:      func() time.Time { return now },
	})
	handler.RegisterRoutes(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body any, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if scopes != nil {
		claims := &auth.Claims{Subject: "user-1", Scopes: map[string]struct{}{}, ExpiresAt: now.Add(time.Hour)}
		for _, s := range scopes {
			claims.Scopes[s] = struct{}{}
		}
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func mealMutation(t *testing.T, id string, calories int) domain.Mutation {
	t.Helper()
	row, err := json.Marshal(domain.NutritionLogEntry{MealType: domain.MealLunch, Calories: calories, FoodName: "Rice bowl", CompletedAt: now.Add(-6 * time.Hour)})
	require.NoError(t, err)
	return domain.Mutation{Table: domain.TableNutritionLogs, Op: domain.OpInsert, RowID: id, Row: row}
}

var (
	readWrite = []string{auth.ScopeLogsRead, auth.ScopeLogsWrite}
	readOnly  = []string{auth.ScopeLogsRead}
)

func TestWriteThenDailyDashboard(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/logs", mealMutation(t, "meal-1", 640), readWrite...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[WriteResponse](t, rec)
	require.False(t, resp.Queued)
	require.Equal(t, "meal-1", resp.RowID)
	require.Equal(t, "user-1", resp.Change.UserID)

	rec = ts.do(t, http.MethodGet, "/v1/dashboard/daily?date=2024-03-10&tz=UTC", nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dash := decode[DailyDashboard](t, rec)
	require.Equal(t, "2024-03-10", dash.Date)
	require.Equal(t, 640, dash.Nutrition.Today.Calories)
	require.Zero(t, dash.Nutrition.Yesterday.Calories)
	require.Len(t, dash.WeeklyCalories, 7)
	require.Nil(t, dash.Challenge)

	rec = ts.do(t, http.MethodGet, "/v1/dashboard/daily?date=10/03/2024", nil, readOnly...)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/v1/dashboard/daily?tz=Nowhere/City", nil, readOnly...)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteErrorsMapToStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.put(domain.TableNutritionLogs, domain.NutritionLogEntry{
		ID: "locked", UserID: "user-1", MealType: domain.MealDinner, Calories: 300, FoodName: "Soup", Locked: true, CompletedAt: now,
	})

	rec := ts.do(t, http.MethodPost, "/v1/logs", mealMutation(t, "meal-1", 100))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/logs", mealMutation(t, "meal-1", 100), readOnly...)
	require.Equal(t, http.StatusForbidden, rec.Code)

	foreign := mealMutation(t, "meal-1", 100)
	foreign.UserID = "someone-else"
	rec = ts.do(t, http.MethodPost, "/v1/logs", foreign, readWrite...)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/logs", mealMutation(t, "meal-1", -5), readWrite...)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_failed", decode[map[string]string](t, rec)["type"])

	edit := mealMutation(t, "locked", 250)
	edit.Op = domain.OpUpdate
	rec = ts.do(t, http.MethodPost, "/v1/logs", edit, readWrite...)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/logs", domain.Mutation{Table: domain.TableWeightLogs, Op: domain.OpDelete, RowID: "missing"}, readWrite...)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/v1/logs", nil, readWrite...)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOfflineWritesQueueUntilDrained(t *testing.T) {
	ts := newTestServer(t)
	ts.conn.set(false)

	rec := ts.do(t, http.MethodPost, "/v1/logs", mealMutation(t, "meal-1", 500), readWrite...)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.True(t, decode[WriteResponse](t, rec).Queued)

	rec = ts.do(t, http.MethodGet, "/v1/sync/status", nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[SyncStatusResponse](t, rec)
	require.False(t, status.Online)
	require.Equal(t, 1, status.Pending)

	rec = ts.do(t, http.MethodPost, "/v1/sync/drain", nil, readWrite...)
	require.Equal(t, http.StatusConflict, rec.Code)

	ts.conn.set(true)
	rec = ts.do(t, http.MethodPost, "/v1/sync/drain", nil, readWrite...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	drained := decode[DrainResponse](t, rec)
	require.Equal(t, 1, drained.Applied)
	require.Empty(t, drained.Failed)

	rec = ts.do(t, http.MethodGet, "/v1/sync/status", nil, readOnly...)
	require.Zero(t, decode[SyncStatusResponse](t, rec).Pending)

	rec = ts.do(t, http.MethodGet, "/v1/notifications?limit=1", nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[NotificationsResponse](t, rec).Items
	require.Len(t, items, 1)
	require.Equal(t, livesync.NotifyDrained, items[0].Kind)
}

func TestChallengeLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.put(domain.TableWeightLogs, domain.WeightLogEntry{ID: "w1", UserID: "user-1", Weight: 85, MeasuredAt: now.Add(-time.Hour)})

	rec := ts.do(t, http.MethodGet, "/v1/challenge", nil, readOnly...)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/v1/challenge", domain.Challenge{GoalWeight: 80, StartWeight: 90, DurationMonths: 3}, readOnly...)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, "/v1/challenge", domain.Challenge{GoalWeight: 80, StartWeight: 90, DurationMonths: 0}, readWrite...)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/v1/challenge", domain.Challenge{GoalWeight: 80, StartWeight: 90, DurationMonths: 3}, readWrite...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, now.Equal(decode[ChallengeResponse](t, rec).Challenge.StartDate))

	rec = ts.do(t, http.MethodGet, "/v1/challenge", nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ChallengeResponse](t, rec)
	require.NotNil(t, got.Status)
	require.InDelta(t, 50, got.Status.ProgressPercent, 0.001)
	require.Equal(t, 85.0, got.Status.CurrentWeight)

	rec = ts.do(t, http.MethodGet, "/v1/dashboard/daily", nil, readOnly...)
	require.NotNil(t, decode[DailyDashboard](t, rec).Challenge)

	rec = ts.do(t, http.MethodDelete, "/v1/challenge", nil, readWrite...)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/v1/challenge", nil, readOnly...)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalendarTrainingAndAnalysis(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.put(domain.TableWorkoutLogs, domain.WorkoutLogEntry{ID: "wo1", UserID: "user-1", ExerciseID: "squat", Sets: 4, Reps: 8, Unit: domain.WeightKg, CompletedAt: now.Add(-48 * time.Hour)})
	ts.backend.put(domain.TableBodyAnalysis, domain.AnalysisEntry{ID: "a1", UserID: "user-1", Kind: domain.AnalysisBody, ImageRef: "body/user-1/front.jpg", CreatedAt: now})

	rec := ts.do(t, http.MethodGet, "/v1/dashboard/calendar?year=2024&month=3", nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cal := decode[CalendarResponse](t, rec)
	require.Len(t, cal.Days, 31)
	require.Equal(t, 4, cal.Days[7].WorkoutSets)

	rec = ts.do(t, http.MethodGet, "/v1/dashboard/calendar?month=13", nil, readOnly...)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/dashboard/training?year=2024", nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code)
	training := decode[TrainingResponse](t, rec)
	require.Len(t, training.Hours, 12)
	require.Equal(t, 3, training.Month)
	require.Positive(t, training.Hours[2])
	require.Zero(t, training.Hours[1])

	rec = ts.do(t, http.MethodGet, "/v1/analysis?kind=body", nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code)
	analysis := decode[AnalysisResponse](t, rec)
	require.Len(t, analysis.Items, 1)
	require.Equal(t, "https://cdn.example.com/body/user-1/front.jpg", analysis.Items[0].ImageURL)

	rec = ts.do(t, http.MethodGet, "/v1/analysis?kind=mind", nil, readOnly...)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

type logPage struct {
	Table      domain.Table      `json:"table"`
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
}

func TestListLogsPagesWithCursor(t *testing.T) {
	ts := newTestServer(t)
	for i, id := range []string{"w1", "w2", "w3"} {
		ts.backend.put(domain.TableWeightLogs, domain.WeightLogEntry{ID: id, UserID: "user-1", Weight: 80 - float64(i), MeasuredAt: now.Add(time.Duration(i) * time.Hour)})
	}
	ts.backend.put(domain.TableWeightLogs, domain.WeightLogEntry{ID: "other", UserID: "user-2", Weight: 60, MeasuredAt: now})

	rowIDs := func(page logPage) []string {
		var out []string
		for _, raw := range page.Items {
			var entry domain.WeightLogEntry
			require.NoError(t, json.Unmarshal(raw, &entry))
			out = append(out, entry.ID)
		}
		return out
	}

	rec := ts.do(t, http.MethodGet, "/v1/logs?table=weight_logs&limit=2", nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[logPage](t, rec)
	require.Equal(t, domain.TableWeightLogs, first.Table)
	require.Equal(t, []string{"w3", "w2"}, rowIDs(first))
	require.NotEmpty(t, first.NextCursor)

	rec = ts.do(t, http.MethodGet, "/v1/logs?table=weight_logs&limit=2&cursor="+first.NextCursor, nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[logPage](t, rec)
	require.Equal(t, []string{"w1"}, rowIDs(second))
	require.Empty(t, second.NextCursor)

	rec = ts.do(t, http.MethodGet, "/v1/logs?table=jogging_logs", nil, readOnly...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[logPage](t, rec).Items)
}

func TestListLogsRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/logs?table=weight_logs", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, target := range []string{
		"/v1/logs",
		"/v1/logs?table=profiles",
		"/v1/logs?table=weight_logs&cursor=%21%21",
		"/v1/logs?table=weight_logs&limit=0",
	} {
		rec = ts.do(t, http.MethodGet, target, nil, readOnly...)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Equal(t, "validation_failed", decode[map[string]string](t, rec)["type"])
	}
}
