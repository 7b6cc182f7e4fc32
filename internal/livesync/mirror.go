// Package livesync keeps an in-memory mirror of one user's tables current with the
// backend and routes writes either to the backend or to the offline queue.
package livesync

import (
	"fmt"
	"sort"
	"sync"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
)

// Collection is a most-recent-first list of rows of one type.
type Collection[T domain.Record] struct {
	mu   sync.RWMutex
	rows []T
}

// Snapshot returns a copy of the rows.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.rows))
	copy(out, c.rows)
	return out
}

// Len returns the number of rows.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

// Get returns the row with id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(id); i >= 0 {
		return c.rows[i], true
	}
	var zero T
	return zero, false
}

// Replace installs rows, sorted most recent first.
func (c *Collection[T]) Replace(rows []T) {
	sorted := make([]T, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return domain.Before(sorted[i], sorted[j]) })

	c.mu.Lock()
	c.rows = sorted
	c.mu.Unlock()
}

// Insert prepends row, or replaces it in place when the id is already present.
func (c *Collection[T]) Insert(row T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(row.RecordID()); i >= 0 {
		c.rows[i] = row
		return
	}
	c.rows = append([]T{row}, c.rows...)
}

// Update replaces the row with the same id and reports whether one was found.
func (c *Collection[T]) Update(row T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(row.RecordID()); i >= 0 {
		c.rows[i] = row
		return true
	}
	return false
}

// Delete removes the row with id and reports whether one was found.
func (c *Collection[T]) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(id); i >= 0 {
		c.rows = append(c.rows[:i:i], c.rows[i+1:]...)
		return true
	}
	return false
}

func (c *Collection[T]) index(id string) int {
	for i, row := range c.rows {
		if row.RecordID() == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) apply(op domain.Op, rowID string, rec domain.Record) error {
	if op == domain.OpDelete {
		c.Delete(rowID)
		return nil
	}
	row, ok := rec.(T)
	if !ok {
		return fmt.Errorf("%w: unexpected row type %T", domain.ErrValidation, rec)
	}
	if op == domain.OpInsert {
		c.Insert(row)
	} else {
		c.Update(row)
	}
	return nil
}

func (c *Collection[T]) install(recs []domain.Record) error {
	rows := make([]T, 0, len(recs))
	for _, rec := range recs {
		row, ok := rec.(T)
		if !ok {
			return fmt.Errorf("%w: unexpected row type %T", domain.ErrValidation, rec)
		}
		rows = append(rows, row)
	}
	c.Replace(rows)
	return nil
}

// Mirror holds the local copy of every table for the signed-in user.
type Mirror struct {
	Nutrition    Collection[domain.NutritionLogEntry]
	Workouts     Collection[domain.WorkoutLogEntry]
	Joggings     Collection[domain.JoggingLogEntry]
	Weights      Collection[domain.WeightLogEntry]
	BodyAnalysis Collection[domain.AnalysisEntry]
	FoodAnalysis Collection[domain.AnalysisEntry]

	profileMu sync.RWMutex
	profile   *domain.Profile
}

// NewMirror returns an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{}
}

// Profile returns a copy of the profile, or nil when none is loaded.
func (m *Mirror) Profile() *domain.Profile {
	m.profileMu.RLock()
	defer m.profileMu.RUnlock()
	if m.profile == nil {
		return nil
	}
	p := *m.profile
	return &p
}

func (m *Mirror) setProfile(p *domain.Profile) {
	m.profileMu.Lock()
	defer m.profileMu.Unlock()
	if p == nil {
		m.profile = nil
		return
	}
	cp := *p
	m.profile = &cp
}

// Analysis returns the analysis collection for kind.
func (m *Mirror) Analysis(kind domain.AnalysisKind) *Collection[domain.AnalysisEntry] {
	if kind == domain.AnalysisFood {
		return &m.FoodAnalysis
	}
	return &m.BodyAnalysis
}

// Apply folds one committed change into the mirror. Updates of an unknown id and
// deletes of an absent row are no-ops.
func (m *Mirror) Apply(change events.RowChanged) error {
	rec, err := change.Record()
	if err != nil {
		return err
	}

	switch change.Table {
	case domain.TableNutritionLogs:
		return m.Nutrition.apply(change.Operation, change.RowID, rec)
	case domain.TableWorkoutLogs:
		return m.Workouts.apply(change.Operation, change.RowID, rec)
	case domain.TableJoggingLogs:
		return m.Joggings.apply(change.Operation, change.RowID, rec)
	case domain.TableWeightLogs:
		return m.Weights.apply(change.Operation, change.RowID, rec)
	case domain.TableBodyAnalysis:
		return m.BodyAnalysis.apply(change.Operation, change.RowID, rec)
	case domain.TableFoodAnalysis:
		return m.FoodAnalysis.apply(change.Operation, change.RowID, rec)
	case domain.TableProfiles:
		if change.Operation == domain.OpDelete {
			m.setProfile(nil)
			return nil
		}
		p, ok := rec.(domain.Profile)
		if !ok {
			return fmt.Errorf("%w: unexpected row type %T", domain.ErrValidation, rec)
		}
		m.setProfile(&p)
		return nil
	}
	return fmt.Errorf("%w: table %q", domain.ErrValidation, change.Table)
}

// Snapshot is the result of a bulk load.
type Snapshot struct {
	Tables  map[domain.Table][]domain.Record
	Profile *domain.Profile
}

// Install replaces every collection with the snapshot contents. Tables absent from the
// snapshot are emptied.
func (m *Mirror) Install(s Snapshot) error {
	installs := []struct {
		table   domain.Table
		install func([]domain.Record) error
	}{
		{domain.TableNutritionLogs, m.Nutrition.install},
		{domain.TableWorkoutLogs, m.Workouts.install},
		{domain.TableJoggingLogs, m.Joggings.install},
		{domain.TableWeightLogs, m.Weights.install},
		{domain.TableBodyAnalysis, m.BodyAnalysis.install},
		{domain.TableFoodAnalysis, m.FoodAnalysis.install},
	}
	for _, in := range installs {
		if err := in.install(s.Tables[in.table]); err != nil {
			return fmt.Errorf("%s: %w", in.table, err)
		}
	}
	m.setProfile(s.Profile)
	return nil
}

// Reset empties the mirror.
func (m *Mirror) Reset() {
	_ = m.Install(Snapshot{})
}
