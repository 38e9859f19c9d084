// Package detect compares course snapshots and classifies the differences.
package detect

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// Detector diffs a freshly fetched snapshot against the persisted one and
// replaces the stored snapshot with the new one.
type Detector struct {
	store  monitor.SnapshotStore
	logger *zap.Logger
}

// NewDetector creates a Detector backed by the given snapshot store.
func NewDetector(store monitor.SnapshotStore, logger *zap.Logger) (*Detector, error) {
	if store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Detector{store: store, logger: logger}, nil
}

// Detect classifies newSnap against the stored snapshot for the account and
// then persists newSnap. An account with no stored history gets every course
// classified as new. The persist happens even when nothing changed, so
// CapturedAt always reflects the latest successful fetch.
func (d *Detector) Detect(ctx context.Context, newSnap monitor.Snapshot) (monitor.ChangeSet, error) {
	if newSnap.AccountID == "" {
		return monitor.ChangeSet{}, fmt.Errorf("snapshot account id is required")
	}

	var oldCourses []monitor.Course
	prev, err := d.store.Get(ctx, newSnap.AccountID)
	switch {
	case err == nil:
		oldCourses = prev.Courses
	case errors.Is(err, monitor.ErrSnapshotNotFound):
		d.logger.Info("no snapshot history, treating all courses as new",
			zap.String("account_id", newSnap.AccountID))
	default:
		return monitor.ChangeSet{}, fmt.Errorf("load previous snapshot: %w", err)
	}

	changes := Diff(oldCourses, newSnap.Courses)

	if err := d.store.Put(ctx, newSnap); err != nil {
		return monitor.ChangeSet{}, fmt.Errorf("persist snapshot: %w", err)
	}
	return changes, nil
}

// Diff classifies newCourses against oldCourses by course name. Duplicate
// names within one slice are last-write-wins. The result buckets are sorted
// by course name so repeated runs over the same inputs are identical.
func Diff(oldCourses, newCourses []monitor.Course) monitor.ChangeSet {
	oldByName := indexByName(oldCourses)
	newByName := indexByName(newCourses)

	var cs monitor.ChangeSet
	for name, course := range newByName {
		old, existed := oldByName[name]
		switch {
		case !existed:
			cs.New = append(cs.New, course)
		case examsEqual(old.Exams, course.Exams):
			cs.Unchanged = append(cs.Unchanged, name)
		default:
			cs.Updated = append(cs.Updated, monitor.CourseDiff{
				Course: course,
				Lines:  diffExams(old.Exams, course.Exams),
			})
		}
	}
	for name := range oldByName {
		if _, still := newByName[name]; !still {
			cs.Removed = append(cs.Removed, name)
		}
	}

	sort.Slice(cs.New, func(i, j int) bool { return cs.New[i].Name < cs.New[j].Name })
	sort.Slice(cs.Updated, func(i, j int) bool { return cs.Updated[i].Course.Name < cs.Updated[j].Course.Name })
	sort.Strings(cs.Removed)
	sort.Strings(cs.Unchanged)
	return cs
}

func indexByName(courses []monitor.Course) map[string]monitor.Course {
	out := make(map[string]monitor.Course, len(courses))
	for _, c := range courses {
		out[c.Name] = c
	}
	return out
}

// examsEqual is order- and content-sensitive: a reordered exam list counts as
// a change.
func examsEqual(a, b []monitor.ExamRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// diffExams derives per-label lines for an updated course. A label present in
// both lists with a different score yields an old → new line; a label only in
// the new list yields an added line. Removed or reordered labels produce no
// line, so the result can be empty even though the lists differ.
func diffExams(oldExams, newExams []monitor.ExamRecord) []monitor.ExamDiff {
	oldByLabel := make(map[string]string, len(oldExams))
	for _, e := range oldExams {
		oldByLabel[e.Label] = e.Score
	}

	var lines []monitor.ExamDiff
	seen := make(map[string]bool, len(newExams))
	for _, e := range newExams {
		if seen[e.Label] {
			continue
		}
		seen[e.Label] = true
		oldScore, existed := oldByLabel[e.Label]
		switch {
		case !existed:
			lines = append(lines, monitor.ExamDiff{Label: e.Label, New: e.Score, Added: true})
		case oldScore != e.Score:
			lines = append(lines, monitor.ExamDiff{Label: e.Label, Old: oldScore, New: e.Score})
		}
	}
	return lines
}
