package services

import (
	"context"
	"testing"
	"time"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
)

func newChangeService(t *testing.T) (ChangeService, testRepos) {
	t.Helper()
	db := newTestDB(t)
	r := newTestRepos(db)
	svc := NewChangeService(db, r.units, r.changes, r.embs, logger.NewNop())
	return svc, r
}

func TestApplyChangeRepealClosesInterval(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()

	doc := mustCreateDoc(t, r, "Civil Code")
	unit := mustCreateUnit(t, r, doc.ID, "some text", datePtr(2020, time.January, 1))

	change, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:        unit.ID,
		Kind:          types.ChangeRepeal,
		EffectiveDate: date(2024, time.June, 10),
	})
	if err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	if change.Kind != types.ChangeRepeal {
		t.Fatalf("change kind = %q", change.Kind)
	}

	got, err := r.units.GetByID(ctx, nil, unit.ID)
	if err != nil {
		t.Fatalf("reload unit: %v", err)
	}
	if got.ValidTo == nil || !got.ValidTo.Equal(date(2024, time.June, 9)) {
		t.Fatalf("valid_to = %v, want 2024-06-09", got.ValidTo)
	}

	history, err := r.changes.ListByUnit(ctx, nil, unit.ID)
	if err != nil {
		t.Fatalf("list changes: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d", len(history))
	}
}

func TestApplyChangeRemoveClosesInterval(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()

	doc := mustCreateDoc(t, r, "Tax Code")
	unit := mustCreateUnit(t, r, doc.ID, "x", datePtr(2019, time.March, 1))

	if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:        unit.ID,
		Kind:          types.ChangeRemove,
		EffectiveDate: date(2023, time.January, 1),
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	got, _ := r.units.GetByID(ctx, nil, unit.ID)
	if got.ValidTo == nil || !got.ValidTo.Equal(date(2022, time.December, 31)) {
		t.Fatalf("valid_to = %v, want 2022-12-31", got.ValidTo)
	}
}

func TestApplyChangeSubstitute(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()

	doc := mustCreateDoc(t, r, "Labor Law")
	old := mustCreateUnit(t, r, doc.ID, "old text", datePtr(2015, time.January, 1))
	successor := mustCreateUnit(t, r, doc.ID, "new text", nil)

	if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:         old.ID,
		Kind:           types.ChangeSubstitute,
		EffectiveDate:  date(2024, time.February, 1),
		SupersededByID: &successor.ID,
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}

	gotOld, _ := r.units.GetByID(ctx, nil, old.ID)
	if gotOld.ValidTo == nil || !gotOld.ValidTo.Equal(date(2024, time.January, 31)) {
		t.Fatalf("predecessor valid_to = %v, want 2024-01-31", gotOld.ValidTo)
	}
	gotNew, _ := r.units.GetByID(ctx, nil, successor.ID)
	if gotNew.ValidFrom == nil || !gotNew.ValidFrom.Equal(date(2024, time.February, 1)) {
		t.Fatalf("successor valid_from = %v, want 2024-02-01", gotNew.ValidFrom)
	}
}

func TestApplyChangeSubstituteRequiresSuccessor(t *testing.T) {
	svc, r := newChangeService(t)
	doc := mustCreateDoc(t, r, "doc")
	unit := mustCreateUnit(t, r, doc.ID, "x", nil)

	_, err := svc.ApplyChange(context.Background(), ApplyChangeInput{
		UnitID:        unit.ID,
		Kind:          types.ChangeSubstitute,
		EffectiveDate: date(2024, time.January, 1),
	})
	if err == nil {
		t.Fatal("expected error for SUBSTITUTE without successor")
	}
}

func TestApplyChangeAddSetsValidFromOnlyWhenUnset(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()

	doc := mustCreateDoc(t, r, "doc")
	fresh := mustCreateUnit(t, r, doc.ID, "x", nil)
	dated := mustCreateUnit(t, r, doc.ID, "y", datePtr(2010, time.May, 5))

	if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:        fresh.ID,
		Kind:          types.ChangeAdd,
		EffectiveDate: date(2022, time.July, 1),
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	got, _ := r.units.GetByID(ctx, nil, fresh.ID)
	if got.ValidFrom == nil || !got.ValidFrom.Equal(date(2022, time.July, 1)) {
		t.Fatalf("valid_from = %v, want 2022-07-01", got.ValidFrom)
	}

	if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:        dated.ID,
		Kind:          types.ChangeAdd,
		EffectiveDate: date(2022, time.July, 1),
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	got, _ = r.units.GetByID(ctx, nil, dated.ID)
	if got.ValidFrom == nil || !got.ValidFrom.Equal(date(2010, time.May, 5)) {
		t.Fatalf("existing valid_from was overwritten: %v", got.ValidFrom)
	}
}

func TestApplyChangeAmendLeavesIntervalAlone(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()

	doc := mustCreateDoc(t, r, "doc")
	unit := mustCreateUnit(t, r, doc.ID, "x", datePtr(2018, time.January, 1))

	if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:        unit.ID,
		Kind:          types.ChangeAmend,
		EffectiveDate: date(2021, time.March, 3),
		Note:          "wording fix",
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	got, _ := r.units.GetByID(ctx, nil, unit.ID)
	if got.ValidTo != nil {
		t.Fatalf("AMEND must not close the interval, valid_to = %v", got.ValidTo)
	}
	if got.ValidFrom == nil || !got.ValidFrom.Equal(date(2018, time.January, 1)) {
		t.Fatalf("valid_from changed: %v", got.ValidFrom)
	}
}

func TestApplyChangeRejectsFutureDate(t *testing.T) {
	svc, r := newChangeService(t)
	doc := mustCreateDoc(t, r, "doc")
	unit := mustCreateUnit(t, r, doc.ID, "x", nil)

	_, err := svc.ApplyChange(context.Background(), ApplyChangeInput{
		UnitID:        unit.ID,
		Kind:          types.ChangeAmend,
		EffectiveDate: time.Now().UTC().AddDate(0, 0, 2),
	})
	if err == nil {
		t.Fatal("expected error for future effective date")
	}
}

func TestApplyChangeRejectsUnknownKind(t *testing.T) {
	svc, r := newChangeService(t)
	doc := mustCreateDoc(t, r, "doc")
	unit := mustCreateUnit(t, r, doc.ID, "x", nil)

	_, err := svc.ApplyChange(context.Background(), ApplyChangeInput{
		UnitID:        unit.ID,
		Kind:          "EXPLODE",
		EffectiveDate: date(2024, time.January, 1),
	})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestApplyChangeFlagsEmbeddingMetadata(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()

	doc := mustCreateDoc(t, r, "doc")
	unit := mustCreateUnit(t, r, doc.ID, "some text", datePtr(2020, time.January, 1))
	_, emb := seedChunkWithEmbedding(t, r, unit.ID, 0, "some text")
	if err := r.embs.SetMetadata(ctx, nil, emb.ID, "somehash", types.MetadataClean); err != nil {
		t.Fatalf("seed metadata state: %v", err)
	}

	// AMEND leaves the interval alone, so nothing gets flagged.
	if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:        unit.ID,
		Kind:          types.ChangeAmend,
		EffectiveDate: date(2023, time.March, 1),
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	got, _ := r.embs.GetByID(ctx, nil, emb.ID)
	if got.MetadataState != types.MetadataClean {
		t.Fatalf("metadata state after AMEND = %s", got.MetadataState)
	}

	// REPEAL moves valid_to, which flows into chunk metadata; the flag is
	// set by the service itself, with no extra call from the caller.
	if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:        unit.ID,
		Kind:          types.ChangeRepeal,
		EffectiveDate: date(2024, time.June, 10),
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	got, _ = r.embs.GetByID(ctx, nil, emb.ID)
	if got.MetadataState != types.MetadataDirty {
		t.Fatalf("metadata state after REPEAL = %s", got.MetadataState)
	}
}

func TestApplyChangeSubstituteFlagsSuccessorMetadata(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()

	doc := mustCreateDoc(t, r, "doc")
	old := mustCreateUnit(t, r, doc.ID, "old", datePtr(2015, time.January, 1))
	successor := mustCreateUnit(t, r, doc.ID, "new", nil)
	_, succEmb := seedChunkWithEmbedding(t, r, successor.ID, 0, "new")
	if err := r.embs.SetMetadata(ctx, nil, succEmb.ID, "somehash", types.MetadataClean); err != nil {
		t.Fatalf("seed metadata state: %v", err)
	}

	if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:         old.ID,
		Kind:           types.ChangeSubstitute,
		EffectiveDate:  date(2024, time.February, 1),
		SupersededByID: &successor.ID,
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	got, _ := r.embs.GetByID(ctx, nil, succEmb.ID)
	if got.MetadataState != types.MetadataDirty {
		t.Fatalf("successor metadata state = %s", got.MetadataState)
	}
}

func TestCheckConsistencyFindsContradictions(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()
	doc := mustCreateDoc(t, r, "doc")

	// Inverted interval.
	inverted := mustCreateUnit(t, r, doc.ID, "x", datePtr(2024, time.June, 1))
	if err := r.units.UpdateValidity(ctx, nil, inverted.ID, datePtr(2024, time.June, 1), datePtr(2020, time.January, 1)); err != nil {
		t.Fatalf("seed interval: %v", err)
	}
	issues, err := svc.CheckConsistency(ctx, inverted.ID)
	if err != nil {
		t.Fatalf("CheckConsistency: %v", err)
	}
	if !hasIssue(issues, IssueInvertedInterval) {
		t.Fatalf("missing %s in %+v", IssueInvertedInterval, issues)
	}

	// Event before valid_from, and a REPEAL whose interval was never closed.
	odd := mustCreateUnit(t, r, doc.ID, "y", datePtr(2020, time.January, 1))
	if _, err := r.changes.Create(ctx, nil, &types.UnitChange{
		UnitID:        odd.ID,
		Kind:          types.ChangeRepeal,
		EffectiveDate: date(2019, time.May, 1),
	}); err != nil {
		t.Fatalf("seed change: %v", err)
	}
	issues, err = svc.CheckConsistency(ctx, odd.ID)
	if err != nil {
		t.Fatalf("CheckConsistency: %v", err)
	}
	if !hasIssue(issues, IssueEventBeforeStart) {
		t.Fatalf("missing %s in %+v", IssueEventBeforeStart, issues)
	}
	if !hasIssue(issues, IssueTerminalNotClosed) {
		t.Fatalf("missing %s in %+v", IssueTerminalNotClosed, issues)
	}
}

func TestCheckConsistencyCleanUnit(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()
	doc := mustCreateDoc(t, r, "doc")
	unit := mustCreateUnit(t, r, doc.ID, "x", datePtr(2020, time.January, 1))

	if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
		UnitID:        unit.ID,
		Kind:          types.ChangeRepeal,
		EffectiveDate: date(2024, time.June, 10),
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	issues, err := svc.CheckConsistency(ctx, unit.ID)
	if err != nil {
		t.Fatalf("CheckConsistency: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestActiveAsOf(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()
	doc := mustCreateDoc(t, r, "doc")

	open := mustCreateUnit(t, r, doc.ID, "open-ended", nil)
	current := mustCreateUnit(t, r, doc.ID, "current", datePtr(2020, time.January, 1))
	expired := mustCreateUnit(t, r, doc.ID, "expired", datePtr(2010, time.January, 1))
	if err := r.units.UpdateValidity(ctx, nil, expired.ID, datePtr(2010, time.January, 1), datePtr(2015, time.December, 31)); err != nil {
		t.Fatalf("seed interval: %v", err)
	}
	notYet := mustCreateUnit(t, r, doc.ID, "not yet", datePtr(2030, time.January, 1))

	units, err := svc.ActiveAsOf(ctx, doc.ID, date(2024, time.June, 10))
	if err != nil {
		t.Fatalf("ActiveAsOf: %v", err)
	}
	got := map[string]bool{}
	for _, u := range units {
		got[u.ID.String()] = true
	}
	if !got[open.ID.String()] || !got[current.ID.String()] {
		t.Fatalf("open/current unit missing from %v", got)
	}
	if got[expired.ID.String()] || got[notYet.ID.String()] {
		t.Fatalf("expired or future unit returned: %v", got)
	}

	// Interval bounds are inclusive on both ends.
	units, err = svc.ActiveAsOf(ctx, doc.ID, date(2015, time.December, 31))
	if err != nil {
		t.Fatalf("ActiveAsOf: %v", err)
	}
	found := false
	for _, u := range units {
		if u.ID == expired.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("unit should still be active on its valid_to day")
	}
}

func TestTimelineOrdersByEffectiveDate(t *testing.T) {
	svc, r := newChangeService(t)
	ctx := context.Background()
	doc := mustCreateDoc(t, r, "doc")
	unit := mustCreateUnit(t, r, doc.ID, "x", datePtr(2000, time.January, 1))

	for _, d := range []time.Time{
		date(2020, time.May, 1),
		date(2005, time.March, 1),
		date(2012, time.September, 1),
	} {
		if _, err := svc.ApplyChange(ctx, ApplyChangeInput{
			UnitID:        unit.ID,
			Kind:          types.ChangeAmend,
			EffectiveDate: d,
		}); err != nil {
			t.Fatalf("ApplyChange: %v", err)
		}
	}

	timeline, err := svc.Timeline(ctx, unit.ID)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(timeline.Changes) != 3 {
		t.Fatalf("changes = %d", len(timeline.Changes))
	}
	for i := 1; i < len(timeline.Changes); i++ {
		if timeline.Changes[i].EffectiveDate.Before(timeline.Changes[i-1].EffectiveDate) {
			t.Fatalf("changes out of order: %v before %v",
				timeline.Changes[i].EffectiveDate, timeline.Changes[i-1].EffectiveDate)
		}
	}
}

func hasIssue(issues []ConsistencyIssue, code string) bool {
	for _, is := range issues {
		if is.Code == code {
			return true
		}
	}
	return false
}
