package resolution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"caseflow/apperr"
)

func ptr[T any](v T) *T { return &v }

func TestMerge_SettlementThenCorrection(t *testing.T) {
	first := time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)
	settled := Merge(Input{
		Outcomes:  ptr("paid $500"),
		ActorID:   "steward-1",
		NewStatus: "SETTLED",
		Now:       first,
	})
	require.NotNil(t, settled)
	require.Equal(t, "SETTLED", settled.ResolutionType)
	require.Equal(t, first, *settled.ResolutionDate)
	require.Equal(t, "steward-1", settled.ResolvedBy)
	require.Equal(t, "paid $500", settled.Outcomes)
	require.Equal(t, "paid $500", settled.Details)
	require.NoError(t, settled.Validate())

	second := first.Add(48 * time.Hour)
	corrected := Merge(Input{
		Existing:  settled,
		Outcomes:  ptr("correction: paid $600"),
		ActorID:   "steward-2",
		NewStatus: "SETTLED",
		Now:       second,
	})
	require.Equal(t, "SETTLED", corrected.ResolutionType)
	require.Equal(t, "steward-1", corrected.ResolvedBy)
	require.Equal(t, "paid $500", corrected.Details)
	require.Equal(t, "correction: paid $600", corrected.Outcomes)
	require.Equal(t, second, *corrected.ResolutionDate)

	// the input record is not mutated
	require.Equal(t, "paid $500", settled.Outcomes)
	require.Equal(t, first, *settled.ResolutionDate)
}

func TestMerge_SuppliedRecordWinsOverExisting(t *testing.T) {
	now := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	existing := &Details{Version: 1, ResolutionType: "SETTLED", ResolutionDate: ptr(now.Add(-time.Hour)), ResolvedBy: "a"}
	supplied := &Details{Version: 1, ResolutionType: "WITHDRAWN", ResolutionDate: ptr(now.Add(-time.Hour)), ResolvedBy: "b", Details: "withdrawn by grievor"}

	got := Merge(Input{Existing: existing, Supplied: supplied, Outcomes: ptr("no remedy"), ActorID: "c", Now: now})
	require.Equal(t, "WITHDRAWN", got.ResolutionType)
	require.Equal(t, "b", got.ResolvedBy)
	require.Equal(t, "withdrawn by grievor", got.Details)
	require.Equal(t, "no remedy", got.Outcomes)
	require.Equal(t, now, *got.ResolutionDate)
}

func TestMerge_NoOutcomesPassesSuppliedThrough(t *testing.T) {
	now := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	existing := &Details{Version: 1, ResolutionType: "SETTLED", ResolutionDate: ptr(now), ResolvedBy: "a"}

	require.Nil(t, Merge(Input{Existing: existing, Now: now}), "nil supplied clears the record")
	require.Nil(t, Merge(Input{Existing: existing, Outcomes: ptr("   "), Now: now}), "blank outcomes count as absent")

	supplied := &Details{ResolutionType: "RESOLVED"}
	got := Merge(Input{Existing: existing, Supplied: supplied, ActorID: "u-9", Now: now})
	require.Equal(t, "RESOLVED", got.ResolutionType)
	require.Equal(t, "u-9", got.ResolvedBy, "missing resolver is completed with the actor")
	require.Equal(t, now, *got.ResolutionDate)
	require.Equal(t, CurrentVersion, got.Version)
	require.NoError(t, got.Validate())
}

func TestParse(t *testing.T) {
	d, err := Parse(nil)
	require.NoError(t, err)
	require.Nil(t, d)

	d, err = Parse([]byte(" null "))
	require.NoError(t, err)
	require.Nil(t, d)

	d, err = Parse([]byte(`{"resolutionType":"SETTLED","resolutionDate":"2024-01-02T03:04:05Z","resolvedBy":"u","outcomes":"x"}`))
	require.NoError(t, err)
	require.Equal(t, 1, d.Version, "legacy rows read as version 1")
	require.Equal(t, "SETTLED", d.ResolutionType)

	_, err = Parse([]byte(`{"version":7}`))
	require.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = Parse([]byte(`{"resolutionType":`))
	require.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestValidate_TypedRecordNeedsDateAndResolver(t *testing.T) {
	err := (&Details{Version: 1, ResolutionType: "SETTLED"}).Validate()
	require.True(t, errors.Is(err, apperr.ErrValidation))

	var nilDetails *Details
	require.NoError(t, nilDetails.Validate())
}

func TestMarshalRoundTripsThroughParse(t *testing.T) {
	at := time.Date(2024, time.July, 9, 12, 0, 0, 0, time.UTC)
	raw, err := Marshal(&Details{Version: 1, ResolutionType: "SETTLED", ResolutionDate: &at, ResolvedBy: "u"})
	require.NoError(t, err)
	got, err := Parse(raw)
	require.NoError(t, err)
	require.True(t, at.Equal(*got.ResolutionDate))

	raw, err = Marshal(nil)
	require.NoError(t, err)
	require.Nil(t, raw)
}
