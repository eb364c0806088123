package changeorder

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/b2a/internal/id"
	"github.com/cleared-dev/b2a/internal/model"
)

func item(total string) model.ChangeOrderContentItem {
	return model.ChangeOrderContentItem{TotalAmt: decimal.RequireFromString(total), CostCode: "1.1"}
}

func sampleLedger() *Ledger {
	return NewLedger([]model.ChangeOrderSummary{
		{UUID: "co-1", Name: "Extra outlets", SubtotalAmt: decimal.NewFromInt(500)},
		{UUID: "co-2", Name: "Deck", SubtotalAmt: decimal.NewFromInt(4000), Content: map[string]model.ChangeOrderContentItem{
			id.FormatContentKey("line-1", "inv-9"): item("250"),
		}},
	})
}

func TestAssignAndTotal(t *testing.T) {
	l := sampleLedger()
	require.NoError(t, l.Assign("co-1", id.FormatContentKey("line-1", "inv-1"), item("100")))
	require.NoError(t, l.Assign("co-1", id.FormatContentKey("line-2", "inv-1"), item("50.25")))
	// Upsert replaces rather than accumulates.
	require.NoError(t, l.Assign("co-1", id.FormatContentKey("line-2", "inv-1"), item("60")))

	assert.Equal(t, "160.00", l.Total("co-1").StringFixed(2))
	assert.Equal(t, "0.00", l.Total("missing").StringFixed(2))

	err := l.Assign("co-404", "x::y", item("1"))
	assert.ErrorIs(t, err, ErrUnknownChangeOrder)
}

func TestReassign(t *testing.T) {
	l := sampleLedger()
	key := id.FormatContentKey("line-1", "inv-9")

	require.NoError(t, l.Reassign("co-2", "co-1", key, item("250")))
	assert.True(t, l.Total("co-2").IsZero())
	assert.Equal(t, "250", l.Total("co-1").String())

	// Unknown destination leaves the source untouched.
	err := l.Reassign("co-1", "co-404", key, item("250"))
	assert.ErrorIs(t, err, ErrUnknownChangeOrder)
	assert.Equal(t, "250", l.Total("co-1").String())

	err = l.Reassign("co-404", "co-1", key, item("250"))
	assert.ErrorIs(t, err, ErrUnknownChangeOrder)
}

func TestUnassign_NoOpWhenAbsent(t *testing.T) {
	l := sampleLedger()
	l.Unassign("co-2", "nope::nope")
	l.Unassign("co-404", "x::y")
	assert.Equal(t, "250", l.Total("co-2").String())

	l.Unassign("co-2", id.FormatContentKey("line-1", "inv-9"))
	assert.True(t, l.Total("co-2").IsZero())
}

func TestRemoveDocument(t *testing.T) {
	l := sampleLedger()
	require.NoError(t, l.Assign("co-1", id.FormatContentKey("line-1", "inv-9"), item("10")))
	require.NoError(t, l.Assign("co-1", id.FormatContentKey(id.WholeDocument, "inv-3"), item("20")))

	assert.Equal(t, 1, l.RemoveDocument([]string{"inv-9"}, []string{"co-1"}))
	assert.Equal(t, "250", l.Total("co-2").String(), "scoped removal leaves other orders alone")

	assert.Equal(t, 2, l.RemoveDocument([]string{"inv-9", "inv-3"}, nil))
	assert.True(t, l.Total("co-1").IsZero())
	assert.True(t, l.Total("co-2").IsZero())
}

func TestResolve(t *testing.T) {
	l := sampleLedger()

	tests := []struct {
		name string
		ref  *model.ChangeOrderRef
		want string
	}{
		{"by id", &model.ChangeOrderRef{ID: "co-2"}, "co-2"},
		{"by name", &model.ChangeOrderRef{Name: "Extra outlets"}, "co-1"},
		{"stale id falls back to name", &model.ChangeOrderRef{ID: "old", Name: "Deck"}, "co-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Resolve(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := l.Resolve(&model.ChangeOrderRef{Name: "Pool"})
	var lookup LookupError
	require.True(t, errors.As(err, &lookup))
	assert.Equal(t, "Pool", lookup.Ref)

	_, err = l.Resolve(nil)
	assert.ErrorAs(t, err, &lookup)
}

func TestValidateExclusivity(t *testing.T) {
	co := &model.ChangeOrderRef{ID: "co-1"}

	tests := []struct {
		name    string
		doc     Document
		wantErr bool
	}{
		{"no change orders", model.Invoice{ID: "inv-1"}, false},
		{"document only", model.Invoice{ID: "inv-1", ChangeOrder: co}, false},
		{"lines only", model.Invoice{ID: "inv-1", LineItems: map[string]model.LineItem{"a": {ChangeOrder: co}}}, false},
		{"both", model.Invoice{ID: "inv-1", ChangeOrder: co, LineItems: map[string]model.LineItem{
			"a": {},
			"b": {ChangeOrder: &model.ChangeOrderRef{Name: "Deck"}},
		}}, true},
		{"empty ref on document is ignored", model.Invoice{ID: "inv-1", ChangeOrder: &model.ChangeOrderRef{},
			LineItems: map[string]model.LineItem{"a": {ChangeOrder: co}}}, false},
		{"labor", model.Labor{ID: "lab-1", LineItems: map[string]model.LaborLineItem{"a": {ChangeOrder: co}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExclusivity(tt.doc)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ce ConsistencyError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "inv-1", ce.DocumentID)
			assert.Contains(t, ce.UserMessage, "co-1")
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l := sampleLedger()
	c := l.Clone()
	require.NoError(t, c.Assign("co-1", "line-1::inv-1", item("99")))
	c.Unassign("co-2", id.FormatContentKey("line-1", "inv-9"))

	assert.True(t, l.Total("co-1").IsZero())
	assert.Equal(t, "250", l.Total("co-2").String())
	assert.Equal(t, []string{"co-1", "co-2"}, c.IDs())
}

func TestContentAndSummaries(t *testing.T) {
	l := sampleLedger()
	content := l.Content()
	require.Len(t, content, 2)
	assert.Empty(t, content["co-1"])

	content["co-2"]["x::y"] = item("1")
	assert.Equal(t, "250", l.Total("co-2").String(), "Content returns copies")

	sums := l.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, "Extra outlets", sums[0].Name)
	assert.Equal(t, "4000", sums[1].SubtotalAmt.String())
}
