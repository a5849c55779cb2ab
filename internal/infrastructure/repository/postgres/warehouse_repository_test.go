package postgres

import (
	"encoding/json"
	"testing"

	"github.com/riskibarqy/rift-backfill/internal/domain/warehouse"
)

func TestCollectColumns(t *testing.T) {
	rows := []warehouse.Row{
		{"match_id": "M1", "kills": json.Number("7"), "ghost": nil},
		{"match_id": "M2", "win": true, "kda": json.Number("2.5")},
	}

	columns, types := collectColumns(rows)

	want := []string{"ghost", "kda", "kills", "match_id", "win"}
	if len(columns) != len(want) {
		t.Fatalf("unexpected column count: got=%d want=%d", len(columns), len(want))
	}
	for i, name := range want {
		if columns[i] != name {
			t.Fatalf("columns not sorted: got=%v want=%v", columns, want)
		}
	}

	if types["match_id"] != "TEXT" || types["win"] != "BOOLEAN" {
		t.Fatalf("unexpected scalar types: %v", types)
	}
	if types["kills"] != "BIGINT" || types["kda"] != "DOUBLE PRECISION" {
		t.Fatalf("unexpected numeric types: %v", types)
	}
	if types["ghost"] != "TEXT" {
		t.Fatalf("all-null column should default to TEXT, got %s", types["ghost"])
	}
}

func TestCollectColumns_FirstNonNilValueWins(t *testing.T) {
	rows := []warehouse.Row{
		{"flex": nil},
		{"flex": json.Number("3")},
	}
	_, types := collectColumns(rows)
	if types["flex"] != "BIGINT" {
		t.Fatalf("later non-nil value should type the column, got %s", types["flex"])
	}
}

func TestColumnType(t *testing.T) {
	cases := []struct {
		value any
		want  string
	}{
		{json.Number("42"), "BIGINT"},
		{json.Number("2.5"), "DOUBLE PRECISION"},
		{json.Number("9223372036854775808"), "DOUBLE PRECISION"},
		{"text", "TEXT"},
		{true, "BOOLEAN"},
		{[]any{json.Number("1")}, "JSONB"},
		{map[string]any{"a": "b"}, "JSONB"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := columnType(c.value); got != c.want {
			t.Fatalf("columnType(%v) got=%q want=%q", c.value, got, c.want)
		}
	}
}

func TestSQLValue(t *testing.T) {
	t.Run("integer keeps precision", func(t *testing.T) {
		got, err := sqlValue(json.Number("9007199254740993"))
		if err != nil {
			t.Fatalf("sqlValue: %v", err)
		}
		if got != int64(9007199254740993) {
			t.Fatalf("unexpected value: %v (%T)", got, got)
		}
	})

	t.Run("float", func(t *testing.T) {
		got, err := sqlValue(json.Number("2.5"))
		if err != nil {
			t.Fatalf("sqlValue: %v", err)
		}
		if got != 2.5 {
			t.Fatalf("unexpected value: %v (%T)", got, got)
		}
	})

	t.Run("scalars pass through", func(t *testing.T) {
		if got, _ := sqlValue("text"); got != "text" {
			t.Fatalf("unexpected string value: %v", got)
		}
		if got, _ := sqlValue(true); got != true {
			t.Fatalf("unexpected bool value: %v", got)
		}
		if got, _ := sqlValue(nil); got != nil {
			t.Fatalf("unexpected nil value: %v", got)
		}
	})

	t.Run("composite travels as json text", func(t *testing.T) {
		got, err := sqlValue([]any{json.Number("1"), "x"})
		if err != nil {
			t.Fatalf("sqlValue: %v", err)
		}
		if got != `[1,"x"]` {
			t.Fatalf("unexpected encoded value: %v", got)
		}
	})

	t.Run("malformed number", func(t *testing.T) {
		if _, err := sqlValue(json.Number("not-a-number")); err == nil {
			t.Fatalf("expected error for malformed number")
		}
	})
}

func TestNullableString(t *testing.T) {
	if got := nullableString(""); got != nil {
		t.Fatalf("expected nil for empty string, got %v", got)
	}
	got := nullableString("loaded")
	if got == nil || *got != "loaded" {
		t.Fatalf("unexpected pointer value: %v", got)
	}
}
