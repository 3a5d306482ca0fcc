// ABOUTME: Tests for the transform pipeline dispatch table across representative op kinds

package transform

import (
	"context"
	"testing"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/pkg/types"
)

func contextWithOrders() *runtime.Context {
	return runtime.NewContext(map[string]interface{}{
		"orders": []interface{}{
			map[string]interface{}{"id": float64(1), "region": "east", "amount": float64(10)},
			map[string]interface{}{"id": float64(2), "region": "west", "amount": float64(25)},
			map[string]interface{}{"id": float64(3), "region": "east", "amount": float64(5)},
		},
	})
}

func runPipeline(t *testing.T, rc *runtime.Context, input string, ops ...types.TransformOp) interface{} {
	t.Helper()
	spec := &types.TransformSpec{Input: input, Ops: ops}
	out, err := New(spec).Execute(context.Background(), rc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out["output"]
}

func TestSelectProjectsFields(t *testing.T) {
	rc := contextWithOrders()
	out := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{Kind: "select", Fields: []string{"id", "region"}})
	records, ok := out.([]interface{})
	if !ok || len(records) != 3 {
		t.Fatalf("expected 3 records, got %#v", out)
	}
	rec := records[0].(map[string]interface{})
	if _, hasAmount := rec["amount"]; hasAmount {
		t.Errorf("expected amount to be excluded, got %#v", rec)
	}
	if rec["id"] != float64(1) {
		t.Errorf("unexpected id: %#v", rec)
	}
}

func TestFilterByOperator(t *testing.T) {
	rc := contextWithOrders()
	out := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{Kind: "filter", Field: "region", Operator: "==", Value: "east"})
	records := out.([]interface{})
	if len(records) != 2 {
		t.Fatalf("expected 2 east records, got %d", len(records))
	}
}

func TestGroupByWithAggregations(t *testing.T) {
	rc := contextWithOrders()
	out := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{
		Kind: "groupBy", Key: "region",
		Aggregations: map[string]string{"total": "sum(amount)", "n": "count()"},
	})
	records := out.([]interface{})
	if len(records) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(records))
	}
	byRegion := map[string]map[string]interface{}{}
	for _, r := range records {
		rec := r.(map[string]interface{})
		byRegion[rec["region"].(string)] = rec
	}
	if byRegion["east"]["total"] != float64(15) || byRegion["east"]["n"] != float64(2) {
		t.Errorf("unexpected east aggregation: %#v", byRegion["east"])
	}
}

func TestSortByDescending(t *testing.T) {
	rc := contextWithOrders()
	out := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{Kind: "sortBy", Field: "amount", Order: "desc"})
	records := out.([]interface{})
	first := records[0].(map[string]interface{})
	if first["amount"] != float64(25) {
		t.Errorf("expected highest amount first, got %#v", first)
	}
}

func TestLimitAndSkip(t *testing.T) {
	rc := contextWithOrders()
	out := runPipeline(t, rc, "{{input.orders}}",
		types.TransformOp{Kind: "sortBy", Field: "id", Order: "asc"},
		types.TransformOp{Kind: "skip", Count: 1},
		types.TransformOp{Kind: "limit", Count: 1},
	)
	records := out.([]interface{})
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].(map[string]interface{})["id"] != float64(2) {
		t.Errorf("unexpected record: %#v", records[0])
	}
}

func TestJoinInner(t *testing.T) {
	rc := runtime.NewContext(map[string]interface{}{
		"left":  []interface{}{map[string]interface{}{"userId": float64(1), "name": "alice"}},
		"right": []interface{}{map[string]interface{}{"userId": float64(1), "plan": "gold"}},
	})
	out := runPipeline(t, rc, "{{input.left}}", types.TransformOp{
		Kind: "join", LeftKey: "userId", RightKey: "userId", RightData: "{{input.right}}", JoinType: "inner",
	})
	records := out.([]interface{})
	if len(records) != 1 {
		t.Fatalf("expected 1 joined record, got %d", len(records))
	}
	rec := records[0].(map[string]interface{})
	if rec["name"] != "alice" || rec["plan"] != "gold" {
		t.Errorf("unexpected joined record: %#v", rec)
	}
}

func TestArrayOpsFirstLastReverse(t *testing.T) {
	rc := contextWithOrders()
	first := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{Kind: "sortBy", Field: "id", Order: "asc"}, types.TransformOp{Kind: "first"})
	firstRecs := first.([]interface{})
	if len(firstRecs) != 1 || firstRecs[0].(map[string]interface{})["id"] != float64(1) {
		t.Fatalf("unexpected first: %#v", first)
	}

	reversed := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{Kind: "sortBy", Field: "id", Order: "asc"}, types.TransformOp{Kind: "reverse"})
	recs := reversed.([]interface{})
	if recs[0].(map[string]interface{})["id"] != float64(3) {
		t.Errorf("unexpected reversed order: %#v", recs)
	}
}

func TestChunkGroupsFixedSize(t *testing.T) {
	rc := contextWithOrders()
	out := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{Kind: "chunk", Size: 2})
	chunks := out.([]interface{})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0].([]interface{})) != 2 || len(chunks[1].([]interface{})) != 1 {
		t.Errorf("unexpected chunk sizes: %#v", chunks)
	}
}

func TestStringOpsUppercaseOnField(t *testing.T) {
	rc := contextWithOrders()
	out := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{Kind: "uppercase", Field: "region"})
	records := out.([]interface{})
	if records[0].(map[string]interface{})["region"] != "EAST" {
		t.Errorf("unexpected: %#v", records[0])
	}
}

func TestMathOpsRoundAndClamp(t *testing.T) {
	rc := runtime.NewContext(map[string]interface{}{"values": []interface{}{
		map[string]interface{}{"v": 3.14159},
	}})
	out := runPipeline(t, rc, "{{input.values}}", types.TransformOp{Kind: "round", Field: "v", Precision: 2})
	records := out.([]interface{})
	if records[0].(map[string]interface{})["v"] != 3.14 {
		t.Errorf("unexpected rounded value: %#v", records[0])
	}

	clamped := runPipeline(t, rc, "{{input.values}}", types.TransformOp{Kind: "clamp", Field: "v", Min: 0, Max: 1})
	crecords := clamped.([]interface{})
	if crecords[0].(map[string]interface{})["v"] != float64(1) {
		t.Errorf("unexpected clamped value: %#v", crecords[0])
	}
}

func TestShuffleDeterministicWithSeed(t *testing.T) {
	rc := contextWithOrders()
	seed := int64(42)
	out1 := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{Kind: "shuffle", Seed: &seed})
	out2 := runPipeline(t, rc, "{{input.orders}}", types.TransformOp{Kind: "shuffle", Seed: &seed})
	r1 := out1.([]interface{})
	r2 := out2.([]interface{})
	for i := range r1 {
		if r1[i].(map[string]interface{})["id"] != r2[i].(map[string]interface{})["id"] {
			t.Fatalf("expected identical shuffles with same seed, got %#v vs %#v", r1, r2)
		}
	}
}

func TestUnknownOpIsConfigurationError(t *testing.T) {
	rc := contextWithOrders()
	spec := &types.TransformSpec{Input: "{{input.orders}}", Ops: []types.TransformOp{{Kind: "bogus"}}}
	_, err := New(spec).Execute(context.Background(), rc, nil)
	ee := types.AsEngineError(err)
	if ee.Kind != types.ErrConfigurationError {
		t.Errorf("expected ConfigurationError, got %v", ee.Kind)
	}
}
