package ui

import (
	"testing"

	"github.com/samsartor/checkpointui/pkg/model"
)

func testTree(t *testing.T) *Tree {
	t.Helper()
	tensors := []model.TensorInfo{
		{Name: "embed.weight", DType: model.DTypeF32, Shape: []uint64{100, 8}, Start: 0, End: 3200},
		{Name: "layers.0.attn.weight", DType: model.DTypeF32, Shape: []uint64{8, 8}, Start: 3200, End: 3456},
		{Name: "layers.0.mlp.weight", DType: model.DTypeF32, Shape: []uint64{8, 8}, Start: 3456, End: 3712},
		{Name: "layers.1.attn.weight", DType: model.DTypeF32, Shape: []uint64{8, 8}, Start: 3712, End: 3968},
		{Name: "norm.bias", DType: model.DTypeF32, Shape: []uint64{8}, Start: 3968, End: 4000},
	}
	split := model.DefaultPathSplit()
	return NewTree(model.BuildModule(tensors, split), split)
}

func visibleNames(tr *Tree) []string {
	names := make([]string, 0, tr.Len())
	for _, it := range tr.visible {
		names = append(names, it.Mod.FullName)
	}
	return names
}

func TestTree_InitialVisible(t *testing.T) {
	tr := testTree(t)
	// Only the top level is expanded, modules before tensors.
	want := []string{"embed", "layers", "norm"}
	got := visibleNames(tr)
	if len(got) != len(want) {
		t.Fatalf("visible = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("visible = %v, want %v", got, want)
		}
	}
}

func TestTree_ToggleExpanded(t *testing.T) {
	tr := testTree(t)
	if !tr.SelectName("layers") {
		t.Fatal("layers not visible")
	}
	tr.ToggleExpanded()
	if !tr.SelectName("layers.0") {
		t.Fatalf("layers.0 not visible after expand: %v", visibleNames(tr))
	}
	if tr.Selected().Depth != 1 {
		t.Errorf("layers.0 depth = %d, want 1", tr.Selected().Depth)
	}

	tr.SelectName("layers")
	tr.ToggleExpanded()
	if tr.SelectName("layers.0") {
		t.Error("layers.0 still visible after collapse")
	}
}

func TestTree_ToggleOnTensorIsNoop(t *testing.T) {
	tr := testTree(t)
	tr.SelectName("embed")
	tr.ToggleExpanded()
	if !tr.SelectName("embed.weight") {
		t.Fatal("embed.weight not visible")
	}
	n := tr.Len()
	tr.ToggleExpanded()
	if tr.Len() != n {
		t.Error("toggling a tensor changed the visible rows")
	}
}

func TestTree_EnterExitModule(t *testing.T) {
	tr := testTree(t)
	tr.SelectName("layers")
	tr.EnterModule()
	if tr.Root().FullName != "layers" {
		t.Fatalf("root = %q, want layers", tr.Root().FullName)
	}
	// The new root's children are visible from the top.
	if tr.Selected() == nil || tr.Selected().Mod.FullName != "layers.0" {
		t.Fatalf("cursor after enter = %v", tr.Selected())
	}

	tr.ExitModule()
	if tr.Root().FullName != "" {
		t.Fatalf("root after exit = %q, want root", tr.Root().FullName)
	}
	if tr.Selected().Mod.FullName != "layers" {
		t.Errorf("cursor after exit = %q, want layers", tr.Selected().Mod.FullName)
	}
}

func TestTree_EnterTensorIsNoop(t *testing.T) {
	tr := testTree(t)
	tr.SelectName("norm")
	tr.ToggleExpanded()
	tr.SelectName("norm.bias")
	tr.EnterModule()
	if tr.Root().FullName != "" {
		t.Error("entering a tensor changed the root")
	}
}

func TestTree_ExitAtRootIsNoop(t *testing.T) {
	tr := testTree(t)
	tr.ExitModule()
	if tr.Root().FullName != "" || tr.Selected() == nil {
		t.Error("exit at the root changed state")
	}
}

func TestTree_MoveBounds(t *testing.T) {
	tr := testTree(t)
	tr.MoveUp()
	if tr.cursor != 0 {
		t.Error("MoveUp below zero")
	}
	tr.MoveBottom()
	last := tr.cursor
	tr.MoveDown()
	if tr.cursor != last {
		t.Error("MoveDown past the end")
	}
	tr.MoveTop()
	if tr.cursor != 0 {
		t.Error("MoveTop")
	}
}

func TestTree_SetRootKeepsSelection(t *testing.T) {
	tr := testTree(t)
	tr.SelectName("layers")
	tr.ToggleExpanded()
	tr.SelectName("layers.1")

	// Rebuild the same checkpoint, as a reload would.
	tensors := []model.TensorInfo{
		{Name: "layers.0.attn.weight", DType: model.DTypeF32, Shape: []uint64{8, 8}},
		{Name: "layers.1.attn.weight", DType: model.DTypeF32, Shape: []uint64{8, 8}},
	}
	split := model.DefaultPathSplit()
	tr.SetRoot(model.BuildModule(tensors, split))

	if tr.Selected() == nil || tr.Selected().Mod.FullName != "layers.1" {
		t.Errorf("selection after SetRoot = %v", tr.Selected())
	}
}

func TestTree_ViewScrollsToCursor(t *testing.T) {
	tr := testTree(t)
	tr.SelectName("layers")
	tr.ToggleExpanded()
	tr.SelectName("layers.0")
	tr.ToggleExpanded()
	tr.MoveBottom()

	out := tr.View(40, 3, true)
	if out == "" {
		t.Fatal("empty view")
	}
	if tr.offset == 0 && tr.cursor >= 3 {
		t.Error("view did not scroll to keep the cursor on screen")
	}
}
