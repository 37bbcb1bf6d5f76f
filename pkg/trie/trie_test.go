package trie

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/paprikadb/paprika/pkg/batch"
	"github.com/paprikadb/paprika/pkg/nibble"
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/pagemanager"
)

func newTestSource(t *testing.T) *batch.Context {
	t.Helper()
	pm, err := pagemanager.New(pagemanager.Options{Path: filepath.Join(t.TempDir(), "arena.paprika")})
	if err != nil {
		t.Fatalf("pagemanager.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = pm.Close() })
	return batch.New(pm, 1, pm.RootSlot(0), 0, batch.Options{})
}

func keyPath(b byte) nibble.Path {
	key := bytes.Repeat([]byte{b}, 32)
	return nibble.FromKey(key, 0)
}

func TestInsertGetRoundTripSingleLeaf(t *testing.T) {
	src := newTestSource(t)
	root, err := Insert(src, page.Null, keyPath(0x01), []byte("v1"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	got, ok := Get(src, root, keyPath(0x01))
	if !ok {
		t.Fatalf("Get() reported missing key")
	}
	if string(got) != "v1" {
		t.Errorf("Get() = %q, want %q", got, "v1")
	}
}

func TestInsertGetMissingKeyNotFound(t *testing.T) {
	src := newTestSource(t)
	root, err := Insert(src, page.Null, keyPath(0x01), []byte("v1"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if _, ok := Get(src, root, keyPath(0x02)); ok {
		t.Errorf("Get() on an absent key should report not found")
	}
}

func TestInsertOverwriteSameKeyReplacesValue(t *testing.T) {
	src := newTestSource(t)
	root, err := Insert(src, page.Null, keyPath(0x01), []byte("v1"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	root, err = Insert(src, root, keyPath(0x01), []byte("v2"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	got, ok := Get(src, root, keyPath(0x01))
	if !ok || string(got) != "v2" {
		t.Errorf("Get() = %q, %v, want %q, true", got, ok, "v2")
	}
}

// TestInsertTwoLeavesDivergingImmediately covers E3 (branch of three):
// two keys that differ at the very first nibble should produce a Branch
// directly at the root, no Extension wrapper.
func TestInsertTwoLeavesDivergingImmediately(t *testing.T) {
	src := newTestSource(t)
	keyA := nibble.FromKey(append([]byte{0x10}, bytes.Repeat([]byte{0x00}, 31)...), 0)
	keyB := nibble.FromKey(append([]byte{0x20}, bytes.Repeat([]byte{0x00}, 31)...), 0)

	root, err := Insert(src, page.Null, keyA, []byte("a"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	root, err = Insert(src, root, keyB, []byte("b"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	n := loadNode(src, root)
	if n.Kind != KindBranch {
		t.Fatalf("root Kind = %v, want KindBranch", n.Kind)
	}

	gotA, ok := Get(src, root, keyA)
	if !ok || string(gotA) != "a" {
		t.Errorf("Get(keyA) = %q, %v", gotA, ok)
	}
	gotB, ok := Get(src, root, keyB)
	if !ok || string(gotB) != "b" {
		t.Errorf("Get(keyB) = %q, %v", gotB, ok)
	}
}

// TestInsertTwoLeavesSharedPrefix covers E4 (extension split): two
// keys sharing a long common prefix should produce an Extension wrapping
// the branch where they diverge.
func TestInsertTwoLeavesSharedPrefix(t *testing.T) {
	src := newTestSource(t)
	prefix := bytes.Repeat([]byte{0xAB}, 16)
	keyA := nibble.FromKey(append(append([]byte{}, prefix...), bytes.Repeat([]byte{0x10}, 16)...), 0)
	keyB := nibble.FromKey(append(append([]byte{}, prefix...), bytes.Repeat([]byte{0x20}, 16)...), 0)

	root, err := Insert(src, page.Null, keyA, []byte("a"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	root, err = Insert(src, root, keyB, []byte("b"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	n := loadNode(src, root)
	if n.Kind != KindExtension {
		t.Fatalf("root Kind = %v, want KindExtension (shared prefix of %d nibbles)", n.Kind, 32)
	}
	if n.Path.Length() == 0 {
		t.Errorf("expected a non-empty shared prefix")
	}

	gotA, ok := Get(src, root, keyA)
	if !ok || string(gotA) != "a" {
		t.Errorf("Get(keyA) = %q, %v", gotA, ok)
	}
	gotB, ok := Get(src, root, keyB)
	if !ok || string(gotB) != "b" {
		t.Errorf("Get(keyB) = %q, %v", gotB, ok)
	}
}

func TestDestroyRemovesSingleLeafAndEmptiesTrie(t *testing.T) {
	src := newTestSource(t)
	root, err := Insert(src, page.Null, keyPath(0x01), []byte("v1"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	root, err = Destroy(src, root, keyPath(0x01))
	if err != nil {
		t.Fatalf("Destroy() failed: %v", err)
	}
	if !root.IsNull() {
		t.Errorf("expected an empty trie after destroying its only entry")
	}
}

// TestDestroyCollapsesBranchToLeaf covers deletion from a two-leaf
// branch: removing one leaf should collapse the branch back into a
// single Leaf for the surviving key, reachable by Get.
func TestDestroyCollapsesBranchToLeaf(t *testing.T) {
	src := newTestSource(t)
	keyA := nibble.FromKey(append([]byte{0x10}, bytes.Repeat([]byte{0x00}, 31)...), 0)
	keyB := nibble.FromKey(append([]byte{0x20}, bytes.Repeat([]byte{0x00}, 31)...), 0)

	root, err := Insert(src, page.Null, keyA, []byte("a"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	root, err = Insert(src, root, keyB, []byte("b"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	root, err = Destroy(src, root, keyA)
	if err != nil {
		t.Fatalf("Destroy() failed: %v", err)
	}

	n := loadNode(src, root)
	if n.Kind != KindLeaf {
		t.Fatalf("root Kind = %v, want KindLeaf after collapse", n.Kind)
	}
	got, ok := Get(src, root, keyB)
	if !ok || string(got) != "b" {
		t.Errorf("Get(keyB) after collapse = %q, %v, want %q, true", got, ok, "b")
	}
	if _, ok := Get(src, root, keyA); ok {
		t.Errorf("Get(keyA) should report not found after Destroy")
	}
}

// TestDestroyIdempotence covers E5: inserting then destroying the same
// key yields the same (empty) root as never inserting it.
func TestDestroyIdempotence(t *testing.T) {
	src := newTestSource(t)
	root, err := Insert(src, page.Null, keyPath(0x01), []byte("v1"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	root, err = Destroy(src, root, keyPath(0x01))
	if err != nil {
		t.Fatalf("Destroy() failed: %v", err)
	}
	if !root.IsNull() {
		t.Errorf("Destroy() after single Insert() should return the empty root")
	}
}

// TestDeleteByPrefixRemovesWholeSubtree covers prefix deletion (invariant
// 7): every key starting with the prefix should become unreachable,
// while an unrelated key survives.
func TestDeleteByPrefixRemovesWholeSubtree(t *testing.T) {
	src := newTestSource(t)
	prefix := bytes.Repeat([]byte{0xCC}, 16)
	keyA := nibble.FromKey(append(append([]byte{}, prefix...), bytes.Repeat([]byte{0x10}, 16)...), 0)
	keyB := nibble.FromKey(append(append([]byte{}, prefix...), bytes.Repeat([]byte{0x20}, 16)...), 0)
	keyOutside := keyPath(0x01)

	root, err := Insert(src, page.Null, keyA, []byte("a"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	root, err = Insert(src, root, keyB, []byte("b"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	root, err = Insert(src, root, keyOutside, []byte("outside"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	root, err = DeleteByPrefix(src, root, nibble.FromKey(prefix, 0))
	if err != nil {
		t.Fatalf("DeleteByPrefix() failed: %v", err)
	}

	if _, ok := Get(src, root, keyA); ok {
		t.Errorf("Get(keyA) should report not found after DeleteByPrefix")
	}
	if _, ok := Get(src, root, keyB); ok {
		t.Errorf("Get(keyB) should report not found after DeleteByPrefix")
	}
	got, ok := Get(src, root, keyOutside)
	if !ok || string(got) != "outside" {
		t.Errorf("Get(keyOutside) = %q, %v, want %q, true", got, ok, "outside")
	}
}

