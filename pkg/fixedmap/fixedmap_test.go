package fixedmap

import "testing"

func newTestMap(size int) Map {
	m := New(make([]byte, size))
	m.Init()
	return m
}

func TestTrySetTryGetRoundTrip(t *testing.T) {
	m := newTestMap(512)

	if err := m.TrySet(0x1234, []byte("hello")); err != nil {
		t.Fatalf("TrySet failed: %v", err)
	}
	got, ok := m.TryGet(0x1234)
	if !ok {
		t.Fatalf("expected entry to be found")
	}
	if string(got) != "hello" {
		t.Errorf("TryGet() = %q, want %q", got, "hello")
	}
}

func TestTryGetMissing(t *testing.T) {
	m := newTestMap(512)
	if _, ok := m.TryGet(0xFFFF); ok {
		t.Errorf("expected miss on empty map")
	}
}

func TestTrySetReplacesSameSizeValueInPlace(t *testing.T) {
	m := newTestMap(512)
	if err := m.TrySet(7, []byte("aaa")); err != nil {
		t.Fatal(err)
	}
	if err := m.TrySet(7, []byte("bbb")); err != nil {
		t.Fatal(err)
	}
	if got, ok := m.TryGet(7); !ok || string(got) != "bbb" {
		t.Errorf("TryGet(7) = %q, %v, want %q, true", got, ok, "bbb")
	}
	if m.DeletedCount() != 0 {
		t.Errorf("same-size overwrite should not tombstone a slot, DeletedCount() = %d", m.DeletedCount())
	}
	if m.Len() != 1 {
		t.Errorf("same-size overwrite should not grow the live entry count, Len() = %d", m.Len())
	}
}

func TestTrySetTombstonesAndAppendsOnSizeChange(t *testing.T) {
	m := newTestMap(512)
	if err := m.TrySet(7, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := m.TrySet(7, []byte("much longer value")); err != nil {
		t.Fatal(err)
	}
	if got, ok := m.TryGet(7); !ok || string(got) != "much longer value" {
		t.Errorf("TryGet(7) = %q, %v, want %q, true", got, ok, "much longer value")
	}
	if m.DeletedCount() != 1 {
		t.Errorf("size-changing overwrite should tombstone the old slot, DeletedCount() = %d", m.DeletedCount())
	}
	if m.Len() != 1 {
		t.Errorf("size-changing overwrite should not leave two live entries, Len() = %d", m.Len())
	}
}

func TestDeleteTombstonesAndHidesFromGet(t *testing.T) {
	m := newTestMap(512)
	if err := m.TrySet(42, []byte("value")); err != nil {
		t.Fatal(err)
	}
	if !Delete(m, 42, nil) {
		t.Fatalf("expected delete to find entry")
	}
	if _, ok := m.TryGet(42); ok {
		t.Errorf("deleted entry should not be returned by TryGet")
	}
	if m.DeletedCount() != 1 {
		t.Errorf("DeletedCount() = %d, want 1", m.DeletedCount())
	}
}

func TestDeleteWithValueRequiresExactMatch(t *testing.T) {
	m := newTestMap(512)
	if err := m.TrySet(9, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if Delete(m, 9, []byte("wrong-value")) {
		t.Fatalf("delete should not match a value that isn't stored")
	}
	if _, ok := m.TryGet(9); !ok {
		t.Fatalf("entry should survive a non-matching Delete")
	}
	if !Delete(m, 9, []byte("first")) {
		t.Fatalf("expected delete to match the stored value")
	}
	if _, ok := m.TryGet(9); ok {
		t.Errorf("entry should be gone after a matching Delete")
	}
}

func TestTrySetReturnsErrFullWhenExhausted(t *testing.T) {
	m := newTestMap(64)
	var err error
	for i := 0; i < 100; i++ {
		err = m.TrySet(uint16(i), []byte("0123456789"))
		if err != nil {
			break
		}
	}
	if err != ErrFull {
		t.Fatalf("expected ErrFull eventually, got %v", err)
	}
}

func TestTrySetDefragmentsBeforeReportingFull(t *testing.T) {
	m := newTestMap(128)

	var fitted int
	for i := 0; ; i++ {
		if err := m.TrySet(uint16(i), []byte("0123456789")); err != nil {
			break
		}
		fitted++
	}
	if fitted < 2 {
		t.Fatalf("test setup needs at least 2 entries to fit, got %d", fitted)
	}

	// Tombstone every entry but one. TrySet can't see this freed space
	// until it defragments, since Delete only marks slots dead.
	for i := 0; i < fitted-1; i++ {
		if !Delete(m, uint16(i), nil) {
			t.Fatalf("delete %d failed", i)
		}
	}

	if err := m.TrySet(uint16(fitted), []byte("0123456789")); err != nil {
		t.Fatalf("TrySet should succeed after reclaiming tombstoned space via an internal defragment: %v", err)
	}
	if m.DeletedCount() != 0 {
		t.Errorf("DeletedCount() = %d, want 0 after the internal defragment", m.DeletedCount())
	}
	if _, ok := m.TryGet(uint16(fitted)); !ok {
		t.Errorf("newly set entry missing after internal defragment")
	}
	if _, ok := m.TryGet(uint16(fitted - 1)); !ok {
		t.Errorf("surviving entry lost during internal defragment")
	}
}

func TestDefragmentReclaimsDeletedSpace(t *testing.T) {
	m := newTestMap(128)

	for i := 0; i < 5; i++ {
		if err := m.TrySet(uint16(i), []byte("payload")); err != nil {
			t.Fatalf("TrySet(%d) failed: %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		if !Delete(m, uint16(i), nil) {
			t.Fatalf("delete %d failed", i)
		}
	}
	beforeUtil := m.Utilization()

	m.Defragment()

	if m.DeletedCount() != 0 {
		t.Errorf("Defragment should clear tombstones, got %d", m.DeletedCount())
	}
	if m.Len() != 1 {
		t.Errorf("Len() after defragment = %d, want 1", m.Len())
	}
	if _, ok := m.TryGet(4); !ok {
		t.Errorf("surviving entry lost after defragment")
	}
	if m.Utilization() >= beforeUtil {
		t.Errorf("Utilization should shrink after reclaiming tombstones: before=%f after=%f", beforeUtil, m.Utilization())
	}
}

func TestLenCountsOnlyLiveEntries(t *testing.T) {
	m := newTestMap(256)
	m.TrySet(1, []byte("a"))
	m.TrySet(2, []byte("b"))
	m.TrySet(3, []byte("c"))
	Delete(m, 2, nil)

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}
