package media

import "testing"

func TestMergeSortedCoalescesOverlaps(t *testing.T) {
	in := []TimeRange{{0, 5}, {4, 10}, {12, 15}}
	out := MergeSorted(in)
	want := []TimeRange{{0, 10}, {12, 15}}
	if len(out) != len(want) {
		t.Fatalf("got %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("got %v, want %v", out, want)
		}
	}
}

func TestTrackDisplaySizeSwapsOnRotation(t *testing.T) {
	tr := Track{Width: 1920, Height: 1080, Rotation: Rotate90}
	w, h := tr.DisplaySize()
	if w != 1080 || h != 1920 {
		t.Fatalf("expected swapped dims, got %dx%d", w, h)
	}

	tr.Rotation = Rotate0
	w, h = tr.DisplaySize()
	if w != 1920 || h != 1080 {
		t.Fatalf("expected unrotated dims, got %dx%d", w, h)
	}
}

func TestFrameCloseIsIdempotent(t *testing.T) {
	f := NewFrame(0, 1.0/30, "rgba", 1, 1, []byte{1, 2, 3})
	f.Close()
	if !f.Closed() {
		t.Fatal("expected frame closed")
	}
	f.Close() // must not panic
}

func TestPlaylistItemCloneIsIndependent(t *testing.T) {
	pos := 5.0
	item := PlaylistItem{ID: "a", SavedPosition: &pos}
	clone := item.Clone()
	*clone.SavedPosition = 10
	if *item.SavedPosition != 5 {
		t.Fatalf("clone mutated original: %v", *item.SavedPosition)
	}
}
