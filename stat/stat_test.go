package stat

import (
	"testing"
	"unsafe"
)

func TestAccessors(t *testing.T) {
	var st Stat_t
	st.Wdev(1)
	st.Wino(2)
	st.Wmode(3)
	st.Wsize(4)
	st.Wrdev(5)
	st.Wmtime(6, 7)

	if st.Rdev() != 5 {
		t.Fatalf("Rdev() = %d, want 5", st.Rdev())
	}
	if st.Rino() != 2 {
		t.Fatalf("Rino() = %d, want 2", st.Rino())
	}
	if st.Mode() != 3 {
		t.Fatalf("Mode() = %d, want 3", st.Mode())
	}
	if st.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", st.Size())
	}
}

func TestBytesLength(t *testing.T) {
	var st Stat_t
	if got, want := len(st.Bytes()), int(unsafe.Sizeof(st)); got != want {
		t.Fatalf("len(Bytes()) = %d, want %d", got, want)
	}
}
