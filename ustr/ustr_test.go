package ustr

import "testing"

func TestIsdotIsdotdot(t *testing.T) {
	if !MkUstrDot().Isdot() {
		t.Fatal("MkUstrDot should be Isdot")
	}
	if !DotDot.Isdotdot() {
		t.Fatal("DotDot should be Isdotdot")
	}
	if Ustr("a").Isdot() || Ustr("a").Isdotdot() {
		t.Fatal("plain component should be neither")
	}
}

func TestEq(t *testing.T) {
	if !Ustr("abc").Eq(Ustr("abc")) {
		t.Fatal("equal strings should compare equal")
	}
	if Ustr("abc").Eq(Ustr("abd")) {
		t.Fatal("differing strings should not compare equal")
	}
	if Ustr("ab").Eq(Ustr("abc")) {
		t.Fatal("differing lengths should not compare equal")
	}
}

func TestMkUstrSlice(t *testing.T) {
	buf := []uint8{'h', 'i', 0, 'x', 'x'}
	got := MkUstrSlice(buf)
	if got.String() != "hi" {
		t.Fatalf("MkUstrSlice = %q, want %q", got.String(), "hi")
	}
}

func TestExtend(t *testing.T) {
	got := MkUstrRoot().Extend(Ustr("bin"))
	if got.String() != "/bin" {
		t.Fatalf("Extend = %q, want %q", got.String(), "/bin")
	}
}

func TestIsAbsolute(t *testing.T) {
	if !Ustr("/bin/sh").IsAbsolute() {
		t.Fatal("leading slash should be absolute")
	}
	if Ustr("bin/sh").IsAbsolute() {
		t.Fatal("no leading slash should not be absolute")
	}
	if MkUstr().IsAbsolute() {
		t.Fatal("empty path should not be absolute")
	}
}

func TestComponents(t *testing.T) {
	cases := []struct {
		path string
		want []string
	}{
		{"/bin/sh", []string{"bin", "sh"}},
		{"/", nil},
		{"a//b", []string{"a", "b"}},
		{"a", []string{"a"}},
	}
	for _, c := range cases {
		comps := Ustr(c.path).Components()
		if len(comps) != len(c.want) {
			t.Fatalf("Components(%q) = %v, want %v", c.path, comps, c.want)
		}
		for i, want := range c.want {
			if comps[i].String() != want {
				t.Fatalf("Components(%q)[%d] = %q, want %q", c.path, i, comps[i].String(), want)
			}
		}
	}
}

func TestTo83(t *testing.T) {
	name, ext := Ustr("kernel.elf").To83()
	if string(name[:]) != "KERNEL  " {
		t.Fatalf("name = %q, want %q", name, "KERNEL  ")
	}
	if string(ext[:]) != "ELF" {
		t.Fatalf("ext = %q, want %q", ext, "ELF")
	}
}

func TestTo83NoExtension(t *testing.T) {
	name, ext := Ustr("sh").To83()
	if string(name[:]) != "SH      " {
		t.Fatalf("name = %q, want %q", name, "SH      ")
	}
	if string(ext[:]) != "   " {
		t.Fatalf("ext = %q, want blank", ext)
	}
}
