package jsonlfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendRepairsMissingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.jsonl")
	if err := os.WriteFile(path, []byte(`{"a":1}`+"\n"+`{"trunc`), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Append(path, []byte(`{"b":2}`+"\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":1}` + "\n" + `{"trunc` + "\n" + `{"b":2}` + "\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestAppendCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.jsonl")
	if err := Append(path, []byte("x\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := Append(path, []byte("y\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "x\ny\n" {
		t.Errorf("file = %q", data)
	}
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issues.jsonl")
	if err := os.WriteFile(path, []byte("old\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteAtomic(path, []byte("new\n")); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new\n" {
		t.Errorf("file = %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the log", len(entries))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want the existing 0600 kept", info.Mode().Perm())
	}
}

func TestWriteAtomicNewFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.jsonl")
	if err := WriteAtomicFrom(path, strings.NewReader("x\n")); err != nil {
		t.Fatalf("WriteAtomicFrom failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != Perm {
		t.Errorf("mode = %v, want %v", info.Mode().Perm(), Perm)
	}
}

func TestSplitLinesKeepsBlankLines(t *testing.T) {
	lines := SplitLines([]byte("a\n\nb\n"))
	if len(lines) != 3 || string(lines[0]) != "a" || len(lines[1]) != 0 || string(lines[2]) != "b" {
		t.Errorf("SplitLines = %q", lines)
	}
	if got := string(Join(lines)); got != "a\n\nb\n" {
		t.Errorf("Join = %q", got)
	}
}

func TestSplitLinesKeepsExactBytes(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a\r\nb\n", []string{"a\r", "b"}},
		{"a\nb", []string{"a", "b"}},
		{"\r\n", []string{"\r"}},
		{"", nil},
	}
	for _, tt := range tests {
		var got []string
		for _, l := range SplitLines([]byte(tt.in)) {
			got = append(got, string(l))
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("SplitLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	crlf := "{\"a\":1}\r\n{\"b\":2}\r\n"
	if got := string(Join(SplitLines([]byte(crlf)))); got != crlf {
		t.Errorf("Join(SplitLines(%q)) = %q", crlf, got)
	}
}

func TestReadLinesMissingFile(t *testing.T) {
	lines, err := ReadLines(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil || lines != nil {
		t.Errorf("ReadLines(missing) = %v, %v", lines, err)
	}
}
