package checksum

import "testing"

func TestSum(t *testing.T) {
	// SHA-256 of the empty input.
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different inputs produced the same digest")
	}
}

func TestSum_SameBatchDifferentEncoding(t *testing.T) {
	base := Sum([]byte("user: u1\nentries:\n  - category: Faith\n    value: 1\n"))

	tests := []struct {
		name string
		in   string
	}{
		{"crlf", "user: u1\r\nentries:\r\n  - category: Faith\r\n    value: 1\r\n"},
		{"cr", "user: u1\rentries:\r  - category: Faith\r    value: 1\r"},
		{"bom", "\xEF\xBB\xBFuser: u1\nentries:\n  - category: Faith\n    value: 1\n"},
		{"trailing blank lines", "user: u1\nentries:\n  - category: Faith\n    value: 1\n\n\n  \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sum([]byte(tt.in)); got != base {
				t.Errorf("Sum = %s, want %s", got, base)
			}
		})
	}
}

func TestSum_IndentationMatters(t *testing.T) {
	a := Sum([]byte("entries:\n  - value: 1\n"))
	b := Sum([]byte("entries:\n    - value: 1\n"))
	if a == b {
		t.Error("indentation change produced the same digest")
	}
}
