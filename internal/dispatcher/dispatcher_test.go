package dispatcher

import "testing"

func TestSanitizeDir(t *testing.T) {
	tmp := t.TempDir()

	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"empty is allowed", "", false},
		{"existing directory", tmp, false},
		{"nonexistent directory", tmp + "/does-not-exist", true},
		{"semicolon rejected", tmp + ";rm -rf /", true},
		{"backtick rejected", "`whoami`", true},
		{"dollar rejected", "$HOME", true},
		{"pipe rejected", tmp + "|cat", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sanitizeDir(tt.dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("sanitizeDir(%q) error = %v, wantErr %v", tt.dir, err, tt.wantErr)
			}
		})
	}
}

func TestCtrlByte(t *testing.T) {
	tests := []struct {
		ch   byte
		want byte
		ok   bool
	}{
		{'a', 0x01, true},
		{'c', 0x03, true},
		{'z', 0x1A, true},
		{'A', 0x01, true},
		{'@', 0x00, true},
		{'[', 0x1B, true},
		{'?', 0x7F, true},
		{'9', 0, false},
		{' ', 0, false},
	}

	for _, tt := range tests {
		got, ok := ctrlByte(tt.ch)
		if ok != tt.ok {
			t.Fatalf("ctrlByte(%q) ok = %v, want %v", tt.ch, ok, tt.ok)
		}
		if ok && got != tt.want {
			t.Fatalf("ctrlByte(%q) = %#x, want %#x", tt.ch, got, tt.want)
		}
	}
}

func TestTranscriptionErrorMessage(t *testing.T) {
	if transcriptionErrorMessage(0) == "" {
		t.Fatal("expected a non-empty message for every error kind, including the zero value")
	}
}
