package app

import (
	"testing"
)

func TestParseCommand_DefaultsToRun(t *testing.T) {
	cmd := ParseCommand([]string{})
	if cmd != CommandRun {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandRun)
	}
}

func TestParseCommand_Known(t *testing.T) {
	tests := []struct {
		arg  string
		want Command
	}{
		{"run", CommandRun},
		{"login", CommandLogin},
		{"logout", CommandLogout},
		{"status", CommandStatus},
		{"theme", CommandTheme},
	}

	for _, tt := range tests {
		if got := ParseCommand([]string{tt.arg}); got != tt.want {
			t.Errorf("ParseCommand([%s]) = %q, want %q", tt.arg, got, tt.want)
		}
	}
}

func TestParseCommand_UnknownDefaultsToRun(t *testing.T) {
	cmd := ParseCommand([]string{"unknown"})
	if cmd != CommandRun {
		t.Errorf("ParseCommand([unknown]) = %q, want %q", cmd, CommandRun)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd := ParseCommand([]string{"theme", "dark"})
	if cmd != CommandTheme {
		t.Errorf("ParseCommand([theme dark]) = %q, want %q", cmd, CommandTheme)
	}
}
