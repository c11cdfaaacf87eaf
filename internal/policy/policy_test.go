package policy

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercase passthrough", in: "python", want: "python"},
		{name: "uppercase folds", in: "Python", want: "python"},
		{name: "py alias", in: "py", want: "python"},
		{name: "uppercase alias", in: "PY", want: "python"},
		{name: "js alias", in: "js", want: "javascript"},
		{name: "unknown stays lowercased", in: "Ruby", want: "ruby"},
		{name: "shell passthrough", in: "SHELL", want: "shell"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonical(tt.in); got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveDefaults(t *testing.T) {
	table := NewTable(nil)

	tests := []struct {
		name           string
		lang           string
		wantRecognized bool
		wantExecute    bool
	}{
		{name: "python executes", lang: "python", wantRecognized: true, wantExecute: true},
		{name: "py alias executes", lang: "py", wantRecognized: true, wantExecute: true},
		{name: "bash executes", lang: "bash", wantRecognized: true, wantExecute: true},
		{name: "shell executes", lang: "shell", wantRecognized: true, wantExecute: true},
		{name: "sh executes", lang: "sh", wantRecognized: true, wantExecute: true},
		{name: "pwsh executes", lang: "pwsh", wantRecognized: true, wantExecute: true},
		{name: "ps1 executes", lang: "ps1", wantRecognized: true, wantExecute: true},
		{name: "javascript executes", lang: "js", wantRecognized: true, wantExecute: true},
		{name: "powershell saves only", lang: "powershell", wantRecognized: true, wantExecute: false},
		{name: "html saves only", lang: "html", wantRecognized: true, wantExecute: false},
		{name: "css saves only", lang: "css", wantRecognized: true, wantExecute: false},
		{name: "ruby unrecognized", lang: "ruby", wantRecognized: false, wantExecute: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Resolve(tt.lang)
			if got.Recognized != tt.wantRecognized {
				t.Errorf("Resolve(%q).Recognized = %v, want %v", tt.lang, got.Recognized, tt.wantRecognized)
			}
			if got.Execute != tt.wantExecute {
				t.Errorf("Resolve(%q).Execute = %v, want %v", tt.lang, got.Execute, tt.wantExecute)
			}
		})
	}
}

func TestResolveOverrides(t *testing.T) {
	table := NewTable(map[string]bool{
		"python": false,
		"HTML":   true,
	})

	if dec := table.Resolve("python"); dec.Execute {
		t.Error("override python=false should disable execution")
	}
	if dec := table.Resolve("html"); !dec.Execute {
		t.Error("override html=true should enable execution")
	}
	// Overrides never widen the recognized set.
	table = NewTable(map[string]bool{"ruby": true})
	if dec := table.Resolve("ruby"); dec.Recognized || dec.Execute {
		t.Errorf("ruby must stay unrecognized, got %+v", dec)
	}
}

func TestResolveCanonicalName(t *testing.T) {
	table := NewTable(nil)

	if dec := table.Resolve("PY"); dec.Language != "python" {
		t.Errorf("Resolve(PY).Language = %q, want python", dec.Language)
	}
	if dec := table.Resolve("Ruby"); dec.Language != "ruby" {
		t.Errorf("Resolve(Ruby).Language = %q, want ruby", dec.Language)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{lang: "python", want: "python"},
		{lang: "python3", want: "python3"},
		{lang: "bash", want: "bash"},
		{lang: "sh", want: "sh"},
		{lang: "shell", want: "sh"},
		{lang: "ps1", want: "pwsh"},
		{lang: "pwsh", want: "pwsh"},
		{lang: "powershell", want: "pwsh"},
		{lang: "javascript", want: "node"},
		{lang: "ruby", want: ""},
	}

	for _, tt := range tests {
		if got := Command(tt.lang); got != tt.want {
			t.Errorf("Command(%q) = %q, want %q", tt.lang, got, tt.want)
		}
	}
}
