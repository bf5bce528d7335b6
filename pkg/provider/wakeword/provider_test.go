package wakeword

import "testing"

func TestTriggered(t *testing.T) {
	tests := []struct {
		name   string
		scores map[string]float64
		want   string
	}{
		{"nil", nil, ""},
		{"below", map[string]float64{"hey jarvis": 0.3}, ""},
		{"exactly threshold does not trigger", map[string]float64{"hey jarvis": 0.5}, ""},
		{"above", map[string]float64{"hey jarvis": 0.51}, "hey jarvis"},
		{"highest wins", map[string]float64{"alexa": 0.7, "hey jarvis": 0.9}, "hey jarvis"},
		{"tie broken by name", map[string]float64{"b": 0.8, "a": 0.8}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Triggered(tt.scores, DefaultThreshold); got != tt.want {
				t.Errorf("Triggered = %q, want %q", got, tt.want)
			}
		})
	}
}
