package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only the log level
// and the responder settings are applied at runtime; every other changed
// section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ConversationChanged is true when the system prompt, max tokens,
	// history limit or temperature changed.
	ConversationChanged bool

	// RestartRequired lists the top-level sections (e.g., "providers",
	// "conversation.mode") whose changes only take effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ConversationChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	oc, nc := old.Conversation, new.Conversation
	d.ConversationChanged = oc.SystemPrompt != nc.SystemPrompt ||
		oc.MaxTokens != nc.MaxTokens ||
		oc.MaxHistoryPairs != nc.MaxHistoryPairs ||
		oc.Temperature != nc.Temperature

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	restart := []struct {
		name    string
		changed bool
	}{
		{"server", !reflect.DeepEqual(oldServer, newServer)},
		{"audio", old.Audio != new.Audio},
		{"vad", old.VAD != new.VAD},
		{"wakeword", !reflect.DeepEqual(old.Wakeword, new.Wakeword)},
		{"conversation.mode", oc.Mode != nc.Mode},
		{"providers", !reflect.DeepEqual(old.Providers, new.Providers)},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.name)
		}
	}
	return d
}
