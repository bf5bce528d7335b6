package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/llm"
	"github.com/MrWong99/echovault/pkg/provider/stt"
	"github.com/MrWong99/echovault/pkg/provider/tts"
	"github.com/MrWong99/echovault/pkg/provider/vad"
	"github.com/MrWong99/echovault/pkg/provider/wakeword"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) lookup(name string) (Factory[T], error) {
	factory, ok := f.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return factory, nil
}

func (f factories[T]) names() []string {
	names := make([]string, 0, len(f.m))
	for n := range f.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Registry maps provider names to constructors for every provider kind.
// Backends are resolved once at startup. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      factories[stt.Provider]
	llm      factories[llm.Provider]
	tts      factories[tts.Provider]
	vad      factories[vad.Engine]
	wakeword factories[wakeword.Detector]
	audio    factories[audio.Device]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		stt:      newFactories[stt.Provider]("stt"),
		llm:      newFactories[llm.Provider]("llm"),
		tts:      newFactories[tts.Provider]("tts"),
		vad:      newFactories[vad.Engine]("vad"),
		wakeword: newFactories[wakeword.Detector]("wakeword"),
		audio:    newFactories[audio.Device]("audio"),
	}
}

// RegisterSTT registers a speech-to-text factory under name, replacing any
// previous registration.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

// RegisterLLM registers a language model factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = f
}

// RegisterTTS registers a text-to-speech factory under name.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = f
}

// RegisterVAD registers a voice activity engine factory under name.
func (r *Registry) RegisterVAD(name string, f Factory[vad.Engine]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad.m[name] = f
}

// RegisterWakeword registers a wake phrase detector factory under name.
func (r *Registry) RegisterWakeword(name string, f Factory[wakeword.Detector]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wakeword.m[name] = f
}

// RegisterAudio registers an audio device factory under name.
func (r *Registry) RegisterAudio(name string, f Factory[audio.Device]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.m[name] = f
}

// CreateSTT builds the speech-to-text provider named by entry.Name. It
// returns [ErrProviderNotRegistered] for unknown names. Factories run outside
// the registry lock, so a factory may create other providers.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f, err := r.stt.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateLLM builds the language model provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, err := r.llm.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateTTS builds the text-to-speech provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f, err := r.tts.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateVAD builds the voice activity engine named by entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	f, err := r.vad.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateWakeword builds the wake phrase detector named by entry.Name.
func (r *Registry) CreateWakeword(entry ProviderEntry) (wakeword.Detector, error) {
	r.mu.RLock()
	f, err := r.wakeword.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateAudio builds the audio device named by entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Device, error) {
	r.mu.RLock()
	f, err := r.audio.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// Names returns the registered provider names of kind ("stt", "llm", "tts",
// "vad", "wakeword", "audio"), sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return r.stt.names()
	case "llm":
		return r.llm.names()
	case "tts":
		return r.tts.names()
	case "vad":
		return r.vad.names()
	case "wakeword":
		return r.wakeword.names()
	case "audio":
		return r.audio.names()
	}
	return nil
}
