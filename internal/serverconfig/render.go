// Package serverconfig renders the TOML configuration document consumed
// by the moshi-server worker.
package serverconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Document is the top-level worker configuration.
//
// Tuning fields (n_q, batch_size) are opaque pass-through values: the
// worker interprets them, this harness only writes them.
type Document struct {
	Addr          string   `toml:"addr"`
	Port          int      `toml:"port"`
	StaticDir     string   `toml:"static_dir,omitempty"`
	LogDir        string   `toml:"log_dir"`
	InstanceName  string   `toml:"instance_name"`
	AuthorizedIDs []string `toml:"authorized_ids"`

	Modules map[string]Module `toml:"modules"`
}

// Module configures one worker endpoint.
type Module struct {
	Type              string `toml:"type"`
	Path              string `toml:"path"`
	TextTokenizerFile string `toml:"text_tokenizer_file,omitempty"`
	BatchSize         int    `toml:"batch_size"`

	TTS *TTSModule `toml:"tts,omitempty"`
}

// TTSModule holds the TTS-specific module settings.
type TTSModule struct {
	HFRepo       string `toml:"hf_repo"`
	VoiceFolder  string `toml:"voice_folder"`
	DefaultVoice string `toml:"default_voice"`
	NQ           int    `toml:"n_q"`
	CFGIsNoText  bool   `toml:"cfg_is_no_text"`
}

// Params are the caller-controlled inputs for a config document.
type Params struct {
	Addr          string
	Port          int
	LogDir        string
	AuthorizedIDs []string

	// Model selection
	ModelRepo    string
	VoiceRepo    string // hub repo the voice embeddings come from
	VoiceFolder  string // explicit voice_folder value, overrides VoiceRepo
	DefaultVoice string

	// Opaque tuning knobs
	NQ        int
	BatchSize int
}

// Defaults mirrored from the worker's reference deployment.
const (
	DefaultInstanceName = "tts"
	DefaultAPIPath      = "/api/tts_streaming"
	DefaultAuthID       = "public_token"

	DefaultVoiceRepo = "kyutai/tts-voices"
	DefaultVoice     = "expresso/ex03-ex01_happy_001_channel1_334s.wav"
)

// NewDocument builds a worker configuration from params, filling in
// deployment defaults for anything unset.
func NewDocument(p Params) *Document {
	authIDs := p.AuthorizedIDs
	if len(authIDs) == 0 {
		authIDs = []string{DefaultAuthID}
	}

	voiceFolder := p.VoiceFolder
	if voiceFolder == "" {
		voiceRepo := p.VoiceRepo
		if voiceRepo == "" {
			voiceRepo = DefaultVoiceRepo
		}
		voiceFolder = fmt.Sprintf("hf-snapshot://%s/**/*.safetensors", voiceRepo)
	}

	defaultVoice := p.DefaultVoice
	if defaultVoice == "" {
		defaultVoice = DefaultVoice
	}

	return &Document{
		Addr:          p.Addr,
		Port:          p.Port,
		LogDir:        p.LogDir,
		InstanceName:  DefaultInstanceName,
		AuthorizedIDs: authIDs,
		Modules: map[string]Module{
			"tts": {
				Type:      "Tts",
				Path:      DefaultAPIPath,
				BatchSize: p.BatchSize,
				TTS: &TTSModule{
					HFRepo:       p.ModelRepo,
					VoiceFolder:  voiceFolder,
					DefaultVoice: defaultVoice,
					NQ:           p.NQ,
					CFGIsNoText:  true,
				},
			},
		},
	}
}

// Preset identifies a known model variant.
type Preset string

const (
	// Preset075B is the smaller English-only model, CPU-friendly.
	Preset075B Preset = "0.75b"

	// Preset16B is the larger English/French model.
	Preset16B Preset = "1.6b"
)

// ApplyPreset fills model repo and tuning knobs for a known variant.
// Caller-set values win over preset values.
func ApplyPreset(p Params, preset Preset) (Params, error) {
	switch preset {
	case Preset075B:
		if p.ModelRepo == "" {
			p.ModelRepo = "kyutai/tts-0.75b-en-public"
		}
		if p.NQ == 0 {
			p.NQ = 24
		}
		if p.BatchSize == 0 {
			p.BatchSize = 16
		}
	case Preset16B:
		if p.ModelRepo == "" {
			p.ModelRepo = "kyutai/tts-1.6b-en_fr"
		}
		if p.NQ == 0 {
			p.NQ = 32
		}
		if p.BatchSize == 0 {
			p.BatchSize = 8
		}
	default:
		return p, fmt.Errorf("unknown model preset %q", preset)
	}
	return p, nil
}

// ValidPreset reports whether the preset name is known.
func ValidPreset(name string) bool {
	switch Preset(name) {
	case Preset075B, Preset16B:
		return true
	}
	return false
}

// Render marshals the document to TOML.
func (d *Document) Render() ([]byte, error) {
	data, err := toml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// WriteFile renders the document and writes it atomically (tmp + rename).
func (d *Document) WriteFile(path string) error {
	data, err := d.Render()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}

	return nil
}
