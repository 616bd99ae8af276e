// Package assets ensures model weights and voice embeddings exist on
// disk before the worker starts.
package assets

import "fmt"

// Asset is one pinned file in a Hugging Face repository.
type Asset struct {
	// Repo is the repository, e.g. "kyutai/tts-1.6b-en_fr".
	Repo string

	// Filename is the path within the repository.
	Filename string

	// Revision pins the git revision. Empty means "main".
	Revision string

	// SHA256 is the expected content hash. Empty skips verification.
	SHA256 string
}

// resolvePath returns the hub resolve path for the asset.
func (a Asset) resolvePath() string {
	rev := a.Revision
	if rev == "" {
		rev = "main"
	}
	return fmt.Sprintf("%s/resolve/%s/%s", a.Repo, rev, a.Filename)
}

// Manifest lists the assets a deployment needs.
type Manifest struct {
	Assets []Asset
}

// DefaultManifest returns the asset set for a model repo and voice:
// model weights, tokenizer, config, and the voice embedding.
func DefaultManifest(modelRepo, voiceRepo, voice string) Manifest {
	return Manifest{
		Assets: []Asset{
			{Repo: modelRepo, Filename: "config.json"},
			{Repo: modelRepo, Filename: "model.safetensors"},
			{Repo: modelRepo, Filename: "tokenizer.model"},
			{Repo: voiceRepo, Filename: voice},
		},
	}
}
