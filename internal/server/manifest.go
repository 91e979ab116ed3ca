package server

// Manifest is the Stremio addon descriptor served at /manifest.json.
type Manifest struct {
	ID            string        `json:"id"`
	Version       string        `json:"version"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Logo          string        `json:"logo"`
	Resources     []string      `json:"resources"`
	Types         []string      `json:"types"`
	IDPrefixes    []string      `json:"idPrefixes"`
	Catalogs      []string      `json:"catalogs"`
	BehaviorHints BehaviorHints `json:"behaviorHints"`
}

// BehaviorHints tells Stremio how the addon behaves.
type BehaviorHints struct {
	Adult                 bool `json:"adult"`
	P2P                   bool `json:"p2p"`
	Configurable          bool `json:"configurable"`
	ConfigurationRequired bool `json:"configurationRequired"`
}

var addonManifest = Manifest{
	ID:          "com.titulky.subtitles",
	Version:     "2.2.0",
	Name:        "Titulky.com + RD (Multi-User)",
	Description: "Czech subtitles with per-user Real-Debrid integration",
	Logo:        "https://www.titulky.com/favicon.ico",
	Resources:   []string{"subtitles"},
	Types:       []string{"movie", "series"},
	IDPrefixes:  []string{"tt"},
	Catalogs:    []string{},
	BehaviorHints: BehaviorHints{
		Configurable: true,
	},
}
