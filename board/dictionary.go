package board

import (
	"encoding/json"
	"fmt"
	"sync"

	"adcore/protocol"
	"adcore/tinycompress"
)

// Dictionary is the self-description the host downloads with identify, as
// zlib-wrapped JSON.
type Dictionary struct {
	mu            sync.RWMutex
	registry      *Registry
	constants     map[string]string
	version       string
	buildVersions string
	raw           []byte
	cached        []byte
}

// dictionaryJSON is the wire shape of the dictionary. Maps marshal with
// sorted keys, so the encoding is stable.
type dictionaryJSON struct {
	Version       string            `json:"version"`
	BuildVersions string            `json:"build_versions"`
	Config        map[string]string `json:"config"`
	Commands      map[string]int    `json:"commands"`
	Responses     map[string]int    `json:"responses"`
}

func NewDictionary(registry *Registry) *Dictionary {
	return &Dictionary{
		registry:      registry,
		constants:     make(map[string]string),
		version:       protocol.Version,
		buildVersions: "go-simulated",
	}
}

// AddConstant exposes a value under config. Values are sent as strings.
func (d *Dictionary) AddConstant(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = fmt.Sprint(value)
	d.raw, d.cached = nil, nil
}

// Build encodes and caches the dictionary. Call it after every command is
// registered.
func (d *Dictionary) Build() error {
	commands, responses := d.registry.CommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := json.Marshal(dictionaryJSON{
		Version:       d.version,
		BuildVersions: d.buildVersions,
		Config:        d.constants,
		Commands:      commands,
		Responses:     responses,
	})
	if err != nil {
		return fmt.Errorf("encode dictionary: %w", err)
	}
	d.raw = data
	d.cached = tinycompress.Compress(data)
	return nil
}

// JSON returns the uncompressed dictionary.
func (d *Dictionary) JSON() []byte {
	d.Bytes()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.raw
}

// Bytes returns the compressed dictionary, building it if needed.
func (d *Dictionary) Bytes() []byte {
	d.mu.RLock()
	cached := d.cached
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}
	if err := d.Build(); err != nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// GetChunk returns a copy of up to count bytes starting at offset. Past
// the end it returns an empty chunk.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Bytes()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+uint32(count), uint32(len(data)))
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}
