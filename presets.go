package ezredirect

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Presets maps preset names to URLs while remembering insertion order.
// Order only matters for display; the name is the key.
type Presets struct {
	names []string
	urls  map[string]string
}

func NewPresets() *Presets {
	return &Presets{urls: make(map[string]string)}
}

func (p *Presets) Len() int {
	return len(p.names)
}

func (p *Presets) Get(name string) (string, bool) {
	u, ok := p.urls[name]
	return u, ok
}

// Set overwrites an existing preset in place or appends a new one.
func (p *Presets) Set(name, url string) {
	if _, ok := p.urls[name]; !ok {
		p.names = append(p.names, name)
	}
	p.urls[name] = url
}

func (p *Presets) Delete(name string) bool {
	if _, ok := p.urls[name]; !ok {
		return false
	}
	delete(p.urls, name)
	for i, n := range p.names {
		if n == name {
			p.names = append(p.names[:i], p.names[i+1:]...)
			break
		}
	}
	return true
}

// Rename changes a preset's key without moving it in the display order.
// Renaming onto an existing name overwrites that name's URL and drops its
// old slot.
func (p *Presets) Rename(oldName, newName string) bool {
	u, ok := p.urls[oldName]
	if !ok {
		return false
	}
	if oldName == newName {
		return true
	}
	if _, taken := p.urls[newName]; taken {
		p.Delete(newName)
	}
	delete(p.urls, oldName)
	p.urls[newName] = u
	for i, n := range p.names {
		if n == oldName {
			p.names[i] = newName
			break
		}
	}
	return true
}

// Names returns the preset names in insertion order.
func (p *Presets) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

func (p *Presets) clone() *Presets {
	c := NewPresets()
	c.names = append(c.names, p.names...)
	for k, v := range p.urls {
		c.urls[k] = v
	}
	return c
}

// MarshalJSON writes a plain JSON object whose key order is the insertion
// order, which is the presets.json on-disk shape.
func (p *Presets) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.urls[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON walks the object token by token so the file's key order is
// preserved; encoding/json's map decoding would lose it.
func (p *Presets) UnmarshalJSON(data []byte) error {
	p.names = nil
	p.urls = make(map[string]string)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("presets: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("presets: expected string key, got %v", tok)
		}
		var u string
		if err = dec.Decode(&u); err != nil {
			return fmt.Errorf("presets: value for %q: %w", name, err)
		}
		p.Set(name, u)
	}
	if _, err = dec.Token(); err != nil {
		return err
	}
	return nil
}
