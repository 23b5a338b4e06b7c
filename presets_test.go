package ezredirect

import (
	"encoding/json"
	"testing"
)

func TestPresets_MarshalOrder(t *testing.T) {
	p := NewPresets()
	p.Set("b", "https://b.example")
	p.Set("a", "https://a.example")
	p.Set("c", "https://c.example")

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal("failed on marshal.", err)
	}
	want := `{"b":"https://b.example","a":"https://a.example","c":"https://c.example"}`
	if string(raw) != want {
		t.Fatal("wrong encoding:", string(raw))
	}

	got := NewPresets()
	if err = json.Unmarshal(raw, got); err != nil {
		t.Fatal("failed on unmarshal.", err)
	}
	names := got.Names()
	if len(names) != 3 || names[0] != "b" || names[1] != "a" || names[2] != "c" {
		t.Fatal("decode lost order:", names)
	}
}

func TestPresets_RenameOntoExisting(t *testing.T) {
	p := NewPresets()
	p.Set("a", "https://a.example")
	p.Set("b", "https://b.example")
	p.Set("c", "https://c.example")

	// renaming a onto c keeps a's slot and drops c's
	if !p.Rename("a", "c") {
		t.Fatal("rename should succeed")
	}
	names := p.Names()
	if len(names) != 2 || names[0] != "c" || names[1] != "b" {
		t.Fatal("wrong order after rename:", names)
	}
	if u, _ := p.Get("c"); u != "https://a.example" {
		t.Fatal("renamed preset should keep its url:", u)
	}

	if p.Rename("ghost", "x") {
		t.Fatal("renaming a missing preset should fail")
	}
	if !p.Rename("b", "b") {
		t.Fatal("no-op rename should succeed")
	}
}

func TestPresets_UnmarshalRejectsNonObject(t *testing.T) {
	p := NewPresets()
	if err := json.Unmarshal([]byte(`["a","b"]`), p); err == nil {
		t.Fatal("array should be rejected")
	}
	if err := json.Unmarshal([]byte(`{"a": 5}`), p); err == nil {
		t.Fatal("non-string value should be rejected")
	}
}
