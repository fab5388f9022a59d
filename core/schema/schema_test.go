package schema_test

import (
	"testing"
	"testing/fstest"

	"github.com/relabs-tech/blog/core/schema"
)

const (
	ref1 = `{ "type" : "string" ,
		      "$id" : "http://some_host.com/string.json"}`
	ref2 = `{ "$id" : "http://some_host.com/maxlength.json",
	 		  "maxLength" : 5 }`

	top_level1 = `
	{ "$id" : "http://some_host.com/top1.json",
	  "allOf" : [
		{ "$ref" : "http://some_host.com/string.json" },
		{ "$ref" : "http://some_host.com/maxlength.json" }
		]
	}`
	top_level2 = `
	{ "$id" : "http://some_host.com/top2.json",
	  "allOf" : [
 		{ "$ref" : "http://some_host.com/string.json" },
 		{ "type": "string", "minlength": 3 }
	  ]
	}`
)

func TestValidateBytes(t *testing.T) {
	v, err := schema.NewValidator([]string{top_level1, top_level2}, []string{ref1, ref2})
	if err != nil {
		t.Fatalf("No error expected when creating validator, got %v", err)
	}

	schemaID1 := "http://some_host.com/top1.json"
	schemaID2 := "http://some_host.com/top2.json"
	jsonShortString := `"short"`
	jsonLongString := `"a very long string"`

	if err := v.ValidateBytes([]byte(jsonShortString), schemaID1); err != nil {
		t.Fatalf("%s is expected to be valid with schema %s. Reported error was: %v", jsonShortString, schemaID1, err)
	}
	if err := v.ValidateBytes([]byte(jsonLongString), schemaID1); err == nil {
		t.Fatalf("%s is expected to be invalid with schema %s", jsonLongString, schemaID1)
	}
	if err := v.ValidateBytes([]byte(jsonLongString), schemaID2); err != nil {
		t.Fatalf("%s is expected to be valid with schema %s. Reported error was: %v", jsonLongString, schemaID2, err)
	}
	if err := v.ValidateBytes([]byte(`42`), schemaID2); err == nil {
		t.Fatalf("a number is expected to be invalid with schema %s", schemaID2)
	}
}

func TestUnknownSchema(t *testing.T) {
	v, err := schema.NewValidator(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.HasSchema("nope") {
		t.Fatal("validator should be empty")
	}
	if err := v.ValidateBytes([]byte(`{}`), "nope"); err == nil {
		t.Fatal("expected an error for an unknown schema")
	}
}

func TestSchemaWithoutID(t *testing.T) {
	if _, err := schema.NewValidator([]string{`{"type":"string"}`}, nil); err == nil {
		t.Fatal("expected an error for a schema without $id")
	}
}

func TestNewValidatorFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"top1.json":      {Data: []byte(top_level1)},
		"README.md":      {Data: []byte("ignored")},
		"refs/str.json":  {Data: []byte(ref1)},
		"refs/max.json":  {Data: []byte(ref2)},
		"refs/notes.txt": {Data: []byte("ignored")},
	}
	v, err := schema.NewValidatorFromFS(fsys)
	if err != nil {
		t.Fatalf("No error expected when creating validator, got %v", err)
	}
	if !v.HasSchema("http://some_host.com/top1.json") {
		t.Fatal("top level schema not loaded")
	}
	if err := v.ValidateBytes([]byte(`"ok"`), "http://some_host.com/top1.json"); err != nil {
		t.Fatal(err)
	}
}
