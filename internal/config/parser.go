package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// fileFormat is the YAML/JSON document shape:
//
//	profiles:
//	  backup:
//	    type: s3
//	    bucket: snapshots
type fileFormat struct {
	Profiles map[string]map[string]string `json:"profiles" yaml:"profiles"`
}

// hclFormat is the HCL document shape:
//
//	profile "backup" {
//	  type   = "s3"
//	  bucket = "snapshots"
//	}
type hclFormat struct {
	Profiles []hclProfile `hcl:"profile,block"`
}

type hclProfile struct {
	Name   string   `hcl:"name,label"`
	Remain hcl.Body `hcl:",remain"`
}

// parse decodes data according to the extension of path. Files without a
// known extension are read as YAML.
func parse(path string, data []byte) (map[string]map[string]string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", "":
		return parseYAML(data)
	case ".json":
		return parseJSON(data)
	case ".hcl":
		return parseHCL(path, data)
	default:
		return nil, errors.Errorf("unsupported file extension %q", ext)
	}
}

func parseYAML(data []byte) (map[string]map[string]string, error) {
	var f fileFormat
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]map[string]string{}, nil
		}
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	var extra yaml.Node
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
	case err != nil:
		return nil, errors.Errorf("parsing YAML: %w", err)
	default:
		return nil, errors.New("parsing YAML: multiple documents are not supported")
	}
	return nonNil(f.Profiles), nil
}

func parseJSON(data []byte) (map[string]map[string]string, error) {
	var f fileFormat
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]map[string]string{}, nil
	}
	if err := checkJSONKeys(json.NewDecoder(bytes.NewReader(data))); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&f); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("parsing JSON: unexpected data after the top-level object")
	}
	return nonNil(f.Profiles), nil
}

// checkJSONKeys walks one JSON value and rejects objects that repeat a key.
// encoding/json keeps the last occurrence, YAML and HCL refuse duplicates.
func checkJSONKeys(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return errors.WithStack(err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	switch delim {
	case '{':
		seen := map[string]bool{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return errors.WithStack(err)
			}
			key, _ := kt.(string)
			if seen[key] {
				return errors.Errorf("duplicate key %q", key)
			}
			seen[key] = true
			if err := checkJSONKeys(dec); err != nil {
				return err
			}
		}
	case '[':
		for dec.More() {
			if err := checkJSONKeys(dec); err != nil {
				return err
			}
		}
	}
	// closing delimiter
	if _, err := dec.Token(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func parseHCL(filename string, data []byte) (map[string]map[string]string, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	var f hclFormat
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	profiles := make(map[string]map[string]string, len(f.Profiles))
	for _, p := range f.Profiles {
		if _, dup := profiles[p.Name]; dup {
			return nil, errors.Errorf("decoding HCL: duplicate profile %q", p.Name)
		}
		attrs, diags := p.Remain.JustAttributes()
		if diags.HasErrors() {
			return nil, errors.Errorf("decoding HCL profile %q: %s", p.Name, diags.Error())
		}
		opts := make(map[string]string, len(attrs))
		for key, attr := range attrs {
			v, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, errors.Errorf("decoding HCL profile %q: %s", p.Name, diags.Error())
			}
			s, err := convert.Convert(v, cty.String)
			if err != nil || s.IsNull() || !s.IsKnown() {
				return nil, errors.Errorf("decoding HCL profile %q: %s must be a string", p.Name, key)
			}
			opts[key] = s.AsString()
		}
		profiles[p.Name] = opts
	}
	return profiles, nil
}

func nonNil(m map[string]map[string]string) map[string]map[string]string {
	if m == nil {
		return map[string]map[string]string{}
	}
	for name, opts := range m {
		if opts == nil {
			m[name] = map[string]string{}
		}
	}
	return m
}
