// Package openapi embeds the API contract, validates it at startup and
// serves it as JSON.
package openapi

import (
	"context"
	_ "embed"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"

	"github.com/turtacn/ache-predictor/pkg/errors"
)

//go:embed openapi.yaml
var rawSpec []byte

// Document is the validated contract.
type Document struct {
	spec *openapi3.T
	json []byte
}

// Load parses and validates the embedded document.
func Load(ctx context.Context, version string) (*Document, error) {
	loader := &openapi3.Loader{Context: ctx}
	spec, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "openapi: load document")
	}
	if err := spec.Validate(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "openapi: invalid document")
	}
	if version != "" && spec.Info != nil {
		spec.Info.Version = version
	}
	data, err := spec.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "openapi: encode document")
	}
	return &Document{spec: spec, json: data}, nil
}

// Operation is one documented method and path, with the path in gin syntax.
type Operation struct {
	Method string
	Path   string
	ID     string
}

// Operations lists every documented operation sorted by path then method.
func (d *Document) Operations() []Operation {
	var out []Operation
	for path, item := range d.spec.Paths.Map() {
		for method, op := range item.Operations() {
			out = append(out, Operation{Method: method, Path: ginPath(path), ID: op.OperationID})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// ginPath rewrites {param} segments as :param.
func ginPath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			parts[i] = ":" + s[1:len(s)-1]
		}
	}
	return strings.Join(parts, "/")
}

// Handler serves the document.
func (d *Document) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", d.json)
	}
}

//Personal.AI order the ending
